package eventstorage

import "errors"

var (
	ErrBucketNotFound = errors.New("bucket not found")
	ErrNilDB          = errors.New("database connection is nil")
	ErrEmptySessionID = errors.New("event record without session id")
)
