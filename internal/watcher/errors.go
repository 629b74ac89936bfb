package watcher

import "errors"

var (
	ErrWatcherClosed  = errors.New("watcher is closed")
	ErrInvalidPath    = errors.New("invalid path")
	ErrInvalidPayload = errors.New("invalid payload file")
)
