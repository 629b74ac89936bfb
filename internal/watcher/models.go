package watcher

import (
	"time"

	"github.com/benbjohnson/clock"
)

// PayloadSink получает перечитанный payload, реализуется Publisher
type PayloadSink interface {
	SetDiscoveryData(payload map[string]string) error
}

// Config содержит настройки для PayloadWatcher
type Config struct {
	DebounceDuration time.Duration
	BufferSize       int
	IgnorePatterns   []string
	Clock            clock.Clock
}
