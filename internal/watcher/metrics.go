package watcher

import (
	"sync/atomic"
	"time"
)

type WatcherMetrics struct {
	eventsProcessed atomic.Int64
	reloads         atomic.Int64
	errors          atomic.Int64
	lastReload      atomic.Int64
}

func NewWatcherMetrics() *WatcherMetrics {
	return &WatcherMetrics{}
}

func (m *WatcherMetrics) RecordEvent() {
	m.eventsProcessed.Add(1)
}

func (m *WatcherMetrics) RecordReload(at time.Time) {
	m.reloads.Add(1)
	m.lastReload.Store(at.UnixNano())
}

func (m *WatcherMetrics) RecordError() {
	m.errors.Add(1)
}

func (m *WatcherMetrics) GetStats() map[string]interface{} {
	var last time.Time
	if ns := m.lastReload.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return map[string]interface{}{
		"events_processed": m.eventsProcessed.Load(),
		"reloads":          m.reloads.Load(),
		"errors":           m.errors.Load(),
		"last_reload_time": last,
	}
}
