package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"lanbeacon/internal/util/logger/sl"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"
)

// PayloadWatcher перечитывает payload-файл после изменений и передает
// результат в PayloadSink. Следит за директорией, а не за файлом, чтобы
// пережить редакторы, которые сохраняют через rename.
type PayloadWatcher struct {
	path      string
	watcher   *fsnotify.Watcher
	sink      PayloadSink
	errors    chan error
	config    Config
	log       *slog.Logger
	clock     clock.Clock
	debouncer *Debouncer
	metrics   *WatcherMetrics
	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	closed    bool
}

func NewPayloadWatcher(path string, sink PayloadSink, config Config, log *slog.Logger) (*PayloadWatcher, error) {
	const op = "watcher.NewPayloadWatcher"

	if config.DebounceDuration == 0 {
		config.DebounceDuration = DefaultDebounceDuration
	}
	if config.BufferSize == 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.IgnorePatterns == nil {
		config.IgnorePatterns = IgnoredPatterns
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidPath, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidPath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: %w: %s is a directory", op, ErrInvalidPath, abs)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("%s: failed to watch directory %s: %w", op, filepath.Dir(abs), err)
	}

	pw := &PayloadWatcher{
		path:      abs,
		watcher:   watcher,
		sink:      sink,
		errors:    make(chan error, config.BufferSize),
		config:    config,
		log:       log.With(slog.String("component", "payload_watcher"), slog.String("path", abs)),
		clock:     config.Clock,
		debouncer: NewDebouncer(config.DebounceDuration, config.Clock),
		metrics:   NewWatcherMetrics(),
		stopChan:  make(chan struct{}),
	}

	pw.wg.Add(1)
	go pw.run()

	return pw, nil
}

func (pw *PayloadWatcher) run() {
	defer pw.wg.Done()

	for {
		select {
		case <-pw.stopChan:
			return
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if pw.shouldProcessEvent(event) {
				pw.metrics.RecordEvent()
				pw.debouncer.Debounce(pw.path, pw.Reload)
			}
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			pw.handleError(err)
		}
	}
}

func (pw *PayloadWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	// Проверяем, что это событие, которое нас интересует
	if event.Op&WatchedEvents == 0 {
		return false
	}

	// Проверяем игнорируемые паттерны
	for _, pattern := range pw.config.IgnorePatterns {
		if strings.Contains(event.Name, pattern) {
			return false
		}
	}

	return filepath.Clean(event.Name) == pw.path
}

// Reload перечитывает файл и отдает payload в sink. Ошибка не меняет
// текущие данные публикации.
func (pw *PayloadWatcher) Reload() {
	const op = "watcher.PayloadWatcher.Reload"
	log := pw.log.With(slog.String("op", op))

	payload, err := LoadPayload(pw.path)
	if err != nil {
		pw.handleError(fmt.Errorf("failed to load payload %s: %w", pw.path, err))
		return
	}

	if err := pw.sink.SetDiscoveryData(payload); err != nil {
		pw.handleError(fmt.Errorf("failed to apply payload %s: %w", pw.path, err))
		return
	}

	pw.metrics.RecordReload(pw.clock.Now())
	log.Info("payload reloaded", slog.Int("keys", len(payload)))
}

func (pw *PayloadWatcher) handleError(err error) {
	pw.metrics.RecordError()
	pw.log.Warn("payload watcher error", sl.Err(err))

	select {
	case pw.errors <- err:
	default:
		pw.log.Debug("Error buffer full, dropping error", sl.Err(err))
	}
}

func (pw *PayloadWatcher) Close() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.closed {
		return ErrWatcherClosed
	}
	pw.closed = true

	close(pw.stopChan)
	pw.wg.Wait()
	pw.debouncer.Stop()

	if err := pw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	return nil
}

// Errors отдает ошибки чтения и применения payload. Канал не закрывается
func (pw *PayloadWatcher) Errors() <-chan error {
	return pw.errors
}

func (pw *PayloadWatcher) Metrics() *WatcherMetrics {
	return pw.metrics
}
