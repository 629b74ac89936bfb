package watcher

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type Debouncer struct {
	duration time.Duration
	clock    clock.Clock
	timers   map[string]*clock.Timer
	mu       sync.Mutex
}

func NewDebouncer(duration time.Duration, clk clock.Clock) *Debouncer {
	if clk == nil {
		clk = clock.New()
	}
	return &Debouncer{
		duration: duration,
		clock:    clk,
		timers:   make(map[string]*clock.Timer),
	}
}

// Debounce откладывает fn на duration, повторный вызов с тем же ключом
// переносит срок
func (d *Debouncer) Debounce(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, exists := d.timers[key]; exists {
		timer.Stop()
	}

	var timer *clock.Timer
	timer = d.clock.AfterFunc(d.duration, func() {
		d.mu.Lock()
		// таймер мог быть заменен, пока ждал блокировку
		if d.timers[key] != timer {
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
	d.timers[key] = timer
}

// Stop отменяет все отложенные вызовы
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, timer := range d.timers {
		timer.Stop()
		delete(d.timers, key)
	}
}
