// Package dispatcher fans discovery events out to observers.
//
// Dispatch never blocks: events are appended to an unbounded FIFO and a
// single delivery goroutine hands each one to a snapshot of the observers
// registered at delivery time. Events therefore reach every observer in the
// order they were dispatched.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	discoverymodels "lanbeacon/internal/discovery_manager/models"
	"lanbeacon/internal/util/logger/sl"

	"github.com/hashicorp/go-multierror"
)

var ErrDispatcherClosed = errors.New("dispatcher is closed")

// ObserverID identifies a registration returned by AddObserver.
type ObserverID uint64

// FailureRecorder is notified once per failed observer delivery.
type FailureRecorder interface {
	ObserverFailed()
}

type registration struct {
	id       ObserverID
	observer discoverymodels.Observer
}

type Dispatcher struct {
	log      *slog.Logger
	failures FailureRecorder

	mu        sync.RWMutex
	observers []registration
	nextID    ObserverID

	qmu    sync.Mutex
	queue  []discoverymodels.Event
	notify chan struct{}
	closed bool

	closing chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

type Option func(*Dispatcher)

// WithFailureRecorder reports observer failures to r.
func WithFailureRecorder(r FailureRecorder) Option {
	return func(d *Dispatcher) {
		d.failures = r
	}
}

// New starts the delivery goroutine; Close stops it.
func New(log *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		log:     log.With(slog.String("component", "dispatcher")),
		notify:  make(chan struct{}, 1),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) AddObserver(o discoverymodels.Observer) ObserverID {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	d.observers = append(d.observers, registration{id: d.nextID, observer: o})
	return d.nextID
}

// RemoveObserver is a no-op for unknown ids. An event already being
// delivered may still reach the removed observer.
func (d *Dispatcher) RemoveObserver(id ObserverID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, r := range d.observers {
		if r.id == id {
			// новый срез, чтобы не трогать снимок, который сейчас доставляется
			next := make([]registration, 0, len(d.observers)-1)
			next = append(next, d.observers[:i]...)
			next = append(next, d.observers[i+1:]...)
			d.observers = next
			return
		}
	}
}

// Subscribe returns a channel carrying every event dispatched after the call.
// A full channel stalls delivery to all observers until the reader catches up
// or ctx is done; the channel is closed when ctx is done or the dispatcher
// has closed. While closing, events that do not fit the buffer are dropped.
func (d *Dispatcher) Subscribe(ctx context.Context, buffer int) <-chan discoverymodels.Event {
	ch := make(chan discoverymodels.Event, buffer)

	var once sync.Once
	var mu sync.Mutex
	done := false
	closeCh := func() {
		once.Do(func() {
			mu.Lock()
			done = true
			close(ch)
			mu.Unlock()
		})
	}

	id := d.AddObserver(discoverymodels.ObserverFunc(func(e discoverymodels.Event) error {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return nil
		}
		select {
		case ch <- e:
			return nil
		default:
		}
		select {
		case ch <- e:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-d.closing:
			return ErrDispatcherClosed
		}
	}))

	go func() {
		select {
		case <-ctx.Done():
		case <-d.done:
		}
		d.RemoveObserver(id)
		closeCh()
	}()

	return ch
}

// Dispatch queues e for delivery. Events dispatched after Close are dropped.
func (d *Dispatcher) Dispatch(e discoverymodels.Event) {
	d.qmu.Lock()
	if d.closed {
		d.qmu.Unlock()
		return
	}
	d.queue = append(d.queue, e)
	d.qmu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Close delivers the events queued so far and stops the delivery goroutine.
func (d *Dispatcher) Close() error {
	d.qmu.Lock()
	if d.closed {
		d.qmu.Unlock()
		return ErrDispatcherClosed
	}
	d.closed = true
	d.qmu.Unlock()
	close(d.closing)

	select {
	case d.notify <- struct{}{}:
	default:
	}
	d.wg.Wait()
	close(d.done)

	return nil
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for range d.notify {
		for {
			d.qmu.Lock()
			batch := d.queue
			d.queue = nil
			closed := d.closed
			d.qmu.Unlock()

			if len(batch) == 0 {
				if closed {
					return
				}
				break
			}
			for _, e := range batch {
				d.deliver(e)
			}
		}
	}
}

func (d *Dispatcher) deliver(e discoverymodels.Event) {
	d.mu.RLock()
	snapshot := d.observers
	d.mu.RUnlock()

	var result *multierror.Error
	for _, r := range snapshot {
		if err := d.notifyObserver(r, e); err != nil {
			result = multierror.Append(result, err)
			if d.failures != nil {
				d.failures.ObserverFailed()
			}
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		d.log.Warn("observers failed to handle event",
			slog.String("kind", e.Kind.String()),
			slog.String("session_id", e.SessionID),
			slog.Int("failed", result.Len()),
			sl.Err(err),
		)
	}
}

func (d *Dispatcher) notifyObserver(r registration, e discoverymodels.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("observer %d panicked: %v", r.id, p)
		}
	}()

	if err := r.observer.OnEvent(e); err != nil {
		return fmt.Errorf("observer %d: %w", r.id, err)
	}
	return nil
}
