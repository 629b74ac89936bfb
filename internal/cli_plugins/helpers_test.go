package cliplugins

import (
	"bytes"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"lanbeacon/internal/config"
	multicastdiscovery "lanbeacon/internal/discovery_manager/discovery_mechanism/multicast_discovery"
	"lanbeacon/internal/util/logger/handlers/slogdiscard"
)

func testApp(t *testing.T) *App {
	t.Helper()

	return &App{
		Config: &config.Config{
			Env: "local",
			Discovery: config.Discovery{
				MulticastAddress:    "224.0.23.178",
				MulticastPort:       7095,
				TimeToLive:          1,
				BroadcastPeriod:     20 * time.Millisecond,
				MaxHeartbeatTimeout: 2 * time.Second,
				TimeoutMultiplier:   5,
				MinimumWindow:       50 * time.Millisecond,
				SweepInterval:       10 * time.Millisecond,
				ReceiveTimeout:      20 * time.Millisecond,
			},
			Journal: config.Journal{OpenTimeout: time.Second},
			Publish: config.Publish{Debounce: 20 * time.Millisecond},
		},
		Log: slogdiscard.NewDiscardLogger(),
	}
}

// syncBuffer - вывод команды, который читает тест, пока команда пишет
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Contains(s string) bool {
	return strings.Contains(b.String(), s)
}

// loopBus связывает отправителей и слушателей в памяти
type loopBus struct {
	mu      sync.Mutex
	readers []*loopReader
}

func (b *loopBus) dial() (multicastdiscovery.PacketWriter, error) {
	return &loopWriter{bus: b}, nil
}

func (b *loopBus) listen() (multicastdiscovery.PacketReader, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := &loopReader{in: make(chan []byte, 128), closed: make(chan struct{})}
	b.readers = append(b.readers, r)
	return r, nil
}

func (b *loopBus) deliver(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.readers {
		select {
		case r.in <- append([]byte(nil), data...):
		default:
		}
	}
}

type loopWriter struct {
	bus *loopBus
}

func (w *loopWriter) Write(p []byte) (int, error) {
	w.bus.deliver(p)
	return len(p), nil
}

func (w *loopWriter) Close() error { return nil }

type loopReader struct {
	in chan []byte

	mu       sync.Mutex
	deadline time.Time
	closed   chan struct{}
	once     sync.Once
}

func (r *loopReader) ReadFrom(p []byte) (int, net.Addr, error) {
	r.mu.Lock()
	deadline := r.deadline
	r.mu.Unlock()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case <-r.closed:
		return 0, nil, net.ErrClosed
	case <-timer.C:
		return 0, nil, os.ErrDeadlineExceeded
	case data := <-r.in:
		return copy(p, data), &net.UDPAddr{IP: net.IPv4(10, 1, 1, 1), Port: 7095}, nil
	}
}

func (r *loopReader) SetReadDeadline(t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deadline = t
	return nil
}

func (r *loopReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}
