package multicastdiscovery

import (
	"net"
	"os"
	"sync"
	"time"
)

type fakeWriter struct {
	mu      sync.Mutex
	packets [][]byte
	closed  bool
	// failWith возвращается из Write, если не nil
	failWith error
	// block заставляет Write ждать Close
	block   bool
	release chan struct{}
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{release: make(chan struct{})}
}

func (w *fakeWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return 0, net.ErrClosed
	}
	if w.failWith != nil {
		err := w.failWith
		w.mu.Unlock()
		return 0, err
	}
	if w.block {
		w.mu.Unlock()
		<-w.release
		return 0, net.ErrClosed
	}
	w.packets = append(w.packets, append([]byte(nil), b...))
	w.mu.Unlock()
	return len(b), nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return net.ErrClosed
	}
	w.closed = true
	close(w.release)
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.packets)
}

func (w *fakeWriter) last() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.packets) == 0 {
		return nil
	}
	return w.packets[len(w.packets)-1]
}

func (w *fakeWriter) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

type datagram struct {
	data []byte
	src  net.Addr
	err  error
}

// fakeReader отдает датаграммы из канала и соблюдает дедлайн чтения
type fakeReader struct {
	in chan datagram

	mu       sync.Mutex
	deadline time.Time
	closed   chan struct{}
	once     sync.Once
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		in:     make(chan datagram, 64),
		closed: make(chan struct{}),
	}
}

func (r *fakeReader) ReadFrom(b []byte) (int, net.Addr, error) {
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
	case d := <-r.in:
		if d.err != nil {
			return 0, nil, d.err
		}
		return copy(b, d.data), d.src, nil
	}
}

func (r *fakeReader) SetReadDeadline(t time.Time) error {
	select {
	case <-r.closed:
		return net.ErrClosed
	default:
	}
	r.mu.Lock()
	r.deadline = t
	r.mu.Unlock()
	return nil
}

func (r *fakeReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

func (r *fakeReader) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

type countingRecorder struct {
	mu       sync.Mutex
	received int
	dropped  map[string]int
	sent     int
	failed   int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{dropped: map[string]int{}}
}

func (r *countingRecorder) PacketReceived() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received++
}

func (r *countingRecorder) PacketDropped(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped[reason]++
}

func (r *countingRecorder) BroadcastSent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent++
}

func (r *countingRecorder) BroadcastFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
}

func (r *countingRecorder) snapshot() (received int, dropped map[string]int, sent, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := make(map[string]int, len(r.dropped))
	for k, v := range r.dropped {
		d[k] = v
	}
	return r.received, d, r.sent, r.failed
}
