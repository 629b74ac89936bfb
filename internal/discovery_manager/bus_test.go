package discoverymanager

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	multicastdiscovery "lanbeacon/internal/discovery_manager/discovery_mechanism/multicast_discovery"
)

// memoryBus - multicast-группа в памяти: каждая датаграмма копируется всем
// подписчикам, переполненный подписчик теряет пакет как при UDP
type memoryBus struct {
	mu      sync.Mutex
	readers []*busReader
	senders int
}

func (b *memoryBus) dial() (multicastdiscovery.PacketWriter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.senders++
	return &busWriter{
		bus: b,
		src: &net.UDPAddr{IP: net.IPv4(10, 0, 0, byte(b.senders)), Port: 7095},
	}, nil
}

func (b *memoryBus) listen() (multicastdiscovery.PacketReader, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := &busReader{
		in:     make(chan busDatagram, 256),
		closed: make(chan struct{}),
	}
	b.readers = append(b.readers, r)
	return r, nil
}

func (b *memoryBus) deliver(d busDatagram) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.readers {
		select {
		case r.in <- d:
		default:
		}
	}
}

type busDatagram struct {
	data []byte
	src  net.Addr
	err  error
}

type busWriter struct {
	bus *memoryBus
	src net.Addr

	mu     sync.Mutex
	closed bool
}

func (w *busWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return 0, net.ErrClosed
	}
	w.bus.deliver(busDatagram{data: append([]byte(nil), b...), src: w.src})
	return len(b), nil
}

func (w *busWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("close: %w", net.ErrClosed)
	}
	w.closed = true
	return nil
}

type busReader struct {
	in chan busDatagram

	mu       sync.Mutex
	deadline time.Time
	closed   chan struct{}
	once     sync.Once
}

func (r *busReader) ReadFrom(b []byte) (int, net.Addr, error) {
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

func (r *busReader) SetReadDeadline(t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deadline = t
	return nil
}

func (r *busReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}
