package multicastdiscovery

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"lanbeacon/internal/util/logger/sl"

	"github.com/benbjohnson/clock"
)

// Broadcaster отправляет один и тот же пакет каждые period.
// Пакет неизменяем: новый payload означает новый Broadcaster.
type Broadcaster struct {
	conn   PacketWriter
	packet []byte
	period time.Duration
	clock  clock.Clock
	log    *slog.Logger
	rec    Recorder

	stopped  atomic.Bool
	stopChan chan struct{}
	stopOnce sync.Once
	closeErr error

	done chan struct{}
	err  error
}

func NewBroadcaster(
	conn PacketWriter,
	packet []byte,
	period time.Duration,
	clk clock.Clock,
	log *slog.Logger,
	rec Recorder,
) *Broadcaster {
	if clk == nil {
		clk = clock.New()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Broadcaster{
		conn:     conn,
		packet:   packet,
		period:   period,
		clock:    clk,
		log:      log,
		rec:      rec,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run отправляет пакеты до ShutDown или до первой ошибки отправки.
// Дедлайны считаются от момента старта, поэтому задержки отдельных
// отправок не накапливаются.
func (b *Broadcaster) Run() {
	const op = "multicastdiscovery.Broadcaster.Run"
	log := b.log.With(slog.String("op", op))
	defer close(b.done)

	next := b.clock.Now()
	for {
		if b.stopped.Load() {
			return
		}

		if _, err := b.conn.Write(b.packet); err != nil {
			if b.stopped.Load() {
				log.Debug("broadcaster stopped during send")
				return
			}
			// ошибка multicast-сокета почти всегда значит, что пропал интерфейс или маршрут
			b.err = fmt.Errorf("%w: %v", ErrSendFailed, err)
			b.rec.BroadcastFailed()
			log.Error("Discovery payload send failed, broadcaster terminated", sl.Err(err))
			return
		}
		b.rec.BroadcastSent()

		next = next.Add(b.period)
		now := b.clock.Now()
		wait := next.Sub(now)
		if wait <= 0 {
			// отстали от расписания: отправляем сразу и начинаем отсчет заново
			next = now
			continue
		}

		timer := b.clock.Timer(wait)
		select {
		case <-timer.C:
		case <-b.stopChan:
			timer.Stop()
			return
		}
	}
}

// ShutDown выставляет флаг остановки и закрывает сокет. Повторные вызовы
// возвращают результат первого.
func (b *Broadcaster) ShutDown() error {
	b.stopOnce.Do(func() {
		b.stopped.Store(true)
		close(b.stopChan)
		b.closeErr = b.conn.Close()
	})
	return b.closeErr
}

// Done закрывается, когда цикл отправки завершился
func (b *Broadcaster) Done() <-chan struct{} {
	return b.done
}

// Err возвращает причину аварийного завершения, nil если цикл еще работает
// или был остановлен штатно.
func (b *Broadcaster) Err() error {
	select {
	case <-b.done:
		return b.err
	default:
		return nil
	}
}
