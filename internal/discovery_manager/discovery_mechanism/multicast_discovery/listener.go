package multicastdiscovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	discoverymodels "lanbeacon/internal/discovery_manager/models"
	"lanbeacon/internal/discovery_manager/packet"
	"lanbeacon/internal/util/logger/sl"
)

// Listener читает датаграммы из группы, декодирует их и передает в Updater.
// Невалидные датаграммы отбрасываются, ошибка чтения сокета завершает Run.
type Listener struct {
	conn    PacketReader
	updater Updater
	timeout time.Duration
	log     *slog.Logger
	rec     Recorder
	onIdle  func()

	closed atomic.Bool
}

type ListenerOption func(*Listener)

func WithListenerRecorder(rec Recorder) ListenerOption {
	return func(l *Listener) { l.rec = rec }
}

// WithIdleHook вызывается каждый раз, когда чтение завершилось по таймауту
func WithIdleHook(fn func()) ListenerOption {
	return func(l *Listener) { l.onIdle = fn }
}

func NewListener(
	conn PacketReader,
	updater Updater,
	cfg discoverymodels.Configuration,
	log *slog.Logger,
	opts ...ListenerOption,
) *Listener {
	l := &Listener{
		conn:    conn,
		updater: updater,
		timeout: cfg.ReceiveTimeout,
		log:     log.With(slog.String("component", "listener")),
		rec:     nopRecorder{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.timeout <= 0 {
		l.timeout = discoverymodels.DefaultReceiveTimeout
	}
	return l
}

// Run читает сокет до отмены ctx или Close. Штатная остановка возвращает nil,
// ошибка сокета - ErrReceiveFailed. Сокет закрывается в любом случае.
func (l *Listener) Run(ctx context.Context) error {
	const op = "multicastdiscovery.Listener.Run"
	log := l.log.With(slog.String("op", op))

	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()
	defer l.Close()

	log.Info("UDP Discovery listener started")

	buffer := make([]byte, maxDatagramRead)
	for {
		if err := l.conn.SetReadDeadline(time.Now().Add(l.timeout)); err != nil {
			if l.closed.Load() {
				log.Info("UDP Discovery listener stopped")
				return nil
			}
			log.Error("set read deadline", sl.Err(err))
			return fmt.Errorf("%w: set read deadline: %v", ErrReceiveFailed, err)
		}

		n, remoteAddr, err := l.conn.ReadFrom(buffer)
		if err != nil {
			if l.closed.Load() {
				log.Info("UDP Discovery listener stopped")
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if l.onIdle != nil {
					l.onIdle()
				}
				continue
			}
			log.Error("Error reading UDP", sl.Err(err))
			return fmt.Errorf("%w: %v", ErrReceiveFailed, err)
		}

		l.processDatagram(buffer[:n], remoteAddr)
	}
}

// Close прерывает Run. Повторные вызовы ничего не делают.
func (l *Listener) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	return l.conn.Close()
}

// processDatagram разбирает пакет синхронно, чтобы сохранить порядок
// пакетов одной сессии
func (l *Listener) processDatagram(data []byte, remoteAddr net.Addr) {
	l.rec.PacketReceived()

	source := ""
	if remoteAddr != nil {
		source = remoteAddr.String()
	}
	log := l.log.With(slog.String("source", source))

	payload, err := packet.Decode(data)
	if err != nil {
		log.Debug("Invalid discovery message format", sl.Err(err))
		l.rec.PacketDropped(DropMalformed)
		return
	}

	sessionID := payload[discoverymodels.KeySessionID]
	if sessionID == "" {
		log.Debug("discovery message without session id")
		l.rec.PacketDropped(DropMissingSession)
		return
	}

	period, err := discoverymodels.ParsePeriod(payload[discoverymodels.KeyBroadcastPeriod])
	if err != nil {
		log.Debug("Invalid broadcast period in discovery message", sl.Err(err))
		l.rec.PacketDropped(DropBadPeriod)
		return
	}

	delete(payload, discoverymodels.KeySessionID)
	delete(payload, discoverymodels.KeyBroadcastPeriod)

	l.updater.Update(sessionID, payload, period, source)
}
