package multicastdiscovery

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"

	discoverymodels "lanbeacon/internal/discovery_manager/models"
	"lanbeacon/internal/discovery_manager/packet"
	"lanbeacon/internal/util/logger/sl"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// Publisher владеет сессией публикации: id сессии, текущим payload и
// активным Broadcaster. Все методы безопасны для конкурентного вызова.
type Publisher struct {
	mu sync.Mutex

	cfg       discoverymodels.Configuration
	sessionID string
	payload   map[string]string

	broadcaster *Broadcaster
	lastErr     error

	dial  Dialer
	clock clock.Clock
	log   *slog.Logger
	rec   Recorder
}

type PublisherOption func(*Publisher)

// WithDialer подменяет открытие сокета, по умолчанию SenderDialer(cfg)
func WithDialer(d Dialer) PublisherOption {
	return func(p *Publisher) { p.dial = d }
}

func WithClock(clk clock.Clock) PublisherOption {
	return func(p *Publisher) { p.clock = clk }
}

func WithRecorder(rec Recorder) PublisherOption {
	return func(p *Publisher) { p.rec = rec }
}

// WithSessionID фиксирует id сессии вместо случайного UUID
func WithSessionID(id string) PublisherOption {
	return func(p *Publisher) { p.sessionID = id }
}

func NewPublisher(
	cfg discoverymodels.Configuration,
	payload map[string]string,
	log *slog.Logger,
	opts ...PublisherOption,
) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Publisher{
		cfg:   cfg,
		clock: clock.New(),
		rec:   nopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.sessionID == "" {
		p.sessionID = uuid.NewString()
	}
	if p.dial == nil {
		p.dial = SenderDialer(cfg)
	}
	p.log = log.With(
		slog.String("component", "publisher"),
		slog.String("session", p.sessionID),
	)

	if _, err := p.buildPacket(payload); err != nil {
		return nil, err
	}
	p.payload = maps.Clone(payload)

	return p, nil
}

// Start запускает рассылку. Если рассылка уже идет, ничего не делает.
func (p *Publisher) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.startLocked()
}

// Stop останавливает рассылку и дожидается завершения цикла отправки.
// Повторный вызов безопасен.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stopLocked()
}

// Restart перезапускает рассылку, id сессии не меняется
func (p *Publisher) Restart() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.stopLocked(); err != nil {
		p.log.Warn("failed to close previous broadcaster", sl.Err(err))
	}
	return p.startLocked()
}

// SetDiscoveryData заменяет payload. Если рассылка идет, она перезапускается
// с новым пакетом. Невалидный payload отклоняется, текущий остается в силе.
func (p *Publisher) SetDiscoveryData(payload map[string]string) error {
	const op = "multicastdiscovery.Publisher.SetDiscoveryData"
	log := p.log.With(slog.String("op", op))

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.buildPacket(payload); err != nil {
		return err
	}
	p.payload = maps.Clone(payload)
	log.Info("discovery data updated", slog.Int("keys", len(payload)))

	if !p.runningLocked() {
		return nil
	}
	if err := p.stopLocked(); err != nil {
		log.Warn("failed to close previous broadcaster", sl.Err(err))
	}
	return p.startLocked()
}

func (p *Publisher) SessionID() string {
	return p.sessionID
}

// Running сообщает, жив ли цикл отправки. Упавший Broadcaster не считается
// запущенным.
func (p *Publisher) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.runningLocked()
}

// DiscoveryData возвращает копию текущего payload без служебных ключей
func (p *Publisher) DiscoveryData() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return maps.Clone(p.payload)
}

// Err возвращает последнюю ошибку отправки, из-за которой рассылка прекратилась
func (p *Publisher) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.broadcaster != nil {
		if err := p.broadcaster.Err(); err != nil {
			return err
		}
	}
	return p.lastErr
}

func (p *Publisher) runningLocked() bool {
	if p.broadcaster == nil {
		return false
	}
	select {
	case <-p.broadcaster.Done():
		return false
	default:
		return true
	}
}

func (p *Publisher) startLocked() error {
	const op = "multicastdiscovery.Publisher.Start"
	log := p.log.With(slog.String("op", op))

	if p.broadcaster != nil {
		if p.runningLocked() {
			return nil
		}
		// предыдущий Broadcaster упал сам, освобождаем его сокет
		p.reapLocked()
	}

	data, err := p.buildPacket(p.payload)
	if err != nil {
		return err
	}

	conn, err := p.dial()
	if err != nil {
		log.Error("failed to open multicast sender", sl.Err(err))
		return err
	}

	b := NewBroadcaster(conn, data, p.cfg.BroadcastPeriod, p.clock, p.log, p.rec)
	p.broadcaster = b
	p.lastErr = nil
	go b.Run()

	log.Info("broadcasting started",
		slog.Duration("period", p.cfg.BroadcastPeriod),
		slog.Int("packet_size", len(data)),
	)
	return nil
}

func (p *Publisher) stopLocked() error {
	const op = "multicastdiscovery.Publisher.Stop"
	log := p.log.With(slog.String("op", op))

	if p.broadcaster == nil {
		return nil
	}

	err := p.broadcaster.ShutDown()
	<-p.broadcaster.Done()
	if berr := p.broadcaster.Err(); berr != nil {
		p.lastErr = berr
	}
	p.broadcaster = nil

	log.Info("broadcasting stopped")
	return err
}

func (p *Publisher) reapLocked() {
	if err := p.broadcaster.ShutDown(); err != nil {
		p.log.Debug("closing failed broadcaster socket", sl.Err(err))
	}
	p.lastErr = p.broadcaster.Err()
	p.broadcaster = nil
}

// buildPacket добавляет к payload служебные ключи и кодирует результат
func (p *Publisher) buildPacket(payload map[string]string) ([]byte, error) {
	full := make(map[string]string, len(payload)+2)
	for k, v := range payload {
		if discoverymodels.IsReservedKey(k) {
			return nil, fmt.Errorf("%w: %q", discoverymodels.ErrReservedKey, k)
		}
		full[k] = v
	}
	full[discoverymodels.KeyBroadcastPeriod] = discoverymodels.FormatPeriod(p.cfg.BroadcastPeriod)
	full[discoverymodels.KeySessionID] = p.sessionID

	data, err := packet.Encode(full)
	if err != nil {
		return nil, err
	}
	if len(data) > packet.MaxDatagramSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrPacketTooLarge, len(data), packet.MaxDatagramSize)
	}
	return data, nil
}
