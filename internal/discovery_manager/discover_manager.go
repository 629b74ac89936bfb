package discoverymanager

import (
	"context"
	"log/slog"
	"sync"

	multicastdiscovery "lanbeacon/internal/discovery_manager/discovery_mechanism/multicast_discovery"
	"lanbeacon/internal/discovery_manager/dispatcher"
	discoverymodels "lanbeacon/internal/discovery_manager/models"
	"lanbeacon/internal/discovery_manager/registry"
	"lanbeacon/internal/util/logger/sl"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// DiscoveryManager собирает сторону потребителя: сокет, Listener, реестр,
// чистильщик и диспетчер событий.
type DiscoveryManager struct {
	cfg      discoverymodels.Configuration
	log      *slog.Logger
	clock    clock.Clock
	open     ReceiverOpener
	rec      multicastdiscovery.Recorder
	failures dispatcher.FailureRecorder

	dispatcher *dispatcher.Dispatcher
	registry   *registry.Registry

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	errCh   chan error
}

// NewDiscoveryManager проверяет конфигурацию и готовит компоненты.
// Сеть не трогается до Start.
func NewDiscoveryManager(
	cfg discoverymodels.Configuration,
	log *slog.Logger,
	opts ...Option,
) (*DiscoveryManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &DiscoveryManager{
		cfg:   cfg,
		log:   log,
		clock: clock.New(),
		errCh: make(chan error, 1),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.open == nil {
		m.open = func() (multicastdiscovery.PacketReader, error) {
			return multicastdiscovery.OpenReceiver(cfg)
		}
	}

	var dopts []dispatcher.Option
	if m.failures != nil {
		dopts = append(dopts, dispatcher.WithFailureRecorder(m.failures))
	}
	m.dispatcher = dispatcher.New(log, dopts...)
	m.registry = registry.New(cfg, m.dispatcher, m.clock, log)

	return m, nil
}

// Start подписывается на группу и запускает прием и чистку. Ошибка открытия
// сокета возвращается сразу, ошибка приема позже приходит в Err().
func (m *DiscoveryManager) Start(ctx context.Context) error {
	const op = "discover_manager.Start"
	log := m.log.With(slog.String("op", op))

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if m.started {
		return ErrAlreadyStarted
	}

	conn, err := m.open()
	if err != nil {
		log.Error("Failed to open multicast receiver", sl.Err(err))
		return err
	}

	var lopts []multicastdiscovery.ListenerOption
	if m.rec != nil {
		lopts = append(lopts, multicastdiscovery.WithListenerRecorder(m.rec))
	}
	listener := multicastdiscovery.NewListener(conn, m.registry, m.cfg, m.log, lopts...)
	sweeper := registry.NewSweeper(m.registry, m.cfg.SweepInterval, m.clock, m.log)

	ctx, m.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return listener.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })

	go func() {
		defer close(m.done)
		defer close(m.errCh)
		if err := g.Wait(); err != nil {
			log.Error("discovery stopped", sl.Err(err))
			m.errCh <- err
		}
	}()

	m.started = true
	log.Info("Started discovery",
		slog.String("group", m.cfg.MulticastAddress),
		slog.Int("port", m.cfg.MulticastPort),
	)
	return nil
}

// Err отдает фатальную ошибку приема. Канал закрывается, когда прием
// остановлен.
func (m *DiscoveryManager) Err() <-chan error {
	return m.errCh
}

func (m *DiscoveryManager) AddObserver(o discoverymodels.Observer) dispatcher.ObserverID {
	return m.dispatcher.AddObserver(o)
}

func (m *DiscoveryManager) RemoveObserver(id dispatcher.ObserverID) {
	m.dispatcher.RemoveObserver(id)
}

// Subscribe возвращает канал событий, закрываемый при отмене ctx или Shutdown
func (m *DiscoveryManager) Subscribe(ctx context.Context, buffer int) <-chan discoverymodels.Event {
	return m.dispatcher.Subscribe(ctx, buffer)
}

// Discovered возвращает живые сессии, отсортированные по id
func (m *DiscoveryManager) Discovered() []discoverymodels.Discoverable {
	return m.registry.Snapshot()
}

// Lookup возвращает сессию по id
func (m *DiscoveryManager) Lookup(sessionID string) (discoverymodels.Discoverable, bool) {
	return m.registry.Get(sessionID)
}

// Shutdown останавливает прием и чистку, доставляет оставшиеся события и
// закрывает диспетчер. Повторный вызов ничего не делает.
func (m *DiscoveryManager) Shutdown() error {
	const op = "discover_manager.Shutdown"
	log := m.log.With(slog.String("op", op))

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	started := m.started
	m.mu.Unlock()

	var result *multierror.Error
	if started {
		m.cancel()
		<-m.done
	} else {
		close(m.errCh)
		close(m.done)
	}

	if err := m.dispatcher.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		log.Error("Error stopping discovery", sl.Err(err))
		return err
	}
	log.Info("Stopped discovery")
	return nil
}
