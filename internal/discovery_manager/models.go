package discoverymanager

import (
	"errors"

	multicastdiscovery "lanbeacon/internal/discovery_manager/discovery_mechanism/multicast_discovery"
	"lanbeacon/internal/discovery_manager/dispatcher"

	"github.com/benbjohnson/clock"
)

var (
	ErrAlreadyStarted = errors.New("discovery manager already started")
	ErrManagerClosed  = errors.New("discovery manager is shut down")
)

// ReceiverOpener открывает входящий сокет группы
type ReceiverOpener func() (multicastdiscovery.PacketReader, error)

type Option func(*DiscoveryManager)

// WithReceiverOpener подменяет открытие сокета, по умолчанию OpenReceiver(cfg)
func WithReceiverOpener(open ReceiverOpener) Option {
	return func(m *DiscoveryManager) { m.open = open }
}

// WithClock задает часы реестра и чистильщика
func WithClock(clk clock.Clock) Option {
	return func(m *DiscoveryManager) { m.clock = clk }
}

// WithRecorder подключает статистику приема
func WithRecorder(rec multicastdiscovery.Recorder) Option {
	return func(m *DiscoveryManager) { m.rec = rec }
}

// WithFailureRecorder подключает счетчик упавших наблюдателей
func WithFailureRecorder(r dispatcher.FailureRecorder) Option {
	return func(m *DiscoveryManager) { m.failures = r }
}
