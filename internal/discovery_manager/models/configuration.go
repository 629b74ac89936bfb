package discoverymodels

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Значения по умолчанию: группа и порт, зарезервированные за протоколом
const (
	DefaultMulticastAddress    = "224.0.23.178"
	DefaultMulticastPort       = 7095
	DefaultTimeToLive          = 1
	DefaultBroadcastPeriod     = 5 * time.Second
	DefaultMaxHeartbeatTimeout = 30 * time.Second
	DefaultTimeoutMultiplier   = 5
	DefaultMinimumWindow       = time.Second
	DefaultSweepInterval       = 250 * time.Millisecond
	DefaultReceiveTimeout      = time.Second
)

// Configuration содержит сетевые и временные параметры протокола.
// Неизменяема на время жизни публикатора или слушателя.
type Configuration struct {
	MulticastAddress    string
	MulticastPort       int
	TimeToLive          int
	BroadcastPeriod     time.Duration
	MaxHeartbeatTimeout time.Duration

	// окно вытеснения = declaredPeriod * TimeoutMultiplier,
	// ограниченное [MinimumWindow, MaxHeartbeatTimeout]
	TimeoutMultiplier int
	MinimumWindow     time.Duration

	SweepInterval  time.Duration
	ReceiveTimeout time.Duration

	// Interface - имя сетевого интерфейса, пустая строка - системный по умолчанию
	Interface string
	Loopback  bool
}

// DefaultConfiguration возвращает конфигурацию со значениями по умолчанию
func DefaultConfiguration() Configuration {
	return Configuration{
		MulticastAddress:    DefaultMulticastAddress,
		MulticastPort:       DefaultMulticastPort,
		TimeToLive:          DefaultTimeToLive,
		BroadcastPeriod:     DefaultBroadcastPeriod,
		MaxHeartbeatTimeout: DefaultMaxHeartbeatTimeout,
		TimeoutMultiplier:   DefaultTimeoutMultiplier,
		MinimumWindow:       DefaultMinimumWindow,
		SweepInterval:       DefaultSweepInterval,
		ReceiveTimeout:      DefaultReceiveTimeout,
		Loopback:            true,
	}
}

// Validate проверяет конфигурацию. Значения по умолчанию не подставляются.
func (c Configuration) Validate() error {
	if _, err := c.GroupAddr(); err != nil {
		return err
	}

	switch {
	case c.TimeToLive < 0 || c.TimeToLive > 255:
		return invalid("time to live %d outside 0..255", c.TimeToLive)
	case c.BroadcastPeriod <= 0:
		return invalid("broadcast period must be positive, got %s", c.BroadcastPeriod)
	case c.BroadcastPeriod < time.Millisecond:
		return invalid("broadcast period %s is below the 1ms wire resolution", c.BroadcastPeriod)
	case c.MaxHeartbeatTimeout <= 0:
		return invalid("max heartbeat timeout must be positive, got %s", c.MaxHeartbeatTimeout)
	case c.TimeoutMultiplier <= 0:
		return invalid("timeout multiplier must be positive, got %d", c.TimeoutMultiplier)
	case c.MinimumWindow < 0:
		return invalid("minimum window must not be negative, got %s", c.MinimumWindow)
	case c.MinimumWindow > c.MaxHeartbeatTimeout:
		return invalid("minimum window %s exceeds max heartbeat timeout %s", c.MinimumWindow, c.MaxHeartbeatTimeout)
	case c.SweepInterval <= 0:
		return invalid("sweep interval must be positive, got %s", c.SweepInterval)
	case c.ReceiveTimeout <= 0:
		return invalid("receive timeout must be positive, got %s", c.ReceiveTimeout)
	}

	if _, err := c.NetInterface(); err != nil {
		return err
	}

	return nil
}

// GroupAddr разрешает multicast-группу и порт
func (c Configuration) GroupAddr() (*net.UDPAddr, error) {
	if c.MulticastPort <= 0 || c.MulticastPort > 65535 {
		return nil, invalid("multicast port %d outside 1..65535", c.MulticastPort)
	}

	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(c.MulticastAddress, strconv.Itoa(c.MulticastPort)))
	if err != nil {
		return nil, invalid("resolve multicast address %q: %v", c.MulticastAddress, err)
	}
	if !addr.IP.IsMulticast() {
		return nil, invalid("address %s is not a multicast group", addr.IP)
	}

	return addr, nil
}

// NetInterface возвращает интерфейс из конфигурации или nil для системного
func (c Configuration) NetInterface() (*net.Interface, error) {
	if c.Interface == "" {
		return nil, nil
	}
	ifi, err := net.InterfaceByName(c.Interface)
	if err != nil {
		return nil, invalid("interface %q: %v", c.Interface, err)
	}
	return ifi, nil
}

// Window вычисляет окно тишины, после которого сессия считается потерянной
func (c Configuration) Window(declared time.Duration) time.Duration {
	m := time.Duration(max(c.TimeoutMultiplier, 1))
	w := declared * m
	// переполнение при абсурдном периоде от публикатора
	if declared > 0 && w/m != declared {
		w = c.MaxHeartbeatTimeout
	}
	if w < c.MinimumWindow {
		w = c.MinimumWindow
	}
	if w > c.MaxHeartbeatTimeout {
		w = c.MaxHeartbeatTimeout
	}
	return w
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}
