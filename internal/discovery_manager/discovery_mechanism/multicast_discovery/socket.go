package multicastdiscovery

import (
	"fmt"
	"net"

	discoverymodels "lanbeacon/internal/discovery_manager/models"

	"golang.org/x/net/ipv4"
)

const (
	readBufferSize = 1024 * 1024
	// датаграмма читается целиком, даже если она больше безопасного размера
	maxDatagramRead = 64 * 1024
)

// OpenSender подключает UDP-сокет к группе и выставляет TTL, loopback и интерфейс
func OpenSender(cfg discoverymodels.Configuration) (*net.UDPConn, error) {
	group, err := cfg.GroupAddr()
	if err != nil {
		return nil, err
	}
	ifi, err := cfg.NetInterface()
	if err != nil {
		return nil, err
	}

	conn, err := net.DialUDP("udp4", nil, group)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrSocketSetup, group, err)
	}

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(cfg.TimeToLive); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: set ttl %d: %v", ErrSocketSetup, cfg.TimeToLive, err)
	}
	if err := pc.SetMulticastLoopback(cfg.Loopback); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: set loopback: %v", ErrSocketSetup, err)
	}
	if ifi != nil {
		if err := pc.SetMulticastInterface(ifi); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: set interface %s: %v", ErrSocketSetup, ifi.Name, err)
		}
	}

	return conn, nil
}

// OpenReceiver подписывается на группу. Несколько слушателей на одном хосте
// могут делить порт.
func OpenReceiver(cfg discoverymodels.Configuration) (*net.UDPConn, error) {
	group, err := cfg.GroupAddr()
	if err != nil {
		return nil, err
	}
	ifi, err := cfg.NetInterface()
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenMulticastUDP("udp4", ifi, group)
	if err != nil {
		return nil, fmt.Errorf("%w: join %s: %v", ErrSocketSetup, group, err)
	}

	if err := conn.SetReadBuffer(readBufferSize); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: set read buffer: %v", ErrSocketSetup, err)
	}

	return conn, nil
}

// SenderDialer возвращает Dialer поверх OpenSender
func SenderDialer(cfg discoverymodels.Configuration) Dialer {
	return func() (PacketWriter, error) {
		return OpenSender(cfg)
	}
}
