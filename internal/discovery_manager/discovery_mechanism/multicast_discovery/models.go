package multicastdiscovery

import (
	"errors"
	"net"
	"time"
)

var (
	ErrPacketTooLarge = errors.New("discovery packet exceeds datagram size")
	ErrReceiveFailed  = errors.New("multicast receive failed")
	ErrSendFailed     = errors.New("multicast send failed")
	ErrSocketSetup    = errors.New("multicast socket setup failed")
)

// Причины отброса входящей датаграммы
const (
	DropMalformed      = "malformed"
	DropMissingSession = "missing_session"
	DropBadPeriod      = "bad_period"
)

// PacketWriter - исходящий сокет, уже подключенный к multicast-группе
type PacketWriter interface {
	Write(b []byte) (int, error)
	Close() error
}

// PacketReader - входящий сокет, подписанный на multicast-группу
type PacketReader interface {
	ReadFrom(b []byte) (int, net.Addr, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer открывает исходящий сокет для очередного Broadcaster
type Dialer func() (PacketWriter, error)

// Updater принимает разобранные пакеты, реализуется registry.Registry
type Updater interface {
	Update(sessionID string, payload map[string]string, period time.Duration, source string)
}

// Recorder собирает статистику отправки и приема
type Recorder interface {
	PacketReceived()
	PacketDropped(reason string)
	BroadcastSent()
	BroadcastFailed()
}

type nopRecorder struct{}

func (nopRecorder) PacketReceived()      {}
func (nopRecorder) PacketDropped(string) {}
func (nopRecorder) BroadcastSent()       {}
func (nopRecorder) BroadcastFailed()     {}
