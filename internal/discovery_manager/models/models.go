package discoverymodels

import (
	"errors"
	"fmt"
	"maps"
	"strconv"
	"time"
)

// Зарезервированные ключи, которые публикатор добавляет в каждый пакет
const (
	KeyBroadcastPeriod = "BROADCAST_INTERVAL"
	KeySessionID       = "DISCOVERABLE_SESSION_UUID"
)

var (
	ErrInvalidConfiguration = errors.New("invalid discovery configuration")
	ErrReservedKey          = errors.New("reserved payload key")
)

// IsReservedKey сообщает, принадлежит ли ключ протоколу
func IsReservedKey(key string) bool {
	return key == KeyBroadcastPeriod || key == KeySessionID
}

// FormatPeriod кодирует период в миллисекундах десятичной строкой
func FormatPeriod(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

// ParsePeriod разбирает значение KeyBroadcastPeriod, период должен быть положительным
func ParsePeriod(s string) (time.Duration, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse broadcast period %q: %w", s, err)
	}
	if ms <= 0 {
		return 0, fmt.Errorf("non-positive broadcast period %d", ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Discoverable - экземпляр сервиса, известный реестру
type Discoverable struct {
	SessionID      string
	Payload        map[string]string
	Source         string
	FirstSeen      time.Time
	LastSeen       time.Time
	DeclaredPeriod time.Duration
}

// Clone возвращает копию, не разделяющую payload с оригиналом
func (d Discoverable) Clone() Discoverable {
	d.Payload = maps.Clone(d.Payload)
	if d.Payload == nil {
		d.Payload = map[string]string{}
	}
	return d
}

// EventKind - вид перехода в машине состояний реестра
type EventKind uint8

const (
	EventFound EventKind = iota + 1
	EventChanged
	EventLost
)

func (k EventKind) String() string {
	switch k {
	case EventFound:
		return "FOUND"
	case EventChanged:
		return "CHANGED"
	case EventLost:
		return "LOST"
	default:
		return "UNKNOWN"
	}
}

// ParseEventKind - обратная операция к String
func ParseEventKind(s string) (EventKind, error) {
	switch s {
	case "FOUND":
		return EventFound, nil
	case "CHANGED":
		return EventChanged, nil
	case "LOST":
		return EventLost, nil
	default:
		return 0, fmt.Errorf("unknown event kind %q", s)
	}
}

// Event - одно событие обнаружения. Payload - снимок на момент перехода
type Event struct {
	Kind      EventKind
	SessionID string
	Payload   map[string]string
	Source    string
	Time      time.Time
}

// Observer получает события обнаружения
type Observer interface {
	OnEvent(Event) error
}

// ObserverFunc позволяет использовать функцию как Observer
type ObserverFunc func(Event) error

func (f ObserverFunc) OnEvent(e Event) error {
	return f(e)
}

// NewEvent собирает событие из состояния записи
func NewEvent(kind EventKind, d Discoverable, at time.Time) Event {
	return Event{
		Kind:      kind,
		SessionID: d.SessionID,
		Payload:   maps.Clone(d.Payload),
		Source:    d.Source,
		Time:      at,
	}
}

// PayloadEqual сравнивает два payload без учета порядка
func PayloadEqual(a, b map[string]string) bool {
	return maps.Equal(a, b)
}
