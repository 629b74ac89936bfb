package eventstorage

import (
	"bytes"
	"encoding/gob"
	"maps"
	"time"

	discoverymodels "lanbeacon/internal/discovery_manager/models"
)

// Serializer предоставляет интерфейс для сериализации/десериализации данных
type Serializer interface {
	Serialize(v interface{}) ([]byte, error)
	Deserialize(data []byte, v interface{}) error
}

// GobSerializer реализует Serializer используя encoding/gob
type GobSerializer struct{}

func (s *GobSerializer) Serialize(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *GobSerializer) Deserialize(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// EventRecord - событие обнаружения в журнале. Seq назначается при записи
type EventRecord struct {
	Seq       uint64
	Kind      discoverymodels.EventKind
	SessionID string
	Payload   map[string]string
	Source    string
	Time      time.Time
}

func RecordFromEvent(e discoverymodels.Event) EventRecord {
	return EventRecord{
		Kind:      e.Kind,
		SessionID: e.SessionID,
		Payload:   maps.Clone(e.Payload),
		Source:    e.Source,
		Time:      e.Time,
	}
}

// EventFilter ограничивает выборку List. Нулевые поля не фильтруют
type EventFilter struct {
	SessionID string
	Kind      discoverymodels.EventKind
	Limit     int
}

func (f EventFilter) match(r EventRecord) bool {
	if f.SessionID != "" && f.SessionID != r.SessionID {
		return false
	}
	if f.Kind != 0 && f.Kind != r.Kind {
		return false
	}
	return true
}
