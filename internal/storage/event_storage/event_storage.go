package eventstorage

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	discoverymodels "lanbeacon/internal/discovery_manager/models"

	"go.etcd.io/bbolt"
)

const (
	EventsBucket = "discovery_events"
)

// EventStorage - журнал событий обнаружения поверх bbolt
type EventStorage struct {
	db         *bbolt.DB
	mu         sync.RWMutex
	serializer Serializer
}

// Config содержит конфигурацию для EventStorage
type Config struct {
	Path       string
	FileMode   os.FileMode
	Options    *bbolt.Options
	Serializer Serializer
}

// New открывает или создает файл журнала
func New(cfg Config) (*EventStorage, error) {
	const op = "eventstorage.New"

	if cfg.Serializer == nil {
		cfg.Serializer = &GobSerializer{}
	}

	if cfg.FileMode == 0 {
		cfg.FileMode = 0666
	}

	db, err := bbolt.Open(cfg.Path, cfg.FileMode, cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// журнал только для чтения открывается как есть, List переживет отсутствие bucket
	if db.IsReadOnly() {
		return &EventStorage{db: db, serializer: cfg.Serializer}, nil
	}

	// Создаем bucket при инициализации
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(EventsBucket))
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close() // Закрываем БД в случае ошибки
		return nil, fmt.Errorf("%s: failed to initialize database: %w", op, err)
	}

	return &EventStorage{
		db:         db,
		serializer: cfg.Serializer,
	}, nil
}

func (s *EventStorage) Close() error {
	if s.db == nil {
		return ErrNilDB
	}
	return s.db.Close()
}

// Append сохраняет событие и возвращает присвоенный номер
func (s *EventStorage) Append(ctx context.Context, rec EventRecord) (uint64, error) {
	const op = "eventstorage.Append"

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if rec.SessionID == "" {
		return 0, ErrEmptySessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(EventsBucket))
		if bucket == nil {
			return ErrBucketNotFound
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		rec.Seq = seq

		data, err := s.serializer.Serialize(&rec)
		if err != nil {
			return err
		}
		return bucket.Put(seqKey(seq), data)
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return rec.Seq, nil
}

// List возвращает записи от новых к старым
func (s *EventStorage) List(ctx context.Context, filter EventFilter) ([]EventRecord, error) {
	const op = "eventstorage.List"

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []EventRecord

	s.mu.RLock()
	defer s.mu.RUnlock()

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(EventsBucket))
		if bucket == nil {
			return nil
		}

		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var rec EventRecord
			if err := s.serializer.Deserialize(v, &rec); err != nil {
				return fmt.Errorf("record %d: %w", binary.BigEndian.Uint64(k), err)
			}
			if !filter.match(rec) {
				continue
			}

			records = append(records, rec)
			if filter.Limit > 0 && len(records) >= filter.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return records, nil
}

// Observer возвращает наблюдателя, который пишет каждое событие в журнал
func (s *EventStorage) Observer() discoverymodels.Observer {
	return discoverymodels.ObserverFunc(func(e discoverymodels.Event) error {
		_, err := s.Append(context.Background(), RecordFromEvent(e))
		return err
	})
}

// bbolt хранит ключи отсортированными побайтно, big-endian сохраняет порядок записи
func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
