package eventstorage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	discoverymodels "lanbeacon/internal/discovery_manager/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

type testHelper struct {
	storage *EventStorage
	path    string
}

func setupTest(t *testing.T) *testHelper {
	t.Helper()

	path := filepath.Join(t.TempDir(), "journal.db")

	s, err := New(Config{
		Path:       path,
		FileMode:   0600,
		Options:    &bbolt.Options{Timeout: time.Second},
		Serializer: &GobSerializer{},
	})
	require.NoError(t, err)
	require.NotNil(t, s)

	t.Cleanup(func() {
		s.Close()
	})

	return &testHelper{storage: s, path: path}
}

func createTestRecord(kind discoverymodels.EventKind, sessionID string) EventRecord {
	return EventRecord{
		Kind:      kind,
		SessionID: sessionID,
		Payload:   map[string]string{"name": "svc-" + sessionID},
		Source:    "10.0.0.1:7095",
		Time:      time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestEventStorage_Append(t *testing.T) {
	h := setupTest(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		input   EventRecord
		wantErr error
	}{
		{
			name:  "Valid record",
			input: createTestRecord(discoverymodels.EventFound, uuid.NewString()),
		},
		{
			name:    "Record without session",
			input:   createTestRecord(discoverymodels.EventFound, ""),
			wantErr: ErrEmptySessionID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq, err := h.storage.Append(ctx, tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.NotZero(t, seq)
		})
	}
}

func TestEventStorage_SequenceIsMonotonic(t *testing.T) {
	h := setupTest(t)
	ctx := context.Background()

	var prev uint64
	for i := 0; i < 5; i++ {
		seq, err := h.storage.Append(ctx, createTestRecord(discoverymodels.EventChanged, "s1"))
		require.NoError(t, err)
		assert.Greater(t, seq, prev)
		prev = seq
	}
}

func TestEventStorage_List(t *testing.T) {
	h := setupTest(t)
	ctx := context.Background()

	// s1: FOUND CHANGED LOST, s2: FOUND
	input := []EventRecord{
		createTestRecord(discoverymodels.EventFound, "s1"),
		createTestRecord(discoverymodels.EventFound, "s2"),
		createTestRecord(discoverymodels.EventChanged, "s1"),
		createTestRecord(discoverymodels.EventLost, "s1"),
	}
	for _, rec := range input {
		_, err := h.storage.Append(ctx, rec)
		require.NoError(t, err)
	}

	tests := []struct {
		name     string
		filter   EventFilter
		wantSeqs []uint64
	}{
		{
			name:     "All newest first",
			filter:   EventFilter{},
			wantSeqs: []uint64{4, 3, 2, 1},
		},
		{
			name:     "By session",
			filter:   EventFilter{SessionID: "s1"},
			wantSeqs: []uint64{4, 3, 1},
		},
		{
			name:     "By kind",
			filter:   EventFilter{Kind: discoverymodels.EventFound},
			wantSeqs: []uint64{2, 1},
		},
		{
			name:     "Limit",
			filter:   EventFilter{Limit: 2},
			wantSeqs: []uint64{4, 3},
		},
		{
			name:     "Session and kind",
			filter:   EventFilter{SessionID: "s2", Kind: discoverymodels.EventLost},
			wantSeqs: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.storage.List(ctx, tt.filter)
			require.NoError(t, err)

			var seqs []uint64
			for _, rec := range got {
				seqs = append(seqs, rec.Seq)
			}
			assert.Equal(t, tt.wantSeqs, seqs)
		})
	}
}

func TestEventStorage_RecordRoundTrip(t *testing.T) {
	h := setupTest(t)
	ctx := context.Background()

	rec := createTestRecord(discoverymodels.EventChanged, "s1")
	seq, err := h.storage.Append(ctx, rec)
	require.NoError(t, err)

	got, err := h.storage.List(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	rec.Seq = seq
	assert.Equal(t, rec.Kind, got[0].Kind)
	assert.Equal(t, rec.Payload, got[0].Payload)
	assert.Equal(t, rec.Source, got[0].Source)
	assert.True(t, rec.Time.Equal(got[0].Time))
	assert.Equal(t, seq, got[0].Seq)
}

func TestEventStorage_SurvivesReopen(t *testing.T) {
	h := setupTest(t)
	ctx := context.Background()

	_, err := h.storage.Append(ctx, createTestRecord(discoverymodels.EventFound, "s1"))
	require.NoError(t, err)
	require.NoError(t, h.storage.Close())

	reopened, err := New(Config{Path: h.path})
	require.NoError(t, err)
	defer reopened.Close()

	seq, err := reopened.Append(ctx, createTestRecord(discoverymodels.EventLost, "s1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)

	got, err := reopened.List(ctx, EventFilter{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, discoverymodels.EventLost, got[0].Kind)
	assert.Equal(t, discoverymodels.EventFound, got[1].Kind)
}

func TestEventStorage_ReadOnly(t *testing.T) {
	h := setupTest(t)
	ctx := context.Background()

	_, err := h.storage.Append(ctx, createTestRecord(discoverymodels.EventFound, "s1"))
	require.NoError(t, err)
	require.NoError(t, h.storage.Close())

	ro, err := New(Config{
		Path:    h.path,
		Options: &bbolt.Options{Timeout: time.Second, ReadOnly: true},
	})
	require.NoError(t, err)
	defer ro.Close()

	got, err := ro.List(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].SessionID)

	_, err = ro.Append(ctx, createTestRecord(discoverymodels.EventLost, "s1"))
	assert.ErrorIs(t, err, bbolt.ErrDatabaseReadOnly)
}

func TestEventStorage_Observer(t *testing.T) {
	h := setupTest(t)

	obs := h.storage.Observer()
	for i := 0; i < 3; i++ {
		err := obs.OnEvent(discoverymodels.Event{
			Kind:      discoverymodels.EventFound,
			SessionID: fmt.Sprintf("s%d", i),
			Payload:   map[string]string{"i": fmt.Sprint(i)},
			Time:      time.Now(),
		})
		require.NoError(t, err)
	}

	got, err := h.storage.List(context.Background(), EventFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "s2", got[0].SessionID)
	assert.Equal(t, map[string]string{"i": "2"}, got[0].Payload)
}

func TestEventStorage_CanceledContext(t *testing.T) {
	h := setupTest(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.storage.Append(ctx, createTestRecord(discoverymodels.EventFound, "s1"))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = h.storage.List(ctx, EventFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}
