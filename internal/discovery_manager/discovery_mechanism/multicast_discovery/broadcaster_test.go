package multicastdiscovery

import (
	"errors"
	"testing"
	"time"

	"lanbeacon/internal/util/logger/handlers/slogdiscard"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, b *Broadcaster) {
	t.Helper()
	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("broadcaster did not stop")
	}
}

func TestBroadcaster_FirstPacketIsImmediate(t *testing.T) {
	w := newFakeWriter()
	clk := clock.NewMock()
	b := NewBroadcaster(w, []byte("ping"), time.Second, clk, slogdiscard.NewDiscardLogger(), nil)

	go b.Run()

	assert.Eventually(t, func() bool { return w.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte("ping"), w.last())

	require.NoError(t, b.ShutDown())
	waitDone(t, b)

	assert.True(t, w.isClosed())
	assert.NoError(t, b.Err())
	assert.Equal(t, 1, w.count())
}

func TestBroadcaster_FollowsClock(t *testing.T) {
	w := newFakeWriter()
	clk := clock.NewMock()
	rec := newCountingRecorder()
	b := NewBroadcaster(w, []byte("ping"), time.Second, clk, slogdiscard.NewDiscardLogger(), rec)

	go b.Run()
	defer b.ShutDown()

	require.Eventually(t, func() bool { return w.count() == 1 }, time.Second, time.Millisecond)

	// мелкие шаги, чтобы не зависеть от момента, когда цикл заведет таймер
	for want := 2; want <= 4; want++ {
		require.Eventually(t, func() bool {
			if w.count() >= want {
				return true
			}
			clk.Add(100 * time.Millisecond)
			return false
		}, 2*time.Second, time.Millisecond)
	}

	_, _, sent, _ := rec.snapshot()
	assert.Equal(t, w.count(), sent)
}

func TestBroadcaster_RealClockPeriod(t *testing.T) {
	w := newFakeWriter()
	b := NewBroadcaster(w, []byte("ping"), 20*time.Millisecond, nil, slogdiscard.NewDiscardLogger(), nil)

	go b.Run()
	time.Sleep(210 * time.Millisecond)
	require.NoError(t, b.ShutDown())
	waitDone(t, b)

	// 1 сразу + ~10 по расписанию
	assert.GreaterOrEqual(t, w.count(), 5)
	assert.LessOrEqual(t, w.count(), 13)
}

func TestBroadcaster_SendFailureTerminates(t *testing.T) {
	w := newFakeWriter()
	w.failWith = errors.New("network is unreachable")
	rec := newCountingRecorder()
	b := NewBroadcaster(w, []byte("ping"), time.Second, clock.NewMock(), slogdiscard.NewDiscardLogger(), rec)

	go b.Run()
	waitDone(t, b)

	assert.ErrorIs(t, b.Err(), ErrSendFailed)
	assert.ErrorContains(t, b.Err(), "network is unreachable")
	_, _, sent, failed := rec.snapshot()
	assert.Equal(t, 0, sent)
	assert.Equal(t, 1, failed)

	// сокет освобождает владелец
	assert.False(t, w.isClosed())
	assert.NoError(t, b.ShutDown())
	assert.True(t, w.isClosed())
}

func TestBroadcaster_ShutDownDuringSendIsSilent(t *testing.T) {
	w := newFakeWriter()
	w.block = true
	rec := newCountingRecorder()
	b := NewBroadcaster(w, []byte("ping"), time.Second, clock.NewMock(), slogdiscard.NewDiscardLogger(), rec)

	go b.Run()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, b.ShutDown())
	waitDone(t, b)

	assert.NoError(t, b.Err())
	_, _, _, failed := rec.snapshot()
	assert.Equal(t, 0, failed)
}

func TestBroadcaster_ShutDownIsIdempotent(t *testing.T) {
	w := newFakeWriter()
	b := NewBroadcaster(w, []byte("ping"), time.Second, clock.NewMock(), slogdiscard.NewDiscardLogger(), nil)

	go b.Run()
	require.NoError(t, b.ShutDown())
	require.NoError(t, b.ShutDown())
	waitDone(t, b)
}
