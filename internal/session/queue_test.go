package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"
)

func msg(kind string, seq uint64) models.ServerMessage {
	return models.ServerMessage{Kind: kind, Seq: seq}
}

func TestQueueFIFO(t *testing.T) {
	q := newSendQueue(4)
	require.NoError(t, q.push(msg("event", 1), true))
	require.NoError(t, q.push(msg("event", 2), true))

	done := make(chan struct{})
	m, ok := q.pop(done)
	require.True(t, ok)
	assert.Equal(t, uint64(1), m.Seq)

	m, ok = q.pop(done)
	require.True(t, ok)
	assert.Equal(t, uint64(2), m.Seq)
}

func TestQueueShedsOldestNonCritical(t *testing.T) {
	q := newSendQueue(3)
	require.NoError(t, q.push(msg("presence", 1), false))
	require.NoError(t, q.push(msg("event", 2), true))
	require.NoError(t, q.push(msg("event", 3), true))

	// Full; the presence frame is shed to make room.
	require.NoError(t, q.push(msg("event", 4), true))
	assert.Equal(t, 3, q.len())

	done := make(chan struct{})
	m, _ := q.pop(done)
	assert.Equal(t, uint64(2), m.Seq, "the non-critical frame must be the one dropped")
}

func TestQueueDropsNonCriticalWhenFullOfCritical(t *testing.T) {
	q := newSendQueue(2)
	require.NoError(t, q.push(msg("event", 1), true))
	require.NoError(t, q.push(msg("event", 2), true))

	// No room and nothing to shed; a presence frame is silently dropped.
	require.NoError(t, q.push(msg("presence", 3), false))
	assert.Equal(t, 2, q.len())
}

func TestQueueCriticalOverflowIsSlowConsumer(t *testing.T) {
	q := newSendQueue(2)
	require.NoError(t, q.push(msg("event", 1), true))
	require.NoError(t, q.push(msg("event", 2), true))

	err := q.push(msg("event", 3), true)
	assert.ErrorIs(t, err, ErrSlowConsumer)
}

func TestQueuePushAfterClose(t *testing.T) {
	q := newSendQueue(2)
	q.close()

	err := q.push(msg("event", 1), true)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestQueuePopUnblocksOnClose(t *testing.T) {
	q := newSendQueue(2)
	done := make(chan struct{})

	finished := make(chan bool, 1)
	go func() {
		_, ok := q.pop(done)
		finished <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.close()

	select {
	case ok := <-finished:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("pop did not unblock on close")
	}
}

func TestQueuePopDrainsAfterClose(t *testing.T) {
	q := newSendQueue(2)
	require.NoError(t, q.push(msg("event", 1), true))
	q.close()

	done := make(chan struct{})
	m, ok := q.pop(done)
	require.True(t, ok, "queued frames drain before the closed signal")
	assert.Equal(t, uint64(1), m.Seq)

	_, ok = q.pop(done)
	assert.False(t, ok)
}
