package room

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/bus"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"
)

type fakeSub struct {
	id  string
	err error

	mu     sync.Mutex
	events []models.Event
}

func (f *fakeSub) ID() string { return f.id }

func (f *fakeSub) Deliver(evt models.Event) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.events = append(f.events, evt)
	f.mu.Unlock()
	return nil
}

func (f *fakeSub) seqs() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint64, len(f.events))
	for i, evt := range f.events {
		out[i] = evt.Seq
	}
	return out
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func newTestBroadcaster(opts Options) *Broadcaster {
	opts.Instance = "test-instance"
	return NewBroadcaster(opts, testLogger())
}

func TestPublishAssignsIncreasingSeq(t *testing.T) {
	b := newTestBroadcaster(Options{})
	sub := &fakeSub{id: "s1"}
	_, _, err := b.Attach("room-1", sub, 0)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := b.Publish(context.Background(), "room-1", models.Event{Kind: models.EventEdit})
		require.NoError(t, err)
	}

	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, sub.seqs())
}

func TestPublishConcurrentKeepsOrderPerSubscriber(t *testing.T) {
	b := newTestBroadcaster(Options{})
	sub := &fakeSub{id: "s1"}
	_, _, err := b.Attach("room-1", sub, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = b.Publish(context.Background(), "room-1", models.Event{Kind: models.EventEdit})
		}()
	}
	wg.Wait()

	seqs := sub.seqs()
	require.Len(t, seqs, 20)
	for i, seq := range seqs {
		assert.Equal(t, uint64(i+1), seq, "delivery order must match sequence order")
	}
}

func TestPublishUnknownRoom(t *testing.T) {
	b := newTestBroadcaster(Options{})

	_, err := b.Publish(context.Background(), "nope", models.Event{Kind: models.EventEdit})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestAttachReplaysMissedEvents(t *testing.T) {
	b := newTestBroadcaster(Options{})
	first := &fakeSub{id: "s1"}
	_, _, err := b.Attach("room-1", first, 0)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := b.Publish(context.Background(), "room-1", models.Event{Kind: models.EventEdit})
		require.NoError(t, err)
	}

	late := &fakeSub{id: "s2"}
	replay, resync, err := b.Attach("room-1", late, 2)
	require.NoError(t, err)
	assert.False(t, resync)
	require.Len(t, replay, 2)
	assert.Equal(t, uint64(3), replay[0].Seq)
	assert.Equal(t, uint64(4), replay[1].Seq)
	assert.Empty(t, late.seqs(), "replay is handed to the caller, not enqueued")
}

func TestAttachReplayNotBoundedBySubscriberQueue(t *testing.T) {
	b := newTestBroadcaster(Options{RingSize: 256})
	first := &fakeSub{id: "s1"}
	_, _, err := b.Attach("room-1", first, 0)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		_, err := b.Publish(context.Background(), "room-1", models.Event{Kind: models.EventEdit})
		require.NoError(t, err)
	}

	late := &fakeSub{id: "s2", err: errors.New("queue full")}
	replay, resync, err := b.Attach("room-1", late, 1)
	require.NoError(t, err, "a full subscriber queue must not fail the attach")
	assert.False(t, resync)
	require.Len(t, replay, 199)
	assert.Equal(t, uint64(2), replay[0].Seq)
	assert.Equal(t, uint64(200), replay[198].Seq)
}

func TestAttachResyncWhenGapExceedsRing(t *testing.T) {
	b := newTestBroadcaster(Options{RingSize: 4})
	first := &fakeSub{id: "s1"}
	_, _, err := b.Attach("room-1", first, 0)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := b.Publish(context.Background(), "room-1", models.Event{Kind: models.EventEdit})
		require.NoError(t, err)
	}

	late := &fakeSub{id: "s2"}
	replay, resync, err := b.Attach("room-1", late, 2)
	require.NoError(t, err)
	assert.True(t, resync)
	assert.Empty(t, replay)
}

func TestAttachResyncWhenCursorAhead(t *testing.T) {
	b := newTestBroadcaster(Options{})

	sub := &fakeSub{id: "s1"}
	_, resync, err := b.Attach("room-1", sub, 99)
	require.NoError(t, err)
	assert.True(t, resync, "cursor beyond the room's sequence cannot be replayed")
}

func TestAttachRoomFull(t *testing.T) {
	b := newTestBroadcaster(Options{RoomCapacity: 1})
	_, _, err := b.Attach("room-1", &fakeSub{id: "s1"}, 0)
	require.NoError(t, err)

	_, _, err = b.Attach("room-1", &fakeSub{id: "s2"}, 0)
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestGraceTeardownClosesRoom(t *testing.T) {
	closed := make(chan string, 1)
	b := newTestBroadcaster(Options{
		GracePeriod:  20 * time.Millisecond,
		OnRoomClosed: func(roomID string) { closed <- roomID },
	})

	sub := &fakeSub{id: "s1"}
	_, _, err := b.Attach("room-1", sub, 0)
	require.NoError(t, err)

	roomCtx := b.Get("room-1").Context()
	b.Detach("room-1", "s1")

	select {
	case roomID := <-closed:
		assert.Equal(t, "room-1", roomID)
	case <-time.After(time.Second):
		t.Fatal("room was not torn down after the grace period")
	}

	select {
	case <-roomCtx.Done():
	default:
		t.Fatal("room context must be cancelled on teardown")
	}

	rooms, _ := b.Stats()
	assert.Zero(t, rooms)
}

func TestReattachWithinGraceCancelsTeardown(t *testing.T) {
	closed := make(chan string, 1)
	b := newTestBroadcaster(Options{
		GracePeriod:  50 * time.Millisecond,
		OnRoomClosed: func(roomID string) { closed <- roomID },
	})

	_, _, err := b.Attach("room-1", &fakeSub{id: "s1"}, 0)
	require.NoError(t, err)
	b.Detach("room-1", "s1")

	_, _, err = b.Attach("room-1", &fakeSub{id: "s2"}, 0)
	require.NoError(t, err)

	select {
	case <-closed:
		t.Fatal("room closed despite a live subscriber")
	case <-time.After(150 * time.Millisecond):
	}

	rooms, subscribers := b.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, subscribers)
}

func TestFailingSubscriberIsEvicted(t *testing.T) {
	evicted := make(chan string, 1)
	b := newTestBroadcaster(Options{
		OnEvict: func(roomID, sessionID string) { evicted <- sessionID },
	})

	healthy := &fakeSub{id: "s1"}
	slow := &fakeSub{id: "s2", err: errors.New("queue full")}
	_, _, err := b.Attach("room-1", healthy, 0)
	require.NoError(t, err)
	_, _, err = b.Attach("room-1", slow, 0)
	require.NoError(t, err)

	_, err = b.Publish(context.Background(), "room-1", models.Event{Kind: models.EventEdit})
	require.NoError(t, err)

	select {
	case id := <-evicted:
		assert.Equal(t, "s2", id)
	case <-time.After(time.Second):
		t.Fatal("slow subscriber was not handed to the eviction callback")
	}
	assert.Equal(t, []uint64{1}, healthy.seqs())
}

func TestHandleRemoteDeliversAndDeduplicates(t *testing.T) {
	b := newTestBroadcaster(Options{})
	sub := &fakeSub{id: "s1"}
	_, _, err := b.Attach("room-1", sub, 0)
	require.NoError(t, err)

	env := bus.Envelope{
		Instance: "other-instance",
		Event:    models.Event{ID: "e1", RoomID: "room-1", Seq: 7, Kind: models.EventEdit},
	}
	b.handleRemote(env)
	b.handleRemote(env) // redelivery

	assert.Equal(t, []uint64{7}, sub.seqs())
	assert.Equal(t, uint64(7), b.Get("room-1").Seq(), "local counter must catch up to remote seq")
}

func TestHandleRemoteIgnoresSelf(t *testing.T) {
	b := newTestBroadcaster(Options{})
	sub := &fakeSub{id: "s1"}
	_, _, err := b.Attach("room-1", sub, 0)
	require.NoError(t, err)

	b.handleRemote(bus.Envelope{
		Instance: "test-instance",
		Event:    models.Event{RoomID: "room-1", Seq: 3, Kind: models.EventEdit},
	})

	assert.Empty(t, sub.seqs())
}

func TestHandleRemoteUnknownRoomIsNoop(t *testing.T) {
	b := newTestBroadcaster(Options{})

	b.handleRemote(bus.Envelope{
		Instance: "other-instance",
		Event:    models.Event{RoomID: "nope", Seq: 1, Kind: models.EventEdit},
	})

	rooms, _ := b.Stats()
	assert.Zero(t, rooms, "remote events must not open rooms with no local members")
}
