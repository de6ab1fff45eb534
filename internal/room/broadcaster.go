package room

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/bus"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/metrics"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"
)

// EvictFunc is called when a subscriber must be disconnected because its
// Deliver failed (slow consumer). Called outside room locks.
type EvictFunc func(roomID, sessionID string)

// ClosedFunc is called after a room is destroyed at the end of its grace
// period.
type ClosedFunc func(roomID string)

// Options configures a Broadcaster.
type Options struct {
	Instance     string  // unique server instance ID
	Bus          bus.Bus // nil disables cross-instance delivery
	RingSize     int
	GracePeriod  time.Duration
	RoomCapacity int // 0 = unlimited
	OnEvict      EvictFunc
	OnRoomClosed ClosedFunc
}

// Broadcaster owns all rooms on this instance and fans published events out
// to locally-attached subscribers and, through the bus, to other instances.
type Broadcaster struct {
	opts   Options
	logger zerolog.Logger

	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewBroadcaster creates a broadcaster. Run must be called for
// cross-instance delivery to work.
func NewBroadcaster(opts Options, logger zerolog.Logger) *Broadcaster {
	if opts.RingSize <= 0 {
		opts.RingSize = 256
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 30 * time.Second
	}
	return &Broadcaster{
		opts:   opts,
		logger: logger.With().Str("component", "broadcaster").Logger(),
		rooms:  make(map[string]*Room),
	}
}

// Run consumes remote envelopes from the bus until ctx ends, reconnecting
// with backoff after bus failures. No-op when no bus is configured.
func (b *Broadcaster) Run(ctx context.Context) {
	if b.opts.Bus == nil {
		return
	}
	for {
		err := b.opts.Bus.Subscribe(ctx, b.handleRemote)
		if ctx.Err() != nil {
			return
		}
		b.logger.Warn().Err(err).Msg("bus subscription lost, retrying")
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return
		}
	}
}

// Publish assigns the next per-room sequence number and fans the event out.
// The sequence is assigned atomically before fan-out, so concurrent
// publishers never interleave out of order. Bus failures degrade to
// local-only fan-out and never fail the publish.
func (b *Broadcaster) Publish(ctx context.Context, roomID string, evt models.Event) (uint64, error) {
	r := b.room(roomID)
	if r == nil {
		return 0, ErrRoomNotFound
	}

	evt.RoomID = roomID
	evt.ID = ulid.Make().String()
	evt.Timestamp = time.Now().UnixMilli()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, ErrRoomNotFound
	}

	evt.Seq = b.nextSeq(ctx, r)
	r.ring.append(evt)
	failed := r.fanout(evt)

	if b.opts.Bus != nil {
		env := bus.Envelope{Instance: b.opts.Instance, Event: evt}
		select {
		case r.busCh <- env:
		default:
			// Outbox full: remote instances miss this event.
			metrics.BusPublishFailures.Inc()
			b.logger.Warn().Str("room", roomID).Uint64("seq", evt.Seq).Msg("bus outbox full, local-only fan-out")
		}
	}
	r.mu.Unlock()

	b.evictFailed(roomID, failed)
	metrics.EventsPublished.WithLabelValues(string(evt.Kind)).Inc()
	return evt.Seq, nil
}

// nextSeq allocates the next sequence for r. With a bus, allocation goes
// through the shared counter so ordering stays total across instances; on
// bus failure it falls back to the local counter. Caller holds r.mu.
func (b *Broadcaster) nextSeq(ctx context.Context, r *Room) uint64 {
	if b.opts.Bus != nil {
		if seq, err := b.opts.Bus.NextSeq(ctx, r.id); err == nil {
			if seq <= r.seq {
				// Shared counter fell behind local fallback assignments.
				seq = r.seq + 1
			}
			r.seq = seq
			return seq
		}
		metrics.BusPublishFailures.Inc()
	}
	r.seq++
	return r.seq
}

// Attach registers a subscriber with a room, creating the room if needed.
// With lastSeq > 0 the room returns the buffered events the subscriber
// missed, for the caller to write out before live delivery begins; resync is
// true when the gap exceeds the ring and the client must refetch state
// elsewhere. Registration is atomic relative to Publish, so every event
// delivered after Attach returns carries a sequence above the replay.
func (b *Broadcaster) Attach(roomID string, sub Subscriber, lastSeq uint64) (replay []models.Event, resync bool, err error) {
	var r *Room
	for {
		r = b.getOrCreate(roomID)
		r.mu.Lock()
		if !r.closed {
			break
		}
		// Lost the race with teardown; wait for the map entry to clear
		// and attach into a fresh room.
		r.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	defer r.mu.Unlock()

	if b.opts.RoomCapacity > 0 && len(r.subs) >= b.opts.RoomCapacity {
		return nil, false, ErrRoomFull
	}

	if r.graceTimer != nil {
		r.graceTimer.Stop()
		r.graceTimer = nil
	}

	if lastSeq > 0 {
		if lastSeq > r.seq {
			resync = true
		} else if events, ok := r.ring.since(lastSeq); ok {
			replay = events
		} else {
			resync = true
		}
	}

	r.subs[sub.ID()] = sub
	return replay, resync, nil
}

// Detach removes a subscriber from a room. When the last subscriber leaves,
// the room is destroyed after the grace period unless someone reattaches.
func (b *Broadcaster) Detach(roomID, sessionID string) {
	r := b.room(roomID)
	if r == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs, sessionID)
	if len(r.subs) > 0 || r.closed || r.graceTimer != nil {
		return
	}
	r.graceTimer = time.AfterFunc(b.opts.GracePeriod, func() {
		b.destroyRoom(roomID)
	})
}

// Get returns the room, or nil if it does not exist on this instance.
func (b *Broadcaster) Get(roomID string) *Room {
	return b.room(roomID)
}

// Stats returns the number of open rooms and attached subscribers.
func (b *Broadcaster) Stats() (rooms, subscribers int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, r := range b.rooms {
		rooms++
		subscribers += r.SubscriberCount()
	}
	return rooms, subscribers
}

func (b *Broadcaster) room(roomID string) *Room {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rooms[roomID]
}

func (b *Broadcaster) getOrCreate(roomID string) *Room {
	b.mu.Lock()
	defer b.mu.Unlock()

	if r, ok := b.rooms[roomID]; ok {
		return r
	}
	r := newRoom(roomID, b.opts.RingSize)
	b.rooms[roomID] = r
	metrics.RoomsActive.Inc()
	b.logger.Info().Str("room", roomID).Msg("room opened")

	if b.opts.Bus != nil {
		go b.drainOutbox(r)
	}
	return r
}

// destroyRoom tears a room down after its grace period. Re-checked under
// the lock in case a session reattached while the timer fired.
func (b *Broadcaster) destroyRoom(roomID string) {
	r := b.room(roomID)
	if r == nil {
		return
	}

	r.mu.Lock()
	if len(r.subs) > 0 || r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	b.mu.Lock()
	delete(b.rooms, roomID)
	b.mu.Unlock()

	r.cancel()
	metrics.RoomsActive.Dec()
	b.logger.Info().Str("room", roomID).Dur("lifetime", time.Since(r.createdAt)).Msg("room closed")

	if b.opts.OnRoomClosed != nil {
		b.opts.OnRoomClosed(roomID)
	}
}

// drainOutbox forwards a room's envelopes to the bus in publish order.
func (b *Broadcaster) drainOutbox(r *Room) {
	for {
		select {
		case env := <-r.busCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := b.opts.Bus.Publish(ctx, env)
			cancel()
			if err != nil {
				metrics.BusPublishFailures.Inc()
				b.logger.Warn().Err(err).Str("room", r.id).Uint64("seq", env.Event.Seq).Msg("bus publish failed, local-only fan-out")
			}
		case <-r.ctx.Done():
			return
		}
	}
}

// handleRemote delivers an envelope published by another instance to local
// subscribers, deduplicating by (room, seq) per origin instance and
// dropping self-originated reflections.
func (b *Broadcaster) handleRemote(env bus.Envelope) {
	if env.Instance == b.opts.Instance {
		return
	}

	r := b.room(env.Event.RoomID)
	if r == nil {
		return // no local members
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if env.Event.Seq <= r.remoteSeen[env.Instance] {
		r.mu.Unlock()
		return // duplicate redelivery
	}
	r.remoteSeen[env.Instance] = env.Event.Seq
	if env.Event.Seq > r.seq {
		r.seq = env.Event.Seq
	}
	r.ring.append(env.Event)
	failed := r.fanout(env.Event)
	r.mu.Unlock()

	b.evictFailed(env.Event.RoomID, failed)
}

// evictFailed hands slow consumers to the eviction callback outside locks.
func (b *Broadcaster) evictFailed(roomID string, failed []string) {
	if len(failed) == 0 || b.opts.OnEvict == nil {
		return
	}
	for _, id := range failed {
		id := id
		go b.opts.OnEvict(roomID, id)
	}
}
