package room

import (
	"context"
	"sync"
	"time"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/bus"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"
)

// Subscriber is one locally-attached consumer of a room's events. Deliver
// must not block; a non-nil error evicts the subscriber from the room.
type Subscriber interface {
	ID() string
	Deliver(evt models.Event) error
}

// Room is one meeting's fan-out state: the sequence counter, the replay
// ring, and the set of locally-attached subscribers. All fields are guarded
// by mu.
type Room struct {
	id string

	mu         sync.Mutex
	seq        uint64 // highest sequence assigned or observed
	ring       *ring
	subs       map[string]Subscriber
	remoteSeen map[string]uint64 // per-instance delivery watermark
	graceTimer *time.Timer
	closed     bool

	// busCh preserves publish order toward the bus; a single drain
	// goroutine per room forwards envelopes.
	busCh chan bus.Envelope

	ctx       context.Context
	cancel    context.CancelFunc
	createdAt time.Time
}

func newRoom(id string, ringSize int) *Room {
	ctx, cancel := context.WithCancel(context.Background())
	return &Room{
		id:         id,
		ring:       newRing(ringSize),
		subs:       make(map[string]Subscriber),
		remoteSeen: make(map[string]uint64),
		busCh:      make(chan bus.Envelope, 128),
		ctx:        ctx,
		cancel:     cancel,
		createdAt:  time.Now(),
	}
}

// ID returns the room (meeting) identifier.
func (r *Room) ID() string {
	return r.id
}

// Context is cancelled when the room is destroyed. AI work scoped to the
// room derives from it so results for an empty room are discarded.
func (r *Room) Context() context.Context {
	return r.ctx
}

// Seq returns the highest sequence number assigned or observed so far.
func (r *Room) Seq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// SubscriberCount returns the number of locally-attached subscribers.
func (r *Room) SubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// fanout delivers evt to every subscriber, returning the IDs whose Deliver
// failed. Caller holds r.mu.
func (r *Room) fanout(evt models.Event) []string {
	var failed []string
	for id, sub := range r.subs {
		if err := sub.Deliver(evt); err != nil {
			failed = append(failed, id)
		}
	}
	return failed
}
