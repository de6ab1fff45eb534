// Package bus carries room events between server instances. Delivery is
// at-least-once; the broadcaster deduplicates on (room id, sequence number)
// and drops self-originated reflections by instance ID.
package bus

import (
	"context"
	"errors"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"
)

// ErrUnavailable is returned when the bus backend cannot be reached. The
// broadcaster treats it as a degradation signal, never as a fatal error.
var ErrUnavailable = errors.New("bus unavailable")

// Envelope wraps an event for cross-instance transport.
type Envelope struct {
	Instance string       `json:"instance"` // originating server instance
	Event    models.Event `json:"event"`
}

// Handler consumes envelopes received from remote instances.
type Handler func(env Envelope)

// Bus is the shared fan-out backbone between server instances.
type Bus interface {
	// Publish sends an envelope to the topic for env.Event.RoomID.
	Publish(ctx context.Context, env Envelope) error

	// NextSeq atomically allocates the next sequence number for a room.
	// Allocation through the bus keeps per-room ordering total across
	// instances.
	NextSeq(ctx context.Context, roomID string) (uint64, error)

	// Subscribe starts delivering remote envelopes to h until ctx ends.
	Subscribe(ctx context.Context, h Handler) error

	// Ping checks connectivity to the backend.
	Ping(ctx context.Context) error

	Close() error
}
