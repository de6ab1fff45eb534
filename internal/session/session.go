package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"
)

// Transport is the duplex connection behind a session. The WebSocket
// adapter implements it in production; tests substitute fakes.
type Transport interface {
	WriteJSON(v any) error
	Close() error
}

// Session is one client's live attachment to a room. It owns the bounded
// send queue and the single writer pump; the broadcaster only ever touches
// it through Deliver.
type Session struct {
	id     string
	userID string
	roomID string

	queue     *sendQueue
	transport Transport

	lastBeat atomic.Int64 // Unix nano of last heartbeat
	lastSeq  uint64       // highest event seq delivered; guarded by the room lock via Deliver

	done      chan struct{}
	closeOnce sync.Once
}

// ID returns the session (connection) identifier.
func (s *Session) ID() string {
	return s.id
}

// UserID returns the owning user.
func (s *Session) UserID() string {
	return s.userID
}

// RoomID returns the room this session is attached to.
func (s *Session) RoomID() string {
	return s.roomID
}

// Heartbeat records a client heartbeat.
func (s *Session) Heartbeat() {
	s.lastBeat.Store(time.Now().UnixNano())
}

// LastHeartbeat returns the time of the last recorded heartbeat.
func (s *Session) LastHeartbeat() time.Time {
	return time.Unix(0, s.lastBeat.Load())
}

// Deliver implements room.Subscriber. It enqueues the event for the writer
// pump, shedding or rejecting per the queue policy, and never blocks the
// broadcaster. Duplicate or out-of-order sequence numbers are dropped, so a
// stable session observes each sequence exactly once in order.
func (s *Session) Deliver(evt models.Event) error {
	if evt.Seq <= s.lastSeq {
		return nil
	}
	s.lastSeq = evt.Seq

	return s.queue.push(frameFor(evt), evt.Kind.Critical())
}

// send enqueues a direct (non-event) frame to this session.
func (s *Session) send(msg models.ServerMessage, critical bool) error {
	return s.queue.push(msg, critical)
}

// writePump drains the send queue onto the transport. A write failure ends
// the pump; the manager's detach path closes everything else.
func (s *Session) writePump(onWriteError func(sessionID string)) {
	for {
		msg, ok := s.queue.pop(s.done)
		if !ok {
			return
		}
		if err := s.transport.WriteJSON(msg); err != nil {
			onWriteError(s.id)
			return
		}
	}
}

// close releases the queue and transport. Idempotent.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.queue.close()
		_ = s.transport.Close()
	})
}

// frameFor converts a room event to its outbound frame.
func frameFor(evt models.Event) models.ServerMessage {
	return models.ServerMessage{
		Kind:    serverKindFor(evt.Kind),
		RoomID:  evt.RoomID,
		Seq:     evt.Seq,
		Payload: evt.Payload,
	}
}

// serverKindFor maps an event kind to the outbound frame kind.
func serverKindFor(kind models.EventKind) string {
	switch kind {
	case models.EventPresence:
		return models.ServerPresence
	case models.EventAIResult:
		return models.ServerAIResult
	default:
		return models.ServerEvent
	}
}
