package models

import "encoding/json"

// EventKind classifies events fanned out within a room.
type EventKind string

const (
	EventPresence EventKind = "presence"
	EventEdit     EventKind = "edit"
	EventAIResult EventKind = "ai-result"
	EventSystem   EventKind = "system"
)

// Critical reports whether an event is structural and must not be dropped
// from a session's send queue. Presence updates are best-effort.
func (k EventKind) Critical() bool {
	return k != EventPresence
}

// Event is a single room event. Seq is assigned by the broadcaster at
// publish time and is strictly increasing per room.
type Event struct {
	ID        string          `json:"id"` // ULID
	RoomID    string          `json:"room_id"`
	Seq       uint64          `json:"seq"`
	Kind      EventKind       `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Origin    string          `json:"origin,omitempty"` // originating session ID
	Timestamp int64           `json:"ts"`               // Unix ms
}
