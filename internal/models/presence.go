package models

// PresenceState is a session's lightweight activity state within a room.
type PresenceState string

const (
	PresenceIdle     PresenceState = "idle"
	PresenceTyping   PresenceState = "typing"
	PresenceSpeaking PresenceState = "speaking"
)

// Valid reports whether s is a known presence state.
func (s PresenceState) Valid() bool {
	switch s {
	case PresenceIdle, PresenceTyping, PresenceSpeaking:
		return true
	}
	return false
}

// Presence is one session's presence entry as seen by other room members.
type Presence struct {
	SessionID string        `json:"session_id"`
	UserID    string        `json:"user_id"`
	State     PresenceState `json:"state"`
	UpdatedAt int64         `json:"updated_at"` // Unix ms
}
