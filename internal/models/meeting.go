package models

import (
	"time"

	"github.com/google/uuid"
)

// Meeting is the durable record behind a collaboration room.
type Meeting struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	IsPrivate    bool       `json:"is_private"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActiveAt time.Time  `json:"last_active_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

// TranscriptSegment is one durable transcript fragment for a meeting.
type TranscriptSegment struct {
	ID        string `json:"id"` // ULID
	MeetingID string `json:"meeting_id"`
	Speaker   string `json:"speaker,omitempty"`
	Text      string `json:"text"`
	Seq       uint64 `json:"seq"`
	Timestamp int64  `json:"ts"` // Unix ms
}
