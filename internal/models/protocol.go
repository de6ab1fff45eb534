package models

import "encoding/json"

// Client → server message kinds.
const (
	ClientJoin        = "join"
	ClientLeave       = "leave"
	ClientEdit        = "edit"
	ClientHeartbeat   = "heartbeat"
	ClientSpeechChunk = "speech-chunk"
	ClientPresence    = "presence"
)

// Server → client message kinds.
const (
	ServerWelcome  = "welcome"
	ServerEvent    = "event"
	ServerEditAck  = "edit-ack"
	ServerAIResult = "ai-result"
	ServerPresence = "presence"
	ServerResync   = "resync"
	ServerError    = "error"
)

// ClientMessage is one typed frame received from a client.
type ClientMessage struct {
	Kind    string          `json:"kind"`
	RoomID  string          `json:"room_id,omitempty"`
	LastSeq uint64          `json:"last_seq,omitempty"` // resume cursor on join
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage is one typed frame sent to a client. Seq is set for frames
// carrying a room event.
type ServerMessage struct {
	Kind    string          `json:"kind"`
	RoomID  string          `json:"room_id,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EditPayload is the body of an edit message and its fan-out event.
type EditPayload struct {
	NoteID  string `json:"note_id"`
	Op      string `json:"op"` // insert|delete|replace
	Pos     int    `json:"pos"`
	Text    string `json:"text,omitempty"`
	Version int64  `json:"version,omitempty"`
}

// SpeechChunkPayload carries one segment of captured speech for
// transcription. Audio transport mechanics are the client's concern; the
// server sees opaque base64 data plus ordering metadata.
type SpeechChunkPayload struct {
	ChunkIndex int64  `json:"chunk_index"`
	Audio      string `json:"audio"` // base64
	Final      bool   `json:"final,omitempty"`
}

// JoinPayload is the body of the first client frame, carrying the
// handshake's auth context.
type JoinPayload struct {
	UserID   string `json:"user_id"`
	Token    string `json:"token"`
	Passcode string `json:"passcode,omitempty"`
}

// WelcomePayload is the body of the welcome frame sent after a successful
// handshake. Resync tells the client its gap exceeded the replay buffer and
// it must refetch state through the notes API before consuming live events.
type WelcomePayload struct {
	SessionID string     `json:"session_id"`
	Seq       uint64     `json:"seq"` // room sequence at attach time
	Replayed  int        `json:"replayed,omitempty"`
	Resync    bool       `json:"resync,omitempty"`
	Presence  []Presence `json:"presence,omitempty"`
}

// ErrorPayload is the body of a server error frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
