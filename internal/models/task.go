package models

import "time"

// TaskKind identifies an AI task type. Each kind has its own provider
// preference chain and cache TTL.
type TaskKind string

const (
	TaskTranscribe     TaskKind = "transcribe"
	TaskSummarize      TaskKind = "summarize"
	TaskExtractActions TaskKind = "extract-actions"
)

// Valid reports whether k is a known task kind.
func (k TaskKind) Valid() bool {
	switch k {
	case TaskTranscribe, TaskSummarize, TaskExtractActions:
		return true
	}
	return false
}

// TaskState is a point in the AI task lifecycle. Success and Failed are
// terminal.
type TaskState string

const (
	TaskCreated    TaskState = "created"
	TaskAttempting TaskState = "attempting"
	TaskSuccess    TaskState = "success"
	TaskFailed     TaskState = "failed"
)

// Task is one unit of AI work routed across the provider chain.
type Task struct {
	ID          string    `json:"id"` // ULID
	Kind        TaskKind  `json:"kind"`
	RoomID      string    `json:"room_id"`
	Input       string    `json:"input"`       // normalized input
	Fingerprint string    `json:"fingerprint"` // hash of (kind, normalized input)
	Deadline    time.Time `json:"deadline"`
	State       TaskState `json:"state"`
	Attempts    []Attempt `json:"attempts,omitempty"`
	Provider    string    `json:"provider,omitempty"` // provider that produced the result
}

// Attempt records one provider call made on behalf of a task.
type Attempt struct {
	Provider  string        `json:"provider"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Err       string        `json:"err,omitempty"`
}

// TaskResult is a normalized provider response.
type TaskResult struct {
	TaskID   string   `json:"task_id,omitempty"`
	Kind     TaskKind `json:"kind"`
	Provider string   `json:"provider"`
	Output   string   `json:"output"`
	Cached   bool     `json:"cached,omitempty"`
	Created  int64    `json:"created"` // Unix ms
}
