package ai

import "errors"

var (
	// ErrAllProvidersExhausted is returned when every provider in a task's
	// chain is open-circuited or has failed. Callers treat it as a
	// degraded-mode signal, not a room failure.
	ErrAllProvidersExhausted = errors.New("all providers exhausted")

	// ErrDeadlineExceeded is returned when the task's overall deadline
	// elapsed before any provider succeeded.
	ErrDeadlineExceeded = errors.New("task deadline exceeded")

	// ErrUnknownTaskKind is returned for task kinds with no provider chain.
	ErrUnknownTaskKind = errors.New("unknown task kind")
)
