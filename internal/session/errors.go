package session

import "errors"

var (
	// ErrUnauthorized is returned when the handshake's auth context is
	// rejected. Not retried.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSlowConsumer is returned when a structural message cannot be
	// enqueued for a session even after shedding non-critical traffic.
	// The session is forcibly disconnected.
	ErrSlowConsumer = errors.New("slow consumer")

	// ErrSessionNotFound is returned for operations on unknown sessions.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed is returned when enqueueing to a closed session.
	ErrSessionClosed = errors.New("session closed")
)
