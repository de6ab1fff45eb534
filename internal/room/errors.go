package room

import "errors"

var (
	// ErrRoomNotFound is returned when publishing to a room with no
	// attached sessions on this instance.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomFull is returned when a room has reached its session capacity.
	ErrRoomFull = errors.New("room full")
)
