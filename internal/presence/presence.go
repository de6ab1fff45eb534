// Package presence tracks which sessions are attached to which rooms and
// their lightweight activity state. It is a read-mostly in-memory table;
// durable state lives with the meeting store.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"
)

// Store is an in-memory presence table keyed by room, then session.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]map[string]models.Presence
}

// NewStore creates an empty presence store.
func NewStore() *Store {
	return &Store{rooms: make(map[string]map[string]models.Presence)}
}

// Set records a session's presence in a room, creating the entry on first
// touch.
func (s *Store) Set(roomID, sessionID, userID string, state models.PresenceState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		room = make(map[string]models.Presence)
		s.rooms[roomID] = room
	}
	room[sessionID] = models.Presence{
		SessionID: sessionID,
		UserID:    userID,
		State:     state,
		UpdatedAt: time.Now().UnixMilli(),
	}
}

// Remove clears a session's presence, dropping the room entry when it was
// the last one.
func (s *Store) Remove(roomID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return
	}
	delete(room, sessionID)
	if len(room) == 0 {
		delete(s.rooms, roomID)
	}
}

// Snapshot returns a room's presence entries ordered by session ID, for
// join payloads and the stats endpoint.
func (s *Store) Snapshot(roomID string) []models.Presence {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room := s.rooms[roomID]
	out := make([]models.Presence, 0, len(room))
	for _, p := range room {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Count returns the number of sessions present in a room.
func (s *Store) Count(roomID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[roomID])
}
