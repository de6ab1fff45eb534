package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/metrics"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/presence"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/room"
)

// AttachRequest carries the handshake context for a new session.
type AttachRequest struct {
	UserID    string
	RoomID    string
	Token     string
	Passcode  string // private-meeting passcode, empty for public rooms
	LastSeq   uint64 // resume cursor, 0 for a fresh join
	Transport Transport
}

// Authorizer validates the handshake's auth context. Implementations return
// ErrUnauthorized to reject; any other error is treated the same but logged.
type Authorizer interface {
	Authorize(ctx context.Context, req AttachRequest) error
}

// Config holds the session-manager tunables.
type Config struct {
	HeartbeatInterval time.Duration
	MissedHeartbeats  int
	SendQueueCapacity int
}

// Manager owns every live session on this instance: handshake, heartbeats,
// the slow-consumer policy, and room detachment.
type Manager struct {
	cfg         Config
	broadcaster *room.Broadcaster
	presence    *presence.Store
	auth        Authorizer
	logger      zerolog.Logger

	onDetach func(s *Session, reason string)

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(cfg Config, b *room.Broadcaster, p *presence.Store, auth Authorizer, logger zerolog.Logger) *Manager {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.MissedHeartbeats <= 0 {
		cfg.MissedHeartbeats = 3
	}
	if cfg.SendQueueCapacity <= 0 {
		cfg.SendQueueCapacity = 64
	}
	return &Manager{
		cfg:         cfg,
		broadcaster: b,
		presence:    p,
		auth:        auth,
		logger:      logger.With().Str("component", "sessions").Logger(),
		sessions:    make(map[string]*Session),
	}
}

// OnDetach registers a hook invoked after every detach, with the session
// already removed. Used for presence leave announcements. Set before Run.
func (m *Manager) OnDetach(f func(s *Session, reason string)) {
	m.onDetach = f
}

// Attach performs the handshake: authorization, room registration with
// resume replay, presence, and the welcome frame. The returned session is
// live and its writer pump running.
func (m *Manager) Attach(ctx context.Context, req AttachRequest) (*Session, error) {
	if err := m.auth.Authorize(ctx, req); err != nil {
		if !errors.Is(err, ErrUnauthorized) {
			m.logger.Warn().Err(err).Str("room", req.RoomID).Msg("authorizer failure")
		}
		return nil, ErrUnauthorized
	}

	s := &Session{
		id:        uuid.NewString(),
		userID:    req.UserID,
		roomID:    req.RoomID,
		queue:     newSendQueue(m.cfg.SendQueueCapacity),
		transport: req.Transport,
		done:      make(chan struct{}),
	}
	s.Heartbeat()

	replay, resync, err := m.broadcaster.Attach(req.RoomID, s, req.LastSeq)
	if err != nil {
		s.close()
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.presence.Set(req.RoomID, s.id, req.UserID, models.PresenceIdle)

	welcome, _ := json.Marshal(models.WelcomePayload{
		SessionID: s.id,
		Seq:       m.broadcaster.Get(req.RoomID).Seq(),
		Replayed:  len(replay),
		Resync:    resync,
		Presence:  m.presence.Snapshot(req.RoomID),
	})
	kind := models.ServerWelcome
	if resync {
		kind = models.ServerResync
	}

	// The welcome and any replay bypass the send queue: the welcome must be
	// the first frame on the wire, and a replay may be larger than the
	// queue. Live events enqueued meanwhile all carry higher sequences and
	// drain once the pump starts.
	if err := m.writeHandshake(s, models.ServerMessage{Kind: kind, RoomID: req.RoomID, Payload: welcome}, replay); err != nil {
		m.abortAttach(s)
		return nil, fmt.Errorf("handshake write: %w", err)
	}

	go s.writePump(m.onWriteError)

	metrics.SessionsAttached.Inc()
	metrics.SessionsActive.Inc()
	m.logger.Info().
		Str("session", s.id).
		Str("user", req.UserID).
		Str("room", req.RoomID).
		Uint64("last_seq", req.LastSeq).
		Int("replayed", len(replay)).
		Bool("resync", resync).
		Msg("session attached")

	return s, nil
}

// writeHandshake writes the welcome frame and replayed events straight to
// the transport, ahead of the writer pump.
func (m *Manager) writeHandshake(s *Session, welcome models.ServerMessage, replay []models.Event) error {
	if err := s.transport.WriteJSON(welcome); err != nil {
		return err
	}
	for _, evt := range replay {
		if err := s.transport.WriteJSON(frameFor(evt)); err != nil {
			return err
		}
	}
	return nil
}

// abortAttach unwinds a registration whose handshake write failed.
func (m *Manager) abortAttach(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()

	m.broadcaster.Detach(s.roomID, s.id)
	m.presence.Remove(s.roomID, s.id)
	s.close()
}

// Detach removes a session, detaches it from its room, and closes the
// transport. Safe to call more than once.
func (m *Manager) Detach(sessionID, reason string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	m.broadcaster.Detach(s.roomID, s.id)
	m.presence.Remove(s.roomID, s.id)
	s.close()

	metrics.SessionsActive.Dec()
	switch reason {
	case "slow_consumer", "heartbeat":
		metrics.SessionsEvicted.WithLabelValues(reason).Inc()
	}
	m.logger.Info().Str("session", sessionID).Str("room", s.roomID).Str("reason", reason).Msg("session detached")

	if m.onDetach != nil {
		m.onDetach(s, reason)
	}
}

// Send enqueues a direct frame to one session.
func (m *Manager) Send(sessionID string, msg models.ServerMessage, critical bool) error {
	s := m.Session(sessionID)
	if s == nil {
		return ErrSessionNotFound
	}
	if err := s.send(msg, critical); err != nil {
		if errors.Is(err, ErrSlowConsumer) {
			m.EvictSlowConsumer(s.roomID, sessionID)
		}
		return err
	}
	return nil
}

// Session returns a live session by ID, or nil.
func (m *Manager) Session(sessionID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID]
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Heartbeat records a heartbeat for a session.
func (m *Manager) Heartbeat(sessionID string) error {
	s := m.Session(sessionID)
	if s == nil {
		return ErrSessionNotFound
	}
	s.Heartbeat()
	return nil
}

// EvictSlowConsumer disconnects a session whose send queue rejected a
// structural frame. The client is expected to reconnect and resume.
func (m *Manager) EvictSlowConsumer(roomID, sessionID string) {
	m.logger.Warn().Str("session", sessionID).Str("room", roomID).Msg("evicting slow consumer")
	m.Detach(sessionID, "slow_consumer")
}

// Run scans for sessions that missed their heartbeat budget until ctx ends.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reapStale()
		case <-ctx.Done():
			return
		}
	}
}

// reapStale detaches every session whose last heartbeat is older than the
// missed-beat budget.
func (m *Manager) reapStale() {
	cutoff := time.Now().Add(-time.Duration(m.cfg.MissedHeartbeats) * m.cfg.HeartbeatInterval)

	m.mu.RLock()
	var stale []string
	for id, s := range m.sessions {
		if s.LastHeartbeat().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		m.Detach(id, "heartbeat")
	}
}

// Close detaches every session, for graceful shutdown.
func (m *Manager) Close() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.Detach(id, "shutdown")
	}
}

// onWriteError is the writer pump's failure path: the transport is gone, so
// tear the session down.
func (m *Manager) onWriteError(sessionID string) {
	m.Detach(sessionID, "write_error")
}
