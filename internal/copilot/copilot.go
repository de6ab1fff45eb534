// Package copilot orchestrates the collaboration flow: inbound client
// messages become room events, AI-relevant events become routed tasks, and
// results flow back through the broadcaster to every room member.
package copilot

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/ai"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/presence"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/room"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/session"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/store"
)

// PresencePayload is the body of fan-out presence events.
type PresencePayload struct {
	Action    string               `json:"action"` // join|leave|update
	SessionID string               `json:"session_id"`
	UserID    string               `json:"user_id"`
	State     models.PresenceState `json:"state,omitempty"`
}

// AIResultPayload is the body of fan-out ai-result events.
type AIResultPayload struct {
	TaskID     string          `json:"task_id"`
	Kind       models.TaskKind `json:"kind"`
	Provider   string          `json:"provider"`
	Output     string          `json:"output"`
	Cached     bool            `json:"cached,omitempty"`
	ChunkIndex int64           `json:"chunk_index,omitempty"`
	Degraded   bool            `json:"degraded,omitempty"` // true when AI enrichment failed
}

// Copilot wires the session, room, and AI layers together.
type Copilot struct {
	broadcaster *room.Broadcaster
	manager     *session.Manager
	presence    *presence.Store
	router      *ai.Router
	meetings    *store.MeetingStore // nil when no database is configured
	logger      zerolog.Logger

	wg sync.WaitGroup
}

// New creates a copilot. meetings may be nil.
func New(b *room.Broadcaster, m *session.Manager, p *presence.Store, r *ai.Router, meetings *store.MeetingStore, logger zerolog.Logger) *Copilot {
	return &Copilot{
		broadcaster: b,
		manager:     m,
		presence:    p,
		router:      r,
		meetings:    meetings,
		logger:      logger.With().Str("component", "copilot").Logger(),
	}
}

// Handle dispatches one inbound client message. Errors are reported to the
// client as error frames; nothing here fails the room.
func (c *Copilot) Handle(ctx context.Context, s *session.Session, msg models.ClientMessage) {
	switch msg.Kind {
	case models.ClientHeartbeat:
		_ = c.manager.Heartbeat(s.ID())
	case models.ClientPresence:
		c.handlePresence(ctx, s, msg)
	case models.ClientEdit:
		c.handleEdit(ctx, s, msg)
	case models.ClientSpeechChunk:
		c.handleSpeechChunk(s, msg)
	case models.ClientLeave:
		c.manager.Detach(s.ID(), "client")
	default:
		c.sendError(s, "bad_request", "unknown message kind: "+msg.Kind)
	}
}

// AnnounceJoin publishes a presence join event after a successful attach.
func (c *Copilot) AnnounceJoin(ctx context.Context, s *session.Session) {
	c.publishPresence(ctx, s.RoomID(), PresencePayload{
		Action:    "join",
		SessionID: s.ID(),
		UserID:    s.UserID(),
		State:     models.PresenceIdle,
	})
	c.touchMeeting(s.RoomID())
}

// AnnounceLeave publishes a presence leave event after a detach. Wired as
// the session manager's detach hook so every eviction path announces.
func (c *Copilot) AnnounceLeave(s *session.Session, reason string) {
	c.publishPresence(context.Background(), s.RoomID(), PresencePayload{
		Action:    "leave",
		SessionID: s.ID(),
		UserID:    s.UserID(),
	})
}

// HandleRoomClosed stamps the meeting record when a room's grace period
// expires. Wired as the broadcaster's room-closed hook.
func (c *Copilot) HandleRoomClosed(roomID string) {
	if c.meetings == nil {
		return
	}
	id, err := uuid.Parse(roomID)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.meetings.CloseMeeting(ctx, id); err != nil {
		c.logger.Warn().Err(err).Str("room", roomID).Msg("failed to stamp meeting close")
	}
}

// Wait blocks until in-flight AI work finishes, for graceful shutdown.
func (c *Copilot) Wait() {
	c.wg.Wait()
}

func (c *Copilot) handlePresence(ctx context.Context, s *session.Session, msg models.ClientMessage) {
	var p struct {
		State models.PresenceState `json:"state"`
	}
	if err := json.Unmarshal(msg.Payload, &p); err != nil || !p.State.Valid() {
		c.sendError(s, "bad_request", "invalid presence state")
		return
	}

	c.presence.Set(s.RoomID(), s.ID(), s.UserID(), p.State)
	c.publishPresence(ctx, s.RoomID(), PresencePayload{
		Action:    "update",
		SessionID: s.ID(),
		UserID:    s.UserID(),
		State:     p.State,
	})
}

func (c *Copilot) handleEdit(ctx context.Context, s *session.Session, msg models.ClientMessage) {
	var edit models.EditPayload
	if err := json.Unmarshal(msg.Payload, &edit); err != nil {
		c.sendError(s, "bad_request", "invalid edit payload")
		return
	}

	seq, err := c.broadcaster.Publish(ctx, s.RoomID(), models.Event{
		Kind:    models.EventEdit,
		Payload: msg.Payload,
		Origin:  s.ID(),
	})
	if err != nil {
		c.sendError(s, "publish_failed", "edit could not be published")
		return
	}

	ack, _ := json.Marshal(map[string]any{"note_id": edit.NoteID, "version": edit.Version})
	_ = c.manager.Send(s.ID(), models.ServerMessage{
		Kind:    models.ServerEditAck,
		RoomID:  s.RoomID(),
		Seq:     seq,
		Payload: ack,
	}, true)

	c.touchMeeting(s.RoomID())
}

// handleSpeechChunk routes a speech chunk through transcription and, on the
// final chunk, kicks off summary and action-item extraction over the full
// transcript. Provider work runs off the connection goroutine; results for
// a room that closed in the meantime are discarded, not broadcast.
func (c *Copilot) handleSpeechChunk(s *session.Session, msg models.ClientMessage) {
	var chunk models.SpeechChunkPayload
	if err := json.Unmarshal(msg.Payload, &chunk); err != nil || chunk.Audio == "" {
		c.sendError(s, "bad_request", "invalid speech chunk")
		return
	}

	roomID := s.RoomID()
	r := c.broadcaster.Get(roomID)
	if r == nil {
		return
	}
	roomCtx := r.Context()
	userID := s.UserID()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		task := c.router.NewTask(models.TaskTranscribe, roomID, chunk.Audio)
		result, err := c.router.Submit(context.Background(), task)
		if err != nil {
			c.degrade(roomCtx, roomID, task, err)
			return
		}

		c.persistSegment(roomID, userID, chunk.ChunkIndex, result.Output)
		c.broadcastResult(roomCtx, roomID, result, chunk.ChunkIndex)

		if chunk.Final {
			c.enrichTranscript(roomCtx, roomID)
		}
	}()
}

// enrichTranscript summarizes and extracts action items from the meeting's
// accumulated transcript.
func (c *Copilot) enrichTranscript(roomCtx context.Context, roomID string) {
	transcript := c.fullTranscript(roomID)
	if transcript == "" {
		return
	}

	for _, kind := range []models.TaskKind{models.TaskSummarize, models.TaskExtractActions} {
		kind := kind
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()

			task := c.router.NewTask(kind, roomID, transcript)
			result, err := c.router.Submit(context.Background(), task)
			if err != nil {
				c.degrade(roomCtx, roomID, task, err)
				return
			}
			c.broadcastResult(roomCtx, roomID, result, 0)
		}()
	}
}

// broadcastResult publishes an AI result to the room unless the room closed
// while the provider call was in flight.
func (c *Copilot) broadcastResult(roomCtx context.Context, roomID string, result *models.TaskResult, chunkIndex int64) {
	select {
	case <-roomCtx.Done():
		c.logger.Debug().Str("room", roomID).Str("task", result.TaskID).Msg("discarding AI result for closed room")
		return
	default:
	}

	payload, _ := json.Marshal(AIResultPayload{
		TaskID:     result.TaskID,
		Kind:       result.Kind,
		Provider:   result.Provider,
		Output:     result.Output,
		Cached:     result.Cached,
		ChunkIndex: chunkIndex,
	})
	if _, err := c.broadcaster.Publish(context.Background(), roomID, models.Event{
		Kind:    models.EventAIResult,
		Payload: payload,
	}); err != nil && !errors.Is(err, room.ErrRoomNotFound) {
		c.logger.Warn().Err(err).Str("room", roomID).Msg("failed to broadcast AI result")
	}
}

// degrade tells the room AI enrichment is unavailable. Provider exhaustion
// is a degraded-mode signal, never a room failure.
func (c *Copilot) degrade(roomCtx context.Context, roomID string, task *models.Task, err error) {
	c.logger.Warn().
		Err(err).
		Str("room", roomID).
		Str("task", task.ID).
		Str("kind", string(task.Kind)).
		Int("attempts", len(task.Attempts)).
		Msg("AI task failed")

	select {
	case <-roomCtx.Done():
		return
	default:
	}

	payload, _ := json.Marshal(AIResultPayload{
		TaskID:   task.ID,
		Kind:     task.Kind,
		Degraded: true,
	})
	_, _ = c.broadcaster.Publish(context.Background(), roomID, models.Event{
		Kind:    models.EventAIResult,
		Payload: payload,
	})
}

// fullTranscript loads the meeting's transcript text from the store. Empty
// when no store is configured.
func (c *Copilot) fullTranscript(roomID string) string {
	if c.meetings == nil {
		return ""
	}
	id, err := uuid.Parse(roomID)
	if err != nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	segments, err := c.meetings.GetTranscriptSegments(ctx, id, 0)
	if err != nil {
		c.logger.Warn().Err(err).Str("room", roomID).Msg("failed to load transcript")
		return ""
	}

	var sb strings.Builder
	for _, seg := range segments {
		if seg.Speaker != "" {
			sb.WriteString(seg.Speaker)
			sb.WriteString(": ")
		}
		sb.WriteString(seg.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// persistSegment appends a transcript fragment to the durable store.
// Best-effort; a store failure never blocks the broadcast path.
func (c *Copilot) persistSegment(roomID, speaker string, chunkIndex int64, text string) {
	if c.meetings == nil || text == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.meetings.AppendTranscriptSegment(ctx, &models.TranscriptSegment{
		MeetingID: roomID,
		Speaker:   speaker,
		Text:      text,
		Seq:       uint64(chunkIndex),
	}); err != nil {
		c.logger.Warn().Err(err).Str("room", roomID).Msg("failed to persist transcript segment")
	}
}

// touchMeeting refreshes the meeting's activity timestamp. Best-effort.
func (c *Copilot) touchMeeting(roomID string) {
	if c.meetings == nil {
		return
	}
	id, err := uuid.Parse(roomID)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.meetings.TouchMeeting(ctx, id)
}

func (c *Copilot) publishPresence(ctx context.Context, roomID string, p PresencePayload) {
	payload, _ := json.Marshal(p)
	if _, err := c.broadcaster.Publish(ctx, roomID, models.Event{
		Kind:    models.EventPresence,
		Payload: payload,
		Origin:  p.SessionID,
	}); err != nil && !errors.Is(err, room.ErrRoomNotFound) {
		c.logger.Warn().Err(err).Str("room", roomID).Msg("failed to publish presence")
	}
}

func (c *Copilot) sendError(s *session.Session, code, message string) {
	payload, _ := json.Marshal(models.ErrorPayload{Code: code, Message: message})
	_ = c.manager.Send(s.ID(), models.ServerMessage{
		Kind:    models.ServerError,
		RoomID:  s.RoomID(),
		Payload: payload,
	}, false)
}
