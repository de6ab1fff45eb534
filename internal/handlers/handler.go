package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/ai"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/bus"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/copilot"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/room"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/session"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	manager     *session.Manager
	broadcaster *room.Broadcaster
	copilot     *copilot.Copilot
	health      *ai.HealthTable
	bus         bus.Bus             // nil when running single-instance
	meetings    *store.MeetingStore // nil when no database is configured
	logger      zerolog.Logger
}

// NewHandler creates a Handler with the given collaborators. eventBus and
// meetings may be nil.
func NewHandler(m *session.Manager, b *room.Broadcaster, c *copilot.Copilot, h *ai.HealthTable, eventBus bus.Bus, meetings *store.MeetingStore, logger zerolog.Logger) *Handler {
	return &Handler{
		manager:     m,
		broadcaster: b,
		copilot:     c,
		health:      h,
		bus:         eventBus,
		meetings:    meetings,
		logger:      logger.With().Str("component", "http").Logger(),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
