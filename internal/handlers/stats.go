package handlers

import (
	"net/http"
	"time"
)

// ProviderStats reports one provider's circuit state.
type ProviderStats struct {
	Circuit     string `json:"circuit"`
	Failures    int    `json:"consecutive_failures"`
	LastFailure string `json:"last_failure,omitempty"`
}

// StatsResponse is a live snapshot of the collaboration core.
type StatsResponse struct {
	Rooms       int                      `json:"rooms"`
	Sessions    int                      `json:"sessions"`
	Providers   map[string]ProviderStats `json:"providers"`
	GeneratedAt string                   `json:"generated_at"`
}

// Stats handles the stats snapshot endpoint.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	rooms, _ := h.broadcaster.Stats()

	providers := make(map[string]ProviderStats)
	for name, state := range h.health.States() {
		rec := h.health.Record(name)
		ps := ProviderStats{
			Circuit:  string(state),
			Failures: rec.ConsecutiveFailures(),
		}
		if last := rec.LastFailure(); !last.IsZero() {
			ps.LastFailure = last.UTC().Format(time.RFC3339)
		}
		providers[name] = ps
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		Rooms:       rooms,
		Sessions:    h.manager.Count(),
		Providers:   providers,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	})
}
