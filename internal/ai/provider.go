package ai

import (
	"context"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"
)

// Provider is the uniform contract every AI backend is adapted to. The
// router treats providers as interchangeable regardless of their native
// request shape; adapters normalize both directions.
type Provider interface {
	// Name returns the stable provider identifier used in chains, health
	// records, and metrics.
	Name() string

	// Invoke runs one task attempt. The context carries the per-attempt
	// timeout; implementations must honor cancellation.
	Invoke(ctx context.Context, kind models.TaskKind, input string) (string, error)
}
