// Package ai routes tasks across an ordered chain of external model
// providers with per-attempt timeouts, circuit breaking, and a
// content-addressed response cache in front.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/cache"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/metrics"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"
)

// RouterConfig holds the router's failover tunables.
type RouterConfig struct {
	AttemptTimeout time.Duration // per provider call, strictly below TaskDeadline
	TaskDeadline   time.Duration // total budget across attempts
	Chains         map[models.TaskKind][]string
}

// Router owns provider selection and failover for AI tasks. It is safe for
// concurrent use; the health table is the only state shared across tasks.
type Router struct {
	cfg       RouterConfig
	providers map[string]Provider
	health    *HealthTable
	cache     cache.Cache
	group     singleflight.Group
	logger    zerolog.Logger
}

// NewRouter creates a router over the given providers. Chain entries with
// no registered provider are skipped at submit time.
func NewRouter(cfg RouterConfig, providers []Provider, health *HealthTable, c cache.Cache, logger zerolog.Logger) *Router {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	if cfg.TaskDeadline <= 0 {
		cfg.TaskDeadline = 45 * time.Second
	}
	if c == nil {
		c = cache.Noop{}
	}

	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}

	return &Router{
		cfg:       cfg,
		providers: byName,
		health:    health,
		cache:     c,
		logger:    logger.With().Str("component", "ai-router").Logger(),
	}
}

// NewTask builds a task for the given kind and input, stamping the ID,
// fingerprint, and deadline.
func (r *Router) NewTask(kind models.TaskKind, roomID, input string) *models.Task {
	return &models.Task{
		ID:          ulid.Make().String(),
		Kind:        kind,
		RoomID:      roomID,
		Input:       cache.Normalize(input),
		Fingerprint: cache.Fingerprint(kind, input),
		Deadline:    time.Now().Add(r.cfg.TaskDeadline),
		State:       models.TaskCreated,
	}
}

// Submit runs a task to a terminal state. A cache hit returns immediately
// without touching any provider. On a miss, providers are tried in chain
// order, skipping open circuits; identical concurrent misses are collapsed
// so a single provider call serves all waiters. Nothing is cached for a
// failed task.
func (r *Router) Submit(ctx context.Context, task *models.Task) (*models.TaskResult, error) {
	chain := r.cfg.Chains[task.Kind]
	if len(chain) == 0 {
		task.State = models.TaskFailed
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskKind, task.Kind)
	}

	if result, ok := r.cache.Get(ctx, task.Kind, task.Fingerprint); ok {
		task.State = models.TaskSuccess
		task.Provider = result.Provider
		result.TaskID = task.ID
		metrics.TasksCompleted.WithLabelValues(string(task.Kind), "success").Inc()
		return result, nil
	}

	key := string(task.Kind) + ":" + task.Fingerprint
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.runChain(ctx, task, chain)
	})
	if err != nil {
		task.State = models.TaskFailed
		metrics.TasksCompleted.WithLabelValues(string(task.Kind), "failed").Inc()
		return nil, err
	}

	result := v.(*models.TaskResult)
	task.State = models.TaskSuccess
	task.Provider = result.Provider
	metrics.TasksCompleted.WithLabelValues(string(task.Kind), "success").Inc()
	return result, nil
}

// runChain walks the provider chain until success, exhaustion, or the task
// deadline.
func (r *Router) runChain(ctx context.Context, task *models.Task, chain []string) (*models.TaskResult, error) {
	ctx, cancel := context.WithDeadline(ctx, task.Deadline)
	defer cancel()

	task.State = models.TaskAttempting

	for i, name := range chain {
		p, ok := r.providers[name]
		if !ok {
			continue
		}

		remaining := time.Until(task.Deadline)
		if remaining <= 0 {
			return nil, ErrDeadlineExceeded
		}

		rec := r.health.Record(name)
		if !rec.Allow() {
			continue
		}

		// A failed attempt should not consume the whole budget when
		// another healthy provider is waiting behind it.
		attemptTimeout := r.cfg.AttemptTimeout
		if attemptTimeout > remaining || !r.healthyAfter(chain, i) {
			attemptTimeout = remaining
		}

		output, err := r.attempt(ctx, p, task, attemptTimeout)
		if err != nil {
			rec.Failure()
			if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrDeadlineExceeded
			}
			continue
		}

		rec.Success()
		result := &models.TaskResult{
			TaskID:   task.ID,
			Kind:     task.Kind,
			Provider: name,
			Output:   output,
			Created:  time.Now().UnixMilli(),
		}
		r.cache.Put(ctx, task.Kind, task.Fingerprint, result, cache.TTLFor(task.Kind))
		return result, nil
	}

	if time.Until(task.Deadline) <= 0 {
		return nil, ErrDeadlineExceeded
	}
	return nil, ErrAllProvidersExhausted
}

// attempt runs one provider call under its own timeout, recording the
// attempt on the task and in metrics.
func (r *Router) attempt(ctx context.Context, p Provider, task *models.Task, timeout time.Duration) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	metrics.ProviderAttempts.WithLabelValues(p.Name(), string(task.Kind)).Inc()
	start := time.Now()

	output, err := p.Invoke(attemptCtx, task.Kind, task.Input)

	att := models.Attempt{
		Provider:  p.Name(),
		StartedAt: start,
		Duration:  time.Since(start),
	}
	if err != nil {
		att.Err = err.Error()
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		metrics.ProviderFailures.WithLabelValues(p.Name(), reason).Inc()
		r.logger.Warn().
			Err(err).
			Str("provider", p.Name()).
			Str("task", task.ID).
			Str("kind", string(task.Kind)).
			Msg("provider attempt failed")
	}
	task.Attempts = append(task.Attempts, att)

	return output, err
}

// healthyAfter reports whether any provider past index i in the chain is
// currently allowed traffic.
func (r *Router) healthyAfter(chain []string, i int) bool {
	for _, name := range chain[i+1:] {
		if _, ok := r.providers[name]; !ok {
			continue
		}
		if r.health.Record(name).State() != CircuitOpen {
			return true
		}
	}
	return false
}
