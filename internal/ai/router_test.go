package ai

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/cache"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"
)

// scriptProvider returns canned results, optionally failing the first n
// calls or blocking until the context expires.
type scriptProvider struct {
	name    string
	output  string
	failN   int
	hang    bool
	mu      sync.Mutex
	invoked int
}

func (p *scriptProvider) Name() string { return p.name }

func (p *scriptProvider) Invoke(ctx context.Context, kind models.TaskKind, input string) (string, error) {
	p.mu.Lock()
	p.invoked++
	call := p.invoked
	p.mu.Unlock()

	if p.hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if call <= p.failN {
		return "", errors.New("upstream error")
	}
	return p.output, nil
}

func (p *scriptProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.invoked
}

// memCache is a map-backed Cache for tests.
type memCache struct {
	mu      sync.Mutex
	entries map[string]*models.TaskResult
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]*models.TaskResult)}
}

func (c *memCache) Get(ctx context.Context, kind models.TaskKind, fingerprint string) (*models.TaskResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[string(kind)+":"+fingerprint]
	if !ok {
		return nil, false
	}
	cp := *r
	cp.Cached = true
	return &cp, true
}

func (c *memCache) Put(ctx context.Context, kind models.TaskKind, fingerprint string, result *models.TaskResult, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[string(kind)+":"+fingerprint] = result
}

func (c *memCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func newTestRouter(cfg RouterConfig, c cache.Cache, providers ...Provider) *Router {
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	if cfg.Chains == nil {
		names := make([]string, len(providers))
		for i, p := range providers {
			names[i] = p.Name()
		}
		cfg.Chains = map[models.TaskKind][]string{
			models.TaskSummarize: names,
		}
	}
	return NewRouter(cfg, providers, NewHealthTable(3, time.Minute), c, logger)
}

func TestSubmitFirstProviderSucceeds(t *testing.T) {
	p := &scriptProvider{name: "openai", output: "summary text"}
	r := newTestRouter(RouterConfig{}, nil, p)

	task := r.NewTask(models.TaskSummarize, "room-1", "meeting transcript")
	result, err := r.Submit(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, "summary text", result.Output)
	assert.Equal(t, "openai", result.Provider)
	assert.False(t, result.Cached)
	assert.Equal(t, models.TaskSuccess, task.State)
	assert.Equal(t, task.ID, result.TaskID)
}

func TestSubmitFailsOverToNextProvider(t *testing.T) {
	bad := &scriptProvider{name: "anthropic", failN: 99}
	good := &scriptProvider{name: "openai", output: "fallback summary"}
	r := newTestRouter(RouterConfig{}, nil, bad, good)
	r.cfg.Chains[models.TaskSummarize] = []string{"anthropic", "openai"}

	task := r.NewTask(models.TaskSummarize, "room-1", "transcript")
	result, err := r.Submit(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, "openai", result.Provider)
	assert.Equal(t, 1, bad.calls())
	require.Len(t, task.Attempts, 2)
	assert.NotEmpty(t, task.Attempts[0].Err)
	assert.Empty(t, task.Attempts[1].Err)
}

func TestSubmitTimeoutFailsOver(t *testing.T) {
	slow := &scriptProvider{name: "anthropic", hang: true}
	good := &scriptProvider{name: "openai", output: "abc123"}
	r := newTestRouter(RouterConfig{
		AttemptTimeout: 20 * time.Millisecond,
		TaskDeadline:   time.Second,
	}, newMemCache(), slow, good)
	r.cfg.Chains[models.TaskSummarize] = []string{"anthropic", "openai"}

	task := r.NewTask(models.TaskSummarize, "room-1", "transcript")
	result, err := r.Submit(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, "abc123", result.Output)
	assert.Equal(t, "openai", result.Provider)
}

func TestSubmitCacheHitSkipsProviders(t *testing.T) {
	p := &scriptProvider{name: "openai", output: "first"}
	c := newMemCache()
	r := newTestRouter(RouterConfig{}, c, p)

	task1 := r.NewTask(models.TaskSummarize, "room-1", "transcript")
	_, err := r.Submit(context.Background(), task1)
	require.NoError(t, err)
	require.Equal(t, 1, c.size())

	task2 := r.NewTask(models.TaskSummarize, "room-2", "transcript")
	result, err := r.Submit(context.Background(), task2)
	require.NoError(t, err)
	assert.True(t, result.Cached)
	assert.Equal(t, "first", result.Output)
	assert.Equal(t, task2.ID, result.TaskID, "cached result is re-stamped for the new task")
	assert.Equal(t, 1, p.calls(), "cache hit must not touch providers")
}

func TestSubmitWhitespaceVariantsShareCacheEntry(t *testing.T) {
	p := &scriptProvider{name: "openai", output: "out"}
	c := newMemCache()
	r := newTestRouter(RouterConfig{}, c, p)

	_, err := r.Submit(context.Background(), r.NewTask(models.TaskSummarize, "room-1", "hello   world"))
	require.NoError(t, err)
	_, err = r.Submit(context.Background(), r.NewTask(models.TaskSummarize, "room-1", "  hello world\n"))
	require.NoError(t, err)

	assert.Equal(t, 1, p.calls())
	assert.Equal(t, 1, c.size())
}

func TestSubmitExhaustionCachesNothing(t *testing.T) {
	bad1 := &scriptProvider{name: "anthropic", failN: 99}
	bad2 := &scriptProvider{name: "openai", failN: 99}
	c := newMemCache()
	r := newTestRouter(RouterConfig{}, c, bad1, bad2)
	r.cfg.Chains[models.TaskSummarize] = []string{"anthropic", "openai"}

	task := r.NewTask(models.TaskSummarize, "room-1", "transcript")
	_, err := r.Submit(context.Background(), task)
	assert.ErrorIs(t, err, ErrAllProvidersExhausted)
	assert.Equal(t, models.TaskFailed, task.State)
	assert.Zero(t, c.size(), "failures must never be cached")
}

func TestSubmitUnknownKind(t *testing.T) {
	p := &scriptProvider{name: "openai", output: "out"}
	r := newTestRouter(RouterConfig{}, nil, p)

	task := r.NewTask(models.TaskKind("translate"), "room-1", "text")
	_, err := r.Submit(context.Background(), task)
	assert.ErrorIs(t, err, ErrUnknownTaskKind)
	assert.Equal(t, models.TaskFailed, task.State)
}

func TestSubmitSkipsOpenCircuit(t *testing.T) {
	bad := &scriptProvider{name: "anthropic", failN: 99}
	good := &scriptProvider{name: "openai", output: "out"}
	r := newTestRouter(RouterConfig{}, nil, bad, good)
	r.cfg.Chains[models.TaskSummarize] = []string{"anthropic", "openai"}

	// Three failed tasks open anthropic's circuit.
	for i := 0; i < 3; i++ {
		_, err := r.Submit(context.Background(), r.NewTask(models.TaskSummarize, "room-1", string(rune('a'+i))))
		require.NoError(t, err)
	}
	require.Equal(t, CircuitOpen, r.health.Record("anthropic").State())
	require.Equal(t, 3, bad.calls())

	// Further tasks route straight to the healthy provider.
	result, err := r.Submit(context.Background(), r.NewTask(models.TaskSummarize, "room-1", "fresh"))
	require.NoError(t, err)
	assert.Equal(t, "openai", result.Provider)
	assert.Equal(t, 3, bad.calls(), "open circuit must not be tried")
}

func TestSubmitDeadlineExceeded(t *testing.T) {
	slow := &scriptProvider{name: "openai", hang: true}
	r := newTestRouter(RouterConfig{
		AttemptTimeout: time.Second,
		TaskDeadline:   30 * time.Millisecond,
	}, nil, slow)

	task := r.NewTask(models.TaskSummarize, "room-1", "transcript")
	_, err := r.Submit(context.Background(), task)
	assert.ErrorIs(t, err, ErrDeadlineExceeded)
}

func TestSubmitChainSkipsUnregisteredProvider(t *testing.T) {
	good := &scriptProvider{name: "openai", output: "out"}
	r := newTestRouter(RouterConfig{}, nil, good)
	r.cfg.Chains[models.TaskSummarize] = []string{"gemini", "openai"}

	result, err := r.Submit(context.Background(), r.NewTask(models.TaskSummarize, "room-1", "x"))
	require.NoError(t, err)
	assert.Equal(t, "openai", result.Provider)
}

func TestNewTaskFingerprintStable(t *testing.T) {
	p := &scriptProvider{name: "openai", output: "out"}
	r := newTestRouter(RouterConfig{}, nil, p)

	a := r.NewTask(models.TaskSummarize, "room-1", "  spaced   input ")
	b := r.NewTask(models.TaskSummarize, "room-2", "spaced input")
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.NotEqual(t, a.ID, b.ID)

	c := r.NewTask(models.TaskExtractActions, "room-1", "spaced input")
	assert.NotEqual(t, a.Fingerprint, c.Fingerprint, "kind is part of the fingerprint")
}
