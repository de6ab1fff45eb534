// Package cache is the content-addressed store of AI results. It fails
// open: a broken or absent backend behaves as a permanent miss and never
// surfaces errors to callers.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/metrics"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"
)

// Task-kind-specific TTLs. Transcription is re-requested frequently while a
// meeting runs; summaries and action items are stable for longer.
const (
	transcribeTTL = 10 * time.Minute
	summarizeTTL  = time.Hour
	actionsTTL    = time.Hour
	defaultTTL    = 10 * time.Minute
)

// TTLFor returns the cache TTL for a task kind.
func TTLFor(kind models.TaskKind) time.Duration {
	switch kind {
	case models.TaskTranscribe:
		return transcribeTTL
	case models.TaskSummarize:
		return summarizeTTL
	case models.TaskExtractActions:
		return actionsTTL
	}
	return defaultTTL
}

// Cache is the response-cache contract used by the AI router.
type Cache interface {
	// Get returns the cached result for (kind, fingerprint), or ok=false
	// on a miss. Backend errors are misses.
	Get(ctx context.Context, kind models.TaskKind, fingerprint string) (*models.TaskResult, bool)

	// Put stores a result under (kind, fingerprint) with the given TTL.
	// Backend errors are swallowed; the result still reaches the caller.
	Put(ctx context.Context, kind models.TaskKind, fingerprint string, result *models.TaskResult, ttl time.Duration)
}

// entryKey returns the Redis key for a cache entry.
func entryKey(kind models.TaskKind, fingerprint string) string {
	return fmt.Sprintf("collab:ai:%s:%s", kind, fingerprint)
}

// RedisCache implements Cache on Redis with last-write-wins semantics: SET
// is atomic per key, so a Put racing a Get yields the old or new value,
// never a torn one.
type RedisCache struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisCache creates a Redis-backed response cache.
func NewRedisCache(client *redis.Client, logger zerolog.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
	}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, kind models.TaskKind, fingerprint string) (*models.TaskResult, bool) {
	start := time.Now()
	data, err := c.client.Get(ctx, entryKey(kind, fingerprint)).Bytes()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("kind", string(kind)).Msg("cache get failed, treating as miss")
		}
		metrics.CacheMisses.WithLabelValues(string(kind)).Inc()
		return nil, false
	}

	var result models.TaskResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn().Err(err).Str("kind", string(kind)).Msg("cache entry undecodable, treating as miss")
		metrics.CacheMisses.WithLabelValues(string(kind)).Inc()
		return nil, false
	}

	result.Cached = true
	metrics.CacheHits.WithLabelValues(string(kind)).Inc()
	return &result, true
}

// Put implements Cache.
func (c *RedisCache) Put(ctx context.Context, kind models.TaskKind, fingerprint string, result *models.TaskResult, ttl time.Duration) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn().Err(err).Str("kind", string(kind)).Msg("cache put marshal failed")
		return
	}
	if ttl <= 0 {
		ttl = TTLFor(kind)
	}

	start := time.Now()
	err = c.client.Set(ctx, entryKey(kind, fingerprint), data, ttl).Err()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		c.logger.Warn().Err(err).Str("kind", string(kind)).Msg("cache put failed")
	}
}

// Noop is the cache used when no backend is configured; every Get misses.
type Noop struct{}

// Get implements Cache.
func (Noop) Get(ctx context.Context, kind models.TaskKind, fingerprint string) (*models.TaskResult, bool) {
	return nil, false
}

// Put implements Cache.
func (Noop) Put(ctx context.Context, kind models.TaskKind, fingerprint string, result *models.TaskResult, ttl time.Duration) {
}
