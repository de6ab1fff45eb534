package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/metrics"
)

const (
	topicPattern = "collab:room:*"
	seqTTL       = 24 * time.Hour
)

// roomTopic returns the pub/sub channel for a room.
func roomTopic(roomID string) string {
	return fmt.Sprintf("collab:room:%s", roomID)
}

// roomSeqKey returns the key holding a room's sequence counter.
func roomSeqKey(roomID string) string {
	return fmt.Sprintf("collab:seq:%s", roomID)
}

// RedisBus implements Bus on Redis Pub/Sub, with sequence allocation via
// INCR so that all instances share one per-room counter.
type RedisBus struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisBus creates a Redis-backed bus.
func NewRedisBus(ctx context.Context, redisURL string, logger zerolog.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisBus{
		client: client,
		logger: logger.With().Str("component", "bus").Logger(),
	}, nil
}

// Client exposes the underlying Redis client for components sharing the
// connection (response cache, health checks).
func (b *RedisBus) Client() *redis.Client {
	return b.client
}

// Close closes the Redis connection.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

// Ping checks the Redis connection.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Publish sends an envelope to the room's topic.
func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	start := time.Now()
	err = b.client.Publish(ctx, roomTopic(env.Event.RoomID), data).Err()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// NextSeq allocates the next sequence number for a room via INCR.
func (b *RedisBus) NextSeq(ctx context.Context, roomID string) (uint64, error) {
	key := roomSeqKey(roomID)

	pipe := b.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, seqTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return uint64(incr.Val()), nil
}

// Subscribe consumes remote envelopes on all room topics until ctx ends.
// Decode failures are logged and skipped; the subscription itself only ends
// with the context.
func (b *RedisBus) Subscribe(ctx context.Context, h Handler) error {
	sub := b.client.PSubscribe(ctx, topicPattern)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return ErrUnavailable
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn().Err(err).Str("topic", msg.Channel).Msg("dropping undecodable bus message")
				continue
			}
			h(env)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
