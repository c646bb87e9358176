package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReuseTracker records refresh-token reuse incidents for security monitoring.
type ReuseTracker interface {
	RecordReuse(ctx context.Context, userID string) (int64, error)
}

type nopReuseTracker struct{}

func (nopReuseTracker) RecordReuse(context.Context, string) (int64, error) { return 0, nil }

const (
	defaultReuseKeyPrefix = "videobox:reuse:"
	defaultReuseWindow    = 24 * time.Hour
)

// RedisReuseTrackerConfig configures RedisReuseTracker.
type RedisReuseTrackerConfig struct {
	Client    redis.UniversalClient
	KeyPrefix string
	Window    time.Duration
}

// RedisReuseTracker counts incidents per user within an expiring window.
type RedisReuseTracker struct {
	client redis.UniversalClient
	prefix string
	window time.Duration
}

func NewRedisReuseTracker(cfg RedisReuseTrackerConfig) (*RedisReuseTracker, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultReuseKeyPrefix
	}
	window := cfg.Window
	if window <= 0 {
		window = defaultReuseWindow
	}
	return &RedisReuseTracker{client: cfg.Client, prefix: prefix, window: window}, nil
}

// RecordReuse increments the counter for userID and returns the new total.
func (t *RedisReuseTracker) RecordReuse(ctx context.Context, userID string) (int64, error) {
	key := t.prefix + userID
	pipe := t.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, t.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("record reuse: %w", err)
	}
	return incr.Val(), nil
}

// Count returns the incidents recorded for userID in the current window.
func (t *RedisReuseTracker) Count(ctx context.Context, userID string) (int64, error) {
	count, err := t.client.Get(ctx, t.prefix+userID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read reuse count: %w", err)
	}
	return count, nil
}

// Ping verifies the Redis connection.
func (t *RedisReuseTracker) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}
