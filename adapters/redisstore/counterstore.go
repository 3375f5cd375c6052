// Package redisstore provides a Redis-backed implementation of
// ports.CounterStore for multi-instance deployments.
//
// The in-memory store enforces its limit per process instance, so running
// k instances yields an effective global limit of k*N. This store keeps
// the counters in a shared Redis, where INCR is atomic and the key TTL is
// the window, giving a single global limit across all instances.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ingestgate/ingestgate/domain/ratelimit"
	"github.com/ingestgate/ingestgate/ports"
)

const keyPrefix = "ingestgate:rl:"

// CounterStore keeps fixed-window counters in Redis.
type CounterStore struct {
	client *redis.Client
}

// Config configures the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewCounterStore connects to Redis and verifies connectivity.
func NewCounterStore(ctx context.Context, cfg Config) (*CounterStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &CounterStore{client: client}, nil
}

// Check atomically increments the window counter for a key and evaluates
// the limit.
//
// The key expires when the window ends, so counting rejected requests is
// harmless: the over-limit count is discarded with the key and never
// bleeds into the next window. Window start is anchored at the first
// request via EXPIRE NX, which only sets the TTL when the key has none.
// Windows therefore have second granularity; limit windows are configured
// in whole seconds.
func (s *CounterStore) Check(ctx context.Context, key string, cfg ratelimit.Config, now time.Time) (ratelimit.CheckResult, error) {
	rkey := keyPrefix + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, rkey)
	pipe.ExpireNX(ctx, rkey, cfg.Window)
	pttl := pipe.PTTL(ctx, rkey)
	if _, err := pipe.Exec(ctx); err != nil {
		return ratelimit.CheckResult{}, fmt.Errorf("redis check: %w", err)
	}

	return evaluate(incr.Val(), pttl.Val(), cfg, now), nil
}

// evaluate turns the raw INCR count and remaining TTL into a check result.
// Pure so the limit arithmetic is testable without a live Redis.
func evaluate(count int64, ttl time.Duration, cfg ratelimit.Config, now time.Time) ratelimit.CheckResult {
	if ttl < 0 {
		// PTTL reports -1 for keys without expiry; treat as a full window.
		ttl = cfg.Window
	}
	resetAt := now.Add(ttl)

	if count > int64(cfg.Limit) {
		return ratelimit.CheckResult{
			Allowed:   false,
			Limit:     cfg.Limit,
			Remaining: 0,
			ResetAt:   resetAt,
			Reason:    ratelimit.ReasonLimitExceeded,
		}
	}

	remaining := cfg.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return ratelimit.CheckResult{
		Allowed:   true,
		Limit:     cfg.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// Reset clears the counter for a key (for tests and operations).
func (s *CounterStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, keyPrefix+key).Err()
}

// Ping checks Redis connectivity.
func (s *CounterStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection. Counter keys reap themselves via
// TTL, so there is no sweeper to stop.
func (s *CounterStore) Close() error {
	return s.client.Close()
}

// Ensure interface compliance.
var _ ports.CounterStore = (*CounterStore)(nil)
