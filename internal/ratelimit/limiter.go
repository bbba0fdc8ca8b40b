// Package ratelimit throttles login attempts per client with fixed windows kept in Redis.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long the client should wait; set when Allowed is false.
	RetryAfter time.Duration
	// Reset is the time left in the current window.
	Reset time.Duration
}

// Counter is the storage behind the limiter.
type Counter interface {
	// Incr increments key and returns the new value; window is applied when the key is new.
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	// Blocked reports whether key is blocked and for how long.
	Blocked(ctx context.Context, key string) (bool, time.Duration, error)
	// Block marks key as blocked for d.
	Block(ctx context.Context, key string, d time.Duration) error
}

// Limiter allows up to Limit hits per Window for a key; exceeding it blocks the key for Block.
type Limiter struct {
	counter Counter
	prefix  string
	limit   int
	window  time.Duration
	block   time.Duration
}

// New returns a Limiter. limit <= 0 defaults to 10, window <= 0 to one minute, block <= 0 to window.
func New(counter Counter, prefix string, limit int, window, block time.Duration) *Limiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	if block <= 0 {
		block = window
	}
	return &Limiter{counter: counter, prefix: prefix, limit: limit, window: window, block: block}
}

// Allow records a hit for clientID. Storage errors are returned with an allowing decision
// so callers can fail open.
func (l *Limiter) Allow(ctx context.Context, clientID string) (Decision, error) {
	key := l.prefix + ":" + clientID
	blockKey := key + ":blocked"
	open := Decision{Allowed: true, Limit: l.limit, Remaining: l.limit}

	blocked, ttl, err := l.counter.Blocked(ctx, blockKey)
	if err != nil {
		return open, err
	}
	if blocked {
		return Decision{Limit: l.limit, RetryAfter: ttl}, nil
	}

	count, reset, err := l.counter.Incr(ctx, key, l.window)
	if err != nil {
		return open, err
	}
	if count > int64(l.limit) {
		if err := l.counter.Block(ctx, blockKey, l.block); err != nil {
			return open, err
		}
		return Decision{Limit: l.limit, RetryAfter: l.block}, nil
	}
	return Decision{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - int(count),
		Reset:     reset,
	}, nil
}

// RedisCounter implements Counter with go-redis.
type RedisCounter struct {
	rdb redis.Cmdable
}

// NewRedisCounter returns a Counter backed by rdb.
func NewRedisCounter(rdb redis.Cmdable) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return incr.Val(), ttl.Val(), nil
}

func (c *RedisCounter) Blocked(ctx context.Context, key string) (bool, time.Duration, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	if v != "1" {
		return false, 0, nil
	}
	ttl, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return true, 0, err
	}
	return true, ttl, nil
}

func (c *RedisCounter) Block(ctx context.Context, key string, d time.Duration) error {
	return c.rdb.Set(ctx, key, "1", d).Err()
}
