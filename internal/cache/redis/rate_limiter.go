package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

var slidingWindow = redis.NewScript(slidingWindowLua)

// RateLimiter counts API requests per key in a Redis sorted set. The Lua
// script trims, counts and records in one round trip so concurrent server
// instances share one quota.
type RateLimiter struct {
	rdb    *redis.Client
	prefix string
	clock  func() time.Time
}

func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{rdb: c.Underlying(), prefix: "ratelimit:", clock: time.Now}
}

// Quota is the outcome of one sliding window check.
type Quota struct {
	Allowed   bool
	Remaining int64
}

// Take consumes one slot for key if the window still has room.
func (rl *RateLimiter) Take(ctx context.Context, key string, limit int, window time.Duration) (Quota, error) {
	args := []any{rl.clock().UnixMicro(), window.Microseconds(), limit}
	res, err := slidingWindow.Run(ctx, rl.rdb, []string{rl.prefix + key}, args...).Int64Slice()
	if err != nil {
		return Quota{}, fmt.Errorf("redis: take %s: %w", key, err)
	}
	if len(res) != 2 {
		return Quota{}, fmt.Errorf("redis: take %s: script returned %d values", key, len(res))
	}
	return Quota{Allowed: res[0] == 1, Remaining: res[1]}, nil
}

// Allow satisfies domain.RateLimiter.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	q, err := rl.Take(ctx, key, limit, window)
	return q.Allowed, err
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
