package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/optionbot/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowSrc string

// waitRetryEvery is how often Wait re-checks the limit.
const waitRetryEvery = 50 * time.Millisecond

// RateLimiter implements domain.RateLimiter with a sliding window over a
// Redis sorted set, evaluated atomically by a Lua script. The broker client
// runs order submissions through it.
type RateLimiter struct {
	rdb    *redis.Client
	script *redis.Script
}

// NewRateLimiter loads the window script onto the shared client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:    c.Underlying(),
		script: redis.NewScript(slidingWindowSrc),
	}
}

// Allow checks whether a request under key fits the sliding window. An
// allowed request is counted; a denied one is not.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	reply, err := rl.script.Run(
		ctx,
		rl.rdb,
		[]string{"ratelimit:" + key},
		time.Now().UnixMicro(),
		window.Microseconds(),
		limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	if len(reply) < 2 {
		return false, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(reply))
	}

	return reply[0] == 1, nil
}

// Wait blocks until one request under key passes a 1 per second window,
// polling at a fixed interval. Callers that need other limits should loop
// over Allow themselves.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	poll := time.NewTicker(waitRetryEvery)
	defer poll.Stop()

	for {
		allowed, err := rl.Allow(ctx, key, 1, time.Second)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-poll.C:
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
