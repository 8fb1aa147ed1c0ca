package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// slidingWindowLua counts request weight in a sorted set over the trailing
// window. KEYS[1] is the set; ARGV is now (µs), window (µs), limit and the
// request weight. It returns {allowed, used}.
const slidingWindowLua = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local weight = tonumber(ARGV[4])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local used = 0
for _, member in ipairs(redis.call('ZRANGE', key, 0, -1)) do
    used = used + tonumber(string.match(member, '^(%d+):'))
end
if used + weight > limit then
    return {0, used}
end
redis.call('ZADD', key, now, weight .. ':' .. now .. ':' .. redis.call('ZCARD', key))
redis.call('PEXPIRE', key, math.ceil(window / 1000))
return {1, used + weight}
`

// waitPollInterval is how often Wait retries a denied request.
const waitPollInterval = 50 * time.Millisecond

// RateLimiter implements domain.RateLimiter with a weighted sliding window
// shared by every process using the same key, so the logger and trader
// together stay under the exchange's request weight limit.
type RateLimiter struct {
	rdb           *redis.Client
	ns            namespace
	slidingWindow *redis.Script
	limit         int
	window        time.Duration
}

// NewRateLimiter creates a RateLimiter allowing limit weight per window.
func NewRateLimiter(c *Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		rdb:           c.rdb,
		ns:            c.ns,
		slidingWindow: redis.NewScript(slidingWindowLua),
		limit:         limit,
		window:        window,
	}
}

func (rl *RateLimiter) rateLimitKey(key string) string {
	return rl.ns.key("ratelimit", key)
}

// Allow reports whether a request of the given weight fits the window,
// counting it when it does.
func (rl *RateLimiter) Allow(ctx context.Context, key string, weight int) (bool, error) {
	now := time.Now().UnixMicro()

	result, err := rl.slidingWindow.Run(
		ctx,
		rl.rdb,
		[]string{rl.rateLimitKey(key)},
		now,
		rl.window.Microseconds(),
		rl.limit,
		weight,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}

	if len(result) < 2 {
		return false, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(result))
	}

	return result[0] == 1, nil
}

// Wait blocks until a request of the given weight is allowed, returning an
// error if the context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context, key string, weight int) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		default:
		}

		allowed, err := rl.Allow(ctx, key, weight)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		// Sleep before retrying, but honour the context.
		timer := time.NewTimer(waitPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
