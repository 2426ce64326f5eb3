package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// FIXED WINDOW RATE LIMITER
// Counts requests per key in Redis, so every API instance shares the same
// budget. The counter and its expiry are set atomically by a script.
// ══════════════════════════════════════════════════════════════════════════════

// incrWindow returns {count, ttl_ms}. The expiry is set by the first hit only.
var incrWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {n, ttl}
`)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter is a per-key fixed window counter.
type RateLimiter struct {
	client redis.Scripter
	scope  string
	limit  int
	window time.Duration
}

// NewRateLimiter creates a limiter allowing limit hits per window per key.
// scope namespaces the keys, e.g. "compute".
func NewRateLimiter(client redis.Scripter, scope string, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = TTLRateLimitWindow
	}
	return &RateLimiter{client: client, scope: scope, limit: limit, window: window}
}

// Key returns the Redis key counting hits of id.
func (l *RateLimiter) Key(id string) string {
	return PrefixRateLimit + l.scope + ":" + id
}

// Allow records one hit for id and reports whether it fits the window.
func (l *RateLimiter) Allow(ctx context.Context, id string) (Decision, error) {
	res, err := incrWindow.Run(ctx, l.client, []string{l.Key(id)}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis: rate limit: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("redis: rate limit: unexpected reply %v", res)
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	d := Decision{Limit: l.limit, Allowed: count <= l.limit}
	if d.Allowed {
		d.Remaining = l.limit - count
		return d, nil
	}
	if ttl <= 0 {
		ttl = l.window
	}
	d.RetryAfter = ttl
	return d, nil
}
