package http

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/infrastructure/persistence/redis"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITERS
// ══════════════════════════════════════════════════════════════════════════════

// Decision is the outcome of one limiter check.
type Decision = redis.Decision

// Limiter decides whether a caller may issue one more request.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)

	// Backend names the limiter in metrics and logs.
	Backend() string
}

// RedisLimiter shares the budget across every API instance.
type RedisLimiter struct {
	*redis.RateLimiter
}

// NewRedisLimiter wraps a Redis fixed window limiter.
func NewRedisLimiter(l *redis.RateLimiter) *RedisLimiter {
	return &RedisLimiter{RateLimiter: l}
}

// Backend implements Limiter.
func (*RedisLimiter) Backend() string { return "redis" }

// LocalLimiter keeps one token bucket per key in process memory.
// It is used when Redis is disabled. Idle buckets are dropped periodically.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
	limit   int
	window  time.Duration
	every   rate.Limit
	idle    time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter allows limit requests per window per key, with bursts up to
// limit. Close stops the cleanup goroutine.
func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = redis.TTLRateLimitWindow
	}
	l := &LocalLimiter{
		buckets: make(map[string]*localBucket),
		limit:   limit,
		window:  window,
		every:   rate.Every(window / time.Duration(limit)),
		idle:    2 * window,
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	go l.cleanup()

	return l
}

// Backend implements Limiter.
func (*LocalLimiter) Backend() string { return "local" }

// Allow implements Limiter.
func (l *LocalLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{limiter: rate.NewLimiter(l.every, l.limit)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	d := Decision{Limit: l.limit}
	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		d.RetryAfter = delay
		return d, nil
	}

	d.Allowed = true
	d.Remaining = int(b.limiter.TokensAt(now))
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	return d, nil
}

// Close stops the cleanup goroutine.
func (l *LocalLimiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *LocalLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *LocalLimiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idle)
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
