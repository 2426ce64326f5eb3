// Package retry retries the startup pings of Postgres and Redis with
// exponential backoff and jitter. Containers often start before their
// dependencies accept connections.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Notify is called before each retry with the failed attempt number.
type Notify func(attempt int, err error, delay time.Duration)

// Backoff describes a bounded exponential retry policy.
type Backoff struct {
	// Attempts is the total number of tries, the first included.
	Attempts int

	Initial time.Duration
	Max     time.Duration
	Factor  float64

	// Jitter is the fraction of each delay added or removed at random.
	Jitter float64

	Notify Notify
}

// Postgres is the policy for the initial database ping.
func Postgres(attempts int, notify Notify) Backoff {
	return Backoff{
		Attempts: attempts,
		Initial:  250 * time.Millisecond,
		Max:      5 * time.Second,
		Factor:   2,
		Jitter:   0.1,
		Notify:   notify,
	}
}

// Redis is the policy for the initial Redis ping.
func Redis(notify Notify) Backoff {
	return Backoff{
		Attempts: 3,
		Initial:  100 * time.Millisecond,
		Max:      2 * time.Second,
		Factor:   2,
		Jitter:   0.1,
		Notify:   notify,
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls op until it succeeds, returns a Permanent error, the attempts run
// out or ctx is done. It returns the last error op produced.
func (b Backoff) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := max(b.Attempts, 1)

	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		last = err
		if attempt >= attempts || errors.Is(err, context.Canceled) {
			return last
		}

		delay := b.Delay(attempt)
		if b.Notify != nil {
			b.Notify(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last
		case <-timer.C:
		}
	}
}

// Delay returns the wait after the given failed attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(b.Initial) * math.Pow(factor, float64(attempt-1))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		d += d * b.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(max(d, 0))
}
