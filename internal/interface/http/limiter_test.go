package http

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLimiterWindow(t *testing.T) {
	l := NewLocalLimiter(3, time.Minute)
	defer l.Close()

	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "hit %d", i)
		assert.Equal(t, 2-i, d.Remaining)
	}

	d, err := l.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 3, d.Limit)
	assert.InDelta(t, float64(20*time.Second), float64(d.RetryAfter), float64(time.Millisecond))

	d, err = l.Allow(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	clock = clock.Add(21 * time.Second)
	d, err = l.Allow(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLocalLimiterEvictsIdleBuckets(t *testing.T) {
	l := NewLocalLimiter(1, time.Minute)
	defer l.Close()

	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	_, err := l.Allow(context.Background(), "alice")
	require.NoError(t, err)

	clock = clock.Add(3 * time.Minute)
	l.evictIdle()

	l.mu.Lock()
	assert.Empty(t, l.buckets)
	l.mu.Unlock()
}

func TestLocalLimiterCloseIsIdempotent(t *testing.T) {
	l := NewLocalLimiter(1, time.Minute)
	l.Close()
	l.Close()
	assert.Equal(t, "local", l.Backend())
}
