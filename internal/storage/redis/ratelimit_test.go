package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_SlidingWindow(t *testing.T) {
	mr, client := setupTestRedis(t)
	l := NewLimiter(client, "ratelimit:", 2, time.Minute)
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	d, err := l.Allow(ctx, "10.0.0.1", start)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Limit)
	assert.Equal(t, 1, d.Remaining)
	assert.True(t, mr.Exists("ratelimit:10.0.0.1"))

	d, err = l.Allow(ctx, "10.0.0.1", start.Add(10*time.Second))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, err = l.Allow(ctx, "10.0.0.1", start.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.True(t, start.Add(time.Minute).Equal(d.ResetAt), "reset when the oldest request leaves the window")

	// Other keys are independent.
	d, err = l.Allow(ctx, "10.0.0.2", start.Add(30*time.Second))
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// The first request has left the window, the second has not.
	d, err = l.Allow(ctx, "10.0.0.1", start.Add(61*time.Second))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, err = l.Allow(ctx, "10.0.0.1", start.Add(62*time.Second))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestLimiter_Unavailable(t *testing.T) {
	mr, client := setupTestRedis(t)
	l := NewLimiter(client, "", 1, time.Minute)
	mr.Close()

	_, err := l.Allow(context.Background(), "k", time.Now())
	assert.Error(t, err)
}
