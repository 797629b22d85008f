package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/pulse/internal/clock"
	"github.com/ogulcanaydogan/pulse/internal/ratelimit"
)

func TestMemory_Allow(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	lim := ratelimit.NewMemory(time.Minute, 1, clk)
	ctx := context.Background()

	d, err := lim.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = lim.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.InDelta(t, time.Minute.Seconds(), d.RetryAfter.Seconds(), 1)
	assert.Equal(t, 60, d.RetryAfterSeconds())

	// Other users are unaffected.
	d, err = lim.Allow(ctx, "user-2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	clk.Advance(30 * time.Second)
	d, err = lim.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.InDelta(t, 30, d.RetryAfter.Seconds(), 1)

	clk.Advance(30 * time.Second)
	d, err = lim.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemory_Burst(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	lim := ratelimit.NewMemory(time.Minute, 3, clk)

	for i := 0; i < 3; i++ {
		d, err := lim.Allow(context.Background(), "k")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "attempt %d", i)
	}
	d, err := lim.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestMemory_EmptyKey(t *testing.T) {
	lim := ratelimit.NewMemory(time.Minute, 1, nil)
	_, err := lim.Allow(context.Background(), "")
	assert.Error(t, err)
}

func TestDecision_RetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, ratelimit.Decision{RetryAfter: 10 * time.Millisecond}.RetryAfterSeconds())
	assert.Equal(t, 3, ratelimit.Decision{RetryAfter: 2100 * time.Millisecond}.RetryAfterSeconds())
	assert.Equal(t, 1, ratelimit.Decision{}.RetryAfterSeconds())
}
