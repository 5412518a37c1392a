package retrylimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:  4,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, fastConfig(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), nil, fastConfig(), func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 4, calls)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, nil, fastConfig(), func() error {
		return errors.New("never retried")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestThrottleShrinksLimiter(t *testing.T) {
	lim := NewAdaptiveLimiter(10, 1, 20, 1, 0.5)
	before := lim.CurrentLimit()

	cfg := fastConfig()
	cfg.Throttled = func(error) bool { return true }

	throttled := errors.New("slow down")
	_ = Do(context.Background(), lim, cfg, func() error { return throttled })

	assert.Less(t, lim.CurrentLimit(), before)
	assert.GreaterOrEqual(t, lim.CurrentLimit(), 1.0)
}

func TestSuccessGrowsLimiterUpToMax(t *testing.T) {
	lim := NewAdaptiveLimiter(2, 1, 3, 1, 0.5)

	lim.Success()
	assert.Equal(t, 3.0, lim.CurrentLimit())

	// Capped at the maximum.
	lim.Success()
	assert.Equal(t, 3.0, lim.CurrentLimit())
}

func TestLimiterFloorsAtMinimum(t *testing.T) {
	lim := NewAdaptiveLimiter(2, 1, 20, 1, 0.1)
	lim.Throttled()
	assert.Equal(t, 1.0, lim.CurrentLimit())
}
