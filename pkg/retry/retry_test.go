package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_Success(t *testing.T) {
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_AllAttemptsFail(t *testing.T) {
	cfg := Config{MaxAttempts: 2, InitialDelay: 5 * time.Millisecond, MaxDelay: 10 * time.Millisecond}
	sentinel := errors.New("still down")

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		return sentinel
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, 2, attempts)
}

func TestRetry_SingleAttemptReturnsErrorUnwrapped(t *testing.T) {
	sentinel := errors.New("boom")
	err := Do(context.Background(), Discovery(1), func() error { return sentinel })
	assert.Same(t, sentinel, err)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), DefaultConfig(), func() error {
		attempts++
		return NonRetryable(errors.New("bad reply"))
	})

	assert.True(t, IsNonRetryable(err))
	assert.Equal(t, 1, attempts)
	assert.Nil(t, NonRetryable(nil))
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: time.Second}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Do(ctx, cfg, func() error { return errors.New("timeout") })

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRetry_InvalidConfig(t *testing.T) {
	fn := func() error { return nil }
	assert.Error(t, Do(context.Background(), Config{InitialDelay: -1}, fn))
	assert.Error(t, Do(context.Background(), Config{MaxDelay: -1}, fn))
	assert.Error(t, Do(context.Background(), Config{Multiplier: -1}, fn))
	assert.Error(t, Do(context.Background(), Config{InitialDelay: time.Second, MaxDelay: time.Millisecond}, fn))
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	got, err := DoWithResult(context.Background(), Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}, func() (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errors.New("network")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestDiscovery(t *testing.T) {
	assert.Equal(t, 1, Discovery(0).MaxAttempts)
	assert.Equal(t, 3, Discovery(3).MaxAttempts)
}

func TestDelay_GrowsAndCaps(t *testing.T) {
	cfg, err := Config{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 3}.normalize()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Millisecond, cfg.delay(1))
	assert.Equal(t, 30*time.Millisecond, cfg.delay(2))
	assert.Equal(t, 50*time.Millisecond, cfg.delay(3))
	assert.Equal(t, 50*time.Millisecond, cfg.delay(10))

	cfg.AddJitter = true
	for i := 0; i < 20; i++ {
		d := cfg.delay(1)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 13*time.Millisecond)
	}
}

func TestNormalize_Defaults(t *testing.T) {
	cfg, err := Config{Multiplier: 5000}.normalize()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.MaxAttempts)
	assert.Equal(t, defaultInitialDelay, cfg.InitialDelay)
	assert.Equal(t, defaultMaxDelay, cfg.MaxDelay)
	assert.Equal(t, float64(maxMultiplier), cfg.Multiplier)
}
