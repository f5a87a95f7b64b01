package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConflict = errors.New("conflict")

func fastConfig(attempts int) *Config {
	return &Config{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestNew_Defaults(t *testing.T) {
	r := New(&Config{})

	assert.Equal(t, 1, r.config.MaxAttempts)
	assert.Equal(t, 20*time.Millisecond, r.config.InitialInterval)
	assert.Equal(t, 500*time.Millisecond, r.config.MaxInterval)
	assert.Equal(t, 2.0, r.config.Multiplier)

	assert.Equal(t, 3, New(nil).MaxAttempts())
}

func TestRetrier_Do(t *testing.T) {
	t.Run("Success first attempt", func(t *testing.T) {
		calls := 0
		result := New(fastConfig(3)).Do(context.Background(), func(ctx context.Context) error {
			calls++
			return nil
		})

		require.NoError(t, result.Err)
		assert.Equal(t, 1, result.Attempts)
		assert.Equal(t, 1, calls)
		assert.False(t, result.Exhausted)
	})

	t.Run("Succeeds after retries", func(t *testing.T) {
		calls := 0
		result := New(fastConfig(3)).Do(context.Background(), func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errConflict
			}
			return nil
		})

		require.NoError(t, result.Err)
		assert.Equal(t, 3, result.Attempts)
	})

	t.Run("Exhaustion returns last error", func(t *testing.T) {
		calls := 0
		result := New(fastConfig(2)).Do(context.Background(), func(ctx context.Context) error {
			calls++
			return errConflict
		})

		assert.ErrorIs(t, result.Err, errConflict)
		assert.True(t, result.Exhausted)
		assert.Equal(t, 2, calls)
	})

	t.Run("Permanent error stops immediately", func(t *testing.T) {
		calls := 0
		result := New(fastConfig(5)).Do(context.Background(), func(ctx context.Context) error {
			calls++
			return Permanent(errConflict)
		})

		assert.Equal(t, errConflict, result.Err)
		assert.Equal(t, 1, calls)
		assert.False(t, result.Exhausted)
	})

	t.Run("ShouldRetry filters errors", func(t *testing.T) {
		other := errors.New("validation")
		cfg := fastConfig(5)
		cfg.ShouldRetry = func(err error) bool { return errors.Is(err, errConflict) }

		calls := 0
		result := New(cfg).Do(context.Background(), func(ctx context.Context) error {
			calls++
			return other
		})

		assert.Equal(t, other, result.Err)
		assert.Equal(t, 1, calls)
	})

	t.Run("Cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		result := New(fastConfig(3)).Do(ctx, func(ctx context.Context) error {
			calls++
			return nil
		})

		assert.ErrorIs(t, result.Err, context.Canceled)
		assert.Equal(t, 0, calls)
	})
}

func TestRetrier_Callback(t *testing.T) {
	var attempts []int
	cb := func(attempt int, err error, next time.Duration) {
		attempts = append(attempts, attempt)
		assert.ErrorIs(t, err, errConflict)
		assert.LessOrEqual(t, next, 5*time.Millisecond)
	}

	result := New(fastConfig(3)).DoWithCallback(context.Background(), func(ctx context.Context) error {
		return errConflict
	}, cb)

	assert.True(t, result.Exhausted)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRetrier_IntervalGrowth(t *testing.T) {
	r := New(&Config{
		MaxAttempts:     5,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     35 * time.Millisecond,
		Multiplier:      2.0,
	})

	assert.Equal(t, 10*time.Millisecond, r.interval(1))
	assert.Equal(t, 20*time.Millisecond, r.interval(2))
	assert.Equal(t, 35*time.Millisecond, r.interval(3))
}
