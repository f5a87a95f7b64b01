package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config contains retry configuration
type Config struct {
	// MaxAttempts is the total number of attempts including the first one (minimum 1)
	MaxAttempts int
	// InitialInterval is the backoff before the second attempt
	InitialInterval time.Duration
	// MaxInterval caps the backoff
	MaxInterval time.Duration
	// Multiplier grows the interval after each attempt
	Multiplier float64
	// JitterFactor adds ±JitterFactor random spread to each interval (0-1)
	JitterFactor float64
	// ShouldRetry decides whether an error is worth another attempt.
	// nil retries every error not marked Permanent.
	ShouldRetry func(error) bool
}

// DefaultConfig returns a short backoff suited to transaction conflicts:
// 3 attempts, 20ms, 40ms (capped at 500ms).
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:     3,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
		Multiplier:      2.0,
		JitterFactor:    0.2,
	}
}

// Operation is the function to be retried
type Operation func(ctx context.Context) error

// PermanentError wraps an error that must not be retried
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks an error as permanent
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Result describes a finished retry loop
type Result struct {
	// Err is the final error, nil on success. On exhaustion it is the last
	// attempt's error, unwrapped from any PermanentError.
	Err error
	// Attempts is the number of times the operation ran
	Attempts int
	// Exhausted is true when every attempt failed with a retryable error
	Exhausted bool
	// TotalDuration includes backoff waits
	TotalDuration time.Duration
}

// Callback is invoked before each backoff wait
type Callback func(attempt int, err error, nextInterval time.Duration)

// Retrier runs operations with exponential backoff
type Retrier struct {
	config *Config
}

// New creates a Retrier, filling zero values from DefaultConfig
func New(config *Config) *Retrier {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	cfg := *config
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = defaults.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = defaults.MaxInterval
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = defaults.Multiplier
	}
	if cfg.JitterFactor < 0 {
		cfg.JitterFactor = 0
	}
	if cfg.JitterFactor > 1 {
		cfg.JitterFactor = 1
	}
	return &Retrier{config: &cfg}
}

// MaxAttempts returns the configured attempt budget
func (r *Retrier) MaxAttempts() int {
	return r.config.MaxAttempts
}

// Do executes op until it succeeds, fails permanently or runs out of attempts
func (r *Retrier) Do(ctx context.Context, op Operation) *Result {
	return r.DoWithCallback(ctx, op, nil)
}

// DoWithCallback is Do with a hook called before every backoff
func (r *Retrier) DoWithCallback(ctx context.Context, op Operation, callback Callback) *Result {
	start := time.Now()
	result := &Result{}

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if err := ctx.Err(); err != nil {
			if result.Err == nil {
				result.Err = err
			}
			break
		}

		err := op(ctx)
		if err == nil {
			result.Err = nil
			result.TotalDuration = time.Since(start)
			return result
		}

		var permErr *PermanentError
		if errors.As(err, &permErr) {
			result.Err = permErr.Err
			result.TotalDuration = time.Since(start)
			return result
		}
		result.Err = err

		if r.config.ShouldRetry != nil && !r.config.ShouldRetry(err) {
			result.TotalDuration = time.Since(start)
			return result
		}

		if attempt == r.config.MaxAttempts {
			result.Exhausted = true
			break
		}

		interval := r.interval(attempt)
		if callback != nil {
			callback(attempt, err, interval)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.TotalDuration = time.Since(start)
			return result
		case <-timer.C:
		}
	}

	result.TotalDuration = time.Since(start)
	return result
}

// interval returns the wait after the given (1-based) attempt
func (r *Retrier) interval(attempt int) time.Duration {
	interval := float64(r.config.InitialInterval) * math.Pow(r.config.Multiplier, float64(attempt-1))

	if r.config.JitterFactor > 0 {
		jitter := interval * r.config.JitterFactor
		interval += (rand.Float64()*2 - 1) * jitter
	}
	if interval > float64(r.config.MaxInterval) {
		interval = float64(r.config.MaxInterval)
	}
	if interval < 0 {
		interval = float64(r.config.InitialInterval)
	}
	return time.Duration(interval)
}

// Do is a convenience wrapper around New(config).Do
func Do(ctx context.Context, config *Config, op Operation) *Result {
	return New(config).Do(ctx, op)
}
