package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls retry behavior with full-jitter exponential backoff.
// Each sleep is drawn uniformly from [0, min(Cap, Base·2^attempt)], the
// scheme AWS recommends for declustering throttled clients.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	// Default: 3.
	MaxRetries int

	// InitialBackoff is the sleep before the first retry. Default: 1s.
	InitialBackoff time.Duration

	// Base scales the exponential term. Default: 1s.
	Base time.Duration

	// Cap bounds a single sleep. Default: 60s.
	Cap time.Duration

	// ShouldRetry overrides the default Retryable check when set.
	ShouldRetry func(err error) bool

	// OnRetry is called before each sleep with the attempt number, the
	// error and the chosen delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns the dispatcher's standard retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		Base:           time.Second,
		Cap:            60 * time.Second,
	}
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.Base <= 0 {
		cfg.Base = time.Second
	}
	if cfg.Cap <= 0 {
		cfg.Cap = 60 * time.Second
	}
	return cfg
}

// FullJitter returns a random delay in [0, min(cap, base·2^attempt)].
func FullJitter(attempt int, base, cap time.Duration) time.Duration {
	ceiling := float64(base) * math.Pow(2, float64(attempt))
	if ceiling > float64(cap) {
		ceiling = float64(cap)
	}
	return time.Duration(rand.Float64() * ceiling)
}

// DoVal executes fn, retrying retryable failures with full-jitter backoff.
// The first sleep is InitialBackoff; subsequent sleeps are drawn by
// FullJitter. Context cancellation stops retries immediately.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = Retryable
	}

	var zero T
	delay := cfg.InitialBackoff

	var lastErr error
	for attempt := 0; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if !shouldRetry(lastErr) || attempt >= cfg.MaxRetries {
			return zero, lastErr
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}

		delay = FullJitter(attempt, cfg.Base, cfg.Cap)
	}
}

// Do is DoVal without a return value.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryLogger returns an OnRetry callback that logs each backoff sleep.
func RetryLogger(provider string) func(int, error, time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		zap.L().Info("backing off",
			zap.String("provider", provider),
			zap.Int("attempt", attempt),
			zap.Duration("sleep", delay),
			zap.Error(err),
		)
	}
}
