package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(max int) RetryConfig {
	return RetryConfig{
		MaxRetries:     max,
		InitialBackoff: time.Millisecond,
		Base:           time.Millisecond,
		Cap:            5 * time.Millisecond,
	}
}

func TestDoValSucceedsAfterRetries(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), fastRetry(3), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, FailedRequest("bing", "503")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 3, calls)
}

func TestDoValStopsOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastRetry(5), func(context.Context) (int, error) {
		calls++
		return 0, QuotaExhausted("google")
	})
	assert.True(t, IsKind(err, KindQuotaExhausted))
	assert.Equal(t, 1, calls)
}

func TestDoValExhaustsRetries(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastRetry(2), func(context.Context) (int, error) {
		calls++
		return 0, RateLimitExceeded("osm")
	})
	assert.True(t, IsKind(err, KindRateLimitExceeded))
	assert.Equal(t, 3, calls)
}

func TestDoValContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, RetryConfig{MaxRetries: 10, InitialBackoff: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return FailedRequest("bing", "503")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoValCustomShouldRetry(t *testing.T) {
	sentinel := errors.New("try again")
	cfg := fastRetry(2)
	cfg.ShouldRetry = func(err error) bool { return errors.Is(err, sentinel) }

	calls := 0
	_, err := DoVal(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		return 0, sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestDoValOnRetryCallback(t *testing.T) {
	var delays []time.Duration
	cfg := fastRetry(2)
	cfg.OnRetry = func(_ int, _ error, d time.Duration) { delays = append(delays, d) }

	calls := 0
	_, _ = DoVal(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		return 0, FailedRequest("bing", "503")
	})
	assert.Len(t, delays, 2)
	assert.Equal(t, time.Millisecond, delays[0])
}

func TestFullJitterBounds(t *testing.T) {
	base := time.Second
	cap := 60 * time.Second
	for attempt := 0; attempt < 12; attempt++ {
		ceiling := base << attempt
		if ceiling > cap {
			ceiling = cap
		}
		for i := 0; i < 100; i++ {
			d := FullJitter(attempt, base, cap)
			assert.GreaterOrEqual(t, d, time.Duration(0))
			assert.Less(t, d, ceiling)
		}
	}
}
