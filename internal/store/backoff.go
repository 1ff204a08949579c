package store

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

const (
	throttleRetries = 10
	backoffCap      = 60 * time.Second
)

// backoffBase is variable so tests can shrink the sleep window.
var backoffBase = time.Second

// isThrottle reports whether the error is DynamoDB write throughput
// exceeding.
func isThrottle(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "ProvisionedThroughputExceededException" || code == "ThrottlingException"
	}
	return false
}

// throttleSleep pauses before re-submitting partially rejected work: the base
// sleep first, then full jitter from the growing window.
func throttleSleep(ctx context.Context, attempt int) error {
	sleep := backoffBase
	if attempt > 0 {
		ceiling := backoffBase << attempt
		if ceiling > backoffCap {
			ceiling = backoffCap
		}
		sleep = time.Duration(rand.Float64() * float64(ceiling))
	}

	timer := time.NewTimer(sleep)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// withThrottleRetry runs fn, sleeping with full jitter on throttling. The
// first sleep is one second; later sleeps are drawn from the growing window.
func withThrottleRetry(ctx context.Context, maxRetries int, fn func(ctx context.Context) error) error {
	backoff := backoffBase
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || !isThrottle(err) {
			return err
		}
		if attempt >= maxRetries {
			return err
		}

		zap.L().Info("dynamodb throttled",
			zap.Int("attempt", attempt+1),
			zap.Duration("sleep", backoff),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}

		ceiling := backoffBase << attempt
		if ceiling > backoffCap {
			ceiling = backoffCap
		}
		backoff = time.Duration(rand.Float64() * float64(ceiling))
	}
}
