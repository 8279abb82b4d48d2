package services

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls retry behaviour of RetryDo.
type RetryConfig struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

var DefaultRetryConfig = RetryConfig{
	MaxRetries:  2,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     5 * time.Second,
	Multiplier:  2.0,
}

// RetryDo calls fn up to MaxRetries+1 times with exponential backoff. Only
// errors accepted by retryable are retried; anything else, or a cancelled
// context, returns at once.
func RetryDo[T any](ctx context.Context, rc RetryConfig, log *zap.Logger, retryable func(error) bool, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	multiplier := rc.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	for attempt := 0; attempt <= rc.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, errors.Join(lastErr, err)
			}
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(err) {
			return zero, err
		}

		if attempt < rc.MaxRetries {
			wait := time.Duration(float64(rc.InitialWait) * math.Pow(multiplier, float64(attempt)))
			if rc.MaxWait > 0 && wait > rc.MaxWait {
				wait = rc.MaxWait
			}
			if log != nil {
				log.Debug("retrying",
					zap.Int("attempt", attempt+1),
					zap.Duration("wait", wait),
					zap.Error(err),
				)
			}
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return zero, errors.Join(lastErr, ctx.Err())
			}
		}
	}
	return zero, lastErr
}
