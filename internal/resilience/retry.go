// Package resilience provides retry with backoff, per-target circuit
// breaking, fallback chaining and sensitive-data redaction for all outbound
// calls made by the publisher.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/jonesrussell/social-publisher/internal/classify"
)

var (
	// ErrMaxAttemptsExceeded is returned when the retry budget is exhausted.
	ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")
	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled during retry")
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt, so an
	// operation runs at most MaxRetries+1 times.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the exponential backoff delay.
	MaxDelay time.Duration
	// ShouldRetry decides whether an error is worth retrying. Defaults to
	// classify.IsRetryable.
	ShouldRetry func(error) bool
}

func (c *RetryConfig) setDefaults() {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 200 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = classify.IsRetryable
	}
}

// Attempt records the outcome of a retried operation.
type Attempt struct {
	// AttemptsUsed is the number of times the operation actually ran.
	AttemptsUsed int
}

// Retry executes op until it succeeds, the retry predicate rejects the error,
// or the budget is exhausted. The delay between attempts is
// base * 2^attempt plus random jitter, so concurrent publishers hitting the
// same destination do not retry in lockstep.
func Retry[T any](ctx context.Context, cfg RetryConfig, op func(ctx context.Context) (T, error)) (T, Attempt, error) {
	cfg.setDefaults()

	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, Attempt{AttemptsUsed: attempt}, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}

		result, err := op(ctx)
		if err == nil {
			return result, Attempt{AttemptsUsed: attempt + 1}, nil
		}
		lastErr = err

		if !cfg.ShouldRetry(err) {
			return zero, Attempt{AttemptsUsed: attempt + 1}, err
		}

		if attempt < cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return zero, Attempt{AttemptsUsed: attempt + 1}, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
			case <-time.After(backoffDelay(cfg, attempt)):
			}
		}
	}

	return zero, Attempt{AttemptsUsed: cfg.MaxRetries + 1},
		fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, cfg.MaxRetries+1, lastErr)
}

// backoffDelay computes base * 2^attempt with up to 25% random jitter,
// capped at MaxDelay.
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(2, float64(attempt)))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	delay += jitter
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}
