package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/social-publisher/internal/resilience"
)

func fastRetryConfig(maxRetries int) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	failures := 2
	calls := 0
	op := func(ctx context.Context) (string, error) {
		calls++
		if calls <= failures {
			return "", errors.New("connection refused")
		}
		return "published", nil
	}

	value, attempt, err := resilience.Retry(context.Background(), fastRetryConfig(3), op)
	require.NoError(t, err)
	assert.Equal(t, "published", value)
	assert.Equal(t, failures+1, attempt.AttemptsUsed)
}

func TestRetry_ExhaustsBudget(t *testing.T) {
	calls := 0
	op := func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("i/o timeout")
	}

	_, attempt, err := resilience.Retry(context.Background(), fastRetryConfig(2), op)
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrMaxAttemptsExceeded)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, attempt.AttemptsUsed)
	assert.Contains(t, err.Error(), "i/o timeout")
}

func TestRetry_NonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	op := func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("unauthorized")
	}

	_, attempt, err := resilience.Retry(context.Background(), fastRetryConfig(5), op)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempt.AttemptsUsed)
}

func TestRetry_CustomPredicate(t *testing.T) {
	cfg := fastRetryConfig(3)
	cfg.ShouldRetry = func(err error) bool { return errors.Is(err, errSpecial) }

	calls := 0
	op := func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errSpecial
		}
		return 42, nil
	}

	value, _, err := resilience.Retry(context.Background(), cfg, op)
	require.NoError(t, err)
	assert.Equal(t, 42, value)
	assert.Equal(t, 3, calls)
}

var errSpecial = errors.New("special")

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	op := func(ctx context.Context) (int, error) {
		cancel()
		return 0, errors.New("connection reset")
	}

	_, _, err := resilience.Retry(ctx, fastRetryConfig(5), op)
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrContextCancelled)
}

func TestFallback_PrimarySucceeds(t *testing.T) {
	result, err := resilience.Fallback(context.Background(),
		func(ctx context.Context) (string, error) { return "a", nil },
		func(ctx context.Context) (string, error) { return "b", nil },
	)
	require.NoError(t, err)
	assert.Equal(t, "a", result.Value)
	assert.Equal(t, "primary", result.Source)
	assert.NoError(t, result.PrimaryErr)
}

func TestFallback_FallbackSucceeds(t *testing.T) {
	primaryErr := errors.New("primary down")
	result, err := resilience.Fallback(context.Background(),
		func(ctx context.Context) (string, error) { return "", primaryErr },
		func(ctx context.Context) (string, error) { return "", errors.New("first fallback down") },
		func(ctx context.Context) (string, error) { return "c", nil },
	)
	require.NoError(t, err)
	assert.Equal(t, "c", result.Value)
	assert.Equal(t, "fallback_2", result.Source)
	assert.ErrorIs(t, result.PrimaryErr, primaryErr)
}

func TestFallback_AllFail(t *testing.T) {
	_, err := resilience.Fallback(context.Background(),
		func(ctx context.Context) (string, error) { return "", errors.New("one") },
		func(ctx context.Context) (string, error) { return "", errors.New("two") },
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "one")
	assert.Contains(t, err.Error(), "two")
}
