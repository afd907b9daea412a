package resilience

import (
	"context"
	"errors"
	"fmt"
)

// FallbackResult is the outcome of a fallback chain.
type FallbackResult[T any] struct {
	Value T

	// Source identifies which operation produced the value: "primary" or
	// "fallback_N" (1-based).
	Source string

	// PrimaryErr holds the primary operation's error when a fallback
	// succeeded, for diagnostics.
	PrimaryErr error
}

// Fallback runs primary and, on failure, each fallback in order, returning
// the first success. When everything fails the errors are aggregated so no
// failure is lost.
func Fallback[T any](ctx context.Context, primary func(ctx context.Context) (T, error), fallbacks ...func(ctx context.Context) (T, error)) (FallbackResult[T], error) {
	value, primaryErr := primary(ctx)
	if primaryErr == nil {
		return FallbackResult[T]{Value: value, Source: "primary"}, nil
	}

	errs := []error{fmt.Errorf("primary: %w", primaryErr)}
	for i, fb := range fallbacks {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		value, err := fb(ctx)
		if err == nil {
			return FallbackResult[T]{
				Value:      value,
				Source:     fmt.Sprintf("fallback_%d", i+1),
				PrimaryErr: primaryErr,
			}, nil
		}
		errs = append(errs, fmt.Errorf("fallback_%d: %w", i+1, err))
	}

	return FallbackResult[T]{PrimaryErr: primaryErr}, errors.Join(errs...)
}
