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

func testBreakerConfig(timeout time.Duration) resilience.BreakerConfig {
	return resilience.BreakerConfig{
		FailureThreshold: 3,
		Timeout:          timeout,
	}
}

func failing(ctx context.Context) error { return errors.New("destination down") }
func succeeding(ctx context.Context) error { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := resilience.NewBreaker(testBreakerConfig(time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.Equal(t, resilience.StateClosed, b.State())
		require.Error(t, b.Execute(ctx, failing))
	}
	assert.Equal(t, resilience.StateOpen, b.State())

	// The wrapped operation must not run while open.
	invoked := false
	err := b.Execute(ctx, func(ctx context.Context) error {
		invoked = true
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrBreakerOpen)
	assert.False(t, invoked)
}

func TestBreaker_HalfOpenProbeRecovers(t *testing.T) {
	b := resilience.NewBreaker(testBreakerConfig(10 * time.Millisecond))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, b.Execute(ctx, failing))
	}
	require.Equal(t, resilience.StateOpen, b.State())

	time.Sleep(15 * time.Millisecond)

	// One successful probe closes the circuit and resets the counter.
	require.NoError(t, b.Execute(ctx, succeeding))
	assert.Equal(t, resilience.StateClosed, b.State())
	assert.Equal(t, 0, b.FailureCount())
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	b := resilience.NewBreaker(testBreakerConfig(10 * time.Millisecond))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, b.Execute(ctx, failing))
	}
	time.Sleep(15 * time.Millisecond)

	require.Error(t, b.Execute(ctx, failing))
	assert.Equal(t, resilience.StateOpen, b.State())

	// The open timer restarted, so the next call still fails fast.
	err := b.Execute(ctx, succeeding)
	assert.ErrorIs(t, err, resilience.ErrBreakerOpen)
}

func TestBreaker_HalfOpenAdmitsOneProbe(t *testing.T) {
	b := resilience.NewBreaker(testBreakerConfig(10 * time.Millisecond))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, b.Execute(ctx, failing))
	}
	time.Sleep(15 * time.Millisecond)

	// A call arriving while the probe is in flight must fail fast instead
	// of becoming a second probe.
	var concurrentErr error
	require.NoError(t, b.Execute(ctx, func(ctx context.Context) error {
		concurrentErr = b.Execute(ctx, succeeding)
		return nil
	}))
	assert.ErrorIs(t, concurrentErr, resilience.ErrBreakerOpen)
	assert.Equal(t, resilience.StateClosed, b.State())

	// After the probe reports back the circuit admits calls again.
	require.NoError(t, b.Execute(ctx, succeeding))
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := resilience.NewBreaker(testBreakerConfig(time.Minute))
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, failing))
	require.Error(t, b.Execute(ctx, failing))
	require.NoError(t, b.Execute(ctx, succeeding))
	require.Error(t, b.Execute(ctx, failing))
	require.Error(t, b.Execute(ctx, failing))

	// Two failures after a success do not reach the threshold of three.
	assert.Equal(t, resilience.StateClosed, b.State())
}

func TestBreakerRegistry_SharedPerKey(t *testing.T) {
	registry := resilience.NewBreakerRegistry(testBreakerConfig(time.Minute))

	telegram := registry.Get("telegram")
	assert.Same(t, telegram, registry.Get("telegram"))
	assert.NotSame(t, telegram, registry.Get("vk"))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.Error(t, registry.Get("telegram").Execute(ctx, failing))
	}

	states := registry.States()
	assert.Equal(t, resilience.StateOpen, states["telegram"])
	assert.Equal(t, resilience.StateClosed, states["vk"])
}
