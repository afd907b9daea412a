package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBreakerOpen is returned when the circuit breaker rejects a call without
// attempting it.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerState represents the state of a circuit breaker.
type BreakerState int

const (
	// StateClosed means the circuit is closed and calls are allowed.
	StateClosed BreakerState = iota
	// StateOpen means the circuit is open and calls are rejected.
	StateOpen
	// StateHalfOpen means a single probe call is allowed to test recovery.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens.
	FailureThreshold int
	// Timeout is how long the circuit stays open before allowing a probe.
	Timeout time.Duration
	// OnStateChange is an optional callback invoked on transitions.
	OnStateChange func(from, to BreakerState)
}

// Breaker implements the circuit breaker pattern for one logical target
// (a destination or a generation adapter). It is safe for concurrent use.
type Breaker struct {
	mu              sync.Mutex
	state           BreakerState
	failureCount    int
	lastFailureTime time.Time
	probing         bool
	config          BreakerConfig
}

// NewBreaker creates a circuit breaker with the given configuration.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 3
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &Breaker{state: StateClosed, config: config}
}

// Execute runs fn under circuit breaker protection. When the circuit is open
// the call is rejected immediately with ErrBreakerOpen and fn is never
// invoked.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := fn(ctx)
	b.afterCall(err)
	return err
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		remaining := b.config.Timeout - time.Since(b.lastFailureTime)
		if remaining > 0 {
			return fmt.Errorf("%w: retry allowed in %v", ErrBreakerOpen, remaining.Round(time.Second))
		}
		b.transitionTo(StateHalfOpen)
	}
	if b.state == StateHalfOpen {
		// Only one probe may be in flight; concurrent callers fail fast
		// until it reports back.
		if b.probing {
			return fmt.Errorf("%w: probe in flight", ErrBreakerOpen)
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false

	if err != nil {
		b.failureCount++
		b.lastFailureTime = time.Now()
		switch b.state {
		case StateClosed:
			if b.failureCount >= b.config.FailureThreshold {
				b.transitionTo(StateOpen)
			}
		case StateHalfOpen:
			// A failed probe re-opens the circuit and restarts the timer.
			b.transitionTo(StateOpen)
		case StateOpen:
		}
		return
	}

	b.failureCount = 0
	if b.state == StateHalfOpen {
		b.transitionTo(StateClosed)
	}
}

func (b *Breaker) transitionTo(newState BreakerState) {
	if b.state == newState {
		return
	}
	oldState := b.state
	b.state = newState
	if newState == StateClosed {
		b.failureCount = 0
	}
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(oldState, newState)
	}
}

// State returns the current state of the circuit breaker.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the current consecutive-failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// Reset forces the circuit breaker back to closed and zeroes its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(StateClosed)
	b.failureCount = 0
	b.probing = false
}
