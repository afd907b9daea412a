package resilience

import "sync"

// BreakerRegistry holds one circuit breaker per logical target key
// (destination name or generation adapter id). All publish attempts to the
// same target share a breaker, so consecutive failures accumulate across
// concurrent dispatches.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	config   BreakerConfig
}

// NewBreakerRegistry creates a registry whose breakers use the given
// configuration.
func NewBreakerRegistry(config BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*Breaker),
		config:   config,
	}
}

// Get returns the breaker for key, creating it on first use.
func (r *BreakerRegistry) Get(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[key]
	if !ok {
		b = NewBreaker(r.config)
		r.breakers[key] = b
	}
	return b
}

// ResetAll closes every breaker in the registry. Used for operator recovery
// after an upstream incident has been resolved.
func (r *BreakerRegistry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range r.breakers {
		b.Reset()
	}
}

// States returns a snapshot of breaker states by key, for status endpoints.
func (r *BreakerRegistry) States() map[string]BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make(map[string]BreakerState, len(r.breakers))
	for key, b := range r.breakers {
		states[key] = b.State()
	}
	return states
}
