package resilience

import (
	"fmt"
	"sync"
	"time"
)

// Registry creates and caches circuit breakers and rate limiters keyed by
// resource name. Concurrent callers asking for the same name always receive
// the same instance. Names may be dynamic (one limiter per client address,
// for example); EvictIdle bounds the resulting growth.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	limiters map[string]*RateLimiter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		limiters: make(map[string]*RateLimiter),
	}
}

// CircuitBreaker returns the breaker registered under name, creating it from
// cfg on first use. cfg is only consulted on creation.
func (r *Registry) CircuitBreaker(name string, cfg CircuitBreakerConfig) (*CircuitBreaker, error) {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb, nil
	}
	cb, err := NewCircuitBreaker(cfg)
	if err != nil {
		return nil, fmt.Errorf("resilience: circuit breaker %q: %w", name, err)
	}
	r.breakers[name] = cb
	return cb, nil
}

// RateLimiter returns the limiter registered under name, creating it from
// cfg on first use. cfg is only consulted on creation.
func (r *Registry) RateLimiter(name string, cfg RateLimiterConfig) (*RateLimiter, error) {
	r.mu.RLock()
	rl, ok := r.limiters[name]
	r.mu.RUnlock()
	if ok {
		return rl, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rl, ok := r.limiters[name]; ok {
		return rl, nil
	}
	rl, err := NewRateLimiter(cfg)
	if err != nil {
		return nil, fmt.Errorf("resilience: rate limiter %q: %w", name, err)
	}
	r.limiters[name] = rl
	return rl, nil
}

// Breaker returns the breaker registered under name, if any.
func (r *Registry) Breaker(name string) (*CircuitBreaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.breakers[name]
	return cb, ok
}

// Limiter returns the limiter registered under name, if any.
func (r *Registry) Limiter(name string) (*RateLimiter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rl, ok := r.limiters[name]
	return rl, ok
}

// UpdateRateLimiterCapacity changes the capacity of the limiter registered
// under name. It returns ErrUnknownResource when no such limiter exists.
func (r *Registry) UpdateRateLimiterCapacity(name string, capacity int) error {
	rl, ok := r.Limiter(name)
	if !ok {
		return fmt.Errorf("%w: rate limiter %q", ErrUnknownResource, name)
	}
	return rl.SetCapacity(capacity)
}

// BreakerStates returns the current state of every registered breaker.
func (r *Registry) BreakerStates() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]State, len(r.breakers))
	for name, cb := range r.breakers {
		out[name] = cb.State()
	}
	return out
}

// BreakerSnapshots returns a monitoring view of every registered breaker.
func (r *Registry) BreakerSnapshots() map[string]CircuitBreakerSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]CircuitBreakerSnapshot, len(r.breakers))
	for name, cb := range r.breakers {
		out[name] = cb.Snapshot()
	}
	return out
}

// LimiterSnapshots returns a monitoring view of every registered limiter.
func (r *Registry) LimiterSnapshots() map[string]RateLimiterSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]RateLimiterSnapshot, len(r.limiters))
	for name, rl := range r.limiters {
		out[name] = rl.Snapshot()
	}
	return out
}

// EvictIdle removes breakers and limiters that have seen no traffic for at
// least idleFor, measured by each instance's own clock. It returns the number
// of instances removed. Eviction is advisory: a concurrent caller holding a
// reference keeps using its instance, and the next getOrCreate under the same
// name builds a fresh one.
func (r *Registry) EvictIdle(idleFor time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for name, cb := range r.breakers {
		if cb.idleFor() >= idleFor {
			delete(r.breakers, name)
			evicted++
		}
	}
	for name, rl := range r.limiters {
		if rl.idleFor() >= idleFor {
			delete(r.limiters, name)
			evicted++
		}
	}
	return evicted
}
