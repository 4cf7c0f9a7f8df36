package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State identifies the circuit breaker's position in its lifecycle.
type State int

const (
	// StateClosed lets all calls through while tracking outcomes.
	StateClosed State = iota
	// StateOpen denies all calls until the open wait elapses.
	StateOpen
	// StateHalfOpen admits a limited number of trial calls.
	StateHalfOpen
)

// String returns the state name in the conventional uppercase form.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// CircuitBreakerConfig configures a CircuitBreaker. Zero values take the
// documented defaults; negative or out-of-range values are rejected by
// NewCircuitBreaker.
type CircuitBreakerConfig struct {
	// SlidingWindowSize is the number of recent calls considered when
	// computing the failure rate.
	// Default: 10
	SlidingWindowSize int

	// MinimumNumberOfCalls is how many outcomes must be recorded before the
	// failure rate is evaluated at all.
	// Default: 5
	MinimumNumberOfCalls int

	// FailureRateThreshold is the failure percentage (0-100] at or above
	// which a closed breaker trips open.
	// Default: 50
	FailureRateThreshold float64

	// WaitDurationOpen is how long an open breaker denies calls before
	// admitting half-open trials.
	// Default: 30s
	WaitDurationOpen time.Duration

	// PermittedCallsHalfOpen is the number of trial calls admitted while
	// half-open. All of them must succeed to close the breaker; a single
	// failure reopens it.
	// Default: 1
	PermittedCallsHalfOpen int

	// IgnoreErrors lists error classes that are neither success nor failure:
	// matching errors (via errors.Is) leave the window untouched.
	IgnoreErrors []error

	// RecordError overrides the default classification. When set, it alone
	// decides whether a non-nil error counts as a failure; returning false
	// ignores the call. IgnoreErrors is not consulted.
	RecordError func(error) bool

	// OnStateChange, when set, is called synchronously on every transition
	// while the breaker's lock is held. Keep it fast and do not call back
	// into the breaker.
	OnStateChange func(from, to State)

	// Clock supplies the current time.
	// Default: time.Now
	Clock Clock
}

func (c *CircuitBreakerConfig) withDefaults() (CircuitBreakerConfig, error) {
	cfg := *c
	if cfg.SlidingWindowSize == 0 {
		cfg.SlidingWindowSize = 10
	}
	if cfg.SlidingWindowSize < 0 {
		return cfg, fmt.Errorf("resilience: sliding window size must be positive, got %d", cfg.SlidingWindowSize)
	}
	if cfg.MinimumNumberOfCalls == 0 {
		cfg.MinimumNumberOfCalls = 5
	}
	if cfg.MinimumNumberOfCalls < 0 {
		return cfg, fmt.Errorf("resilience: minimum number of calls must be positive, got %d", cfg.MinimumNumberOfCalls)
	}
	if cfg.FailureRateThreshold == 0 {
		cfg.FailureRateThreshold = 50
	}
	if cfg.FailureRateThreshold < 0 || cfg.FailureRateThreshold > 100 {
		return cfg, fmt.Errorf("resilience: failure rate threshold must be in (0, 100], got %v", cfg.FailureRateThreshold)
	}
	if cfg.WaitDurationOpen == 0 {
		cfg.WaitDurationOpen = 30 * time.Second
	}
	if cfg.WaitDurationOpen < 0 {
		return cfg, fmt.Errorf("resilience: wait duration must be positive, got %v", cfg.WaitDurationOpen)
	}
	if cfg.PermittedCallsHalfOpen == 0 {
		cfg.PermittedCallsHalfOpen = 1
	}
	if cfg.PermittedCallsHalfOpen < 0 {
		return cfg, fmt.Errorf("resilience: permitted half-open calls must be positive, got %d", cfg.PermittedCallsHalfOpen)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return cfg, nil
}

// CircuitBreaker guards a single resource, denying calls while the recent
// failure rate is above the configured threshold. All methods are safe for
// concurrent use.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu                sync.Mutex
	state             State
	window            *SlidingWindow
	transitionTime    time.Time
	halfOpenPermits   int
	halfOpenSuccesses int
	lastUsed          time.Time
}

// NewCircuitBreaker creates a breaker in the CLOSED state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, error) {
	resolved, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	now := resolved.Clock()
	return &CircuitBreaker{
		cfg:            resolved,
		state:          StateClosed,
		window:         NewSlidingWindow(resolved.SlidingWindowSize),
		transitionTime: now,
		lastUsed:       now,
	}, nil
}

// Allow reports whether a call may proceed, consuming a half-open permit when
// applicable. It returns ErrCircuitOpen when the call is denied. Callers that
// are allowed through must report the outcome via Record.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastUsed = cb.cfg.Clock()
	cb.advanceLocked()

	switch cb.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if cb.halfOpenPermits > 0 {
			cb.halfOpenPermits--
			return nil
		}
		return ErrCircuitOpen
	default:
		return ErrCircuitOpen
	}
}

// Record reports a call outcome. A nil error is a success. Ignored error
// classes leave the window untouched.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastUsed = cb.cfg.Clock()

	if err != nil && !cb.shouldRecord(err) {
		return
	}
	success := err == nil

	switch cb.state {
	case StateClosed:
		cb.window.Record(success)
		if rate, ok := cb.window.Evaluate(cb.cfg.MinimumNumberOfCalls); ok && rate >= cb.cfg.FailureRateThreshold {
			cb.setStateLocked(StateOpen)
		}
	case StateHalfOpen:
		if !success {
			cb.setStateLocked(StateOpen)
			return
		}
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.cfg.PermittedCallsHalfOpen {
			cb.setStateLocked(StateClosed)
		}
	case StateOpen:
		// Late result from a call admitted before the breaker tripped.
		// The window was reset on transition; discard it.
	}
}

func (cb *CircuitBreaker) shouldRecord(err error) bool {
	if cb.cfg.RecordError != nil {
		return cb.cfg.RecordError(err)
	}
	for _, ignored := range cb.cfg.IgnoreErrors {
		if errors.Is(err, ignored) {
			return false
		}
	}
	return true
}

// advanceLocked performs the time-driven OPEN to HALF_OPEN transition. The
// breaker has no background goroutine; the transition happens lazily on the
// next Allow or State call after the wait elapses.
func (cb *CircuitBreaker) advanceLocked() {
	if cb.state == StateOpen && cb.cfg.Clock().Sub(cb.transitionTime) >= cb.cfg.WaitDurationOpen {
		cb.setStateLocked(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) setStateLocked(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.transitionTime = cb.cfg.Clock()
	cb.window.Reset()
	if to == StateHalfOpen {
		cb.halfOpenPermits = cb.cfg.PermittedCallsHalfOpen
		cb.halfOpenSuccesses = 0
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

// State returns the current state, applying any pending time-driven
// transition first.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advanceLocked()
	return cb.state
}

// Reset returns the breaker to CLOSED and clears the window.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setStateLocked(StateClosed)
	cb.window.Reset()
}

// CircuitBreakerSnapshot is a point-in-time view for monitoring.
type CircuitBreakerSnapshot struct {
	State       State   `json:"state"`
	WindowCalls int     `json:"windowCalls"`
	Failures    int     `json:"failures"`
	FailureRate float64 `json:"failureRate"`
}

// Snapshot returns a monitoring view of the breaker.
func (cb *CircuitBreaker) Snapshot() CircuitBreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advanceLocked()
	rate, _ := cb.window.Evaluate(1)
	return CircuitBreakerSnapshot{
		State:       cb.state,
		WindowCalls: cb.window.Size(),
		Failures:    cb.window.Failures(),
		FailureRate: rate,
	}
}

// idleFor returns how long the breaker has gone without traffic, measured by
// its own clock.
func (cb *CircuitBreaker) idleFor() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.cfg.Clock().Sub(cb.lastUsed)
}
