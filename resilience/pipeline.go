package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Operation produces a value of type T, typically by calling a downstream
// dependency. It must honor ctx cancellation to benefit from the timeout
// guard.
type Operation[T any] func(ctx context.Context) (T, error)

// Fallback produces a degraded result from a terminal pipeline error. It must
// not panic; the pipeline does not recover.
type Fallback[T any] func(ctx context.Context, err error) T

// PipelineConfig holds the per-resource policies the pipeline composes.
type PipelineConfig struct {
	CircuitBreaker CircuitBreakerConfig
	RateLimiter    RateLimiterConfig
	Retry          RetryConfig
	Timeout        TimeoutConfig
}

type resourcePolicy struct {
	config  PipelineConfig
	retry   *Retry
	timeout *Timeout
}

// Pipeline composes rate limiting, circuit breaking, retry and timeout around
// operations, keyed by resource name. Order is fixed: the limiter is
// consulted first, then the breaker; the retry loop wraps the timeout guard,
// so each attempt gets a fresh deadline. Safe for concurrent use.
type Pipeline struct {
	registry *Registry
	defaults PipelineConfig
	sinks    []Sink

	mu        sync.RWMutex
	overrides map[string]PipelineConfig
	policies  map[string]*resourcePolicy
}

// NewPipeline creates a pipeline using defaults for every resource that has
// no override. The defaults are validated eagerly. Sinks receive attempt and
// outcome events for every execution.
func NewPipeline(registry *Registry, defaults PipelineConfig, sinks ...Sink) (*Pipeline, error) {
	p := &Pipeline{
		registry:  registry,
		defaults:  defaults,
		sinks:     sinks,
		overrides: make(map[string]PipelineConfig),
		policies:  make(map[string]*resourcePolicy),
	}
	if _, err := p.buildPolicy("", defaults); err != nil {
		return nil, fmt.Errorf("resilience: invalid default pipeline config: %w", err)
	}
	return p, nil
}

// ConfigureResource installs a dedicated policy for resource, replacing any
// previous one. The config is validated eagerly. It does not affect breaker
// or limiter instances the registry already holds under that name.
func (p *Pipeline) ConfigureResource(resource string, cfg PipelineConfig) error {
	if _, err := p.buildPolicy(resource, cfg); err != nil {
		return fmt.Errorf("resilience: resource %q: %w", resource, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[resource] = cfg
	delete(p.policies, resource)
	return nil
}

func (p *Pipeline) buildPolicy(resource string, cfg PipelineConfig) (*resourcePolicy, error) {
	userOnAttempt := cfg.Retry.OnAttempt
	retryCfg := cfg.Retry
	retryCfg.OnAttempt = func(ctx context.Context, rec AttemptRecord) {
		if userOnAttempt != nil {
			userOnAttempt(ctx, rec)
		}
		for _, s := range p.sinks {
			s.ObserveAttempt(ctx, resource, rec)
		}
	}
	retry, err := NewRetry(retryCfg)
	if err != nil {
		return nil, err
	}
	timeout, err := NewTimeout(cfg.Timeout)
	if err != nil {
		return nil, err
	}
	if _, err := NewCircuitBreaker(cfg.CircuitBreaker); err != nil {
		return nil, err
	}
	if _, err := NewRateLimiter(cfg.RateLimiter); err != nil {
		return nil, err
	}
	return &resourcePolicy{config: cfg, retry: retry, timeout: timeout}, nil
}

// policy returns the cached policy for resource, building it on first use.
func (p *Pipeline) policy(resource string) (*resourcePolicy, error) {
	p.mu.RLock()
	pol, ok := p.policies[resource]
	p.mu.RUnlock()
	if ok {
		return pol, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if pol, ok := p.policies[resource]; ok {
		return pol, nil
	}
	cfg, ok := p.overrides[resource]
	if !ok {
		cfg = p.defaults
	}
	pol, err := p.buildPolicy(resource, cfg)
	if err != nil {
		return nil, fmt.Errorf("resilience: resource %q: %w", resource, err)
	}
	p.policies[resource] = pol
	return pol, nil
}

// Registry returns the registry backing the pipeline.
func (p *Pipeline) Registry() *Registry { return p.registry }

// Execute runs op against resource under the pipeline's policies. Rejections
// (ErrRateLimited, ErrCircuitOpen) never invoke op. On terminal failure the
// fallback, when non-nil, supplies the result and the error is swallowed;
// with a nil fallback the error propagates: ErrRateLimited, ErrCircuitOpen,
// a non-retryable error unwrapped, or an *ExhaustedError.
//
// Execute is a function rather than a method so the result type can stay
// generic.
func Execute[T any](ctx context.Context, p *Pipeline, resource string, op Operation[T], fallback Fallback[T]) (T, error) {
	var zero T

	pol, err := p.policy(resource)
	if err != nil {
		return zero, err
	}
	limiter, err := p.registry.RateLimiter(resource, pol.config.RateLimiter)
	if err != nil {
		return zero, err
	}
	breaker, err := p.registry.CircuitBreaker(resource, pol.config.CircuitBreaker)
	if err != nil {
		return zero, err
	}

	if err := limiter.Acquire(ctx); err != nil {
		if !errors.Is(err, ErrRateLimited) {
			// Cancellation while queued for a permit.
			return zero, err
		}
		return recoverWith(ctx, fallback, err)
	}
	if err := breaker.Allow(); err != nil {
		return recoverWith(ctx, fallback, err)
	}

	var (
		result   T
		attempts int
	)
	runErr := pol.retry.Execute(ctx, func(ctx context.Context) error {
		attempts++
		v, err := RunTimeout(ctx, pol.timeout, op)
		if err == nil {
			result = v
		}
		return err
	})

	if attempts == 0 {
		// Cancelled before the first attempt; the breaker admitted a call
		// that never happened, so nothing is recorded.
		return zero, runErr
	}
	if runErr != nil && errors.Is(runErr, context.Canceled) {
		return zero, runErr
	}

	breaker.Record(runErr)
	for _, s := range p.sinks {
		s.ObserveOutcome(ctx, resource, attempts, runErr)
	}

	if runErr == nil {
		return result, nil
	}
	return recoverWith(ctx, fallback, runErr)
}

func recoverWith[T any](ctx context.Context, fallback Fallback[T], err error) (T, error) {
	if fallback == nil {
		var zero T
		return zero, err
	}
	return fallback(ctx, err), nil
}
