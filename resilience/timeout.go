package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutConfig configures a Timeout guard.
type TimeoutConfig struct {
	// Timeout is the deadline applied to a single attempt.
	// Default: 5s
	Timeout time.Duration
}

func (c *TimeoutConfig) withDefaults() (TimeoutConfig, error) {
	cfg := *c
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Timeout < 0 {
		return cfg, fmt.Errorf("resilience: timeout must be positive, got %v", cfg.Timeout)
	}
	return cfg, nil
}

// Timeout bounds a single attempt with a deadline. The operation receives a
// context that expires at the deadline; cancellation is cooperative, so an
// operation that ignores its context keeps running in an abandoned goroutine
// after the guard has returned ErrTimeout.
type Timeout struct {
	cfg TimeoutConfig
}

// NewTimeout creates a Timeout guard from cfg.
func NewTimeout(cfg TimeoutConfig) (*Timeout, error) {
	resolved, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Timeout{cfg: resolved}, nil
}

// Run executes op under the deadline, returning ErrTimeout when it expires
// first.
func (t *Timeout) Run(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := RunTimeout(ctx, t, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

type outcome[T any] struct {
	value T
	err   error
}

// RunTimeout executes op under t's deadline and returns its value. The result
// travels through a channel so an abandoned attempt can never race with the
// caller over shared memory.
func RunTimeout[T any](ctx context.Context, t *Timeout, op func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		v, err := op(ctx)
		done <- outcome[T]{value: v, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) {
			var zero T
			return zero, ErrTimeout
		}
		return out.value, out.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return zero, ctx.Err()
	}
}
