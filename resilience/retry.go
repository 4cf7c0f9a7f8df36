package resilience

import (
	"context"
	"fmt"
	"math"
	"time"
)

// AttemptRecord describes one attempt of a retried operation. Attempt is
// 1-based; Err is nil for a successful attempt.
type AttemptRecord struct {
	Attempt int
	Err     error
}

// RetryConfig configures a Retry. Zero values take the documented defaults;
// invalid values are rejected by NewRetry.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	// Default: 3
	MaxAttempts int

	// BaseWait is the wait before the second attempt. Each further wait is
	// multiplied by Multiplier.
	// Default: 100ms
	BaseWait time.Duration

	// Multiplier is the exponential backoff factor. Must be at least 1.
	// Default: 2.0
	Multiplier float64

	// MaxWait caps a single backoff wait.
	// Default: 30s
	MaxWait time.Duration

	// RetryIf decides whether a non-nil error is worth another attempt.
	// A non-retryable error propagates immediately, unwrapped.
	// Default: retry every error
	RetryIf func(error) bool

	// OnAttempt, when set, observes every attempt including the first.
	// It must not block.
	OnAttempt func(ctx context.Context, rec AttemptRecord)

	// Sleeper performs the backoff waits.
	// Default: a real timer honoring ctx cancellation
	Sleeper Sleeper
}

func (c *RetryConfig) withDefaults() (RetryConfig, error) {
	cfg := *c
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.MaxAttempts < 0 {
		return cfg, fmt.Errorf("resilience: max attempts must be positive, got %d", cfg.MaxAttempts)
	}
	if cfg.BaseWait == 0 {
		cfg.BaseWait = 100 * time.Millisecond
	}
	if cfg.BaseWait < 0 {
		return cfg, fmt.Errorf("resilience: base wait must be positive, got %v", cfg.BaseWait)
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.Multiplier < 1 {
		return cfg, fmt.Errorf("resilience: backoff multiplier must be at least 1, got %v", cfg.Multiplier)
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = 30 * time.Second
	}
	if cfg.MaxWait < 0 {
		return cfg, fmt.Errorf("resilience: max wait must be positive, got %v", cfg.MaxWait)
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = timerSleeper{}
	}
	return cfg, nil
}

// Retry executes operations under exponential backoff. It is stateless
// between calls and safe for concurrent use.
type Retry struct {
	cfg RetryConfig
}

// NewRetry creates a Retry from cfg.
func NewRetry(cfg RetryConfig) (*Retry, error) {
	resolved, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Retry{cfg: resolved}, nil
}

// Execute runs op until it succeeds, a non-retryable error occurs, the
// context is cancelled, or MaxAttempts is reached. Exhaustion returns an
// *ExhaustedError wrapping the last attempt's error.
func (r *Retry) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if r.cfg.OnAttempt != nil {
			r.cfg.OnAttempt(ctx, AttemptRecord{Attempt: attempt, Err: err})
		}
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return err
		}
		if r.cfg.RetryIf != nil && !r.cfg.RetryIf(err) {
			return err
		}
		if attempt == r.cfg.MaxAttempts {
			break
		}
		if err := r.cfg.Sleeper.Sleep(ctx, r.waitFor(attempt)); err != nil {
			return err
		}
	}
	return &ExhaustedError{Attempts: r.cfg.MaxAttempts, Err: lastErr}
}

// waitFor returns the backoff before the attempt following the given one.
func (r *Retry) waitFor(attempt int) time.Duration {
	wait := time.Duration(float64(r.cfg.BaseWait) * math.Pow(r.cfg.Multiplier, float64(attempt-1)))
	if wait > r.cfg.MaxWait || wait <= 0 {
		wait = r.cfg.MaxWait
	}
	return wait
}
