package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiterConfig configures a RateLimiter. Zero values take the documented
// defaults; negative values are rejected by NewRateLimiter.
type RateLimiterConfig struct {
	// CapacityPerPeriod is the number of permits granted each period.
	// Default: 100
	CapacityPerPeriod int

	// Period is the fixed window length. Permits reset to full capacity at
	// every period boundary; unused permits do not carry over.
	// Default: 1m
	Period time.Duration

	// AcquireTimeout bounds how long Acquire may wait for the next period
	// when no permit is available. Zero means deny immediately.
	// Default: 0
	AcquireTimeout time.Duration

	// Clock supplies the current time.
	// Default: time.Now
	Clock Clock
}

func (c *RateLimiterConfig) withDefaults() (RateLimiterConfig, error) {
	cfg := *c
	if cfg.CapacityPerPeriod == 0 {
		cfg.CapacityPerPeriod = 100
	}
	if cfg.CapacityPerPeriod < 0 {
		return cfg, fmt.Errorf("resilience: rate limiter capacity must be positive, got %d", cfg.CapacityPerPeriod)
	}
	if cfg.Period == 0 {
		cfg.Period = time.Minute
	}
	if cfg.Period < 0 {
		return cfg, fmt.Errorf("resilience: rate limiter period must be positive, got %v", cfg.Period)
	}
	if cfg.AcquireTimeout < 0 {
		return cfg, fmt.Errorf("resilience: acquire timeout must not be negative, got %v", cfg.AcquireTimeout)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return cfg, nil
}

// RateLimiter grants a fixed number of permits per period. At each period
// boundary the pool refills to capacity. All methods are safe for concurrent
// use.
type RateLimiter struct {
	mu             sync.Mutex
	capacity       int
	period         time.Duration
	acquireTimeout time.Duration
	clock          Clock

	available   int
	periodStart time.Time
	waiting     int
	lastUsed    time.Time
}

// NewRateLimiter creates a limiter with a full permit pool.
func NewRateLimiter(cfg RateLimiterConfig) (*RateLimiter, error) {
	resolved, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	now := resolved.Clock()
	return &RateLimiter{
		capacity:       resolved.CapacityPerPeriod,
		period:         resolved.Period,
		acquireTimeout: resolved.AcquireTimeout,
		clock:          resolved.Clock,
		available:      resolved.CapacityPerPeriod,
		periodStart:    now,
		lastUsed:       now,
	}, nil
}

// rollLocked advances the window to the period containing now and refills the
// pool if at least one boundary was crossed.
func (rl *RateLimiter) rollLocked(now time.Time) {
	elapsed := now.Sub(rl.periodStart)
	if elapsed < rl.period {
		return
	}
	periods := int64(elapsed / rl.period)
	rl.periodStart = rl.periodStart.Add(time.Duration(periods) * rl.period)
	rl.available = rl.capacity
}

// Allow takes a permit without waiting. It returns false when the current
// period's pool is exhausted.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock()
	rl.lastUsed = now
	rl.rollLocked(now)
	if rl.available > 0 {
		rl.available--
		return true
	}
	return false
}

// Acquire takes a permit, waiting up to the configured acquire timeout for
// the next period boundary when the pool is empty. It returns ErrRateLimited
// when no permit could be obtained in time, or ctx.Err() on cancellation.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	if rl.Allow() {
		return nil
	}
	if rl.acquireTimeout == 0 {
		return ErrRateLimited
	}

	rl.mu.Lock()
	// Wait only as long as useful: the sooner of the acquire timeout and the
	// next refill boundary.
	wait := rl.acquireTimeout
	untilRefill := rl.period - rl.clock().Sub(rl.periodStart)
	if untilRefill > 0 && untilRefill < wait {
		wait = untilRefill
	}
	rl.waiting++
	rl.mu.Unlock()

	defer func() {
		rl.mu.Lock()
		rl.waiting--
		rl.mu.Unlock()
	}()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	if rl.Allow() {
		return nil
	}
	return ErrRateLimited
}

// SetCapacity changes the permits granted per period. The new capacity takes
// full effect at the next period boundary; the current pool is only clamped
// down when it exceeds the new capacity.
func (rl *RateLimiter) SetCapacity(n int) error {
	if n <= 0 {
		return fmt.Errorf("resilience: rate limiter capacity must be positive, got %d", n)
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.capacity = n
	if rl.available > n {
		rl.available = n
	}
	return nil
}

// RateLimiterSnapshot is a point-in-time view for monitoring.
type RateLimiterSnapshot struct {
	Capacity  int `json:"capacity"`
	Available int `json:"available"`
	Waiting   int `json:"waiting"`
}

// Snapshot returns a monitoring view of the limiter.
func (rl *RateLimiter) Snapshot() RateLimiterSnapshot {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.rollLocked(rl.clock())
	return RateLimiterSnapshot{
		Capacity:  rl.capacity,
		Available: rl.available,
		Waiting:   rl.waiting,
	}
}

// idleFor returns how long the limiter has gone without traffic, measured by
// its own clock.
func (rl *RateLimiter) idleFor() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.clock().Sub(rl.lastUsed)
}
