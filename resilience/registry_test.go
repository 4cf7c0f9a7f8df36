package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRegistry_SameInstancePerName(t *testing.T) {
	reg := NewRegistry()

	a, err := reg.CircuitBreaker("svc", CircuitBreakerConfig{})
	if err != nil {
		t.Fatalf("CircuitBreaker() error = %v", err)
	}
	b, err := reg.CircuitBreaker("svc", CircuitBreakerConfig{SlidingWindowSize: 99})
	if err != nil {
		t.Fatalf("CircuitBreaker() error = %v", err)
	}
	if a != b {
		t.Error("CircuitBreaker() returned distinct instances for the same name")
	}
	// Config is only consulted on creation.
	if b.cfg.SlidingWindowSize != 10 {
		t.Errorf("second call replaced config: window = %d, want 10", b.cfg.SlidingWindowSize)
	}
}

func TestRegistry_ConcurrentGetOrCreate(t *testing.T) {
	reg := NewRegistry()

	const goroutines = 32
	results := make([]*RateLimiter, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rl, err := reg.RateLimiter("shared", RateLimiterConfig{})
			if err != nil {
				t.Errorf("RateLimiter() error = %v", err)
				return
			}
			results[i] = rl
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent RateLimiter() calls returned distinct instances")
		}
	}
}

func TestRegistry_InvalidConfigPropagates(t *testing.T) {
	reg := NewRegistry()

	if _, err := reg.CircuitBreaker("bad", CircuitBreakerConfig{SlidingWindowSize: -1}); err == nil {
		t.Error("CircuitBreaker() with invalid config error = nil, want error")
	}
	if _, ok := reg.Breaker("bad"); ok {
		t.Error("failed construction left an instance in the registry")
	}
}

func TestRegistry_UpdateRateLimiterCapacity(t *testing.T) {
	reg := NewRegistry()

	err := reg.UpdateRateLimiterCapacity("ghost", 10)
	if !errors.Is(err, ErrUnknownResource) {
		t.Errorf("UpdateRateLimiterCapacity(ghost) = %v, want ErrUnknownResource", err)
	}

	if _, err := reg.RateLimiter("svc", RateLimiterConfig{CapacityPerPeriod: 5}); err != nil {
		t.Fatalf("RateLimiter() error = %v", err)
	}
	if err := reg.UpdateRateLimiterCapacity("svc", 50); err != nil {
		t.Fatalf("UpdateRateLimiterCapacity(svc) = %v", err)
	}
	snaps := reg.LimiterSnapshots()
	if snaps["svc"].Capacity != 50 {
		t.Errorf("capacity after update = %d, want 50", snaps["svc"].Capacity)
	}
}

func TestRegistry_BreakerStates(t *testing.T) {
	reg := NewRegistry()
	cb, err := reg.CircuitBreaker("svc", CircuitBreakerConfig{
		SlidingWindowSize:    2,
		MinimumNumberOfCalls: 2,
		FailureRateThreshold: 50,
	})
	if err != nil {
		t.Fatalf("CircuitBreaker() error = %v", err)
	}

	boom := errors.New("boom")
	cb.Record(boom)
	cb.Record(boom)

	states := reg.BreakerStates()
	if states["svc"] != StateOpen {
		t.Errorf("BreakerStates()[svc] = %v, want OPEN", states["svc"])
	}
}

func TestRegistry_EvictIdle(t *testing.T) {
	clock := newFakeClock()
	reg := NewRegistry()

	if _, err := reg.RateLimiter("old", RateLimiterConfig{Clock: clock.Now}); err != nil {
		t.Fatalf("RateLimiter() error = %v", err)
	}
	if _, err := reg.CircuitBreaker("old-cb", CircuitBreakerConfig{Clock: clock.Now}); err != nil {
		t.Fatalf("CircuitBreaker() error = %v", err)
	}

	clock.Advance(20 * time.Minute)

	// Fresh traffic on one of them.
	fresh, _ := reg.Limiter("old")
	fresh.Allow()

	evicted := reg.EvictIdle(10 * time.Minute)
	if evicted != 1 {
		t.Errorf("EvictIdle() = %d, want 1", evicted)
	}
	if _, ok := reg.Limiter("old"); !ok {
		t.Error("active limiter was evicted")
	}
	if _, ok := reg.Breaker("old-cb"); ok {
		t.Error("idle breaker survived eviction")
	}
}
