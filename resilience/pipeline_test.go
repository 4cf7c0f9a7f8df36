package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastRetry keeps pipeline tests free of real backoff waits.
func fastRetry(maxAttempts int) RetryConfig {
	return RetryConfig{MaxAttempts: maxAttempts, Sleeper: &fakeSleeper{}}
}

func newTestPipeline(t *testing.T, defaults PipelineConfig, sinks ...Sink) (*Pipeline, *Registry) {
	t.Helper()
	reg := NewRegistry()
	p, err := NewPipeline(reg, defaults, sinks...)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	return p, reg
}

func TestNewPipeline_InvalidDefaults(t *testing.T) {
	if _, err := NewPipeline(NewRegistry(), PipelineConfig{
		Retry: RetryConfig{Multiplier: 0.5},
	}); err == nil {
		t.Error("NewPipeline() with invalid defaults error = nil, want error")
	}
}

func TestPipeline_Success(t *testing.T) {
	metrics := NewMetricsRegistry()
	p, _ := newTestPipeline(t, PipelineConfig{Retry: fastRetry(3)}, metrics)

	v, err := Execute(context.Background(), p, "svc",
		func(ctx context.Context) (string, error) { return "ok", nil },
		nil,
	)
	if err != nil {
		t.Fatalf("Execute() = %v, want nil", err)
	}
	if v != "ok" {
		t.Errorf("Execute() value = %q, want ok", v)
	}

	m, _ := metrics.Snapshot("svc")
	if m.Successful != 1 || m.TotalAttempts != 1 {
		t.Errorf("metrics = %+v, want 1 success with 1 attempt", m)
	}
}

func TestPipeline_RetriesThenSucceeds(t *testing.T) {
	metrics := NewMetricsRegistry()
	p, _ := newTestPipeline(t, PipelineConfig{Retry: fastRetry(3)}, metrics)

	calls := 0
	v, err := Execute(context.Background(), p, "svc",
		func(ctx context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("flaky")
			}
			return 7, nil
		},
		nil,
	)
	if err != nil {
		t.Fatalf("Execute() = %v, want nil", err)
	}
	if v != 7 {
		t.Errorf("Execute() value = %d, want 7", v)
	}

	m, _ := metrics.Snapshot("svc")
	if m.Successful != 1 || m.TotalAttempts != 3 || m.MaxAttempts != 3 {
		t.Errorf("metrics = %+v, want 1 success with 3 attempts", m)
	}
}

func TestPipeline_ExhaustionWithoutFallback(t *testing.T) {
	p, _ := newTestPipeline(t, PipelineConfig{Retry: fastRetry(2)})

	boom := errors.New("boom")
	_, err := Execute(context.Background(), p, "svc",
		func(ctx context.Context) (int, error) { return 0, boom },
		nil,
	)

	exhausted, ok := AsExhausted(err)
	if !ok {
		t.Fatalf("Execute() = %v, want ExhaustedError", err)
	}
	if exhausted.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", exhausted.Attempts)
	}
	if !errors.Is(err, boom) {
		t.Error("terminal error does not wrap the operation error")
	}
}

func TestPipeline_FallbackOnExhaustion(t *testing.T) {
	metrics := NewMetricsRegistry()
	p, _ := newTestPipeline(t, PipelineConfig{Retry: fastRetry(2)}, metrics)

	var seen error
	v, err := Execute(context.Background(), p, "svc",
		func(ctx context.Context) (string, error) { return "", errors.New("boom") },
		func(ctx context.Context, err error) string {
			seen = err
			return "degraded"
		},
	)
	if err != nil {
		t.Fatalf("Execute() with fallback = %v, want nil", err)
	}
	if v != "degraded" {
		t.Errorf("Execute() value = %q, want degraded", v)
	}
	if _, ok := AsExhausted(seen); !ok {
		t.Errorf("fallback received %v, want ExhaustedError", seen)
	}

	// The degraded answer still counts as a failed call.
	m, _ := metrics.Snapshot("svc")
	if m.Failed != 1 {
		t.Errorf("Failed = %d, want 1", m.Failed)
	}
}

func TestPipeline_OpenBreakerSkipsOperation(t *testing.T) {
	metrics := NewMetricsRegistry()
	p, reg := newTestPipeline(t, PipelineConfig{
		CircuitBreaker: CircuitBreakerConfig{
			SlidingWindowSize:    2,
			MinimumNumberOfCalls: 2,
			FailureRateThreshold: 50,
		},
		Retry: fastRetry(1),
	}, metrics)

	// Trip the breaker through the pipeline itself.
	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		_, _ = Execute(context.Background(), p, "svc",
			func(ctx context.Context) (int, error) { return 0, boom },
			nil,
		)
	}
	if states := reg.BreakerStates(); states["svc"] != StateOpen {
		t.Fatalf("breaker state = %v, want OPEN", states["svc"])
	}

	calls := 0
	var seen error
	v, err := Execute(context.Background(), p, "svc",
		func(ctx context.Context) (int, error) { calls++; return 1, nil },
		func(ctx context.Context, err error) int {
			seen = err
			return -1
		},
	)
	if err != nil {
		t.Fatalf("Execute() = %v, want nil via fallback", err)
	}
	if v != -1 {
		t.Errorf("Execute() value = %d, want -1", v)
	}
	if calls != 0 {
		t.Errorf("operation ran %d times while breaker open, want 0", calls)
	}
	if !errors.Is(seen, ErrCircuitOpen) {
		t.Errorf("fallback received %v, want ErrCircuitOpen", seen)
	}

	// Rejections are not outcomes: only the two tripping calls are counted.
	m, _ := metrics.Snapshot("svc")
	if m.TotalCalls() != 2 {
		t.Errorf("TotalCalls() = %d, want 2", m.TotalCalls())
	}
}

func TestPipeline_OpenBreakerWithoutFallback(t *testing.T) {
	p, reg := newTestPipeline(t, PipelineConfig{
		CircuitBreaker: CircuitBreakerConfig{
			SlidingWindowSize:    2,
			MinimumNumberOfCalls: 2,
			FailureRateThreshold: 50,
		},
		Retry: fastRetry(1),
	})

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

	_, err = Execute(context.Background(), p, "svc",
		func(ctx context.Context) (int, error) { return 1, nil },
		nil,
	)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() = %v, want ErrCircuitOpen", err)
	}
}

func TestPipeline_RateLimitRejection(t *testing.T) {
	p, _ := newTestPipeline(t, PipelineConfig{
		RateLimiter: RateLimiterConfig{CapacityPerPeriod: 1, Period: time.Minute},
		Retry:       fastRetry(1),
	})

	if _, err := Execute(context.Background(), p, "svc",
		func(ctx context.Context) (int, error) { return 1, nil },
		nil,
	); err != nil {
		t.Fatalf("first Execute() = %v, want nil", err)
	}

	calls := 0
	_, err := Execute(context.Background(), p, "svc",
		func(ctx context.Context) (int, error) { calls++; return 1, nil },
		nil,
	)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("Execute() = %v, want ErrRateLimited", err)
	}
	if calls != 0 {
		t.Errorf("operation ran %d times while rate limited, want 0", calls)
	}
}

func TestPipeline_NonRetryableSkipsBreakerWhenIgnored(t *testing.T) {
	notFound := errors.New("not found")
	p, reg := newTestPipeline(t, PipelineConfig{
		CircuitBreaker: CircuitBreakerConfig{
			SlidingWindowSize:    2,
			MinimumNumberOfCalls: 2,
			FailureRateThreshold: 50,
			IgnoreErrors:         []error{notFound},
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Sleeper:     &fakeSleeper{},
			RetryIf:     func(err error) bool { return !errors.Is(err, notFound) },
		},
	})

	for i := 0; i < 5; i++ {
		_, err := Execute(context.Background(), p, "svc",
			func(ctx context.Context) (int, error) { return 0, notFound },
			nil,
		)
		if !errors.Is(err, notFound) {
			t.Fatalf("Execute() = %v, want notFound", err)
		}
	}

	// Domain answers are not failures: the breaker stays closed and empty.
	if states := reg.BreakerStates(); states["svc"] != StateClosed {
		t.Errorf("breaker state = %v, want CLOSED", states["svc"])
	}
}

func TestPipeline_ConfigureResourceOverride(t *testing.T) {
	p, _ := newTestPipeline(t, PipelineConfig{Retry: fastRetry(1)})

	if err := p.ConfigureResource("strict", PipelineConfig{
		Retry: RetryConfig{Multiplier: 0.1},
	}); err == nil {
		t.Error("ConfigureResource() with invalid config error = nil, want error")
	}

	if err := p.ConfigureResource("strict", PipelineConfig{
		RateLimiter: RateLimiterConfig{CapacityPerPeriod: 1, Period: time.Minute},
		Retry:       fastRetry(1),
	}); err != nil {
		t.Fatalf("ConfigureResource() = %v", err)
	}

	// The override's limiter applies to the named resource only.
	for i := 0; i < 2; i++ {
		_, _ = Execute(context.Background(), p, "strict",
			func(ctx context.Context) (int, error) { return 1, nil }, nil)
	}
	_, err := Execute(context.Background(), p, "strict",
		func(ctx context.Context) (int, error) { return 1, nil }, nil)
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("Execute(strict) = %v, want ErrRateLimited", err)
	}

	_, err = Execute(context.Background(), p, "lenient",
		func(ctx context.Context) (int, error) { return 1, nil }, nil)
	if err != nil {
		t.Errorf("Execute(lenient) = %v, want nil", err)
	}
}

func TestPipeline_AttemptEventsCarryResource(t *testing.T) {
	sink := &recordingSink{}
	p, _ := newTestPipeline(t, PipelineConfig{Retry: fastRetry(2)}, sink)

	_, _ = Execute(context.Background(), p, "svc",
		func(ctx context.Context) (int, error) { return 0, errors.New("boom") },
		nil,
	)

	if len(sink.attempts) != 2 {
		t.Fatalf("got %d attempt events, want 2", len(sink.attempts))
	}
	for i, a := range sink.attempts {
		if a.resource != "svc" {
			t.Errorf("attempts[%d].resource = %q, want svc", i, a.resource)
		}
		if a.rec.Attempt != i+1 {
			t.Errorf("attempts[%d].Attempt = %d, want %d", i, a.rec.Attempt, i+1)
		}
	}
	if len(sink.outcomes) != 1 {
		t.Fatalf("got %d outcome events, want 1", len(sink.outcomes))
	}
	if sink.outcomes[0].attempts != 2 || sink.outcomes[0].err == nil {
		t.Errorf("outcome = %+v, want 2 failed attempts", sink.outcomes[0])
	}
}

func TestPipeline_CancelledBeforeFirstAttempt(t *testing.T) {
	metrics := NewMetricsRegistry()
	p, _ := newTestPipeline(t, PipelineConfig{Retry: fastRetry(3)}, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Execute(ctx, p, "svc",
		func(ctx context.Context) (int, error) { return 1, nil },
		func(ctx context.Context, err error) int { return -1 },
	)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() = %v, want context.Canceled", err)
	}
	// A call that never ran leaves no trace in the metrics.
	if _, ok := metrics.Snapshot("svc"); ok {
		t.Error("cancelled pre-attempt call was recorded in metrics")
	}
}

type sinkAttempt struct {
	resource string
	rec      AttemptRecord
}

type sinkOutcome struct {
	resource string
	attempts int
	err      error
}

type recordingSink struct {
	attempts []sinkAttempt
	outcomes []sinkOutcome
}

func (s *recordingSink) ObserveAttempt(_ context.Context, resource string, rec AttemptRecord) {
	s.attempts = append(s.attempts, sinkAttempt{resource: resource, rec: rec})
}

func (s *recordingSink) ObserveOutcome(_ context.Context, resource string, attempts int, err error) {
	s.outcomes = append(s.outcomes, sinkOutcome{resource: resource, attempts: attempts, err: err})
}
