// Package resilience provides the guard rails placed around catalog
// operations: rate limiting, circuit breaking, retry with backoff and
// timeout enforcement, composed into a single pipeline keyed by resource
// name.
//
// # Components
//
//   - CircuitBreaker: per-resource CLOSED/OPEN/HALF_OPEN state machine with
//     sliding-window failure-rate accounting.
//
//   - RateLimiter: fixed-window permit pool; permits reset to full capacity
//     at each period boundary.
//
//   - Retry: repeats an operation under exponential backoff, classifying
//     errors as retryable or not.
//
//   - Timeout: bounds a single attempt with a deadline.
//
//   - Pipeline: composes the above around an operation and falls back to a
//     degraded result on terminal rejection or failure.
//
//   - Registry: lazily creates and caches breaker/limiter instances per
//     resource name, including dynamically keyed ones such as one per
//     client IP.
//
//   - MetricsRegistry: aggregates attempt/outcome events per resource.
//
// # Usage
//
//	registry := resilience.NewRegistry()
//	metrics := resilience.NewMetricsRegistry()
//
//	pipeline, err := resilience.NewPipeline(registry, resilience.PipelineConfig{
//	    CircuitBreaker: resilience.CircuitBreakerConfig{
//	        SlidingWindowSize:    10,
//	        FailureRateThreshold: 50,
//	    },
//	    Retry: resilience.RetryConfig{MaxAttempts: 3},
//	}, metrics)
//
//	product, err := resilience.Execute(ctx, pipeline, "productService",
//	    func(ctx context.Context) (Product, error) {
//	        return repo.FindByID(ctx, id)
//	    },
//	    func(ctx context.Context, err error) Product {
//	        return placeholderProduct(id)
//	    },
//	)
//
// All state is in-memory and per-process; nothing is shared across processes
// or persisted across restarts.
package resilience
