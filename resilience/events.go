package resilience

import "context"

// Sink receives execution events from the pipeline. Implementations must be
// safe for concurrent use, must not block, and must not panic; the pipeline
// calls every registered sink synchronously on the request path.
type Sink interface {
	// ObserveAttempt is called once per operation attempt, including the
	// first. rec.Err is nil when the attempt succeeded.
	ObserveAttempt(ctx context.Context, resource string, rec AttemptRecord)

	// ObserveOutcome is called once per pipeline execution that ran the
	// operation at least once. attempts is the number of attempts consumed;
	// err is the terminal error, nil on success. Rejected calls (rate limit,
	// open circuit) never reach the operation and are not reported here.
	ObserveOutcome(ctx context.Context, resource string, attempts int, err error)
}
