package resilience

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelSink exports pipeline events as OpenTelemetry metrics:
//
//   - resilience.attempts.total: counter of individual attempts
//   - resilience.calls.total: counter of completed executions
//   - resilience.call.attempts: histogram of attempts consumed per execution
//
// Counters are labeled with the resource name and, where applicable, whether
// the attempt or call succeeded.
type OTelSink struct {
	attempts     metric.Int64Counter
	calls        metric.Int64Counter
	callAttempts metric.Float64Histogram
}

var _ Sink = (*OTelSink)(nil)

// NewOTelSink creates the sink's instruments on meter.
func NewOTelSink(meter metric.Meter) (*OTelSink, error) {
	attempts, err := meter.Int64Counter(
		"resilience.attempts.total",
		metric.WithDescription("Individual operation attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}
	calls, err := meter.Int64Counter(
		"resilience.calls.total",
		metric.WithDescription("Completed pipeline executions"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}
	callAttempts, err := meter.Float64Histogram(
		"resilience.call.attempts",
		metric.WithDescription("Attempts consumed per execution"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}
	return &OTelSink{attempts: attempts, calls: calls, callAttempts: callAttempts}, nil
}

// ObserveAttempt counts one attempt against resource.
func (s *OTelSink) ObserveAttempt(ctx context.Context, resource string, rec AttemptRecord) {
	s.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource", resource),
		attribute.Bool("success", rec.Err == nil),
	))
}

// ObserveOutcome counts one completed execution against resource.
func (s *OTelSink) ObserveOutcome(ctx context.Context, resource string, attempts int, err error) {
	attrs := metric.WithAttributes(
		attribute.String("resource", resource),
		attribute.Bool("success", err == nil),
	)
	s.calls.Add(ctx, 1, attrs)
	s.callAttempts.Record(ctx, float64(attempts), attrs)
}
