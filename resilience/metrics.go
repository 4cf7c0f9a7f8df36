package resilience

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// ResourceMetrics is an aggregated view of the calls made against one
// resource.
type ResourceMetrics struct {
	Successful    int64 `json:"successfulCalls"`
	Failed        int64 `json:"failedCalls"`
	TotalAttempts int64 `json:"totalAttempts"`
	MaxAttempts   int64 `json:"maxAttempts"`
}

// TotalCalls returns the number of completed pipeline executions.
func (m ResourceMetrics) TotalCalls() int64 { return m.Successful + m.Failed }

// SuccessRate returns the percentage of calls that succeeded, or 0 when no
// calls were recorded.
func (m ResourceMetrics) SuccessRate() float64 {
	total := m.TotalCalls()
	if total == 0 {
		return 0
	}
	return float64(m.Successful) / float64(total) * 100
}

// AverageAttempts returns the mean attempts consumed per call, or 0 when no
// calls were recorded.
func (m ResourceMetrics) AverageAttempts() float64 {
	total := m.TotalCalls()
	if total == 0 {
		return 0
	}
	return float64(m.TotalAttempts) / float64(total)
}

type resourceCounters struct {
	successful    atomic.Int64
	failed        atomic.Int64
	totalAttempts atomic.Int64
	maxAttempts   atomic.Int64
}

func (c *resourceCounters) observe(attempts int64, failed bool) {
	if failed {
		c.failed.Add(1)
	} else {
		c.successful.Add(1)
	}
	c.totalAttempts.Add(attempts)
	for {
		cur := c.maxAttempts.Load()
		if attempts <= cur || c.maxAttempts.CompareAndSwap(cur, attempts) {
			return
		}
	}
}

func (c *resourceCounters) snapshot() ResourceMetrics {
	return ResourceMetrics{
		Successful:    c.successful.Load(),
		Failed:        c.failed.Load(),
		TotalAttempts: c.totalAttempts.Load(),
		MaxAttempts:   c.maxAttempts.Load(),
	}
}

// MetricsRegistry aggregates pipeline outcomes per resource. It implements
// Sink and is safe for concurrent use.
type MetricsRegistry struct {
	mu        sync.RWMutex
	resources map[string]*resourceCounters
}

var _ Sink = (*MetricsRegistry)(nil)

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{resources: make(map[string]*resourceCounters)}
}

func (mr *MetricsRegistry) counters(resource string) *resourceCounters {
	mr.mu.RLock()
	c, ok := mr.resources[resource]
	mr.mu.RUnlock()
	if ok {
		return c
	}

	mr.mu.Lock()
	defer mr.mu.Unlock()
	if c, ok := mr.resources[resource]; ok {
		return c
	}
	c = &resourceCounters{}
	mr.resources[resource] = c
	return c
}

// ObserveAttempt is a no-op; the registry aggregates at outcome granularity
// and derives attempt totals from ObserveOutcome.
func (mr *MetricsRegistry) ObserveAttempt(context.Context, string, AttemptRecord) {}

// ObserveOutcome records one completed execution against resource.
func (mr *MetricsRegistry) ObserveOutcome(_ context.Context, resource string, attempts int, err error) {
	mr.counters(resource).observe(int64(attempts), err != nil)
}

// Snapshot returns the metrics recorded for resource; ok is false when the
// resource has never been observed.
func (mr *MetricsRegistry) Snapshot(resource string) (ResourceMetrics, bool) {
	mr.mu.RLock()
	c, ok := mr.resources[resource]
	mr.mu.RUnlock()
	if !ok {
		return ResourceMetrics{}, false
	}
	return c.snapshot(), true
}

// All returns a snapshot of every observed resource, keyed by name.
func (mr *MetricsRegistry) All() map[string]ResourceMetrics {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]ResourceMetrics, len(mr.resources))
	for name, c := range mr.resources {
		out[name] = c.snapshot()
	}
	return out
}

// Resources returns the observed resource names in sorted order.
func (mr *MetricsRegistry) Resources() []string {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	names := make([]string, 0, len(mr.resources))
	for name := range mr.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset discards all recorded metrics. In-flight observations against the
// old counters may be lost; callers treat Reset as a coarse operator action.
func (mr *MetricsRegistry) Reset() {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	mr.resources = make(map[string]*resourceCounters)
}
