package resilience

// SlidingWindow is a fixed-capacity ring of recent call outcomes used to
// compute a rolling failure rate. Once full, recording overwrites the oldest
// outcome. It is not safe for concurrent use; CircuitBreaker wraps it in its
// own lock.
type SlidingWindow struct {
	slots    []bool // true marks a failed call
	next     int
	seen     int
	failures int
}

// NewSlidingWindow creates a window holding the last size outcomes.
func NewSlidingWindow(size int) *SlidingWindow {
	return &SlidingWindow{slots: make([]bool, size)}
}

// Record appends a call outcome, overwriting the oldest once full.
func (w *SlidingWindow) Record(success bool) {
	if w.seen >= len(w.slots) && w.slots[w.next] {
		w.failures--
	}
	w.slots[w.next] = !success
	if !success {
		w.failures++
	}
	w.next = (w.next + 1) % len(w.slots)
	if w.seen < len(w.slots) {
		w.seen++
	}
}

// Evaluate returns the failure rate as a percentage of recorded calls. ok is
// false while fewer than minimumCalls outcomes have been recorded.
func (w *SlidingWindow) Evaluate(minimumCalls int) (failureRate float64, ok bool) {
	if w.seen == 0 || w.seen < minimumCalls {
		return 0, false
	}
	return float64(w.failures) / float64(w.seen) * 100, true
}

// Size returns the number of outcomes recorded, capped at capacity.
func (w *SlidingWindow) Size() int { return w.seen }

// Failures returns the number of failed outcomes currently in the window.
func (w *SlidingWindow) Failures() int { return w.failures }

// Reset discards all recorded outcomes.
func (w *SlidingWindow) Reset() {
	for i := range w.slots {
		w.slots[i] = false
	}
	w.next = 0
	w.seen = 0
	w.failures = 0
}
