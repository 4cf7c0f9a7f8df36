package resilience

import (
	"errors"
	"fmt"
)

// Sentinel errors reported by the pipeline stages.
var (
	// ErrRateLimited is returned when a call is denied before any attempt
	// because the resource's permit pool is exhausted.
	ErrRateLimited = errors.New("resilience: rate limit exceeded")

	// ErrCircuitOpen is returned when the circuit breaker denies a call.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrTimeout is returned when a single attempt exceeds its deadline.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrUnknownResource is returned by registry operations that address a
	// resource name with no registered instance.
	ErrUnknownResource = errors.New("resilience: unknown resource")
)

// ExhaustedError is returned after every retry attempt failed. It wraps the
// last attempt's error and carries the number of attempts consumed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("resilience: retry exhausted after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// AsExhausted reports whether err is (or wraps) an ExhaustedError.
func AsExhausted(err error) (*ExhaustedError, bool) {
	var e *ExhaustedError
	ok := errors.As(err, &e)
	return e, ok
}

// IsRejection reports whether err is a denial issued before the operation
// ran at all.
func IsRejection(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrCircuitOpen)
}
