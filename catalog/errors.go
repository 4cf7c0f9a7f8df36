package catalog

import "errors"

// Domain errors. These describe the request, not the health of the catalog,
// so the resilience layer neither retries them nor counts them against the
// circuit breaker.
var (
	ErrNotFound  = errors.New("catalog: product not found")
	ErrInvalidID = errors.New("catalog: invalid product id")
)

// DomainErrors returns the error classes that should never trip a breaker.
func DomainErrors() []error {
	return []error{ErrNotFound, ErrInvalidID}
}

// IsTransient reports whether err looks like an infrastructure fault worth
// retrying, as opposed to a domain answer.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	for _, domain := range DomainErrors() {
		if errors.Is(err, domain) {
			return false
		}
	}
	return true
}
