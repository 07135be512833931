package gateway

import (
	"context"
	"errors"
	"net"
)

// Typed upstream errors. Transient ones are retried with backoff; everything
// else propagates to the caller on the first attempt.
var (
	// ErrThrottled is an explicit rate-limit signal from the upstream (429).
	ErrThrottled = errors.New("gateway: throttled by upstream")

	// ErrUnavailable is a transient upstream failure (5xx).
	ErrUnavailable = errors.New("gateway: upstream unavailable")

	// ErrNotFound means the identifier does not exist upstream (404).
	ErrNotFound = errors.New("gateway: not found")

	// ErrUnauthorized means the credentials were rejected (401/403).
	ErrUnauthorized = errors.New("gateway: unauthorized")

	// ErrInvalidRequest means the request was malformed (4xx other than the above).
	ErrInvalidRequest = errors.New("gateway: invalid request")
)

// IsTransient reports whether an error class is inherently transient:
// explicit throttling, upstream 5xx, and timeouts. Timeouts count toward the
// bounded retry budget like any other transient failure.
// Parameters:
//   - err: error to classify.
// Returns:
//   - bool: true when the error should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrThrottled) || errors.Is(err, ErrUnavailable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
