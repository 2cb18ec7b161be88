package github

import (
	"errors"
	"fmt"
	"time"
)

// ErrorClass is the single place request failures are classified. Callers
// branch on the class, never on raw HTTP status codes, so retry and
// surfacing policy lives here and nowhere else.
type ErrorClass string

const (
	// ClassAuth is an invalid or revoked token (401). Not retryable; the
	// session holding the token should be cleared.
	ClassAuth ErrorClass = "auth"

	// ClassForbidden is a 403 that is not rate limiting.
	ClassForbidden ErrorClass = "forbidden"

	// ClassRateLimited is a primary or secondary rate limit hit.
	// Retryable after the provider-specified delay.
	ClassRateLimited ErrorClass = "rate_limited"

	// ClassNotFound is a 404. Contextual: sometimes expected, as in the
	// sync engine's SHA-conflict probe.
	ClassNotFound ErrorClass = "not_found"

	// ClassValidation is a 422 with details. Not retryable.
	ClassValidation ErrorClass = "validation"

	// ClassServer is a 5xx. Retryable, bounded.
	ClassServer ErrorClass = "server"

	// ClassClient is any other 4xx. Not retryable.
	ClassClient ErrorClass = "client"
)

// APIError is a classified GitHub API failure. Message is human-readable;
// Body preserves the raw response for diagnostics.
type APIError struct {
	Status     int
	Class      ErrorClass
	Message    string
	Body       string
	RetryAfter time.Duration // nonzero when the provider told us how long to wait
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("github: %s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("github: request failed with status %d", e.Status)
}

// Retryable reports whether the failure class is transient.
func (e *APIError) Retryable() bool {
	return e.Class == ClassRateLimited || e.Class == ClassServer
}

// IsClass reports whether err is an APIError of the given class.
func IsClass(err error, class ErrorClass) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Class == class
}

// IsNotFound reports whether err is a 404-class APIError.
func IsNotFound(err error) bool {
	return IsClass(err, ClassNotFound)
}

// IsAuth reports whether err is a 401-class APIError.
func IsAuth(err error) bool {
	return IsClass(err, ClassAuth)
}
