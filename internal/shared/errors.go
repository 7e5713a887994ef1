package shared

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrUnauthenticated = fmt.Errorf("unauthenticated")
	ErrRefreshFailed   = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken  = fmt.Errorf("no refresh token available")
	ErrStateMismatch   = fmt.Errorf("oauth state mismatch")

	// Transport and catalog errors
	ErrRateLimited = fmt.Errorf("rate limited")
	ErrTransport   = fmt.Errorf("transport error")
	ErrUnsupported = fmt.Errorf("capability not supported by destination")
	ErrNotFound    = fmt.Errorf("not found")
	ErrForbidden   = fmt.Errorf("forbidden")

	// Transfer errors
	ErrEmptySelection     = fmt.Errorf("empty selection")
	ErrCancelled          = fmt.Errorf("transfer cancelled")
	ErrTransferInProgress = fmt.Errorf("transfer already in progress")
	ErrUnknownDestination = fmt.Errorf("unknown destination")
	ErrInvalidTransition  = fmt.Errorf("invalid session transition")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// RateLimitError is returned for HTTP 429 responses. RetryAfter is zero when the server sent no hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Service    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: %v (retry after %s)", e.Service, ErrRateLimited, e.RetryAfter)
	}
	return fmt.Sprintf("%s: %v", e.Service, ErrRateLimited)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// RetryAfter extracts the server-provided delay from err, if any.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// IsRetryable reports whether an operation that failed with err may succeed when repeated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransport)
}
