package mal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
)

// AuthError means the user has no usable MAL credentials: missing token,
// missing refresh token, or a rejected refresh. Never retried.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mal auth: %s: %v", e.Reason, e.Err)
	}
	return "mal auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError is a non-2xx response from the MAL API, kept with enough context
// to identify the failing call after retries are exhausted.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api: status %d: %s", e.Service, e.StatusCode, e.Body)
}

// RateLimitError is an explicit 429, carrying the server's Retry-After hint
// when one was supplied.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("mal api: rate limited, retry after %s", e.RetryAfter)
	}
	return "mal api: rate limited"
}

// IsRetryable classifies an error for the retry loop: transport failures,
// timeouts, 429 and 5xx are transient; auth failures and client errors
// propagate immediately.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false
	}
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
