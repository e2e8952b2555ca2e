package github

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError indicates the API rejected a request because the rate limit
// was exhausted. RetryAfter carries the server-specified wait before the next
// attempt may succeed.
type RateLimitError struct {
	RetryAfter time.Duration
	ResetAt    time.Time
	Remaining  int
	Limit      int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("github: rate limit exceeded, retry after %s", e.RetryAfter)
}

// APIError represents a GitHub API error response.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: API error %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// IsRateLimited checks if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	var rateLimitErr *RateLimitError
	return errors.As(err, &rateLimitErr)
}

// IsNotFound checks if the error indicates a resource was not found.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 404
	}
	return false
}

// IsUnauthorized checks if the error indicates an authentication failure.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401
	}
	return false
}
