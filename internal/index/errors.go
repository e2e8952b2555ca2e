package index

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrOperationTimeout indicates a long-running operation did not reach a
// terminal state within the polling deadline. Distinct from OperationError
// so callers can decide to resume later instead of treating the operation as
// definitively failed.
var ErrOperationTimeout = errors.New("operation polling deadline exceeded")

// OperationError is the remote failure detail of a long-running operation
// that finished in the failed state.
type OperationError struct {
	Code    string
	Message string
}

func (e *OperationError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("index: operation failed: %s", e.Message)
	}
	return fmt.Sprintf("index: operation failed: %s: %s", e.Code, e.Message)
}

// APIError represents a non-success response from the index service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("index: API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("index: API error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound checks if the error indicates a resource was not found.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return false
}
