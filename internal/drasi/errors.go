package drasi

import (
	"fmt"
	"time"
)

// ReadinessTimeoutError indicates a query did not become ready within
// the bootstrap readiness window.
type ReadinessTimeoutError struct {
	QueryID string
	Timeout time.Duration
}

// Error implements the error interface
func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("query %s did not become ready within %s", e.QueryID, e.Timeout)
}

// QueryFailedError indicates the management API reported a terminal
// status for a query, so waiting any longer cannot succeed.
type QueryFailedError struct {
	QueryID string
	Status  string
}

// Error implements the error interface
func (e *QueryFailedError) Error() string {
	return fmt.Sprintf("query %s is in terminal status %q", e.QueryID, e.Status)
}

// UnexpectedStatusError indicates an HTTP response with a status code
// the client cannot interpret.
type UnexpectedStatusError struct {
	URL        string
	StatusCode int
}

// Error implements the error interface
func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}
