package bootstrap

import "fmt"

// Error marks a failed query bootstrap. The reaction cannot serve a
// partial result surface, so any bootstrap failure is fatal to startup
// and callers branch on this type when choosing the process exit code.
type Error struct {
	QueryID string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("bootstrap of query %s failed: %v", e.QueryID, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}
