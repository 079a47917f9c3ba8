package store

import "fmt"

// UnknownQueryError indicates that an operation referenced a query that has
// no registered metadata.
type UnknownQueryError struct {
	QueryID string
}

func (e *UnknownQueryError) Error() string {
	return fmt.Sprintf("unknown query %q", e.QueryID)
}

// EntryNotFoundError indicates that a resource read named an entry that does
// not exist in the materialized view.
type EntryNotFoundError struct {
	URI string
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("entry not found for %s", e.URI)
}

// InvalidURIError indicates that a string could not be parsed as a resource
// URI of this reaction.
type InvalidURIError struct {
	URI    string
	Reason string
}

func (e *InvalidURIError) Error() string {
	return fmt.Sprintf("invalid resource URI %q: %s", e.URI, e.Reason)
}
