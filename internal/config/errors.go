package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single configuration validation failure.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add appends a new validation error. The optional value records the
// offending configuration value for diagnostics.
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// LoadError wraps a failure to read or parse the main configuration
// file. Callers treat it as a fatal startup condition, distinct from a
// runtime failure.
type LoadError struct {
	Path string
	Err  error
}

// Error implements the error interface
func (le *LoadError) Error() string {
	return fmt.Sprintf("error loading config from %s: %v", le.Path, le.Err)
}

// Unwrap returns the underlying error.
func (le *LoadError) Unwrap() error {
	return le.Err
}

// QueryFileError wraps a parse or template failure in a per-query
// configuration file with the file's path.
type QueryFileError struct {
	Path string
	Err  error
}

// Error implements the error interface
func (qe *QueryFileError) Error() string {
	return fmt.Sprintf("query config %s: %v", qe.Path, qe.Err)
}

// Unwrap returns the underlying error.
func (qe *QueryFileError) Unwrap() error {
	return qe.Err
}
