// Package schema defines the canonical message model shared by all agent
// protocol adapters.
//
// errors.go - Typed runtime errors
//
// RuntimeError carries a business error code alongside the human-readable
// message and any structured detail, so callers can distinguish protocol
// failures without string matching.

package schema

import "fmt"

// RuntimeError is a coded error surfaced to runtime callers
type RuntimeError struct {
	Code    string
	Message string
	Details map[string]any
}

// NewRuntimeError creates a coded runtime error
func NewRuntimeError(code, message string, details map[string]any) *RuntimeError {
	return &RuntimeError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
