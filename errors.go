package boxmgr

import (
	"errors"
	"fmt"
)

// Common errors returned by supervisor operations
var (
	// ErrConfigNotSet indicates no configuration is marked active in the store
	ErrConfigNotSet = errors.New("boxmgr: config is not set")

	// ErrCorePathNotSet indicates the store has no core binary path
	ErrCorePathNotSet = errors.New("boxmgr: core path is not set")

	// ErrInvalidConfig indicates the active configuration is not a JSON object
	ErrInvalidConfig = errors.New("boxmgr: invalid config document")

	// ErrInvalidCore indicates a binary did not answer the version query like a core does
	ErrInvalidCore = errors.New("boxmgr: not a usable core binary")

	// ErrStdinUnavailable indicates the spawned core has no usable input channel
	ErrStdinUnavailable = errors.New("boxmgr: core stdin is not piped")

	// ErrClosed indicates the supervisor has been closed
	ErrClosed = errors.New("boxmgr: supervisor is closed")
)

// OpError represents an error from a supervisor operation
type OpError struct {
	// Op is the operation that failed
	Op Operation
	// Path is the file path involved in the operation
	Path string
	// Err is the underlying error
	Err error
}

// Error returns a formatted error message
func (e *OpError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("boxmgr %s: %v", e.Op.String(), e.Err)
	}
	return fmt.Sprintf("boxmgr %s %q: %v", e.Op.String(), e.Path, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *OpError) Unwrap() error {
	return e.Err
}

// MultiError aggregates multiple errors from teardown paths
type MultiError struct {
	// Errors contains all accumulated errors
	Errors []error
}

// Error returns a summary of the accumulated errors
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred", len(m.Errors))
}

// Add appends an error to the collection if it's not nil
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Unwrap exposes the accumulated errors to errors.Is and errors.As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Err returns nil if no errors occurred, otherwise returns the MultiError itself
func (m *MultiError) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}
