package util

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Common error types for shardexec
var (
	// ErrInvalidConfig indicates a configuration error
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrShardNotFound indicates a shard was not found in the configuration
	ErrShardNotFound = errors.New("shard not found")

	// ErrConnectionFailed indicates a connection failure
	ErrConnectionFailed = errors.New("connection failed")

	// ErrTimeout indicates a statement or command ran out of time
	ErrTimeout = errors.New("operation timed out")

	// ErrCancelled indicates a statement or command was cancelled
	ErrCancelled = errors.New("operation cancelled")

	// ErrPoolShutdown indicates the worker pool no longer accepts tasks
	ErrPoolShutdown = errors.New("worker pool is shut down")

	// ErrUnsupported indicates the backend cannot honour the requested call shape
	ErrUnsupported = errors.New("unsupported by backend")
)

// BackendError is the failure of one physical call against one backend.
// It records the target backend and the command text that failed.
type BackendError struct {
	Backend string
	SQL     string
	Err     error
}

// Error implements the error interface
func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %q: %v (sql: %s)", e.Backend, e.Err, truncate(e.SQL, 80))
}

// Unwrap returns the wrapped error for errors.Is/As compatibility
func (e *BackendError) Unwrap() error {
	return e.Err
}

// WrapBackendError wraps an error with backend context
func WrapBackendError(backend, sql string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) && be.Backend == backend {
		return err
	}
	return &BackendError{
		Backend: backend,
		SQL:     sql,
		Err:     err,
	}
}

// MultiError aggregates multiple errors
type MultiError struct {
	Errors []error
}

// Error implements the error interface
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:", len(m.Errors)))
	for i, err := range m.Errors {
		if i < 10 { // Limit to first 10 errors in the message
			sb.WriteString(fmt.Sprintf("\n  %d. %v", i+1, err))
		} else if i == 10 {
			sb.WriteString(fmt.Sprintf("\n  ... and %d more errors", len(m.Errors)-10))
			break
		}
	}
	return sb.String()
}

// Unwrap returns the errors for errors.Is/As compatibility
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add adds an error to the multi-error
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// ErrorOrNil returns nil if no errors were added, otherwise returns the MultiError
func (m *MultiError) ErrorOrNil() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	if v.Value != nil {
		return fmt.Sprintf("validation failed for field %q (value: %v): %s", v.Field, v.Value, v.Message)
	}
	return fmt.Sprintf("validation failed for field %q: %s", v.Field, v.Message)
}

// Unwrap lets validation failures match ErrInvalidConfig
func (v *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// NewValidationError creates a new validation error
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// IsBackendError reports whether err came from a physical backend call
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// IsTimeout reports whether --timeout or a driver deadline ended the operation
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsCancelled reports whether the operation was interrupted
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrShardNotFound)
}

// IsConnectionError checks if an error is a connection error
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnectionFailed)
}

// FriendlyError converts technical errors to user-friendly messages
func FriendlyError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case IsTimeout(err):
		return "Operation timed out. Please try again or increase the timeout value with --timeout flag."
	case IsCancelled(err):
		return "Operation was cancelled."
	case IsNotFound(err):
		return "Shard not found. Please check the shard name with 'shardexec shard list'."
	case IsConnectionError(err):
		return "Failed to connect to shard. Please check the shard DSN and network connectivity."
	case errors.Is(err, ErrInvalidConfig):
		return "Invalid configuration. Please check your config file and command-line flags."
	case errors.Is(err, ErrPoolShutdown):
		return "The executor is shutting down."
	case errors.Is(err, ErrUnsupported):
		return "The backend does not support this statement form."
	case IsBackendError(err):
		var be *BackendError
		errors.As(err, &be)
		return fmt.Sprintf("Statement failed on shard %s: %v", be.Backend, be.Err)
	default:
		return err.Error()
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
