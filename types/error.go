package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

// Precondition error codes
const (
	ErrNotInitialized ErrorCode = "NOT_INITIALIZED"
	ErrCorrupted      ErrorCode = "CORRUPTED"
	ErrAlreadyRun     ErrorCode = "ALREADY_RUN"
	ErrAlreadyWritten ErrorCode = "ALREADY_WRITTEN"
	ErrAlreadyFlushed ErrorCode = "ALREADY_FLUSHED"
	ErrAlreadyLooping ErrorCode = "ALREADY_LOOPING"
	ErrDuplicateEdge  ErrorCode = "DUPLICATE_EDGE"
	ErrForeignEdge    ErrorCode = "FOREIGN_EDGE"
	ErrEdgeExists     ErrorCode = "EDGE_EXISTS"
	ErrEdgeNotFound   ErrorCode = "EDGE_NOT_FOUND"
	ErrNodeExists     ErrorCode = "NODE_EXISTS"
	ErrNodeNotFound   ErrorCode = "NODE_NOT_FOUND"
	ErrNodeOwned      ErrorCode = "NODE_OWNED"
)

// Usage error codes
const (
	ErrNoWorkflows   ErrorCode = "NO_WORKFLOWS"
	ErrNoEntryNodes  ErrorCode = "NO_ENTRY_NODES"
	ErrInvalidKind   ErrorCode = "INVALID_KIND"
	ErrInvalidConfig ErrorCode = "INVALID_CONFIG"
)

// Stage error codes for aggregate failures
const (
	ErrPushFailed  ErrorCode = "PUSH_FAILED"
	ErrRunFailed   ErrorCode = "RUN_FAILED"
	ErrWriteFailed ErrorCode = "WRITE_FAILED"
	ErrFlushFailed ErrorCode = "FLUSH_FAILED"
	ErrInitFailed  ErrorCode = "INIT_FAILED"
)

// Error represents a structured error with code, message, and cause.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// GetErrorCode extracts the error code from an error chain, preferring
// the outermost coded error.
func GetErrorCode(err error) ErrorCode {
	switch e := err.(type) {
	case *Error:
		return e.Code
	case *AggregateError:
		return e.Code
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var agg *AggregateError
	if errors.As(err, &agg) {
		return agg.Code
	}
	return ""
}

// IsCode reports whether any error in the chain carries the given code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}
		var agg *AggregateError
		if errors.As(err, &agg) {
			if agg.Code == code {
				return true
			}
			for _, cause := range agg.Causes {
				if IsCode(cause, code) {
					return true
				}
			}
			return false
		}
		err = errors.Unwrap(err)
	}
	return false
}

// AggregateError wraps the failures of multiple independent concurrent
// operations under a single stage-level message. The full cause list is
// always preserved; callers inspect it via Causes or errors.Is/As.
type AggregateError struct {
	Code    ErrorCode
	Message string
	Causes  []error
}

// NewAggregateError creates an aggregate error from the non-nil entries
// of causes. Returns nil when every cause is nil.
func NewAggregateError(code ErrorCode, message string, causes ...error) *AggregateError {
	kept := make([]error, 0, len(causes))
	for _, c := range causes {
		if c != nil {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return &AggregateError{Code: code, Message: message, Causes: kept}
}

// Error implements the error interface.
func (e *AggregateError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s (%d cause", e.Code, e.Message, len(e.Causes))
	if len(e.Causes) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString(")")
	for _, cause := range e.Causes {
		sb.WriteString("\n\t")
		sb.WriteString(cause.Error())
	}
	return sb.String()
}

// Unwrap returns the cause list so errors.Is and errors.As traverse
// every underlying failure, matching the errors.Join contract.
func (e *AggregateError) Unwrap() []error {
	return e.Causes
}
