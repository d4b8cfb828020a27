package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across queryflow.
type ErrorCode string

// Lifecycle error codes
const (
	ErrInvalidTransition  ErrorCode = "INVALID_TRANSITION"
	ErrTransitionBusy     ErrorCode = "TRANSITION_IN_PROGRESS"
	ErrEffectFailed       ErrorCode = "EFFECT_FAILED"
	ErrGuardRejected      ErrorCode = "GUARD_REJECTED"
	ErrQueryNotFound      ErrorCode = "QUERY_NOT_FOUND"
	ErrQueryAlreadyExists ErrorCode = "QUERY_ALREADY_EXISTS"
)

// Checkpoint / resume error codes
const (
	ErrInvalidState  ErrorCode = "INVALID_STATE"
	ErrNoCheckpoint  ErrorCode = "NO_CHECKPOINT"
	ErrInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrDurableTier   ErrorCode = "DURABLE_TIER"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	QueryID   string    `json:"query_id,omitempty"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
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

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithQuery records the query the error belongs to.
func (e *Error) WithQuery(queryID string) *Error {
	e.QueryID = queryID
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether any error in the chain carries the code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
