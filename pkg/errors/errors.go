package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeNotFound is a missing user, message or content item
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeForbidden is a privacy or ownership violation
	ErrorTypeForbidden ErrorType = "forbidden"
	// ErrorTypeValidation is malformed caller input
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConflict is an operation that is illegal in the current state
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeTransientStorage is a storage failure that may succeed on retry
	ErrorTypeTransientStorage ErrorType = "transient_storage"
	// ErrorTypeUnauthorized is a missing or invalid identity
	ErrorTypeUnauthorized ErrorType = "unauthorized"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

func NewNotFound(message string) *BaseError {
	return NewBaseError(ErrorTypeNotFound, message, nil)
}

func NewForbidden(message string) *BaseError {
	return NewBaseError(ErrorTypeForbidden, message, nil)
}

func NewValidation(message string, err error) *BaseError {
	return NewBaseError(ErrorTypeValidation, message, err)
}

func NewConflict(message string) *BaseError {
	return NewBaseError(ErrorTypeConflict, message, nil)
}

func NewUnauthorized(message string) *BaseError {
	return NewBaseError(ErrorTypeUnauthorized, message, nil)
}

// NewTransientStorage wraps a storage failure that is worth one more attempt.
func NewTransientStorage(operation string, err error) *BaseError {
	return NewBaseError(ErrorTypeTransientStorage, fmt.Sprintf("storage operation failed: %s", operation), err)
}

// TypeOf returns the category of the first BaseError in the chain, or "" if none.
func TypeOf(err error) ErrorType {
	var base *BaseError
	if stderrors.As(err, &base) {
		return base.Type
	}
	return ""
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	return err != nil && TypeOf(err) == errType
}

// IsRetryable reports whether err is worth retrying. Context cancellation never is.
func IsRetryable(err error) bool {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return IsErrorType(err, ErrorTypeTransientStorage)
}
