package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Request error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrInvalidURL     ErrorCode = "INVALID_URL"
	ErrAuthentication ErrorCode = "AUTHENTICATION"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrForbidden      ErrorCode = "FORBIDDEN"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrUserNotFound   ErrorCode = "USER_NOT_FOUND"
	ErrToolNotFound   ErrorCode = "TOOL_NOT_FOUND"
	ErrToolValidation ErrorCode = "TOOL_VALIDATION"
)

// Pipeline error codes
const (
	ErrFetchFailed         ErrorCode = "FETCH_FAILED"
	ErrPayloadTooLarge     ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrDecodeFailed        ErrorCode = "DECODE_FAILED"
	ErrEncodeFailed        ErrorCode = "ENCODE_FAILED"
	ErrInsufficientResults ErrorCode = "INSUFFICIENT_RESULTS"
	ErrEmitFailed          ErrorCode = "EMIT_FAILED"
)

// Upstream / infrastructure error codes
const (
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
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

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the backend name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// AsError extracts a *Error from anywhere in the error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsErrorCode reports whether the chain contains an *Error with the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// WrapError wraps err into an *Error unless it already carries one.
func WrapError(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}
	return NewError(code, message).WithCause(err)
}
