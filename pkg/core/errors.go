package core

import (
	"fmt"
	"net/http"
)

// Error represents a session API error.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Param      string    `json:"param,omitempty"`
	Code       string    `json:"code,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
	ErrOverloaded     ErrorType = "overloaded_error"
	ErrConnection     ErrorType = "connection_error"
	ErrTimeout        ErrorType = "timeout_error"
	ErrProtocol       ErrorType = "protocol_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
		Param:   param,
	}
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *Error {
	return &Error{
		Type:    ErrAuthentication,
		Message: message,
	}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{
		Type:    ErrNotFound,
		Message: message,
	}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}

// NewConnectionError creates a connection error wrapping the underlying cause.
// It covers credential exchange failures and media transport setup failures.
func NewConnectionError(op string, cause error) *Error {
	return &Error{
		Type:    ErrConnection,
		Message: fmt.Sprintf("%s: %v", op, cause),
		Cause:   cause,
	}
}

// NewTimeoutError creates a timeout error for the named operation.
func NewTimeoutError(op string) *Error {
	return &Error{
		Type:    ErrTimeout,
		Message: fmt.Sprintf("%s timed out", op),
	}
}

// NewProtocolError creates an error for a malformed control message.
func NewProtocolError(message string, cause error) *Error {
	return &Error{
		Type:    ErrProtocol,
		Message: message,
		Cause:   cause,
	}
}

// FromStatusCode maps an HTTP response status to a typed error.
func FromStatusCode(statusCode int, message string) *Error {
	e := &Error{Message: message, StatusCode: statusCode}
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e.Type = ErrAuthentication
	case statusCode == http.StatusNotFound:
		e.Type = ErrNotFound
	case statusCode == http.StatusTooManyRequests:
		e.Type = ErrRateLimit
	case statusCode == http.StatusBadRequest:
		e.Type = ErrInvalidRequest
	case statusCode == http.StatusServiceUnavailable:
		e.Type = ErrOverloaded
	case statusCode >= 500:
		e.Type = ErrAPI
	default:
		e.Type = ErrAPI
	}
	return e
}

// IsRetryable returns true if the error is retryable.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrOverloaded, ErrAPI, ErrConnection, ErrTimeout:
		return true
	default:
		return false
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Cause
}
