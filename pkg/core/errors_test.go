package core

import (
	"errors"
	"net/http"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrInvalidRequest,
		Message: "invalid tts model",
	}

	expected := "invalid_request_error: invalid tts model"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithCode(t *testing.T) {
	err := &Error{
		Type:    ErrRateLimit,
		Message: "too many requests",
		Code:    "rate_limit_exceeded",
	}

	expected := "rate_limit_error: too many requests (code: rate_limit_exceeded)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequestError(t *testing.T) {
	err := NewInvalidRequestError("bad request")
	if err.Type != ErrInvalidRequest {
		t.Errorf("Type = %v, want %v", err.Type, ErrInvalidRequest)
	}
	if err.Message != "bad request" {
		t.Errorf("Message = %q, want %q", err.Message, "bad request")
	}
}

func TestNewConnectionError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := NewConnectionError("join room", cause)

	if err.Type != ErrConnection {
		t.Errorf("Type = %v, want %v", err.Type, ErrConnection)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestNewProtocolError(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := NewProtocolError("malformed control message", cause)

	if err.Type != ErrProtocol {
		t.Errorf("Type = %v, want %v", err.Type, ErrProtocol)
	}
	if errors.Unwrap(err) != cause {
		t.Errorf("Unwrap() = %v, want %v", errors.Unwrap(err), cause)
	}
}

func TestFromStatusCode(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{http.StatusBadRequest, ErrInvalidRequest},
		{http.StatusUnauthorized, ErrAuthentication},
		{http.StatusForbidden, ErrAuthentication},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusTooManyRequests, ErrRateLimit},
		{http.StatusInternalServerError, ErrAPI},
		{http.StatusServiceUnavailable, ErrOverloaded},
		{http.StatusBadGateway, ErrAPI},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := FromStatusCode(tt.status, "test")
			if err.Type != tt.want {
				t.Errorf("FromStatusCode(%d).Type = %v, want %v", tt.status, err.Type, tt.want)
			}
			if err.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", err.StatusCode, tt.status)
			}
		})
	}
}

func TestError_IsRetryable(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    bool
	}{
		{ErrRateLimit, true},
		{ErrOverloaded, true},
		{ErrAPI, true},
		{ErrConnection, true},
		{ErrTimeout, true},
		{ErrInvalidRequest, false},
		{ErrAuthentication, false},
		{ErrNotFound, false},
		{ErrProtocol, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			err := &Error{Type: tt.errType, Message: "test"}
			if got := err.IsRetryable(); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
