// Package errors provides structured error handling with context propagation and HTTP status code mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error for response formatting and metrics.
type ErrorType string

const (
	// TypeValidation indicates a missing or invalid command argument (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeState indicates a command invalid for the current playback state (HTTP 409)
	TypeState ErrorType = "state"
	// TypeAuth indicates a rejected or missing authentication (HTTP 401)
	TypeAuth ErrorType = "auth"
	// TypeNotFound indicates an unknown session or target (HTTP 404)
	TypeNotFound ErrorType = "not_found"
	// TypeTransport indicates a failed write to the session channel (HTTP 502)
	TypeTransport ErrorType = "transport"
	// TypeLiveness indicates a heartbeat timeout (HTTP 408)
	TypeLiveness ErrorType = "liveness"
	// TypeInternal indicates a server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
)

// Error represents a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeState:
		return http.StatusConflict
	case TypeAuth:
		return http.StatusUnauthorized
	case TypeNotFound:
		return http.StatusNotFound
	case TypeTransport:
		return http.StatusBadGateway
	case TypeLiveness:
		return http.StatusRequestTimeout
	case TypeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError creates a new validation error (HTTP 400).
func ValidationError(message string) *Error {
	return &Error{
		Type:    TypeValidation,
		Message: message,
		Context: make(map[string]any),
	}
}

// StateError creates a new state error: the command is legal but not in the
// session's current playback state (HTTP 409).
func StateError(message string) *Error {
	return &Error{
		Type:    TypeState,
		Message: message,
		Context: make(map[string]any),
	}
}

// AuthError creates a new authentication error (HTTP 401).
func AuthError(message string) *Error {
	return &Error{
		Type:    TypeAuth,
		Message: message,
		Context: make(map[string]any),
	}
}

// NotFoundError creates a new not-found error (HTTP 404).
func NotFoundError(message string) *Error {
	return &Error{
		Type:    TypeNotFound,
		Message: message,
		Context: make(map[string]any),
	}
}

// TransportError creates a new transport error wrapping a failed channel write.
func TransportError(message string, cause error) *Error {
	return &Error{
		Type:    TypeTransport,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// LivenessError creates a new liveness-timeout error.
func LivenessError(message string) *Error {
	return &Error{
		Type:    TypeLiveness,
		Message: message,
		Context: make(map[string]any),
	}
}

// InternalError creates a new internal error (HTTP 500).
func InternalError(message string, cause error) *Error {
	return &Error{
		Type:    TypeInternal,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// WithContext adds context fields to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse represents the JSON structure sent to clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

// ToResponse converts an Error to an ErrorResponse for JSON serialization.
func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

// AsStructuredError converts any error into a structured Error.
// If err is already an *Error, returns it unchanged.
// Otherwise wraps it as an internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return InternalError("internal server error", err)
}
