package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind represents the category of error
type ErrorKind string

const (
	// ErrorKindConfiguration represents malformed or missing connection definitions (fatal, no retry)
	ErrorKindConfiguration ErrorKind = "configuration"
	// ErrorKindAuthentication represents bad credentials (fatal, no retry)
	ErrorKindAuthentication ErrorKind = "authentication"
	// ErrorKindConnectivity represents network failures (retried with backoff, then surfaced)
	ErrorKindConnectivity ErrorKind = "connectivity"
	// ErrorKindRejectedOperation represents non-read SQL blocked by validation
	ErrorKindRejectedOperation ErrorKind = "rejected_operation"
	// ErrorKindPermissionDenied represents a write policy violation
	ErrorKindPermissionDenied ErrorKind = "permission_denied"
	// ErrorKindQueryExecution represents a backend-reported SQL error
	ErrorKindQueryExecution ErrorKind = "query_execution"
	// ErrorKindTimeout represents pool-acquisition or query deadline expiry
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindInternal represents unexpected gateway failures
	ErrorKindInternal ErrorKind = "internal"
)

// GatewayError is the structured error surfaced by every gateway operation.
// Messages never contain credentials or filesystem paths.
type GatewayError struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface
func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap allows error unwrapping
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// StatusCode maps the error kind to an HTTP status for the API layer.
func (e *GatewayError) StatusCode() int {
	switch e.Kind {
	case ErrorKindConfiguration:
		return http.StatusNotFound
	case ErrorKindAuthentication:
		return http.StatusUnauthorized
	case ErrorKindRejectedOperation:
		return http.StatusBadRequest
	case ErrorKindPermissionDenied:
		return http.StatusForbidden
	case ErrorKindConnectivity:
		return http.StatusBadGateway
	case ErrorKindQueryExecution:
		return http.StatusUnprocessableEntity
	case ErrorKindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// KindOf returns the error kind of err, or ErrorKindInternal for plain errors.
func KindOf(err error) ErrorKind {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ErrorKindInternal
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(message string, cause error) *GatewayError {
	return &GatewayError{Kind: ErrorKindConfiguration, Message: message, Cause: cause}
}

// NewAuthenticationError creates an authentication error
func NewAuthenticationError(message string, cause error) *GatewayError {
	return &GatewayError{Kind: ErrorKindAuthentication, Message: message, Cause: cause}
}

// NewConnectivityError creates a retryable connectivity error
func NewConnectivityError(message string, cause error) *GatewayError {
	return &GatewayError{Kind: ErrorKindConnectivity, Message: message, Retryable: true, Cause: cause}
}

// NewRejectedOperationError creates a validation rejection
func NewRejectedOperationError(message string) *GatewayError {
	return &GatewayError{Kind: ErrorKindRejectedOperation, Message: message}
}

// NewPermissionDeniedError creates a write policy violation
func NewPermissionDeniedError(message string) *GatewayError {
	return &GatewayError{Kind: ErrorKindPermissionDenied, Message: message}
}

// NewQueryExecutionError creates a backend-reported SQL error
func NewQueryExecutionError(message string, cause error) *GatewayError {
	return &GatewayError{Kind: ErrorKindQueryExecution, Message: message, Cause: cause}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(operation string, cause error) *GatewayError {
	return &GatewayError{
		Kind:      ErrorKindTimeout,
		Message:   fmt.Sprintf("operation %s timed out", operation),
		Retryable: true,
		Cause:     cause,
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *GatewayError {
	return &GatewayError{Kind: ErrorKindInternal, Message: message, Cause: cause}
}
