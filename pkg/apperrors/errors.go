package apperrors

import (
	"fmt"
	"net/http"
)

// AppError represents an application error
type AppError struct {
	Code    int
	Message string
	Err     error
}

// Error returns the error message
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, err error) *AppError {
	return &AppError{
		Code:    http.StatusNotFound,
		Message: message,
		Err:     err,
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string, err error) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Message: message,
		Err:     err,
	}
}

// NewInternalServerError creates a new internal server error
func NewInternalServerError(message string, err error) *AppError {
	return &AppError{
		Code:    http.StatusInternalServerError,
		Message: message,
		Err:     err,
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string, err error) *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Message: message,
		Err:     err,
	}
}

// Response represents an error response
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// NewErrorResponse creates a new error response
func NewErrorResponse(message string, err error) Response {
	return Response{
		Success: false,
		Message: message,
		Error:   err.Error(),
	}
}

// ConfigurationError signals an invalid timeframe label, unsupported base
// timeframe, unreachable aggregation target, or a missing required
// ingestion setting. It is fatal at startup and is also used for
// programmer errors such as asking the exchange client for a timeframe
// unit it has no endpoint for.
type ConfigurationError struct {
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(message string, err error) *ConfigurationError {
	return &ConfigurationError{Message: message, Err: err}
}

// TransportError wraps a failure talking to the exchange after retries
// have been exhausted (5xx, timeout, connectivity). HTTP 429 is not a
// TransportError: it is absorbed by the rate limiter and retried.
type TransportError struct {
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError creates a new TransportError.
func NewTransportError(message string, err error) *TransportError {
	return &TransportError{Message: message, Err: err}
}

// ServiceUnavailableError is returned by the consumer surface while the
// ingest-ready gate is closed (before the first successful initial cycle).
type ServiceUnavailableError struct {
	Message string
}

func (e *ServiceUnavailableError) Error() string { return e.Message }

// NewServiceUnavailableError creates a new ServiceUnavailableError.
func NewServiceUnavailableError(message string) *ServiceUnavailableError {
	return &ServiceUnavailableError{Message: message}
}
