package errors

import (
	"errors"
	"net/http"
)

// Standard error types surfaced by the order pipeline
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrInternal          = errors.New("internal server error")
	ErrTemporaryFailure  = errors.New("temporary failure")
	ErrPermanentFailure  = errors.New("permanent failure")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout           = errors.New("timeout")
	ErrRateLimited       = errors.New("rate limited")
)

// AppError represents a structured application error with context
type AppError struct {
	Err        error
	StatusCode int
	Message    string
	Retryable  bool
	Context    map[string]interface{}
}

// Error returns the error message
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithContext adds additional context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewValidationError creates a validation error with a caller-facing message
func NewValidationError(message string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		StatusCode: http.StatusBadRequest,
		Message:    message,
	}
}

// NewNotFoundError creates a not-found error for the given resource
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		StatusCode: http.StatusNotFound,
		Message:    message,
	}
}

// NewInvalidTransitionError creates an error for a rejected status transition
func NewInvalidTransitionError(message string) *AppError {
	return &AppError{
		Err:        ErrInvalidTransition,
		StatusCode: http.StatusConflict,
		Message:    message,
	}
}

// NewInternalError creates a non-retryable internal error
func NewInternalError(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		StatusCode: http.StatusInternalServerError,
		Message:    message,
	}
}

// NewTimeoutError creates a retryable timeout error
func NewTimeoutError(message string) *AppError {
	return &AppError{
		Err:        ErrTimeout,
		StatusCode: http.StatusGatewayTimeout,
		Message:    message,
		Retryable:  true,
	}
}

// NewTemporaryError creates a retryable transient error
func NewTemporaryError(message string) *AppError {
	return &AppError{
		Err:        ErrTemporaryFailure,
		StatusCode: http.StatusServiceUnavailable,
		Message:    message,
		Retryable:  true,
	}
}

// StatusCode maps an error to the HTTP status it should be reported with
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
