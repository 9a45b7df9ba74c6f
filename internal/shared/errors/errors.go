package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an AppError.
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "VALIDATION_ERROR"
	ErrorTypeAuthentication ErrorType = "AUTHENTICATION_ERROR"
	ErrorTypeNotFound       ErrorType = "NOT_FOUND_ERROR"
	ErrorTypeConflict       ErrorType = "CONFLICT_ERROR"
	ErrorTypeInternal       ErrorType = "INTERNAL_ERROR"

	// Replica and pipeline failures.
	ErrorTypeSnapshot     ErrorType = "SNAPSHOT_FETCH_ERROR"
	ErrorTypeSubscription ErrorType = "SUBSCRIPTION_ERROR"
	ErrorTypeUpload       ErrorType = "UPLOAD_ERROR"
	ErrorTypePersistence  ErrorType = "PERSISTENCE_ERROR"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrBatchInFlight     = errors.New("an upload batch is already in flight")
	ErrEmptyBatch        = errors.New("at least one file is required")
)

// AppError represents an application error with context
type AppError struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	HTTPCode  int                    `json:"-"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Component string                 `json:"component,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string, httpCode int) *AppError {
	return &AppError{
		Type:     errorType,
		Message:  message,
		HTTPCode: httpCode,
		Details:  make(map[string]interface{}),
	}
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithCause adds the underlying cause
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithComponent adds the component name
func (e *AppError) WithComponent(component string) *AppError {
	e.Component = component
	return e
}

// WithDetail adds a detail field
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func NewValidationError(message string) *AppError {
	return NewAppError(ErrorTypeValidation, message, http.StatusBadRequest)
}

func NewAuthenticationError(message string) *AppError {
	return NewAppError(ErrorTypeAuthentication, message, http.StatusUnauthorized)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewConflictError(message string) *AppError {
	return NewAppError(ErrorTypeConflict, message, http.StatusConflict)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, message, http.StatusInternalServerError)
}

// NewSnapshotFetchError marks a failed seed read. It is absorbed by the fallback, never shown to users.
func NewSnapshotFetchError(collection string, cause error) *AppError {
	return NewAppError(ErrorTypeSnapshot, "snapshot fetch failed", http.StatusBadGateway).
		WithDetail("collection", collection).
		WithCause(cause)
}

// NewSubscriptionError marks a change stream that could not be opened.
func NewSubscriptionError(collection string, cause error) *AppError {
	return NewAppError(ErrorTypeSubscription, "subscription failed", http.StatusBadGateway).
		WithDetail("collection", collection).
		WithCause(cause)
}

// NewUploadError reports the file that aborted a batch.
func NewUploadError(fileName string, index int, cause error) *AppError {
	return NewAppError(ErrorTypeUpload, fmt.Sprintf("upload of %q failed", fileName), http.StatusBadGateway).
		WithDetail("file", fileName).
		WithDetail("index", index).
		WithCause(cause)
}

// NewPersistenceError reports a failed insert, update or delete.
func NewPersistenceError(operation string, cause error) *AppError {
	return NewAppError(ErrorTypePersistence, operation+" failed", http.StatusInternalServerError).
		WithDetail("operation", operation).
		WithCause(cause)
}

// WrapError wraps an error with context
func WrapError(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError(message).WithCause(err)
}

// TypeOf returns the AppError type found in err's chain, or "".
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// HTTPStatus returns the status code to answer with for err.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPCode != 0 {
		return appErr.HTTPCode
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnknownCollection):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound || errors.Is(err, ErrNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return TypeOf(err) == ErrorTypeValidation || errors.Is(err, ErrInvalidInput)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return TypeOf(err) == ErrorTypeConflict
}

func IsUpload(err error) bool       { return TypeOf(err) == ErrorTypeUpload }
func IsPersistence(err error) bool  { return TypeOf(err) == ErrorTypePersistence }
func IsSubscription(err error) bool { return TypeOf(err) == ErrorTypeSubscription }
func IsSnapshot(err error) bool     { return TypeOf(err) == ErrorTypeSnapshot }
