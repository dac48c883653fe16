// Package utils provides shared helpers for the guard service: the error
// taxonomy, the standardized JSON response envelope, and client IP
// resolution.
package utils

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/guardpost/guardpost/internal/constants"
)

// Sentinel errors for the guard error taxonomy. Handlers and callers
// distinguish outcomes with errors.Is against these values, never by
// string matching.
var (
	// ErrInvalidRequest marks a request that cannot be evaluated at all,
	// such as a missing or malformed client IP. This is distinct from a
	// policy outcome: the decision engine refuses to answer rather than
	// defaulting to allow or deny.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrGeoLookupUnavailable marks a failed geo database lookup. It is
	// never surfaced per-request; the resolver degrades to the unknown
	// sentinel instead.
	ErrGeoLookupUnavailable = errors.New("geo lookup unavailable")

	// ErrStorageIO marks a failed write-through to durable rule storage.
	// The mutation is rejected as a whole, never partially applied.
	ErrStorageIO = errors.New("rule storage I/O error")

	// ErrLogIO marks a failed access log write. Non-fatal to the request
	// but reported operationally.
	ErrLogIO = errors.New("access log I/O error")

	// ErrAuth marks an administrative call with a missing or incorrect
	// secret token.
	ErrAuth = errors.New("authentication error")

	// ErrNotFound marks a lookup for a rule that does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrValidation marks a rule payload that fails validation.
	ErrValidation = errors.New("validation error")
)

// AppError carries an error with the HTTP-facing context needed to build
// a response envelope.
type AppError struct {
	Err        error  // The underlying sentinel error
	StatusCode int    // HTTP status code
	Code       string // Machine-readable error code
	Message    string // Human-readable error message
	DevInfo    string // Additional information for operators, never sent to clients
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error so errors.Is works against the
// taxonomy sentinels.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewInvalidRequestError creates an error for a request that cannot be
// evaluated.
func NewInvalidRequestError(message string) *AppError {
	if message == "" {
		message = constants.MsgInvalidIP
	}
	return &AppError{
		Err:        ErrInvalidRequest,
		StatusCode: http.StatusBadRequest,
		Code:       constants.CodeInvalidRequest,
		Message:    message,
	}
}

// NewValidationError creates an error for a rule payload that fails
// validation.
func NewValidationError(message string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		StatusCode: http.StatusBadRequest,
		Code:       constants.CodeValidationError,
		Message:    message,
	}
}

// NewAuthError creates an error for an administrative call lacking the
// correct secret token.
func NewAuthError() *AppError {
	return &AppError{
		Err:        ErrAuth,
		StatusCode: http.StatusUnauthorized,
		Code:       constants.CodeAuthError,
		Message:    constants.MsgAuthRequired,
	}
}

// NewNotFoundError creates an error for a missing resource.
func NewNotFoundError(resourceType string, identifier interface{}) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		StatusCode: http.StatusNotFound,
		Code:       constants.CodeNotFound,
		Message:    fmt.Sprintf("%s with identifier '%v' not found", resourceType, identifier),
	}
}

// NewStorageError creates an error for a failed write-through to durable
// rule storage. The wrapped cause stays in DevInfo for operators.
func NewStorageError(err error) *AppError {
	devInfo := ""
	if err != nil {
		devInfo = err.Error()
	}
	return &AppError{
		Err:        ErrStorageIO,
		StatusCode: http.StatusInternalServerError,
		Code:       constants.CodeStorageError,
		Message:    "Rule storage is unavailable, mutation rejected",
		DevInfo:    devInfo,
	}
}

// NewInternalServerError creates a generic internal error.
func NewInternalServerError(err error) *AppError {
	devInfo := ""
	if err != nil {
		devInfo = err.Error()
	}
	return &AppError{
		Err:        err,
		StatusCode: http.StatusInternalServerError,
		Code:       constants.CodeInternalError,
		Message:    "An internal server error occurred",
		DevInfo:    devInfo,
	}
}

// ParseError maps any error onto an AppError. Errors that are already an
// AppError pass through unchanged; taxonomy sentinels get their standard
// HTTP mapping; anything else becomes an internal server error.
func ParseError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrInvalidRequest):
		return NewInvalidRequestError(err.Error())
	case errors.Is(err, ErrValidation):
		return NewValidationError(err.Error())
	case errors.Is(err, ErrAuth):
		return NewAuthError()
	case errors.Is(err, ErrNotFound):
		return NewNotFoundError("Resource", "")
	case errors.Is(err, ErrStorageIO):
		return NewStorageError(err)
	}

	return NewInternalServerError(err)
}
