package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	ErrCycle                    = New("CYCLE", http.StatusConflict, "prerequisite edge would create a cycle")
	ErrDuplicateEnrollment      = New("DUPLICATE_ENROLLMENT", http.StatusConflict, "student already has an open enrollment for program")
	ErrDuplicateActiveAttempt   = New("DUPLICATE_ACTIVE_ATTEMPT", http.StatusConflict, "an open attempt already exists for this lesson")
	ErrDuplicateActiveCheck     = New("DUPLICATE_ACTIVE_CHECK", http.StatusConflict, "an open stage check already exists for this stage")
	ErrAttemptLimit             = New("ATTEMPT_LIMIT", http.StatusConflict, "lesson attempt limit reached")
	ErrRetryExhausted           = New("RETRY_EXHAUSTED", http.StatusConflict, "stage check attempts exhausted")
	ErrPrerequisitesNotVerified = New("PREREQUISITES_NOT_VERIFIED", http.StatusPreconditionFailed, "stage check prerequisites not verified")
	ErrPrerequisitesNotMet      = New("PREREQUISITES_NOT_MET", http.StatusPreconditionFailed, "lesson prerequisites not met")
	ErrInvalidTransition        = New("INVALID_TRANSITION", http.StatusConflict, "operation not allowed from current status")
	ErrRequirementsNotMet       = New("REQUIREMENTS_NOT_MET", http.StatusPreconditionFailed, "completion requirements not met")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
