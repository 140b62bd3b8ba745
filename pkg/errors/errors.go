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

// Is matches errors by code so predefined instances survive wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e != nil && t != nil && e.Code == t.Code
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
)

// Attendance and enrollment errors. Each is terminal for the request
// that raised it; DuplicatePhase doubles as an idempotency signal.
var (
	ErrNotRegistered       = New("NOT_REGISTERED", http.StatusNotFound, "no active registration for this activity")
	ErrNotStarted          = New("NOT_STARTED", http.StatusConflict, "activity has not started yet")
	ErrEnded               = New("ENDED", http.StatusConflict, "activity has already ended")
	ErrDuplicatePhase      = New("DUPLICATE_PHASE", http.StatusConflict, "attendance phase already recorded")
	ErrCheckinRequired     = New("CHECKIN_REQUIRED", http.StatusPreconditionFailed, "check-in is required before check-out")
	ErrNotEnrolled         = New("NOT_ENROLLED", http.StatusPreconditionFailed, "face profile enrollment required")
	ErrInvalidDescriptor   = New("INVALID_DESCRIPTOR", http.StatusBadRequest, "face descriptor is malformed")
	ErrInsufficientSamples = New("INSUFFICIENT_SAMPLES", http.StatusBadRequest, "not enough valid face samples")
	ErrActivityFull        = New("ACTIVITY_FULL", http.StatusConflict, "activity has reached its capacity")
	ErrAlreadyRegistered   = New("ALREADY_REGISTERED", http.StatusConflict, "an active registration already exists")
	ErrFeedbackNotOpen     = New("FEEDBACK_NOT_OPEN", http.StatusPreconditionFailed, "feedback window is not open yet")
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
