// Package apperror defines the kernel's error taxonomy.
//
// Failures inside user code are never represented here — they are
// recovered into an ExecutionResult and delivered like any other result.
// These errors cover the orchestration layer: rejected submissions, lost
// sessions, missing resources, bad input.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrForbidden  = errors.New("forbidden")
	// ErrSubmissionRejected — the target session is shutting down, or the
	// registry refused to create one.
	ErrSubmissionRejected = errors.New("submission rejected")
	// ErrSessionFailed — the session was lost to forced termination; its
	// namespace is gone and the registry must recreate it on next use.
	ErrSessionFailed = errors.New("session failed")
)

type AppError struct {
	Err     error  // sentinel category
	Message string // human-readable error message
	Field   string // optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// SubmissionRejected returns an AppError for a request that could not be
// accepted. HTTP handlers map this to 409 Conflict.
func SubmissionRejected(notebookID, reason string) *AppError {
	return &AppError{
		Err:     ErrSubmissionRejected,
		Message: fmt.Sprintf("notebook %s: submission rejected: %s", notebookID, reason),
	}
}

// SessionFailed returns an AppError for a session lost to forced
// termination. HTTP handlers map this to 503 Service Unavailable.
func SessionFailed(notebookID string) *AppError {
	return &AppError{
		Err:     ErrSessionFailed,
		Message: fmt.Sprintf("notebook %s: session was forcibly terminated; variable state is lost", notebookID),
	}
}
