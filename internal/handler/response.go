// Package handler contains the HTTP handlers: thin adapters that decode
// requests, call the service layer, and encode responses. No business
// logic lives here.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lunalab/luna-kernel/internal/apperror"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError maps application errors onto HTTP status codes. Anything
// not recognized becomes an opaque 500 so internals never leak.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, code := statusFor(appErr)
		writeJSON(w, status, errorBody{Error: errorDetail{
			Code:    code,
			Message: appErr.Message,
			Field:   appErr.Field,
		}})
		return
	}

	logger.Error("unhandled error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
		Code:    "internal",
		Message: "an internal error occurred",
	}})
}

func statusFor(appErr *apperror.AppError) (int, string) {
	switch {
	case errors.Is(appErr.Err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(appErr.Err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(appErr.Err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(appErr.Err, apperror.ErrSubmissionRejected):
		return http.StatusConflict, "submission_rejected"
	case errors.Is(appErr.Err, apperror.ErrSessionFailed):
		return http.StatusServiceUnavailable, "session_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
