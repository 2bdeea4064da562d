package handler

// RESPONSE HELPERS:
// Every response from the API is JSON and carries a "status" field that
// names the outcome in words a client can switch on:
//
//	{"status": "Authenticated"}
//	{"status": "Unauthenticated", "error": "unauthenticated", "message": "authentication required"}
//
// Handlers never pick status codes for failures themselves. They return the
// domain error to writeError, which is the one place HTTP meets apperror.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/secrets/internal/apperror"
)

// Outcome names used in the "status" field.
const (
	StatusAuthenticated   = "Authenticated"
	StatusUnauthenticated = "Unauthenticated"
	StatusAnonymous       = "Anonymous"
	StatusAlreadyExists   = "AlreadyExists"
	StatusMissingIdentity = "MissingIdentity"
	StatusInvalid         = "Invalid"
	StatusUpdated         = "Updated"
	StatusNotFound        = "NotFound"
	StatusError           = "Error"
)

// StatusResponse is the body of every successful state change.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every failure.
type ErrorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`             // machine-readable, e.g. "already_exists"
	Message string `json:"message,omitempty"` // human-readable
	Field   string `json:"field,omitempty"`   // set for validation errors
}

// writeJSON sends a JSON response with the given status code.
// Headers must be set before WriteHeader; anything set later is ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	writeJSON(w, code, StatusResponse{Status: status})
}

// writeError maps a domain error to an HTTP status and sends it.
//
// errors.Is walks the Unwrap chain, so a sentinel wrapped by any number of
// layers ("service/local: ...: %w") still maps correctly.
//
// UNKNOWN ERRORS:
// Anything that is not an apperror sentinel is a backing-store or programming
// failure. The client gets a generic 500 with no detail; the real error goes
// to the log.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	message := ""
	field := ""
	if errors.As(err, &appErr) {
		message = appErr.Message
		field = appErr.Field
	}

	switch {
	case errors.Is(err, apperror.ErrValidation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Status: StatusInvalid, Error: "validation_error", Message: message, Field: field,
		})
	case errors.Is(err, apperror.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Status: StatusUnauthenticated, Error: "unauthenticated", Message: message,
		})
	case errors.Is(err, apperror.ErrMissingIdentity):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Status: StatusMissingIdentity, Error: "missing_identity", Message: message,
		})
	case errors.Is(err, apperror.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Status: StatusAlreadyExists, Error: "already_exists", Message: message, Field: field,
		})
	case errors.Is(err, apperror.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Status: StatusNotFound, Error: "not_found", Message: message,
		})
	default:
		slog.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Status: StatusError, Error: "internal_error", Message: "an internal error occurred",
		})
	}
}
