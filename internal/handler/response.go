// Package handler contains the HTTP handlers of the JSON API.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming request (path params, query, JSON or multipart body)
//  2. Call the service layer with plain values and the request's session
//  3. Write the response, mapping service errors to status codes
//
// Handlers hold no business rules. Authorization is decided by the services;
// the router's auth middleware only short-circuits the obvious cases.
package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON and writeError, so every error the
// API returns has the same shape:
//
//	{"error": "validation_error", "message": "title is required", "field": "title"}
//
// The frontend switches on "error"; "message" is safe to show to the user.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/pisure/internal/apperror"
)

// maxJSONBody bounds the JSON request bodies (sign-up, login, profile edits).
const maxJSONBody = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Input field at fault, for validation errors
}

// writeJSON sends a JSON response with the given status code.
// Headers and status must be set before the body is written.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusOf maps an error kind to its HTTP status and machine-readable type.
// errors.Is walks the whole chain, so kinds wrapped by fmt.Errorf still match.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrIncomplete):
		return http.StatusServiceUnavailable, "reject_incomplete"
	case errors.Is(err, apperror.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError maps a service error to the HTTP response.
//
// Only the Message of an *AppError reaches the client. Anything else gets a
// generic message: raw errors may carry SQL, file paths or bucket names.
// Server-side failures are logged with the full chain.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, kind := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.String("error", err.Error()))
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) && status != http.StatusInternalServerError {
		writeJSON(w, status, ErrorResponse{
			Error:   kind,
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	writeJSON(w, status, ErrorResponse{
		Error:   kind,
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a bounded JSON body into dst. Unknown fields are an error
// so typos in field names do not silently drop input.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	return nil
}

// page reads the limit and offset query parameters. Missing values are zero,
// which the services replace with their defaults.
func page(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if limit, err = queryInt(q.Get("limit"), "limit"); err != nil {
		return 0, 0, err
	}
	if offset, err = queryInt(q.Get("offset"), "offset"); err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func queryInt(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a non-negative integer")
	}
	return n, nil
}
