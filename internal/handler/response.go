package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from the API has the same shape:
//
//	{"error": "not_found", "message": "entry not found with id abc123"}
//	{"error": "validation_error", "message": "title is required", "field": "title"}
//
// The frontend can always parse an error the same way, whatever the status.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/journal/internal/apperror"
	"github.com/sakif/journal/internal/auth"
)

// ErrorResponse is the standard error body returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable kind (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Set for validation failures
}

// MessageResponse is the body of endpoints that have nothing else to return.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body. Once Encode writes, the
// headers are on the wire and later changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorKind maps a domain error to its HTTP status and "error" field.
//
// errors.Is walks the Unwrap chain, so an AppError wrapped by fmt.Errorf
// with %w anywhere up the stack still matches its sentinel.
func errorKind(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "duplicate_user"
	case errors.Is(err, apperror.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, apperror.ErrUnauthenticated), errors.Is(err, apperror.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrInvalidDate):
		return http.StatusBadRequest, "invalid_date_format"
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError maps a domain error to the appropriate HTTP status and sends it.
//
// WHY HERE AND NOT IN THE SERVICE?
// The service layer should not know about HTTP status codes. It returns
// apperror sentinels; this is the one place they become 400, 401, 404...
//
// Only AppError.Message reaches the client. Anything else (a raw driver or
// encoding error) becomes a generic 500 so SQL, file paths and the like never
// leak. Server-side failures are logged with the full error chain and the
// request ID.
func writeError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	status, kind := errorKind(err)

	resp := ErrorResponse{
		Error:   kind,
		Message: "An internal error occurred",
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		resp.Message = appErr.Message
		resp.Field = appErr.Field
	}

	attrs := []any{
		slog.String("error", err.Error()),
		slog.Int("status", status),
		slog.String("requestID", chimiddleware.GetReqID(r.Context())),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", attrs...)
	} else {
		logger.Debug("request rejected", attrs...)
	}

	writeJSON(w, status, resp)
}

// ErrorWriter adapts writeError for packages outside handler, such as the
// auth middleware, so their failures render exactly like handler errors.
func ErrorWriter(logger *slog.Logger) auth.ErrorWriter {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		writeError(logger, w, r, err)
	}
}

// RateLimited renders the 429 body used by the auth rate limiter.
func RateLimited(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Error:   "rate_limited",
		Message: "too many requests, try again shortly",
	})
}

// decodeJSON reads a JSON request body into dst.
//
// The body is capped at maxBody bytes and unknown fields are rejected, so a
// typo like "tittle" fails loudly instead of silently creating an untitled
// entry. Any decoding problem is reported as a validation error on "body".
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.ValidationFailed("body", "request body is too large")
		}
		return apperror.ValidationFailed("body", "request body must be valid JSON")
	}
	if dec.More() {
		return apperror.ValidationFailed("body", "request body must contain a single JSON object")
	}
	return nil
}

// maxBody comfortably fits the largest valid entry (5000 runes of content,
// up to 4 bytes each) plus title and tags.
const maxBody = 64 << 10
