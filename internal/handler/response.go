package handler

// Every error response has the same shape:
//   {"error": "not_found", "message": "Signup code is invalid or has already been used."}
//
// The message is the user-facing one carried by the apperror.AppError;
// anything else becomes a generic 500 so internal details never leak.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/sakif/accountkeeper/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // machine-readable kind, e.g. "not_found"
	Message string `json:"message"`         // human-readable description
	Field   string `json:"field,omitempty"` // offending input, for validation errors
}

// writeJSON sends a JSON response with the given status code.
// Headers must be set before WriteHeader; the body goes last.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status and sends it.
// errors.Is walks the wrap chain, so service prefixes like
// "service/signup: ..." do not hide the kind.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, kind := classify(err)
		writeJSON(w, status, ErrorResponse{
			Error:   kind,
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrExpired):
		return http.StatusGone, "expired"
	case errors.Is(err, apperror.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	}
	return http.StatusInternalServerError, "internal_error"
}

const maxBodyBytes = 64 << 10

// decodeJSON reads a JSON request body into dst. Unknown fields are
// rejected so typos in field names surface as errors.
func decodeJSON(r *http.Request, dst any) error {
	if err := decode(r, dst); err != nil {
		return apperror.ValidationFailed("", "Request body is not valid JSON.")
	}
	return nil
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(r *http.Request, dst any) error {
	err := decode(r, dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperror.ValidationFailed("", "Request body is not valid JSON.")
}

func decode(r *http.Request, dst any) error {
	if r.Body == nil {
		return io.EOF
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// clientIP returns the remote host without its port. chi's RealIP
// middleware has already applied X-Forwarded-For when it runs.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
