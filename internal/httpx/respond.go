// Package httpx holds the JSON response helpers shared by the handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ayush/endpix/internal/apperr"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Errors  []apperr.FieldError `json:"errors,omitempty"`
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError converts err into its public status and body. Internal and
// upstream failures are logged with their cause.
func WriteError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	status, msg, fields := apperr.Public(err)

	if log != nil {
		switch kind {
		case apperr.KindInternal, apperr.KindUpstream:
			log.ErrorContext(r.Context(), "request failed",
				slog.String("path", r.URL.Path),
				slog.String("kind", kind.String()),
				slog.String("error", err.Error()),
			)
		default:
			log.DebugContext(r.Context(), "request rejected",
				slog.String("path", r.URL.Path),
				slog.String("kind", kind.String()),
			)
		}
	}

	WriteJSON(w, status, ErrorBody{Error: kind.String(), Message: msg, Errors: fields})
}

// MaxJSONBytes caps JSON request bodies.
const MaxJSONBytes = 1 << 20

// DecodeJSON decodes the request body into v, reading at most MaxJSONBytes.
// A malformed or oversized body is a validation error.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Wrap(apperr.KindValidation, "Request body too large", err)
		}
		return apperr.Wrap(apperr.KindValidation, "invalid request body", err)
	}
	return nil
}
