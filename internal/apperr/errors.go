// Package apperr defines the error kinds surfaced by the HTTP API and the
// mapping from each kind to a status code and a client-safe message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindInvalidCode
	KindExpired
	KindInvalidCredentials
	KindUnauthorized
	KindRateLimited
	KindUpstream
)

var kindNames = map[Kind]string{
	KindInternal:           "internal",
	KindValidation:         "validation",
	KindConflict:           "conflict",
	KindNotFound:           "not_found",
	KindInvalidCode:        "invalid_code",
	KindExpired:            "expired",
	KindInvalidCredentials: "invalid_credentials",
	KindUnauthorized:       "unauthorized",
	KindRateLimited:        "rate_limited",
	KindUpstream:           "upstream",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindInternal]
}

// Status returns the HTTP status code used for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindConflict, KindInvalidCode, KindInvalidCredentials:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindExpired:
		return http.StatusGone
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Opaque messages for kinds whose cause must not reach the client.
const (
	msgInternal = "Internal Server Error"
	msgUpstream = "An external service failed, please try again later"
)

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"msg"`
}

// Error is the error type returned by services. Message is shown to the
// client for every kind except Internal and Upstream.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap returns an error of the given kind carrying cause for logging.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// Validation returns a KindValidation error listing the failing fields.
func Validation(fields ...FieldError) *Error {
	msg := "Invalid request"
	if len(fields) > 0 {
		msg = fields[0].Message
	}
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// KindOf reports the kind of err. Errors that are not *Error are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Public returns what may be shown to the client for err.
func Public(err error) (status int, msg string, fields []FieldError) {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError, msgInternal, nil
	}
	switch e.Kind {
	case KindInternal:
		return e.Kind.Status(), msgInternal, nil
	case KindUpstream:
		return e.Kind.Status(), msgUpstream, nil
	}
	return e.Kind.Status(), e.Message, e.Fields
}
