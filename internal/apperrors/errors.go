package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure per the application error taxonomy. Gateway and
// persistence failures are translated into one of these kinds at the service
// boundary; raw transport errors never reach handlers.
type Kind string

const (
	KindBadRequest               Kind = "bad_request"
	KindUnauthorized             Kind = "unauthorized"
	KindForbidden                Kind = "forbidden"
	KindNotFound                 Kind = "not_found"
	KindConflict                 Kind = "conflict"
	KindUnprocessableRequirement Kind = "unprocessable_requirement"
	KindUnprocessableTransition  Kind = "unprocessable_transition"
	KindUpstream                 Kind = "upstream_error"
)

// HTTPStatus maps a kind to its response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnprocessableRequirement, KindUnprocessableTransition:
		return http.StatusUnprocessableEntity
	case KindUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Error is a classified application failure. Details carries structured
// payload for multi-item failures (e.g. every missing mandatory document).
type Error struct {
	Kind    Kind
	Message string
	Details interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a classified error.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithDetails attaches structured details and returns the error.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// KindOf extracts the kind of err, or "" if err is not a classified error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// AsError extracts the classified error from err's chain, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// Is reports whether err is a classified error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
