// Package apperr defines the error kinds surfaced by the funding gateway and
// how each kind maps onto a transport status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure by who has to act on it.
type Kind string

const (
	// KindValidation marks malformed or missing caller input.
	KindValidation Kind = "VALIDATION"
	// KindConfiguration marks an operation that needs a capability the
	// process was started without.
	KindConfiguration Kind = "CONFIGURATION"
	// KindUpstream marks a failure of the chain node or another collaborator.
	KindUpstream Kind = "UPSTREAM"
)

// Error is the structured error returned by the core packages.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind, so the sentinels
// below can be matched with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrValidation    = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrConfiguration = &Error{Kind: KindConfiguration, Message: "not configured"}
	ErrUpstream      = &Error{Kind: KindUpstream, Message: "upstream failure"}
)

// Validation builds a validation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Configuration builds a configuration error.
func Configuration(format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps a collaborator failure. A nil cause yields nil.
func Upstream(cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: KindUpstream, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps err onto a response status. Unclassified errors are 500.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
