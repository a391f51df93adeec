// Package apperr defines the caller-visible error taxonomy shared by the
// engines and the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindInvalidState        Kind = "invalid_state"
	KindAlreadyAnswered     Kind = "already_answered"
	KindValidation          Kind = "validation"
	KindUnsupportedLanguage Kind = "unsupported_language"
	KindService             Kind = "service_unavailable"
	KindInternal            Kind = "internal"
)

// Error is a classified error with a stable, machine-checkable reason.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error of the given kind.
func New(kind Kind, reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

// Wrap returns an Error of the given kind wrapping err.
func Wrap(kind Kind, reason, message string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message, Err: err}
}

func NotFound(reason, message string) *Error {
	return New(KindNotFound, reason, message)
}

func InvalidState(reason, message string) *Error {
	return New(KindInvalidState, reason, message)
}

func Validation(reason, message string) *Error {
	return New(KindValidation, reason, message)
}

// KindOf returns the Kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the stable reason of err.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return string(KindOf(err))
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Status maps a Kind to an HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState, KindAlreadyAnswered:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindUnsupportedLanguage:
		return http.StatusUnprocessableEntity
	case KindService:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
