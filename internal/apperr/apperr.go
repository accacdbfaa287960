package apperr

import (
	"errors"
	"fmt"
)

// Kind is a stable, machine-readable error category. Its string value is what
// the HTTP layer exposes as the error code.
type Kind string

const (
	KindValidation       Kind = "VALIDATION_ERROR"
	KindNotFound         Kind = "NOT_FOUND"
	KindForbidden        Kind = "FORBIDDEN"
	KindUnauthorized     Kind = "UNAUTHORIZED"
	KindConflict         Kind = "CONFLICT"
	KindAlreadyBound     Kind = "ALREADY_BOUND"
	KindInactive         Kind = "INACTIVE"
	KindBindingExhausted Kind = "BINDING_EXHAUSTED"
	KindInvalidRange     Kind = "INVALID_RANGE"
	KindStorage          Kind = "STORAGE_ERROR"
	KindPersistence      Kind = "PERSISTENCE_ERROR"
	KindInternal         Kind = "INTERNAL_ERROR"
)

// Error is the domain error returned by services. Message is safe to show to
// clients; Err carries the internal cause and is never serialized.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind when the target carries no message,
// which lets the package-level sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" {
		return t.Kind == e.Kind
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

// Sentinels for errors.Is checks.
var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrForbidden        = &Error{Kind: KindForbidden}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrAlreadyBound     = &Error{Kind: KindAlreadyBound}
	ErrInactive         = &Error{Kind: KindInactive}
	ErrBindingExhausted = &Error{Kind: KindBindingExhausted}
	ErrInvalidRange     = &Error{Kind: KindInvalidRange}
	ErrStorage          = &Error{Kind: KindStorage}
	ErrPersistence      = &Error{Kind: KindPersistence}
)

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(msg string) *Error { return New(KindValidation, msg) }

func NotFound(msg string) *Error { return New(KindNotFound, msg) }

func Forbidden(msg string) *Error { return New(KindForbidden, msg) }

func Storage(msg string, err error) *Error { return Wrap(KindStorage, msg, err) }

func Persistence(msg string, err error) *Error { return Wrap(KindPersistence, msg, err) }

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the client-safe message of err, falling back to a generic one.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal server error"
}
