// Package service implements the session-and-checkout core: token issuing
// and rotation, the authoritative cart, the idempotent order pipeline and
// product search.
package service

import (
	"errors"

	"github.com/iliyamo/storefront/internal/model"
)

// Kind classifies a domain error. Handlers map kinds to HTTP status codes
// and to the recovery action shown to the user.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindInvalidAccess      Kind = "invalid_access"
	KindExpiredAccess      Kind = "expired_access"
	KindInvalidSession     Kind = "invalid_session"
	KindSessionCompromised Kind = "session_compromised"
	KindProductUnavailable Kind = "product_unavailable"
	KindInsufficientStock  Kind = "insufficient_stock"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindInternal           Kind = "internal"
)

// Error is the domain error returned by every service. Shortages is only
// set for KindInsufficientStock. Action, when set, overrides the recovery
// action derived from Kind.
type Error struct {
	Kind      Kind
	Message   string
	Action    string
	Shortages []model.Shortage
	Err       error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrInvalidAccess      = &Error{Kind: KindInvalidAccess}
	ErrExpiredAccess      = &Error{Kind: KindExpiredAccess}
	ErrInvalidSession     = &Error{Kind: KindInvalidSession}
	ErrSessionCompromised = &Error{Kind: KindSessionCompromised}
	ErrProductUnavailable = &Error{Kind: KindProductUnavailable}
	ErrInsufficientStock  = &Error{Kind: KindInsufficientStock}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrConflict           = &Error{Kind: KindConflict}
)

func newError(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func validation(msg string) *Error { return newError(KindValidation, msg) }

func internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ShortagesOf returns the itemized shortages carried by err, if any.
func ShortagesOf(err error) []model.Shortage {
	var e *Error
	if errors.As(err, &e) {
		return e.Shortages
	}
	return nil
}
