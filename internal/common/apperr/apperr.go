// Package apperr defines the error taxonomy shared by every RustyClaw
// subsystem: a typed Kind plus %w-style wrapping so callers can branch
// on cause without parsing error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to branch on cause
// without string-matching messages.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
	KindConflict     Kind = "conflict"
	KindPermission   Kind = "permission_denied"
	KindUnavailable  Kind = "unavailable"
	KindInternal     Kind = "internal"
	KindTimeout      Kind = "timeout"

	// Vault-specific kinds (component A/G).
	KindVaultLocked    Kind = "vault_locked"
	KindWrongCredential Kind = "wrong_credential"
	KindAccessDenied   Kind = "access_denied"
	KindCorruptEnvelope Kind = "corrupt_envelope"
)

// Error is a typed, wrappable error carrying a Kind and a component tag.
type Error struct {
	Kind      Kind
	Component string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Component, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is comparisons against a Kind-only sentinel built
// with New(kind, "", "").
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs a fresh Error.
func New(kind Kind, component, message string) *Error {
	return &Error{Kind: kind, Component: component, Message: message}
}

// Wrap attaches kind/component/message context to an underlying error.
func Wrap(kind Kind, component, message string, err error) *Error {
	return &Error{Kind: kind, Component: component, Message: message, Err: err}
}

// Of returns the Kind of err if it is (or wraps) an *Error, otherwise
// KindInternal.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// KindIs reports whether err's Kind matches kind.
func KindIs(err error, kind Kind) bool {
	return Of(err) == kind
}
