// Package apperr defines the error taxonomy shared by the membership and
// invitation managers and the HTTP layer.
//
// Every failure returned by a mutation entry point is an *Error carrying a
// Kind. Callers branch with errors.Is against the kind sentinels:
//
//	if errors.Is(err, apperr.ErrPermissionDenied) { ... }
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error.
type Kind int

const (
	KindInternal Kind = iota
	KindPermissionDenied
	KindNotFound
	KindAlreadyExists
	KindInvalidState
	KindValidation
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindInvalidState:
		return "invalid_state"
	case KindValidation:
		return "validation_error"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInternal         = &Error{Kind: KindInternal}
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrAlreadyExists    = &Error{Kind: KindAlreadyExists}
	ErrInvalidState     = &Error{Kind: KindInvalidState}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrRateLimited      = &Error{Kind: KindRateLimited}
)

// Error is a classified application error.
type Error struct {
	Kind   Kind
	Op     string // operation, e.g. "membership.assign"
	Msg    string // human-readable, safe to show to the caller
	Reason string // machine-readable reason code from the policy engine, optional
	Err    error  // underlying cause, optional
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so wrapped errors compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an *Error of the given kind.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Denied builds a PermissionDenied error with a policy reason code.
func Denied(op, reason, msg string) *Error {
	return &Error{Kind: KindPermissionDenied, Op: op, Msg: msg, Reason: reason}
}

// Invalid builds a ValidationError. reason is optional.
func Invalid(op, reason, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: msg, Reason: reason}
}

// NotFound builds a NotFound error for the named resource.
func NotFound(op, resource string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Msg: resource + " not found"}
}

// Exists builds an AlreadyExists error.
func Exists(op, msg string) *Error {
	return &Error{Kind: KindAlreadyExists, Op: op, Msg: msg}
}

// State builds an InvalidState error.
func State(op, msg string) *Error {
	return &Error{Kind: KindInvalidState, Op: op, Msg: msg}
}

// Internal wraps an unexpected failure (store, network).
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Msg: "internal error", Err: err}
}

// KindOf returns the Kind of err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the policy reason code carried by err, if any.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// HTTPStatus maps err to the status code the API responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists, KindInvalidState:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to render to the caller.
// Internal errors never leak their cause.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		if e.Msg != "" {
			return e.Msg
		}
		return e.Kind.String()
	}
	return "internal error"
}
