// Package apperr defines the error taxonomy shared by the remote store,
// the domain store and the HTTP layer.  Every error that leaves a store
// operation is classified into one Kind so that callers can pick a
// targeted message (inline validation text, "venue no longer exists"
// modal, silent retry) without inspecting driver-specific values.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and display.
type Kind int

const (
	KindInternal Kind = iota
	KindNetworkUnavailable
	KindRemoteRejected
	KindVenueNotFound
	KindValidationFailed
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindNetworkUnavailable:
		return "network_unavailable"
	case KindRemoteRejected:
		return "remote_rejected"
	case KindVenueNotFound:
		return "venue_not_found"
	case KindValidationFailed:
		return "validation_failed"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Sentinels usable with errors.Is.  An *Error matches the sentinel of its Kind.
var (
	ErrInternal           = errors.New("internal error")
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrRemoteRejected     = errors.New("remote rejected")
	ErrVenueNotFound      = errors.New("venue not found")
	ErrValidationFailed   = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
)

func sentinel(k Kind) error {
	switch k {
	case KindNetworkUnavailable:
		return ErrNetworkUnavailable
	case KindRemoteRejected:
		return ErrRemoteRejected
	case KindVenueNotFound:
		return ErrVenueNotFound
	case KindValidationFailed:
		return ErrValidationFailed
	case KindNotFound:
		return ErrNotFound
	default:
		return ErrInternal
	}
}

// Error is a classified error.  Op names the failing operation (for logs),
// Msg is safe to show to a user and Err is the underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = sentinel(e.Kind).Error()
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

// Is reports whether target is the sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	return target == sentinel(e.Kind)
}

// New builds a classified error without an underlying cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap classifies err.  A nil err yields nil and an error that already
// carries a classification is returned unchanged.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation is shorthand for a ValidationFailed error carrying msg.
func Validation(op, msg string) *Error {
	return New(KindValidationFailed, op, msg)
}

// KindOf returns the Kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Message returns a user-facing message for err.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Msg != "" {
		return ae.Msg
	}
	return sentinel(KindOf(err)).Error()
}

// HTTPStatus maps err onto the status code used by the REST envelope.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidationFailed:
		return http.StatusBadRequest
	case KindNotFound, KindVenueNotFound:
		return http.StatusNotFound
	case KindRemoteRejected:
		return http.StatusConflict
	case KindNetworkUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
