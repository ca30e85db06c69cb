// Package dwnerr carries the error taxonomy of spec §7 as a value every
// handler stage can classify and reply with, rather than each caller
// switching on package-specific sentinel errors by hand. Grounded on the
// teacher's internal/api error-code convention (errors.go: a fixed set of
// named codes, one function mapping a code to its HTTP status), adapted
// from "an HTTP handler picks a code" to "a handler stage classifies
// whatever error it received".
package dwnerr

import (
	"errors"
	"fmt"

	"github.com/onnwee/dwnd/internal/datastore"
	"github.com/onnwee/dwnd/internal/envelope"
	"github.com/onnwee/dwnd/internal/grant"
	"github.com/onnwee/dwnd/internal/messagestore"
	"github.com/onnwee/dwnd/internal/protocol"
	"github.com/onnwee/dwnd/internal/reconcile"
)

// Kind names one of spec §7's ten semantic error kinds.
type Kind string

const (
	MalformedMessage         Kind = "MalformedMessage"
	IntegrityMismatch        Kind = "IntegrityMismatch"
	ImmutablePropertyChanged Kind = "ImmutablePropertyChanged"
	SignatureInvalid         Kind = "SignatureInvalid"
	Unauthorized             Kind = "Unauthorized"
	GrantMismatch            Kind = "GrantMismatch"
	ActionNotAllowed         Kind = "ActionNotAllowed"
	NotFound                 Kind = "NotFound"
	Conflict                 Kind = "Conflict"
	TransientStorageError    Kind = "TransientStorageError"
)

// StatusCode returns the reply code spec §7 assigns to kind.
func StatusCode(kind Kind) int {
	switch kind {
	case MalformedMessage, IntegrityMismatch, ImmutablePropertyChanged:
		return 400
	case SignatureInvalid, Unauthorized, GrantMismatch, ActionNotAllowed:
		return 401
	case NotFound:
		return 404
	case Conflict:
		return 409
	default:
		return 500
	}
}

// Error pairs a classified Kind with the underlying error and an optional
// human-readable detail, matching the `{status: {code, detail}}` reply
// shape of spec §6.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("dwnerr: %s: %s", e.Kind, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("dwnerr: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("dwnerr: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode returns this error's reply code.
func (e *Error) StatusCode() int { return StatusCode(e.Kind) }

// New builds an Error of kind with a detail message and no wrapped cause.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap classifies err (see Classify) and attaches detail.
func Wrap(err error, detail string) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	return &Error{Kind: Classify(err), Detail: detail, Err: err}
}

// Classify maps a package-specific sentinel error to its spec §7 kind.
// Unrecognized errors default to TransientStorageError, spec §7's
// catch-all for "underlying store I/O failure; retryable by caller" — the
// safest default for an error this package doesn't know how to name,
// since treating an unknown failure as a permanent client error would
// wrongly tell a caller not to retry.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, envelope.ErrSignatureInvalid),
		errors.Is(err, envelope.ErrSignerUnresolvable),
		errors.Is(err, envelope.ErrKeyNotFound),
		errors.Is(err, envelope.ErrMalformedKid),
		errors.Is(err, envelope.ErrNoSignatures):
		return SignatureInvalid

	case errors.Is(err, reconcile.ErrImmutablePropertyChanged):
		return ImmutablePropertyChanged
	case errors.Is(err, reconcile.ErrConflict),
		errors.Is(err, reconcile.ErrInitialWriteRequired),
		errors.Is(err, reconcile.ErrRevivalAuthorMismatch):
		return Conflict
	case errors.Is(err, reconcile.ErrRecordNotFound):
		return NotFound

	case errors.Is(err, protocol.ErrActionNotAllowed):
		return ActionNotAllowed
	case errors.Is(err, protocol.ErrRecipientPathTooLong),
		errors.Is(err, protocol.ErrSchemaMismatch):
		return MalformedMessage

	case errors.Is(err, grant.ErrGrantNotFound),
		errors.Is(err, grant.ErrGrantIdentityMismatch),
		errors.Is(err, grant.ErrGrantExpired),
		errors.Is(err, grant.ErrGrantRevoked):
		return Unauthorized
	case errors.Is(err, grant.ErrGrantMismatch):
		return GrantMismatch

	case errors.Is(err, messagestore.ErrNotFound):
		return NotFound
	case errors.Is(err, messagestore.ErrIndexMissingRequiredProperty):
		return MalformedMessage

	case errors.Is(err, datastore.ErrDataCidMismatch):
		return IntegrityMismatch
	case errors.Is(err, datastore.ErrNotFound):
		return NotFound

	default:
		return TransientStorageError
	}
}
