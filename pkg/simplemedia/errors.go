package simplemedia

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind classifies an error for callers that need a single category, such as
// the HTTP layer mapping errors to status codes.
type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindStorage      Kind = "storage_error"
	KindPersistence  Kind = "persistence_error"
	KindInternal     Kind = "internal_error"
)

// kindError is a sentinel carrying its Kind. A specific sentinel matches the
// generic sentinel of the same kind under errors.Is.
type kindError struct {
	kind    Kind
	msg     string
	generic bool
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool {
	t, ok := target.(*kindError)
	return ok && t.generic && t.kind == e.kind
}

func generic(kind Kind, msg string) error { return &kindError{kind: kind, msg: msg, generic: true} }

func specific(kind Kind, msg string) error { return &kindError{kind: kind, msg: msg} }

// Generic error kinds
var (
	ErrInvalidInput = generic(KindInvalidInput, "invalid input")
	ErrUnauthorized = generic(KindUnauthorized, "unauthorized")
	ErrForbidden    = generic(KindForbidden, "forbidden")
	ErrNotFound     = generic(KindNotFound, "not found")
	ErrConflict     = generic(KindConflict, "conflict")
	ErrStorage      = generic(KindStorage, "storage unavailable")
	ErrPersistence  = generic(KindPersistence, "persistence failure")
)

// Specific errors
var (
	// ErrUserNotFound indicates a user was not found
	ErrUserNotFound = specific(KindNotFound, "user not found")

	// ErrContentNotFound indicates a content record was not found
	ErrContentNotFound = specific(KindNotFound, "content not found")

	// ErrObjectNotFound indicates an object is absent from blob storage
	ErrObjectNotFound = specific(KindNotFound, "object not found")

	// ErrHandleTaken indicates the handle is already registered
	ErrHandleTaken = specific(KindConflict, "handle already registered")

	// ErrVersionConflict indicates a concurrent write changed the record first
	ErrVersionConflict = specific(KindConflict, "content was modified concurrently")

	// ErrInvalidCredentials indicates an unknown handle or wrong password
	ErrInvalidCredentials = specific(KindUnauthorized, "invalid credentials")

	// ErrInvalidToken indicates a malformed, tampered or foreign token
	ErrInvalidToken = specific(KindUnauthorized, "invalid token")

	// ErrTokenExpired indicates the token reached its expiry instant
	ErrTokenExpired = specific(KindUnauthorized, "token expired")

	// ErrNotOwner indicates the caller does not own the content
	ErrNotOwner = specific(KindForbidden, "caller does not own this content")
)

// KindOf returns the Kind of err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindInternal
}

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ContentError represents an error related to content operations
type ContentError struct {
	ContentID uuid.UUID
	Op        string
	Err       error
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("content operation %s failed for content %s: %v", e.Op, e.ContentID, e.Err)
}

func (e *ContentError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// PersistenceFailure wraps a repository error that has no more specific kind.
func PersistenceFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// PublicMessage returns a description of err that is safe to show to
// clients. It never includes storage keys or backend details.
func PublicMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.msg
	}
	return "internal error"
}
