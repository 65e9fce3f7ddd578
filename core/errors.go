package core

import "github.com/pkg/errors"

// Kind classifies an error for the transport layer.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindUnauthenticated    Kind = "unauthenticated"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindRateLimited        Kind = "rate_limited"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindInternal           Kind = "internal"
)

// Error is a domain error with a stable Kind.
// Sentinels are compared by identity after errors.Cause.
type Error struct {
	Kind    Kind
	Message string
}

func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func (err *Error) Error() string {
	return err.Message
}

// StorageError wraps a failure of the persistence backend.
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

func (err *StorageError) Error() string {
	if err.Err == nil {
		return err.Op
	}
	return err.Op + ": " + err.Err.Error()
}

func (err *StorageError) Unwrap() error { return err.Err }

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return "invalid input"
	}
	return err.Err.Error()
}

// KindOf returns the Kind of err, unwrapping pkg/errors chains.
func KindOf(err error) Kind {
	switch e := errors.Cause(err).(type) {
	case nil:
		return ""
	case *Error:
		return e.Kind
	case *ValidationError:
		return KindValidation
	case *StorageError:
		return KindStorageUnavailable
	default:
		return KindInternal
	}
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
