// Package errs carries the typed error kinds used across the server.
// Repositories and agents return these; HTTP handlers map them to response
// codes of the same name.
package errs

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	Unauthenticated    Kind = "UNAUTHENTICATED"
	Forbidden          Kind = "FORBIDDEN"
	NotFound           Kind = "NOT_FOUND"
	Conflict           Kind = "CONFLICT"
	InvalidArgument    Kind = "INVALID_ARGUMENT"
	FailedPrecondition Kind = "FAILED_PRECONDITION"
	Unavailable        Kind = "UNAVAILABLE"
	ResourceExhausted  Kind = "RESOURCE_EXHAUSTED"
	FileSystemBrowse   Kind = "FILE_SYSTEM_BROWSE"
	Cancelled          Kind = "CANCELLED"
	Internal           Kind = "INTERNAL"
)

// Error is a kinded error with an optional wrapped cause and field path.
type Error struct {
	Kind          Kind
	Message       string
	Field         string // optional field path for validation errors
	CorrelationID string // set for Internal errors
	Err           error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a kinded error. The final argument may be a wrapped error.
func E(kind Kind, msg string, cause ...error) error {
	e := &Error{Kind: kind, Message: msg}
	if len(cause) > 0 {
		e.Err = cause[0]
	}
	if kind == Internal {
		e.CorrelationID = uuid.NewString()
	}
	return e
}

// Ef builds a kinded error with a formatted message.
func Ef(kind Kind, format string, args ...interface{}) error {
	return E(kind, fmt.Sprintf(format, args...))
}

// Field builds an InvalidArgument error attributed to a field path.
func FieldError(field, msg string) error {
	return &Error{Kind: InvalidArgument, Message: msg, Field: field}
}

// KindOf reports the kind of err, or Internal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
