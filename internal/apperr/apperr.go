// Package apperr defines the error taxonomy shared by the storage, projection
// and sync layers. The API layer maps each Kind to an HTTP status.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInternal    Kind = "internal"
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindForbidden   Kind = "forbidden"
	KindAborted     Kind = "aborted"
	KindUnavailable Kind = "unavailable"
)

type Error struct {
	Kind    Kind
	Message string
	// Field names the offending input field for validation and conflict errors.
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(field, message string) error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func NotFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Conflict(field, message string, cause error) error {
	return &Error{Kind: KindConflict, Field: field, Message: message, Err: cause}
}

func Forbidden(message string) error {
	return &Error{Kind: KindForbidden, Message: message}
}

func Aborted(message string, cause error) error {
	return &Error{Kind: KindAborted, Message: message, Err: cause}
}

func Unavailable(message string, cause error) error {
	return &Error{Kind: KindUnavailable, Message: message, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
