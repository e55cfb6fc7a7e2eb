package errors

import (
	"errors"
	"fmt"
)

// Error carries a closed-set kind plus a sanitized diagnostic message.
// The message must never contain secrets or stack traces; callers log the
// underlying cause separately.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

// New creates an Error of the given kind with a sanitized message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted sanitized message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause for logging while keeping the outward message
// sanitized.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause to errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf extracts the kind from an error chain, defaulting to internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
