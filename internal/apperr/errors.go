package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies caller-facing failures. Kinds are stable: clients and
// the HTTP layer key off them, messages are for humans.
type Kind string

const (
	KindUnauthenticated    Kind = "unauthenticated"
	KindInvalidArgument    Kind = "invalid_argument"
	KindFailedPrecondition Kind = "failed_precondition"
	KindResourceExhausted  Kind = "resource_exhausted"
	KindAlreadyExists      Kind = "already_exists"
	KindPermissionDenied   Kind = "permission_denied"
	KindNotFound           Kind = "not_found"
	KindInternal           Kind = "internal"
)

// Error is a caller-facing failure with a stable kind and a
// human-readable reason.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// E builds a caller-facing error.
func E(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Ef builds a caller-facing error with a formatted message.
func Ef(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from an error chain. Anything that is not an
// *Error is an unexpected lower-level failure and classifies as internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
