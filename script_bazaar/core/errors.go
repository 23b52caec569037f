package core

import (
	"errors"
	"fmt"

	"script_ink/script_bazaar/schema"
)

type ErrorKind int

const (
	Internal ErrorKind = iota
	Unauthenticated
	Forbidden
	NotFound
	InvalidArgument
	Conflict
)

func (k ErrorKind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not found"
	case InvalidArgument:
		return "invalid argument"
	case Conflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is returned by every core operation. Its message is safe to show to users.
type Error struct {
	Kind ErrorKind
	err  error
}

func (e *Error) Error() string {
	return e.err.Error()
}

func (e *Error) Unwrap() error {
	return e.err
}

func Errorf(kind ErrorKind, format string, args ...interface{}) error {
	return &Error{Kind: kind, err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of err. Lookups that failed with a schema not found
// error count as NotFound, anything else unclassified is Internal.
func KindOf(err error) ErrorKind {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	switch {
	case errors.Is(err, schema.ErrScriptNotFound),
		errors.Is(err, schema.ErrEntityNotFound),
		errors.Is(err, schema.ErrMergeRequestNotFound),
		errors.Is(err, schema.ErrUserNotFound):
		return NotFound
	default:
		return Internal
	}
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

func internalError(action string, err error) error {
	return &Error{Kind: Internal, err: fmt.Errorf("error %v: %w", action, err)}
}
