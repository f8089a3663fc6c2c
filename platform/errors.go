package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass is the failure taxonomy every platform error is mapped onto.
type ErrorClass int

const (
	// ClassOK means no error.
	ClassOK ErrorClass = iota
	// ClassNotFound means the resource is permanently gone.
	ClassNotFound
	// ClassForbidden means permission was denied; may change if roles change.
	ClassForbidden
	// ClassTransient covers network and server hiccups; safe to retry later.
	ClassTransient
	// ClassMalformed marks a persisted record that failed to parse.
	ClassMalformed
)

// String returns a human-readable name for the error class.
func (c ErrorClass) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassNotFound:
		return "not_found"
	case ClassForbidden:
		return "forbidden"
	case ClassTransient:
		return "transient"
	case ClassMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Error is a classified platform failure.
type Error struct {
	Class ErrorClass
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Class)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a class and the failing operation.
func NewError(class ErrorClass, op string, err error) *Error {
	return &Error{Class: class, Op: op, Err: err}
}

// Classify maps any error onto the taxonomy.
//
// Typed *Error values keep their class. Context deadlines count as transient.
// Anything else is matched on its message; unrecognised errors are treated as
// transient so state is preserved rather than pruned.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassOK
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}

	lower := strings.ToLower(err.Error())

	// Status codes only count in "http NNN" form; bare digits show up in ids.
	// Server errors first so "service unavailable" is not read as "not available".
	for _, p := range []string{"http 500", "http 502", "http 503", "http 504", "internal server error", "bad gateway", "service unavailable", "gateway timeout"} {
		if strings.Contains(lower, p) {
			return ClassTransient
		}
	}
	for _, p := range []string{"http 403", "http 401", "forbidden", "missing access", "missing permissions", "unauthorized"} {
		if strings.Contains(lower, p) {
			return ClassForbidden
		}
	}
	for _, p := range []string{"http 404", "not found", "unknown message", "unknown channel"} {
		if strings.Contains(lower, p) {
			return ClassNotFound
		}
	}
	return ClassTransient
}

// IsNotFound reports whether err means the resource is gone.
func IsNotFound(err error) bool { return Classify(err) == ClassNotFound }
