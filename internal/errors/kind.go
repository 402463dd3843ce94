// Package errors classifies failures of the bootstrap and capture/test pipeline.
package errors

import (
	"errors"
	"fmt"
)

// Kind is the failure class an operation reports at its boundary.
type Kind string

const (
	KindPrecondition Kind = "PreconditionFailure"
	KindGeneration   Kind = "GenerationFailure"
	KindInstall      Kind = "InstallFailure"
	KindTimeout      Kind = "TimeoutFailure"
	KindTransport    Kind = "TransportFailure"
	KindRequest      Kind = "RequestFailure"
)

// Error is a classified failure of a single operation.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// New returns a classified error. A nil cause is allowed.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewPath returns a classified error about a file or remote path.
func NewPath(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: KindTimeout}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Path == "" && t.Err == nil
}

// KindOf returns the kind of the first classified error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Errorf builds a classified error with a formatted cause.
func Errorf(kind Kind, op string, format string, args ...any) *Error {
	return New(kind, op, fmt.Errorf(format, args...))
}
