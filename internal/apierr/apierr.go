// Package apierr defines the tagged error taxonomy that every component of
// syncd reports through: network/local, temporary/permanent, plus the
// special classes (disk full, invariant violation, ignorable) that the
// task queue and scanner need to route distinctly.
package apierr

import (
	"errors"
	"fmt"
)

// Class categorizes an error by how the caller should respond to it.
type Class int

const (
	// ClassTemporary is a network error where retry-with-backoff is expected
	// to eventually succeed (socket closed, short read, DNS failure, TLS
	// handshake failure).
	ClassTemporary Class = iota
	// ClassPermanent is a server-reported permanent failure for this
	// operation; the task is dropped and surfaced to the host application.
	ClassPermanent
	// ClassLocalTemporary is a filesystem race (stat races, file grew during
	// read, file locked); sleep and retry.
	ClassLocalTemporary
	// ClassLocalPermanent is an unrecoverable local condition (file vanished,
	// unreadable permissions); the corresponding catalog row is dropped.
	ClassLocalPermanent
	// ClassInvariantViolation marks a bug-class failure: in debug builds this
	// should assert and abort; in release builds it is logged and the
	// current transaction is abandoned.
	ClassInvariantViolation
	// ClassDiskFull indicates local or remote quota exhaustion; writers pause
	// until space recovers.
	ClassDiskFull
	// ClassIgnorable covers conditions that are silently skipped: cross-device
	// folders, symlink loops, per-name ignore matches.
	ClassIgnorable
)

func (c Class) String() string {
	switch c {
	case ClassTemporary:
		return "temporary"
	case ClassPermanent:
		return "permanent"
	case ClassLocalTemporary:
		return "local-temporary"
	case ClassLocalPermanent:
		return "local-permanent"
	case ClassInvariantViolation:
		return "invariant-violation"
	case ClassDiskFull:
		return "disk-full"
	case ClassIgnorable:
		return "ignorable"
	default:
		return "unknown"
	}
}

// Error is the tagged sum type every failing operation in syncd returns.
// There are no throw-style unwind paths elsewhere in the codebase — any
// function that can fail returns one of these (or nil) instead.
type Error struct {
	Class     Class
	Op        string // operation that failed, e.g. "upload_save", "scan"
	Err       error  // underlying cause, may be nil
	Code      int    // server-reported application error code, 0 if not applicable
	Retryable bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Class, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Op, e.Class)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is against the sentinel Class values below by comparing
// class tags rather than pointer identity, so callers can write
// errors.Is(err, apierr.Permanent) regardless of Op/Err/Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Class == t.Class
}

// Sentinel values usable with errors.Is, one per Class.
var (
	Temporary          = &Error{Class: ClassTemporary}
	Permanent          = &Error{Class: ClassPermanent}
	LocalTemporary     = &Error{Class: ClassLocalTemporary}
	LocalPermanent     = &Error{Class: ClassLocalPermanent}
	InvariantViolation = &Error{Class: ClassInvariantViolation}
	DiskFull           = &Error{Class: ClassDiskFull}
	Ignorable          = &Error{Class: ClassIgnorable}
)

// New wraps err as the given class for the named operation.
func New(class Class, op string, err error) *Error {
	return &Error{
		Class:     class,
		Op:        op,
		Err:       err,
		Retryable: class == ClassTemporary || class == ClassLocalTemporary,
	}
}

// WithCode attaches a server application error code (e.g. 2008) to a new
// Permanent or Temporary error, used by the permanent-code classification
// table in internal/apiproto.
func WithCode(class Class, op string, code int, err error) *Error {
	e := New(class, op, err)
	e.Code = code

	return e
}

// ClassOf returns the Class of err if it is (or wraps) an *Error, and
// ClassTemporary, false otherwise — callers needing a boolean should check
// the second return value.
func ClassOf(err error) (Class, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Class, true
	}

	return ClassTemporary, false
}

// Retryable reports whether err should be retried after backoff rather than
// dropped. Non-apierr errors are treated as non-retryable — callers that
// construct bare errors are expected to wrap them via New first.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}

	return false
}
