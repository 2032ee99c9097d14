// Package errors augments the standard errors with a Wrap() method to wrap
// errors without resorting to fmt.Errorf("%w", err), and with a small
// classification scheme used by the provisioning engine.
//
// Every error raised by the engine is classified with one of the kinds below,
// so callers decide whether to abort, retry or merely log with errors.Is:
//
//	if errors.Is(err, errors.ErrIntegrity) {
//		// never retry
//	}
package errors

import (
	stderr "errors"
)

var _ error = New("")

// Error kinds
var (
	// ErrPrerequisite classifies failures that leave no sensible partial state: a missing
	// working-copy resource, a backup or copy that could not complete, an invalid manifest.
	ErrPrerequisite = New("prerequisite failure")

	// ErrTransport classifies network failures. These are retried.
	ErrTransport = New("transport failure")

	// ErrIntegrity classifies digest mismatches. These are never retried.
	ErrIntegrity = New("integrity failure")

	// ErrPackage classifies failures that are fatal to a single package only.
	ErrPackage = New("package failure")

	// ErrLaunch classifies post-install conveniences that failed. These are logged only.
	ErrLaunch = New("launch failure")
)

// New Error
func New(msg string) *Error {
	return &Error{msg: msg}
}

// Error augments the standard error interface with a Wrap method.
//
// The main difference with github.com/pkg/errors is that we are wrapping
// errors from errors, not from text.
type Error struct {
	msg  string
	err  error
	kind *Error
}

// Error message, followed by the wrapped cause if any
func (e *Error) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

// Unwrap nested error
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Wrap a nested error
func (e *Error) Wrap(err error) *Error {
	e.err = err
	return e
}

// Of classifies this error with a kind, e.g. ErrTransport.
func (e *Error) Of(kind *Error) *Error {
	e.kind = kind
	return e
}

// Kind of this error, or nil when unclassified
func (e *Error) Kind() *Error {
	return e.kind
}

// Is of some error type?
func (e *Error) Is(target error) bool {
	if e == target || e.err == target {
		return true
	}
	for k := e.kind; k != nil; k = k.kind {
		if k == target {
			return true
		}
	}
	return false
}

// As finds the first error in err's chain that matches target, and if so, sets target to that error value and returns true.
// (a shortcut to standard lib errors.As)
func As(err error, target interface{}) bool {
	return stderr.As(err, target)
}

// Is reports whether any error in err's chain matches target
// (a shortcut to standard lib errors.Is)
func Is(err, target error) bool {
	return stderr.Is(err, target)
}

// KindOf returns the most specific classification found in err's chain, or nil.
// Integrity and transport failures win over the package failures they escalate to.
func KindOf(err error) *Error {
	for _, kind := range []*Error{ErrIntegrity, ErrTransport, ErrPrerequisite, ErrPackage, ErrLaunch} {
		if stderr.Is(err, kind) {
			return kind
		}
	}
	return nil
}
