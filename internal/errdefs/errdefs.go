// Package errdefs defines the error kinds shared by the bookkeeping store and
// the workload compiler.
//
// Every error produced by this module that a caller may want to act on
// carries exactly one kind. Callers branch with errors.Is against the
// sentinels below, never by comparing message text.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks a caller contract violation (empty natural
	// key, negative slot count, bad tree operation). Never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound marks an absent record. Lookups report absence with a
	// found flag instead; this kind is used where a record was required.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable marks a transient store failure. Retryable.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrConfiguration marks a missing or inconsistent processing request
	// field or splitting parameter.
	ErrConfiguration = errors.New("configuration error")

	// ErrCompilation marks a failure of the output-module discovery tool.
	ErrCompilation = errors.New("compilation error")
)

var kinds = []error{
	ErrInvalidArgument,
	ErrNotFound,
	ErrStoreUnavailable,
	ErrConfiguration,
	ErrCompilation,
}

// Error is a classified error.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// InvalidArgument returns an ErrInvalidArgument error for op.
func InvalidArgument(op, format string, args ...any) error {
	return &Error{Kind: ErrInvalidArgument, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NotFound returns an ErrNotFound error for op.
func NotFound(op, format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Unavailable wraps a transient store failure.
func Unavailable(op string, err error) error {
	return &Error{Kind: ErrStoreUnavailable, Op: op, Err: err}
}

// Configuration returns an ErrConfiguration error.
func Configuration(format string, args ...any) error {
	return &Error{Kind: ErrConfiguration, Msg: fmt.Sprintf(format, args...)}
}

// Compilation wraps err as an ErrCompilation error.
func Compilation(err error, format string, args ...any) error {
	return &Error{Kind: ErrCompilation, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind sentinel carried by err, or nil when err is nil or
// unclassified.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// IsRetryable reports whether err is worth retrying by the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
