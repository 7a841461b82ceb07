// Package errorsx wraps github.com/pkg/errors with the small set of helpers
// used throughout the connection manager: stack-annotated construction,
// string-constant sentinel errors, and the "log it and move on" pattern
// cleanup relies on.
package errorsx

import (
	"github.com/anacrolix/log"
	"github.com/pkg/errors"
)

// String is an error whose value is also usable as a const, for sentinel
// errors declared at package scope (e.g. ErrTorrentNotActive).
type String string

func (s String) Error() string { return string(s) }

// New returns an error that formats as the given text, with a stack trace
// attached for any caller that cares to unwrap for it.
func New(s string) error {
	return errors.New(s)
}

// Errorf is fmt.Errorf with a stack trace attached.
func Errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}

// Wrap annotates cause with message, returning nil if cause is nil.
func Wrap(cause error, message string) error {
	if cause == nil {
		return nil
	}
	return errors.Wrap(cause, message)
}

// Wrapf is Wrap with a format string.
func Wrapf(cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return errors.Wrapf(cause, format, args...)
}

// WithStack annotates err with a stack trace at the point of the call,
// without altering its Error() text. A nil err returns nil.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(err)
}

// Zero logs err at Warn (if non-nil) and returns the zero value of T. Used
// at the end of best-effort cleanup steps that must never propagate a
// failure to the caller.
func Zero[T any](err error) T {
	var zero T
	Log(err)
	return zero
}

// Log prints err at Warn level if it is non-nil. A no-op otherwise.
func Log(err error) {
	if err == nil {
		return
	}
	log.Default.WithDefaultLevel(log.Warning).Printf("%+v", err)
}

// Compact reduces an error chain to its innermost pkg/errors cause,
// discarding intermediate Wrap annotations. Useful for event payloads that
// should carry a terse reason rather than a full stack-annotated chain.
func Compact(err error) error {
	if err == nil {
		return nil
	}
	type causer interface {
		Cause() error
	}
	for {
		c, ok := err.(causer)
		if !ok {
			return err
		}
		next := c.Cause()
		if next == nil {
			return err
		}
		err = next
	}
}

// Is reports whether err matches target per errors.Is semantics, unwrapping
// both pkg/errors causes and stdlib wrapped errors.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Ignore logs and discards err; for call sites where there is genuinely
// nothing useful to do with a failure (e.g. best-effort disposal).
func Ignore(err error) {
	Log(err)
}
