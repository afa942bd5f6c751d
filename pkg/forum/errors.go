package forum

import (
	"errors"
	"fmt"
)

// ErrorKind classifies gateway failures.
type ErrorKind string

const (
	// KindTransient failures (network hiccups, rate limits) are retried after a cooldown.
	KindTransient ErrorKind = "transient"
	// KindFatal failures (bad credentials) need operator intervention.
	KindFatal ErrorKind = "fatal"
)

// ErrNotFound reports a missing post or comment.
var ErrNotFound = errors.New("not found")

// Error is returned by every Gateway method.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("forum %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as a retryable gateway error.
func Transient(op string, err error) error {
	return &Error{Op: op, Kind: KindTransient, Err: err}
}

// Fatal wraps err as an unrecoverable gateway error.
func Fatal(op string, err error) error {
	return &Error{Op: op, Kind: KindFatal, Err: err}
}

// IsFatal reports whether err carries a fatal gateway error.
func IsFatal(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == KindFatal
}
