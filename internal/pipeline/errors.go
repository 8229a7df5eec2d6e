package pipeline

import (
	"errors"
	"fmt"
)

// FatalError marks a session-fatal failure. The worker does not retry fatal
// errors: a missing or corrupt chunk stays missing no matter how often the
// pipeline re-runs.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// fatalf builds a session-fatal error.
func fatalf(format string, args ...any) error {
	return &FatalError{Err: fmt.Errorf(format, args...)}
}

// IsFatal reports whether err is session-fatal.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
