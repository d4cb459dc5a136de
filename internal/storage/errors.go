package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrAlreadyNotified is returned when an event's notified flag was already set.
	ErrAlreadyNotified = errors.New("storage: event already notified")
	// ErrNotFound is returned for missing rows.
	ErrNotFound = errors.New("storage: not found")
)

// Error wraps any persistence failure. Cycles treat it as fatal for the
// current pass.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// IsError reports whether err is a persistence failure. Sentinel outcomes
// such as ErrAlreadyNotified and ErrNotFound are not.
func IsError(err error) bool {
	if errors.Is(err, ErrAlreadyNotified) || errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, ErrNotConfigured) {
		return true
	}
	var se *Error
	return errors.As(err, &se)
}
