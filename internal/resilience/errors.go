package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrServiceUnavailable is returned without invoking the operation when a
// service's breaker is open or its half-open probe is already in flight.
var ErrServiceUnavailable = errors.New("service unavailable")

// TransientError marks failures worth retrying: timeouts, 5xx, 429 and
// connection errors.
type TransientError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: transient error (status %d): %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient error: %v", e.Service, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError.
func Transient(service string, statusCode int, err error) error {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return &TransientError{Service: service, StatusCode: statusCode, Err: err}
}

// ValidationError reports malformed candidate data. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsUnavailable reports whether err came from an open breaker.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable)
}

// IsTimeout reports per-call deadline expiry and network timeouts.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ErrorMatcher selects the errors a breaker counts or a retry policy retries.
type ErrorMatcher func(err error) bool

// Error kinds accepted in service configuration.
const (
	KindTransient  = "transient"
	KindTimeout    = "timeout"
	KindValidation = "validation"
	KindAny        = "any"
)

// MatchKinds builds a matcher from configured kind names. Cancellation is
// never matched: a caller giving up is not a service failure.
func MatchKinds(kinds []string) (ErrorMatcher, error) {
	if len(kinds) == 0 {
		kinds = []string{KindTransient, KindTimeout}
	}

	var matchers []ErrorMatcher
	for _, raw := range kinds {
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case KindTransient:
			matchers = append(matchers, IsTransient)
		case KindTimeout:
			matchers = append(matchers, IsTimeout)
		case KindValidation:
			matchers = append(matchers, IsValidation)
		case KindAny:
			matchers = append(matchers, func(err error) bool { return err != nil })
		default:
			return nil, fmt.Errorf("unknown error kind %q", raw)
		}
	}

	return func(err error) bool {
		if err == nil || errors.Is(err, context.Canceled) {
			return false
		}
		for _, m := range matchers {
			if m(err) {
				return true
			}
		}
		return false
	}, nil
}

func ctxDone(err error) bool {
	return errors.Is(err, context.Canceled)
}
