package llm

import (
	"context"
	"errors"
	"net"
	"strings"
)

// TransientError marks a failure worth retrying.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a failure that will not go away on retry.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// IsTransient reports whether err, or anything it wraps, is a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

var transientMarkers = []string{
	"429",
	"rate limit",
	"too many requests",
	"overloaded",
	"status code: 5",
	"500 internal",
	"502",
	"503",
	"504",
	"timeout",
	"connection reset",
	"connection refused",
	"unexpected eof",
}

// classify wraps a backend error as transient or fatal. Context errors are
// returned unchanged so callers can match them directly.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var t *TransientError
	var f *FatalError
	if errors.As(err, &t) || errors.As(err, &f) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransientError{Err: err}
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return &TransientError{Err: err}
		}
	}
	return &FatalError{Err: err}
}
