package retry

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
)

// RecoverableError is implemented by errors that carry their own
// recoverability classification.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// transientPatterns are substrings that mark an unclassified error as
// recoverable. Hosted model APIs surface throttling and capacity problems
// in the message body more often than in a typed error.
var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"rate limit",
	"too many requests",
	"overloaded",
	"service unavailable",
	"internal server error",
	"bad gateway",
	"gateway timeout",
}

// IsRecoverable reports whether an error is worth retrying. An error that
// implements RecoverableError anywhere in its chain decides for itself;
// everything else falls back to transport and message heuristics.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var classified RecoverableError
	if errors.As(err, &classified) {
		return classified.IsRecoverable()
	}
	return looksTransient(err)
}

func looksTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		// The caller asked to stop.
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && (opErr.Timeout() || opErr.Temporary()) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return looksTransient(urlErr.Err)
	}

	message := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(message, pattern) {
			return true
		}
	}
	return false
}

// classifiedError pins a recoverability verdict onto a wrapped error.
type classifiedError struct {
	err         error
	recoverable bool
}

func (e *classifiedError) Error() string { return e.err.Error() }

func (e *classifiedError) IsRecoverable() bool { return e.recoverable }

func (e *classifiedError) Unwrap() error { return e.err }

// NewRecoverableError marks an error as retryable regardless of what the
// heuristics would say.
func NewRecoverableError(err error) RecoverableError {
	return &classifiedError{err: err, recoverable: true}
}

// NewNonRecoverableError marks an error as terminal.
func NewNonRecoverableError(err error) RecoverableError {
	return &classifiedError{err: err, recoverable: false}
}
