package policy

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an activity failure for the retry engine.
type ErrorKind string

const (
	// KindTransient failures are worth retrying: timeouts, TCP resets,
	// HTTP 5xx, rate limits.
	KindTransient ErrorKind = "transient"
	// KindPermanent failures will not succeed on retry: validation
	// errors, HTTP 4xx, malformed payloads.
	KindPermanent ErrorKind = "permanent"
)

// ActivityError wraps an activity failure with its retry classification.
type ActivityError struct {
	Kind ErrorKind
	Err  error
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("%s activity error: %v", e.Kind, e.Err)
}

func (e *ActivityError) Unwrap() error {
	return e.Err
}

// Transient marks err as retriable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &ActivityError{Kind: KindTransient, Err: err}
}

// Permanent marks err as not retriable; the retry engine fails the branch
// immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &ActivityError{Kind: KindPermanent, Err: err}
}

// IsPermanent reports whether err carries a permanent classification.
// Unclassified errors default to transient: retrying an unknown failure is
// bounded by max_attempts anyway, while skipping retries on a recoverable one
// fails the branch for nothing.
func IsPermanent(err error) bool {
	var ae *ActivityError
	if errors.As(err, &ae) {
		return ae.Kind == KindPermanent
	}
	return false
}
