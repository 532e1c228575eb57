// Package errors provides error classification shared by the queue,
// workers and stage handlers, on top of the standard wrap/sentinel idiom.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way a stage handler's caller needs to act
// on it: retry, back off harder, fail the image, or treat as a no-op.
type Kind int

const (
	// KindUnknown is the zero value; callers should treat it as Transient.
	KindUnknown Kind = iota
	// KindTransient covers blob/DB/LLM I/O failures that a retry may clear.
	KindTransient
	// KindRateLimit is a 429 or provider throttle; retriable with a raised backoff floor.
	KindRateLimit
	// KindInputInvalid marks unreadable/empty blobs or malformed responses; non-retriable.
	KindInputInvalid
	// KindStateConflict marks a lost optimistic-update race; not an error, a skip.
	KindStateConflict
	// KindLeaseExpired marks a worker that ran past its lock_until.
	KindLeaseExpired
	// KindValidationFail marks zero accepted codes from a decoder; routed, not retried.
	KindValidationFail
	// KindFatalConfig marks a missing required setting; aborts startup.
	KindFatalConfig
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimit:
		return "rate_limit"
	case KindInputInvalid:
		return "input_invalid"
	case KindStateConflict:
		return "state_conflict"
	case KindLeaseExpired:
		return "lease_expired"
	case KindValidationFail:
		return "validation_fail"
	case KindFatalConfig:
		return "fatal_config"
	default:
		return "unknown"
	}
}

// Retriable reports whether the queue should schedule another attempt.
func (k Kind) Retriable() bool {
	switch k {
	case KindTransient, KindRateLimit, KindLeaseExpired:
		return true
	default:
		return false
	}
}

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidArg = errors.New("invalid argument")
)

// classified pairs an error with its Kind so callers can recover it with
// As/errors.As-style unwrapping via Classify.
type classified struct {
	kind Kind
	err  error
}

func (c *classified) Error() string { return c.err.Error() }
func (c *classified) Unwrap() error { return c.err }

// WithKind attaches a Kind to err so Classify can recover it later.
func WithKind(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return &classified{kind: kind, err: err}
}

// Classify extracts the Kind attached by WithKind, defaulting to
// KindTransient for unclassified errors so callers retry by default.
func Classify(err error) Kind {
	var c *classified
	if errors.As(err, &c) {
		return c.kind
	}
	if err == nil {
		return KindUnknown
	}
	return KindTransient
}

// Wrap adds context to err, preserving any attached Kind through Unwrap.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf is Wrap with formatting.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
