package webhook

import (
	"errors"
	"fmt"
)

/* Error taxonomy for the ingestion pipeline
 * Ingress kinds (authentication, freshness, origin, validation) are terminal:
 * they are reported synchronously and never retried.
 * Processing kinds (transient, permanent) drive the retry orchestrator.
 */

// Kind classifies a pipeline error
type Kind int

const (
	KindAuthentication Kind = iota + 1
	KindFreshness
	KindOrigin
	KindValidation
	KindTransient
	KindPermanent
	KindCircuitOpen
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindFreshness:
		return "freshness"
	case KindOrigin:
		return "origin"
	case KindValidation:
		return "validation"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with its pipeline classification
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Authentication marks err as a signature failure
func Authentication(err error) error {
	return &Error{Kind: KindAuthentication, Err: err}
}

// Freshness marks err as a stale-timestamp failure
func Freshness(err error) error {
	return &Error{Kind: KindFreshness, Err: err}
}

// Origin marks err as a source allow-list failure
func Origin(err error) error {
	return &Error{Kind: KindOrigin, Err: err}
}

// Validation marks err as a payload schema/content failure
func Validation(err error) error {
	return &Error{Kind: KindValidation, Err: err}
}

// Transient marks err as retryable (downstream timeout, temporary unavailability)
func Transient(err error) error {
	return &Error{Kind: KindTransient, Err: err}
}

// Permanent marks err as a handler-determined unrecoverable failure
func Permanent(err error) error {
	return &Error{Kind: KindPermanent, Err: err}
}

// CircuitOpen marks err as a synthetic fast failure from an open breaker
func CircuitOpen(err error) error {
	return &Error{Kind: KindCircuitOpen, Err: err}
}

// KindOf returns the classification of err, or zero if err is unclassified
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsTransient reports whether err should be retried.
// Unclassified errors are treated as transient so that downstream hiccups
// surfaced as plain errors still get the retry policy applied.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindTransient, 0:
		return true
	default:
		return false
	}
}

// IsRejection reports whether err is an ingress-stage rejection
func IsRejection(err error) bool {
	switch KindOf(err) {
	case KindAuthentication, KindFreshness, KindOrigin, KindValidation:
		return true
	default:
		return false
	}
}
