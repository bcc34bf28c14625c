// Package shared holds the error kinds and domain events used across the
// participant and matching packages. It imports only the standard library.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is; a DomainError carrying a kind
// matches it too.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidID       = errors.New("invalid ID")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")

	ErrStateTransition = errors.New("invalid state transition")

	ErrLockNotAcquired    = errors.New("lock not acquired")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrPartialFailure     = errors.New("partial failure")
)

// DomainError names where a failure happened and what kind it is.
type DomainError struct {
	Domain  string // "participant", "matching", "postgres"
	Op      string // "RunCycle", "CreateMatch", ...
	Kind    error
	Message string
	Err     error // cause, may be nil
}

func (e *DomainError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
	}
	return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
}

// Unwrap returns the cause, falling back to the kind.
func (e *DomainError) Unwrap() error {
	if e.Err == nil {
		return e.Kind
	}
	return e.Err
}

// Is matches both the kind and the cause chain.
func (e *DomainError) Is(target error) bool {
	return (e.Kind != nil && errors.Is(e.Kind, target)) ||
		(e.Err != nil && errors.Is(e.Err, target))
}

// NewDomainError builds a DomainError without a cause.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError builds a DomainError around err.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// ─────────────────────────────────────────────────────────────────────────────
// Participant
// ─────────────────────────────────────────────────────────────────────────────

var (
	ErrInvalidParticipant = NewDomainError("participant", "Validate", ErrInvalidID, "invalid participant ID")
	ErrInvalidCoordinates = NewDomainError("participant", "Validate", ErrValueOutOfRange, "coordinates out of range")
)

// ─────────────────────────────────────────────────────────────────────────────
// Matching
// ─────────────────────────────────────────────────────────────────────────────

var (
	ErrMatchNotFound             = NewDomainError("matching", "Find", ErrNotFound, "match not found")
	ErrParticipantAlreadyMatched = NewDomainError("matching", "Create", ErrAlreadyExists, "participant already matched this week")
	ErrSelfMatch                 = NewDomainError("matching", "Create", ErrInvalidInput, "cannot match participant with self")
	ErrInvalidMatchTransition    = NewDomainError("matching", "UpdateStatus", ErrStateTransition, "invalid match status transition")
	ErrInvalidCycle              = NewDomainError("matching", "RunCycle", ErrInvalidInput, "invalid cycle parameters")
	ErrInsufficientPool          = NewDomainError("matching", "RunCycle", ErrInvalidInput, "not enough eligible participants")
	ErrQuestionSetNotFound       = NewDomainError("matching", "RunCycle", ErrNotFound, "weekly question set not found")
	ErrCycleIncomplete           = NewDomainError("matching", "RunCycle", ErrPartialFailure, "some matches could not be persisted")
)

// IsValidation reports whether err was caused by bad input rather than by
// the environment.
func IsValidation(err error) bool {
	for _, kind := range []error{ErrInvalidInput, ErrInvalidID, ErrEmptyValue, ErrValueOutOfRange} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether the same call may succeed later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrTimeout)
}
