package reconcile

import (
	"errors"
	"fmt"

	"github.com/roach88/outagecal/internal/outage"
)

// CycleError reports a cycle that did not commit. No ledger change from the
// cycle is visible when it is returned.
type CycleError struct {
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Fingerprint identifies the event being written when the cycle failed, if any.
	Fingerprint outage.Fingerprint

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes cycle failures.
type ErrorCode string

const (
	// ErrCodeStorageFailure indicates a storage I/O or transaction error.
	ErrCodeStorageFailure ErrorCode = "STORAGE_FAILURE"

	// ErrCodeInvariantViolation indicates the ledger breaks one of its own
	// invariants (e.g. two active events share a fingerprint). Operator
	// investigation is required; the ledger is never repaired automatically.
	ErrCodeInvariantViolation ErrorCode = "INVARIANT_VIOLATION"

	// ErrCodeCancelled indicates the cycle's context was cancelled.
	ErrCodeCancelled ErrorCode = "CYCLE_CANCELLED"
)

func (e *CycleError) Error() string {
	if e.Fingerprint != "" {
		return fmt.Sprintf("%s: %s (fingerprint=%s): %v", e.Code, e.Message, e.Fingerprint.Short(), e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var ce *CycleError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsStorageFailure returns true if the cycle failed on storage I/O.
func IsStorageFailure(err error) bool {
	return hasCode(err, ErrCodeStorageFailure)
}

// IsInvariantViolation returns true if the cycle found the ledger corrupt.
func IsInvariantViolation(err error) bool {
	return hasCode(err, ErrCodeInvariantViolation)
}

// IsCancelled returns true if the cycle was cancelled.
func IsCancelled(err error) bool {
	return hasCode(err, ErrCodeCancelled)
}
