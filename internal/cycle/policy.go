package cycle

import (
	"errors"
	"fmt"
)

var (
	// ErrScrapeFailed means the scrape itself went wrong. The cycle is not
	// reconciled, so a broken scrape never tombstones the ledger.
	ErrScrapeFailed = errors.New("scrape failed")

	// ErrTooFewObservations means the policy refused a cycle with too few
	// observations to be trusted.
	ErrTooFewObservations = errors.New("too few observations")
)

// EmptyCyclePolicy decides what an empty (but successful) scrape means.
type EmptyCyclePolicy string

const (
	// EmptySkip leaves the ledger untouched and reports the cycle as skipped.
	EmptySkip EmptyCyclePolicy = "skip"

	// EmptyReconcile reconciles the empty set, tombstoning every active event.
	EmptyReconcile EmptyCyclePolicy = "reconcile"

	// EmptyFail refuses the cycle with ErrTooFewObservations.
	EmptyFail EmptyCyclePolicy = "fail"
)

// ParseEmptyCyclePolicy validates a policy name. Empty means EmptySkip.
func ParseEmptyCyclePolicy(s string) (EmptyCyclePolicy, error) {
	switch p := EmptyCyclePolicy(s); p {
	case "":
		return EmptySkip, nil
	case EmptySkip, EmptyReconcile, EmptyFail:
		return p, nil
	}
	return "", fmt.Errorf("unknown empty cycle policy %q (want skip, reconcile or fail)", s)
}

// Policy guards the reconciler against scrapes that look like malfunctions.
type Policy struct {
	EmptyCycle EmptyCyclePolicy

	// MinObservations refuses non-empty cycles with fewer observations.
	// Zero disables the check.
	MinObservations int
}

// DefaultPolicy skips empty cycles and has no minimum.
func DefaultPolicy() Policy {
	return Policy{EmptyCycle: EmptySkip}
}

// Admit decides whether a cycle with n observations may be reconciled.
// It returns false with a nil error when the cycle should be skipped.
func (p Policy) Admit(n int) (bool, error) {
	if n == 0 {
		switch p.EmptyCycle {
		case EmptyReconcile:
			return true, nil
		case EmptyFail:
			return false, fmt.Errorf("%w: scrape returned no observations", ErrTooFewObservations)
		default:
			return false, nil
		}
	}
	if p.MinObservations > 0 && n < p.MinObservations {
		return false, fmt.Errorf("%w: got %d, need at least %d", ErrTooFewObservations, n, p.MinObservations)
	}
	return true, nil
}
