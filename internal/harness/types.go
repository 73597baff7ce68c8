package harness

import (
	"time"

	"github.com/roach88/outagecal/internal/outage"
)

// StepTrace records what one step did to the ledger.
// UID lists are sorted so traces are stable across fingerprint orderings.
type StepTrace struct {
	Step int       `json:"step"` // 1-based
	Do   string    `json:"do"`
	At   time.Time `json:"at"`

	Created    []string `json:"created,omitempty"`
	Refreshed  []string `json:"refreshed,omitempty"`
	Removed    []string `json:"removed,omitempty"`
	Rejected   []string `json:"rejected,omitempty"` // "index:field"
	Duplicates int      `json:"duplicates,omitempty"`

	Purged int `json:"purged,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Steps holds one trace per scenario step, in order.
	Steps []StepTrace `json:"steps"`

	// Ledger is every event row left after the last step, removed ones
	// included, ordered by group, start and UID.
	Ledger []outage.Event `json:"ledger"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepTrace{},
		Ledger: []outage.Event{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Step returns the trace of the 1-based step n.
func (r *Result) Step(n int) (StepTrace, bool) {
	if n < 1 || n > len(r.Steps) {
		return StepTrace{}, false
	}
	return r.Steps[n-1], true
}
