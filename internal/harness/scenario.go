package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/outagecal/internal/source"
	"github.com/roach88/outagecal/internal/store"
)

// Scenario defaults.
const (
	DefaultDate  = "2026-10-19"
	DefaultStart = "2026-10-19T05:00:00Z"
)

// Scenario is a scripted sequence of reconciliation cycles and retention
// sweeps run against a fresh ledger.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Timezone the observations are stated in. Defaults to Europe/Kyiv.
	Timezone string `yaml:"timezone,omitempty"`

	// Date is the schedule day (YYYY-MM-DD) used by observations that do not
	// name their own.
	Date string `yaml:"date,omitempty"`

	// Start is the RFC 3339 instant the scenario clock starts at.
	Start string `yaml:"start,omitempty"`

	// MergePolicy is passed to the store. Defaults to overwrite.
	MergePolicy string `yaml:"merge_policy,omitempty"`

	Steps []Step `yaml:"steps"`

	// Assertions validate the final ledger.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step kinds.
const (
	StepCycle = "cycle"
	StepSweep = "sweep"
)

// Step is one cycle or sweep. The clock moves by Advance before the step runs.
type Step struct {
	Do      string `yaml:"do"`
	Advance string `yaml:"advance,omitempty"`

	// Observations reported by a cycle step. An empty list is a valid cycle
	// that tombstones every active event.
	Observations []ObservationSpec `yaml:"observations,omitempty"`

	// Horizon is the retention window of a sweep step. Defaults to 30 days.
	Horizon string `yaml:"horizon,omitempty"`

	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ObservationSpec is one schedule line as the scraper would report it.
type ObservationSpec struct {
	Group string `yaml:"group"`

	// Kind is outage or available; any other text is passed through verbatim.
	Kind string `yaml:"kind,omitempty"`

	// Date overrides the scenario date (YYYY-MM-DD).
	Date string `yaml:"date,omitempty"`

	From   string `yaml:"from,omitempty"`
	To     string `yaml:"to,omitempty"`
	AllDay bool   `yaml:"all_day,omitempty"`
	Note   string `yaml:"note,omitempty"`
}

// ExpectClause checks a step's counts. Nil fields are not checked.
type ExpectClause struct {
	Created    *int `yaml:"created,omitempty"`
	Refreshed  *int `yaml:"refreshed,omitempty"`
	Removed    *int `yaml:"removed,omitempty"`
	Rejected   *int `yaml:"rejected,omitempty"`
	Duplicates *int `yaml:"duplicates,omitempty"`
	Purged     *int `yaml:"purged,omitempty"`
}

// Assertion validates the final ledger.
type Assertion struct {
	// Type specifies the assertion type:
	// - "active_count": number of active events, optionally for one group
	// - "final_state": query a table and verify one row
	// - "row_count": number of rows in a table matching Where
	// - "changes": exact UIDs created, refreshed and removed by a cycle step
	Type string `yaml:"type"`

	// Group narrows active_count to one group code.
	Group string `yaml:"group,omitempty"`

	// Count is the expected count (active_count, row_count).
	Count int `yaml:"count,omitempty"`

	// Table is the table name (final_state, row_count).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters. All fields must match exactly.
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state), subset match.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Step is the 1-based step index (changes).
	Step int `yaml:"step,omitempty"`

	Created   []string `yaml:"created,omitempty"`
	Refreshed []string `yaml:"refreshed,omitempty"`
	Removed   []string `yaml:"removed,omitempty"`
}

// Assertion type constants.
const (
	AssertActiveCount = "active_count"
	AssertFinalState  = "final_state"
	AssertRowCount    = "row_count"
	AssertChanges     = "changes"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML and fills in defaults.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	scenario.applyDefaults()
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func (s *Scenario) applyDefaults() {
	if s.Timezone == "" {
		s.Timezone = source.DefaultTimezone
	}
	if s.Date == "" {
		s.Date = DefaultDate
	}
	if s.Start == "" {
		s.Start = DefaultStart
	}
	if s.MergePolicy == "" {
		s.MergePolicy = string(store.MergeOverwrite)
	}
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if _, err := source.LoadLocation(s.Timezone); err != nil {
		return err
	}
	if _, err := time.Parse(time.DateOnly, s.Date); err != nil {
		return fmt.Errorf("date: %w", err)
	}
	if _, err := time.Parse(time.RFC3339, s.Start); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if _, err := store.ParseMergePolicy(s.MergePolicy); err != nil {
		return err
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, len(s.Steps)); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step *Step) error {
	if step.Advance != "" {
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("steps[%d]: advance: %w", index, err)
		}
		if d < 0 {
			return fmt.Errorf("steps[%d]: advance must not be negative", index)
		}
	}

	switch step.Do {
	case StepCycle:
		if step.Horizon != "" {
			return fmt.Errorf("steps[%d]: horizon is only valid for sweep", index)
		}
		if step.Expect != nil && step.Expect.Purged != nil {
			return fmt.Errorf("steps[%d].expect: purged is only valid for sweep", index)
		}
		for j, o := range step.Observations {
			if o.Group == "" {
				return fmt.Errorf("steps[%d].observations[%d]: group is required", index, j)
			}
			if o.AllDay && (o.From != "" || o.To != "") {
				return fmt.Errorf("steps[%d].observations[%d]: all_day excludes from/to", index, j)
			}
			if !o.AllDay && o.From == "" {
				return fmt.Errorf("steps[%d].observations[%d]: from is required unless all_day", index, j)
			}
			if o.Date != "" {
				if _, err := time.Parse(time.DateOnly, o.Date); err != nil {
					return fmt.Errorf("steps[%d].observations[%d]: date: %w", index, j, err)
				}
			}
		}
	case StepSweep:
		if len(step.Observations) > 0 {
			return fmt.Errorf("steps[%d]: observations are only valid for cycle", index)
		}
		if step.Horizon != "" {
			d, err := time.ParseDuration(step.Horizon)
			if err != nil {
				return fmt.Errorf("steps[%d]: horizon: %w", index, err)
			}
			if d <= 0 {
				return fmt.Errorf("steps[%d]: horizon must be positive", index)
			}
		}
	case "":
		return fmt.Errorf("steps[%d]: do is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown step %q", index, step.Do)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, steps int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertActiveCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for active_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertChanges:
		if a.Step < 1 || a.Step > steps {
			return fmt.Errorf("assertions[%d]: step must be between 1 and %d for changes", index, steps)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
