package harness

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/outagecal/internal/outage"
)

// Snapshot is the golden view of a scenario run: its step traces and the
// final ledger. Fingerprints are left out; the ledger fields they are
// derived from are all present.
type Snapshot struct {
	ScenarioName string
	Steps        []StepTrace
	Ledger       []outage.Event
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON serialization.
// This is required because outage.MarshalCanonical only handles primitives, slices and maps.
func (s *Snapshot) toCanonicalMap() map[string]any {
	steps := make([]any, len(s.Steps))
	for i, st := range s.Steps {
		m := map[string]any{
			"step": st.Step,
			"do":   st.Do,
			"at":   formatInstant(st.At),
		}
		switch st.Do {
		case StepCycle:
			m["created"] = stringList(st.Created)
			m["refreshed"] = stringList(st.Refreshed)
			m["removed"] = stringList(st.Removed)
			m["rejected"] = stringList(st.Rejected)
			m["duplicates"] = st.Duplicates
		case StepSweep:
			m["purged"] = st.Purged
		}
		steps[i] = m
	}

	ledger := make([]any, len(s.Ledger))
	for i, ev := range s.Ledger {
		row := map[string]any{
			"uid":          ev.UID,
			"group":        ev.Group,
			"kind":         ev.Kind,
			"start":        formatInstant(ev.Start),
			"end":          formatInstant(ev.End),
			"all_day":      ev.AllDay,
			"status":       string(ev.Status),
			"created_at":   formatInstant(ev.CreatedAt),
			"last_seen_at": formatInstant(ev.LastSeenAt),
		}
		if ev.RemovedAt != nil {
			row["removed_at"] = formatInstant(*ev.RemovedAt)
		}
		if ev.Note != "" {
			row["note"] = ev.Note
		}
		ledger[i] = row
	}

	return map[string]any{
		"scenario": s.ScenarioName,
		"steps":    steps,
		"ledger":   ledger,
	}
}

// MarshalSnapshot renders a result as canonical JSON.
func MarshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := Snapshot{
		ScenarioName: scenarioName,
		Steps:        result.Steps,
		Ledger:       result.Ledger,
	}
	return outage.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}

func formatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func stringList(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
