package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
steps:
  - do: cycle
    observations:
      - {group: "1.1", from: "08:00", to: "12:00", note: "19.10.2026 07:45"}
      - {group: "2.1", all_day: true}
    expect: {created: 2}
  - do: sweep
    advance: 24h
    horizon: 1h
assertions:
  - type: active_count
    count: 2
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	require.Len(t, scenario.Steps, 2)
	assert.Len(t, scenario.Assertions, 1)

	cycle := scenario.Steps[0]
	assert.Equal(t, StepCycle, cycle.Do)
	require.Len(t, cycle.Observations, 2)
	assert.Equal(t, "1.1", cycle.Observations[0].Group)
	assert.Equal(t, "08:00", cycle.Observations[0].From)
	assert.Equal(t, "19.10.2026 07:45", cycle.Observations[0].Note)
	assert.True(t, cycle.Observations[1].AllDay)
	require.NotNil(t, cycle.Expect)
	require.NotNil(t, cycle.Expect.Created)
	assert.Equal(t, 2, *cycle.Expect.Created)
	assert.Nil(t, cycle.Expect.Removed)

	sweep := scenario.Steps[1]
	assert.Equal(t, StepSweep, sweep.Do)
	assert.Equal(t, "24h", sweep.Advance)
	assert.Equal(t, "1h", sweep.Horizon)
}

func TestLoadScenario_Defaults(t *testing.T) {
	path := writeScenario(t, `
name: defaults
description: defaults are filled in
steps:
  - do: cycle
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Kyiv", scenario.Timezone)
	assert.Equal(t, DefaultDate, scenario.Date)
	assert.Equal(t, DefaultStart, scenario.Start)
	assert.Equal(t, "overwrite", scenario.MergePolicy)
	assert.Empty(t, scenario.Assertions)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MalformedYAML(t *testing.T) {
	path := writeScenario(t, "name: [unterminated\n")
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing_name",
			yaml:    "description: d\nsteps: [{do: cycle}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing_description",
			yaml:    "name: n\nsteps: [{do: cycle}]\n",
			wantErr: "description is required",
		},
		{
			name:    "missing_steps",
			yaml:    "name: n\ndescription: d\n",
			wantErr: "steps list is required",
		},
		{
			name:    "missing_do",
			yaml:    "name: n\ndescription: d\nsteps: [{advance: 1h}]\n",
			wantErr: "steps[0]: do is required",
		},
		{
			name:    "unknown_step",
			yaml:    "name: n\ndescription: d\nsteps: [{do: scrape}]\n",
			wantErr: `unknown step "scrape"`,
		},
		{
			name:    "bad_advance",
			yaml:    "name: n\ndescription: d\nsteps: [{do: cycle, advance: soon}]\n",
			wantErr: "steps[0]: advance",
		},
		{
			name:    "negative_advance",
			yaml:    "name: n\ndescription: d\nsteps: [{do: cycle, advance: -1h}]\n",
			wantErr: "advance must not be negative",
		},
		{
			name:    "bad_timezone",
			yaml:    "name: n\ndescription: d\ntimezone: Mars/Olympus\nsteps: [{do: cycle}]\n",
			wantErr: "load timezone",
		},
		{
			name:    "bad_date",
			yaml:    "name: n\ndescription: d\ndate: 19.10.2026\nsteps: [{do: cycle}]\n",
			wantErr: "date:",
		},
		{
			name:    "bad_start",
			yaml:    "name: n\ndescription: d\nstart: yesterday\nsteps: [{do: cycle}]\n",
			wantErr: "start:",
		},
		{
			name:    "bad_merge_policy",
			yaml:    "name: n\ndescription: d\nmerge_policy: newest\nsteps: [{do: cycle}]\n",
			wantErr: "merge policy",
		},
		{
			name:    "observation_without_group",
			yaml:    "name: n\ndescription: d\nsteps: [{do: cycle, observations: [{from: \"08:00\", to: \"09:00\"}]}]\n",
			wantErr: "group is required",
		},
		{
			name:    "observation_without_from",
			yaml:    "name: n\ndescription: d\nsteps: [{do: cycle, observations: [{group: \"1.1\"}]}]\n",
			wantErr: "from is required unless all_day",
		},
		{
			name:    "all_day_with_times",
			yaml:    "name: n\ndescription: d\nsteps: [{do: cycle, observations: [{group: \"1.1\", all_day: true, from: \"08:00\"}]}]\n",
			wantErr: "all_day excludes from/to",
		},
		{
			name:    "horizon_on_cycle",
			yaml:    "name: n\ndescription: d\nsteps: [{do: cycle, horizon: 1h}]\n",
			wantErr: "horizon is only valid for sweep",
		},
		{
			name:    "purged_on_cycle",
			yaml:    "name: n\ndescription: d\nsteps: [{do: cycle, expect: {purged: 1}}]\n",
			wantErr: "purged is only valid for sweep",
		},
		{
			name:    "observations_on_sweep",
			yaml:    "name: n\ndescription: d\nsteps: [{do: sweep, observations: [{group: \"1.1\", all_day: true}]}]\n",
			wantErr: "observations are only valid for cycle",
		},
		{
			name:    "zero_horizon",
			yaml:    "name: n\ndescription: d\nsteps: [{do: sweep, horizon: 0s}]\n",
			wantErr: "horizon must be positive",
		},
		{
			name:    "unknown_assertion",
			yaml:    "name: n\ndescription: d\nsteps: [{do: cycle}]\nassertions: [{type: trace_contains}]\n",
			wantErr: `unknown assertion type "trace_contains"`,
		},
		{
			name:    "assertion_without_type",
			yaml:    "name: n\ndescription: d\nsteps: [{do: cycle}]\nassertions: [{count: 1}]\n",
			wantErr: "type is required",
		},
		{
			name:    "negative_active_count",
			yaml:    "name: n\ndescription: d\nsteps: [{do: cycle}]\nassertions: [{type: active_count, count: -1}]\n",
			wantErr: "count must be non-negative",
		},
		{
			name:    "final_state_without_table",
			yaml:    "name: n\ndescription: d\nsteps: [{do: cycle}]\nassertions: [{type: final_state, expect: {status: active}}]\n",
			wantErr: "table is required for final_state",
		},
		{
			name:    "final_state_without_expect",
			yaml:    "name: n\ndescription: d\nsteps: [{do: cycle}]\nassertions: [{type: final_state, table: events}]\n",
			wantErr: "expect is required for final_state",
		},
		{
			name:    "row_count_without_table",
			yaml:    "name: n\ndescription: d\nsteps: [{do: cycle}]\nassertions: [{type: row_count, count: 1}]\n",
			wantErr: "table is required for row_count",
		},
		{
			name:    "changes_step_out_of_range",
			yaml:    "name: n\ndescription: d\nsteps: [{do: cycle}]\nassertions: [{type: changes, step: 2}]\n",
			wantErr: "step must be between 1 and 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseScenario_UnknownFieldsRejected(t *testing.T) {
	// YAML files with typos (unknown fields) should be rejected
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "typo_assertion_singular",
			yaml: `
name: test
description: Test typo
steps: [{do: cycle}]
assertion:
  - type: active_count
`,
			wantErr: "field assertion not found",
		},
		{
			name: "typo_in_step",
			yaml: `
name: test
description: Test typo
steps:
  - do: cycle
    observation: []
`,
			wantErr: "field observation not found",
		},
		{
			name: "typo_in_observation",
			yaml: `
name: test
description: Test typo
steps:
  - do: cycle
    observations:
      - {group: "1.1", form: "08:00", to: "09:00"}
`,
			wantErr: "field form not found",
		},
		{
			name: "typo_in_expect",
			yaml: `
name: test
description: Test typo
steps:
  - do: cycle
    expect: {create: 1}
`,
			wantErr: "field create not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseScenario_ZeroCountAllowed(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: zero
description: active_count 0 asserts an empty ledger
steps: [{do: cycle}]
assertions:
  - type: active_count
    count: 0
`))
	require.NoError(t, err)
	assert.Equal(t, 0, scenario.Assertions[0].Count)
}

func TestAssertionConstants(t *testing.T) {
	assert.Equal(t, "active_count", AssertActiveCount)
	assert.Equal(t, "final_state", AssertFinalState)
	assert.Equal(t, "row_count", AssertRowCount)
	assert.Equal(t, "changes", AssertChanges)
}

// TestLoadExampleScenarios validates the scenario files in testdata/scenarios.
func TestLoadExampleScenarios(t *testing.T) {
	tests := []struct {
		file           string
		wantSteps      int
		wantAssertions int
		wantPolicy     string
	}{
		{"lifecycle.yaml", 5, 7, "overwrite"},
		{"dedupe_and_reject.yaml", 2, 4, "prefer-timed"},
		{"night_and_dst.yaml", 4, 3, "overwrite"},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", tt.file))
			require.NoError(t, err, "Failed to load example scenario %s", tt.file)

			assert.Len(t, scenario.Steps, tt.wantSteps)
			assert.Len(t, scenario.Assertions, tt.wantAssertions)
			assert.Equal(t, tt.wantPolicy, scenario.MergePolicy)
		})
	}
}
