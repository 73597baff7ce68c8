package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/roach88/outagecal/internal/outage"
	"github.com/roach88/outagecal/internal/reconcile"
	"github.com/roach88/outagecal/internal/retention"
	"github.com/roach88/outagecal/internal/source"
	"github.com/roach88/outagecal/internal/store"
	"github.com/roach88/outagecal/internal/testutil"
)

// UIDPrefix prefixes the UIDs minted during a scenario: ev-1, ev-2, ...
const UIDPrefix = "ev"

// Harness is the test execution engine.
// It runs scenarios with a fake clock and sequential UIDs.
type Harness struct {
	store      *store.Store
	reconciler *reconcile.Reconciler
	sweeper    *retention.Sweeper
	clock      *testutil.FakeClock
	loc        *time.Location
	date       time.Time
	logger     *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh database in a temporary directory,
// removed on return. Expect clauses and assertions that do not hold are
// reported in Result.Errors; the returned error is reserved for scenarios
// that could not be executed at all.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	loc, err := source.LoadLocation(scenario.Timezone)
	if err != nil {
		return nil, err
	}
	date, err := time.ParseInLocation(time.DateOnly, orDefault(scenario.Date, DefaultDate), loc)
	if err != nil {
		return nil, fmt.Errorf("invalid scenario date: %w", err)
	}
	start, err := time.Parse(time.RFC3339, orDefault(scenario.Start, DefaultStart))
	if err != nil {
		return nil, fmt.Errorf("invalid scenario start: %w", err)
	}
	policy, err := store.ParseMergePolicy(scenario.MergePolicy)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "outagecal-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "ledger.db"),
		store.WithUIDGenerator(testutil.NewSequentialUIDs(UIDPrefix)),
		store.WithMergePolicy(policy),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewFakeClock(start.UTC())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	h := &Harness{
		store:      st,
		reconciler: reconcile.New(st, reconcile.WithClock(clock), reconcile.WithLogger(logger)),
		sweeper:    retention.New(st, logger),
		clock:      clock,
		loc:        loc,
		date:       date,
		logger:     logger,
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		trace, err := h.executeStep(ctx, i+1, step)
		if err != nil {
			return nil, fmt.Errorf("failed to execute step %d: %w", i+1, err)
		}
		result.Steps = append(result.Steps, trace)
		checkExpect(result, trace, step.Expect)
	}

	ledger, err := st.ListEvents(ctx, store.EventFilter{IncludeRemoved: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	result.Ledger = ledger

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, n int, step Step) (StepTrace, error) {
	if step.Advance != "" {
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return StepTrace{}, fmt.Errorf("advance: %w", err)
		}
		h.clock.Advance(d)
	}

	trace := StepTrace{Step: n, Do: step.Do, At: h.clock.Now()}

	switch step.Do {
	case StepCycle:
		obs, err := h.observations(step.Observations)
		if err != nil {
			return StepTrace{}, err
		}
		rep, err := h.reconciler.Reconcile(ctx, obs)
		if err != nil {
			return StepTrace{}, err
		}
		trace.Created = changeUIDs(rep.Created)
		trace.Refreshed = changeUIDs(rep.Refreshed)
		trace.Removed = changeUIDs(rep.Removed)
		for _, rej := range rep.Rejected {
			trace.Rejected = append(trace.Rejected, fmt.Sprintf("%d:%s", rej.Index, rej.Field))
		}
		trace.Duplicates = rep.Duplicates

	case StepSweep:
		horizon := retention.DefaultHorizon
		if step.Horizon != "" {
			d, err := time.ParseDuration(step.Horizon)
			if err != nil {
				return StepTrace{}, fmt.Errorf("horizon: %w", err)
			}
			horizon = d
		}
		purged, err := h.sweeper.Sweep(ctx, h.clock.Now(), horizon)
		if err != nil {
			return StepTrace{}, err
		}
		trace.Purged = purged

	default:
		return StepTrace{}, fmt.Errorf("unknown step %q", step.Do)
	}

	h.logger.Debug("step executed", "step", n, "do", step.Do, "at", trace.At)
	return trace, nil
}

// observations maps each spec through a one-group schedule snapshot, so
// scenario lines are read exactly the way scraped schedules are.
func (h *Harness) observations(specs []ObservationSpec) ([]outage.Observation, error) {
	obs := make([]outage.Observation, 0, len(specs))
	for i, spec := range specs {
		date := h.date
		if spec.Date != "" {
			d, err := time.ParseInLocation(time.DateOnly, spec.Date, h.loc)
			if err != nil {
				return nil, fmt.Errorf("observations[%d]: date: %w", i, err)
			}
			date = d
		}

		group := source.Group{Name: spec.Group, Status: statusText(spec.Kind)}
		if !spec.AllDay {
			group.Period = &source.Period{From: spec.From, To: spec.To}
		}
		snap := &source.Snapshot{
			Date:       date.Format(source.DateLayout),
			DateFound:  true,
			LastUpdate: spec.Note,
			Groups:     []source.Group{group},
		}
		obs = append(obs, source.Observations(snap, h.loc)...)
	}
	return obs, nil
}

func statusText(kind string) string {
	switch outage.Kind(kind) {
	case "", outage.KindOutage:
		return source.StatusTextOutage
	case outage.KindAvailable:
		return source.StatusTextAvailable
	}
	return kind
}

func changeUIDs(changes []reconcile.Change) []string {
	if len(changes) == 0 {
		return nil
	}
	uids := make([]string, len(changes))
	for i, c := range changes {
		uids[i] = c.UID
	}
	sort.Strings(uids)
	return uids
}

// checkExpect compares a step's counts against its expect clause.
func checkExpect(result *Result, trace StepTrace, expect *ExpectClause) {
	if expect == nil {
		return
	}
	check := func(name string, want *int, got int) {
		if want != nil && *want != got {
			result.AddError(fmt.Sprintf("step %d (%s): expected %s=%d, got %d", trace.Step, trace.Do, name, *want, got))
		}
	}
	check("created", expect.Created, len(trace.Created))
	check("refreshed", expect.Refreshed, len(trace.Refreshed))
	check("removed", expect.Removed, len(trace.Removed))
	check("rejected", expect.Rejected, len(trace.Rejected))
	check("duplicates", expect.Duplicates, trace.Duplicates)
	check("purged", expect.Purged, trace.Purged)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
