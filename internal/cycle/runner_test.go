package cycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/outagecal/internal/outage"
	"github.com/roach88/outagecal/internal/reconcile"
	"github.com/roach88/outagecal/internal/retention"
	"github.com/roach88/outagecal/internal/source"
	"github.com/roach88/outagecal/internal/store"
	tu "github.com/roach88/outagecal/internal/testutil"
)

var start = time.Date(2026, time.October, 19, 5, 0, 0, 0, time.UTC)

// staticScraper returns the same observations every cycle.
type staticScraper struct {
	obs   []outage.Observation
	err   error
	calls atomic.Int32
}

func (s *staticScraper) Scrape(ctx context.Context) (Scrape, error) {
	s.calls.Add(1)
	if s.err != nil {
		return Scrape{}, s.err
	}
	return Scrape{Observations: s.obs, Source: "static"}, nil
}

type harness struct {
	store   *store.Store
	clock   *tu.FakeClock
	scraper *staticScraper
	runner  *Runner
}

func newHarness(t *testing.T, opts ...RunnerOption) *harness {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"),
		store.WithUIDGenerator(tu.NewSequentialUIDs("ev")))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := tu.NewFakeClock(start)
	rec := reconcile.New(st, reconcile.WithClock(clock), reconcile.WithLogger(logger))
	scraper := &staticScraper{}

	opts = append([]RunnerOption{WithClock(clock), WithLogger(logger)}, opts...)
	runner := NewRunner(scraper, rec, retention.New(st, logger), opts...)
	return &harness{store: st, clock: clock, scraper: scraper, runner: runner}
}

func (h *harness) active(t *testing.T) int {
	t.Helper()
	events, err := h.store.ActiveEvents(context.Background())
	require.NoError(t, err)
	return len(events)
}

func TestRunOnce_Reconciles(t *testing.T) {
	h := newHarness(t)
	h.scraper.obs = []outage.Observation{tu.Timed("1.1", 8, 0, 12, 0)}

	out, err := h.runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeReconciled, out.Status)
	assert.Equal(t, 1, out.Observations)
	require.NotNil(t, out.Report)
	assert.Len(t, out.Report.Created, 1)
	assert.Equal(t, 1, h.active(t))
}

func TestRunOnce_EmptyCycleSkippedByDefault(t *testing.T) {
	h := newHarness(t)
	h.scraper.obs = []outage.Observation{tu.Timed("1.1", 8, 0, 12, 0)}
	_, err := h.runner.RunOnce(context.Background())
	require.NoError(t, err)

	skipped := testutil.ToFloat64(cyclesSkippedTotal)
	h.scraper.obs = nil
	out, err := h.runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, out.Status)
	assert.Nil(t, out.Report)
	assert.Equal(t, 1, h.active(t))
	assert.Equal(t, skipped+1, testutil.ToFloat64(cyclesSkippedTotal))
}

func TestRunOnce_EmptyCycleReconciled(t *testing.T) {
	h := newHarness(t, WithPolicy(Policy{EmptyCycle: EmptyReconcile}))
	h.scraper.obs = []outage.Observation{tu.Timed("1.1", 8, 0, 12, 0)}
	_, err := h.runner.RunOnce(context.Background())
	require.NoError(t, err)

	h.scraper.obs = nil
	out, err := h.runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeReconciled, out.Status)
	assert.Len(t, out.Report.Removed, 1)
	assert.Zero(t, h.active(t))
}

func TestRunOnce_TooFewObservations(t *testing.T) {
	h := newHarness(t, WithPolicy(Policy{EmptyCycle: EmptyFail, MinObservations: 2}))
	h.scraper.obs = []outage.Observation{tu.Timed("1.1", 8, 0, 12, 0), tu.Timed("1.2", 8, 0, 12, 0)}
	_, err := h.runner.RunOnce(context.Background())
	require.NoError(t, err)

	h.scraper.obs = h.scraper.obs[:1]
	_, err = h.runner.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrTooFewObservations)

	h.scraper.obs = nil
	_, err = h.runner.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrTooFewObservations)

	assert.Equal(t, 2, h.active(t))
}

func TestRunOnce_ScrapeFailureNeverReconciles(t *testing.T) {
	h := newHarness(t, WithPolicy(Policy{EmptyCycle: EmptyReconcile}))
	h.scraper.obs = []outage.Observation{tu.Timed("1.1", 8, 0, 12, 0)}
	_, err := h.runner.RunOnce(context.Background())
	require.NoError(t, err)

	refused := testutil.ToFloat64(cyclesRefusedTotal.WithLabelValues("scrape_failed"))
	h.scraper.err = errors.Join(ErrScrapeFailed, errors.New("page timed out"))
	_, err = h.runner.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrScrapeFailed)
	assert.Equal(t, 1, h.active(t))
	assert.Equal(t, refused+1, testutil.ToFloat64(cyclesRefusedTotal.WithLabelValues("scrape_failed")))
}

func TestRunOnce_ReconcileErrorPropagates(t *testing.T) {
	h := newHarness(t)
	h.scraper.obs = []outage.Observation{tu.Timed("1.1", 8, 0, 12, 0)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.runner.RunOnce(ctx)
	require.Error(t, err)
	assert.True(t, reconcile.IsCancelled(err))
}

func TestSweep_UsesHorizonAndClock(t *testing.T) {
	h := newHarness(t, WithRetention(48*time.Hour), WithPolicy(Policy{EmptyCycle: EmptyReconcile}))
	h.scraper.obs = []outage.Observation{tu.Timed("1.1", 8, 0, 12, 0)}
	_, err := h.runner.RunOnce(context.Background())
	require.NoError(t, err)
	h.scraper.obs = nil
	_, err = h.runner.RunOnce(context.Background())
	require.NoError(t, err)

	h.clock.Advance(47 * time.Hour)
	n, err := h.runner.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	h.clock.Advance(2 * time.Hour)
	n, err = h.runner.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWatch_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	h.scraper.obs = []outage.Observation{tu.Timed("1.1", 8, 0, 12, 0)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.runner.Watch(ctx, "@every 1h", "@daily") }()

	require.Eventually(t, func() bool { return h.scraper.calls.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
	assert.Equal(t, 1, h.active(t))
}

func TestWatch_InvalidSchedule(t *testing.T) {
	h := newHarness(t)

	err := h.runner.Watch(context.Background(), "not a schedule", "")
	assert.Error(t, err)
	err = h.runner.Watch(context.Background(), "@every 1h", "bogus")
	assert.Error(t, err)
	assert.Zero(t, h.scraper.calls.Load())
}

func TestSnapshotScraper(t *testing.T) {
	loc := time.FixedZone("EEST", 3*60*60)
	dir := t.TempDir()
	now := func() time.Time { return time.Date(2026, time.October, 19, 9, 0, 0, 0, loc) }

	snap := &source.Snapshot{
		Date:       "19.10.2026",
		DateFound:  true,
		LastUpdate: "19.10.2026 07:30",
		Groups: []source.Group{
			{Name: "Група 1.1", Status: source.StatusTextOutage, Period: &source.Period{From: "08:00", To: "12:00"}},
			{Name: "Група 2.1", Status: source.StatusTextOutage, Period: &source.Period{From: "12:00", To: "16:00"}},
		},
	}
	path, err := source.SaveSnapshot(dir, snap, now())
	require.NoError(t, err)

	s := &SnapshotScraper{
		Dir:      dir,
		Location: loc,
		Filter:   source.NewGroupFilter([]outage.GroupCode{"2.1"}),
		Now:      now,
	}
	scrape, err := s.Scrape(context.Background())
	require.NoError(t, err)
	assert.Equal(t, path, scrape.Source)
	assert.Equal(t, source.StatusCurrentData, scrape.Validation.Status)
	require.Len(t, scrape.Observations, 1)
	assert.Equal(t, "2.1", scrape.Observations[0].Group)
}

func TestSnapshotScraper_Failures(t *testing.T) {
	loc := time.FixedZone("EEST", 3*60*60)
	now := func() time.Time { return time.Date(2026, time.October, 19, 9, 0, 0, 0, loc) }

	t.Run("no snapshots", func(t *testing.T) {
		s := &SnapshotScraper{Dir: t.TempDir(), Location: loc, Now: now}
		_, err := s.Scrape(context.Background())
		assert.ErrorIs(t, err, ErrScrapeFailed)
	})

	t.Run("stale schedule", func(t *testing.T) {
		dir := t.TempDir()
		_, err := source.SaveSnapshot(dir, &source.Snapshot{
			Date: "18.10.2026", DateFound: true,
			Groups: []source.Group{{Name: "Група 1.1", Status: source.StatusTextOutage}},
		}, now())
		require.NoError(t, err)

		s := &SnapshotScraper{Dir: dir, Location: loc, Now: now}
		scrape, err := s.Scrape(context.Background())
		assert.ErrorIs(t, err, ErrScrapeFailed)
		assert.Equal(t, source.StatusOldData, scrape.Validation.Status)
	})

	t.Run("no data is an empty scrape", func(t *testing.T) {
		dir := t.TempDir()
		path, err := source.SaveSnapshot(dir, &source.Snapshot{Date: "19.10.2026", DateFound: true}, now())
		require.NoError(t, err)

		s := &SnapshotScraper{Path: path, Location: loc, Now: now}
		scrape, err := s.Scrape(context.Background())
		require.NoError(t, err)
		assert.Equal(t, source.StatusNoData, scrape.Validation.Status)
		assert.NotNil(t, scrape.Observations)
		assert.Empty(t, scrape.Observations)
	})
}
