package reconcile

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/outagecal/internal/outage"
	"github.com/roach88/outagecal/internal/store"
	tu "github.com/roach88/outagecal/internal/testutil"
)

var cycleStart = time.Date(2026, time.October, 19, 5, 0, 0, 0, time.UTC)

type fixture struct {
	store *store.Store
	clock *tu.FakeClock
	rec   *Reconciler
}

func newFixture(t *testing.T, opts ...store.Option) *fixture {
	t.Helper()
	opts = append([]store.Option{store.WithUIDGenerator(tu.NewSequentialUIDs("ev"))}, opts...)
	st, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := tu.NewFakeClock(cycleStart)
	rec := New(st,
		WithClock(clock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return &fixture{store: st, clock: clock, rec: rec}
}

func (f *fixture) cycle(t *testing.T, obs ...outage.Observation) *Report {
	t.Helper()
	rep, err := f.rec.Reconcile(context.Background(), obs)
	require.NoError(t, err)
	f.clock.Advance(5 * time.Minute)
	return rep
}

func (f *fixture) active(t *testing.T) []outage.Event {
	t.Helper()
	events, err := f.store.ActiveEvents(context.Background())
	require.NoError(t, err)
	return events
}

func changeUIDs(changes []Change) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.UID
	}
	return out
}

func eventUIDs(events []outage.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.UID
	}
	return out
}

func TestReconcile_FirstCycleCreates(t *testing.T) {
	f := newFixture(t)

	rep := f.cycle(t,
		tu.Timed("1.1", 8, 0, 12, 0),
		tu.Timed("2.1", 12, 0, 16, 0),
	)

	assert.Equal(t, int64(1), rep.CycleID)
	assert.Equal(t, 2, rep.Observed)
	assert.Equal(t, 2, rep.Accepted)
	assert.Equal(t, []string{"ev-1", "ev-2"}, changeUIDs(rep.Created))
	assert.Empty(t, rep.Refreshed)
	assert.Empty(t, rep.Removed)
	assert.Empty(t, rep.Rejected)

	events := f.active(t)
	require.Len(t, events, 2)
	assert.Equal(t, cycleStart, events[0].CreatedAt)
	assert.Equal(t, cycleStart, events[0].LastSeenAt)
}

func TestReconcile_RepeatRefreshesWithStableUIDs(t *testing.T) {
	f := newFixture(t)
	obs := []outage.Observation{tu.Timed("1.1", 8, 0, 12, 0), tu.Timed("2.1", 12, 0, 16, 0)}

	f.cycle(t, obs...)
	before := f.active(t)

	rep := f.cycle(t, obs...)
	assert.Empty(t, rep.Created)
	assert.Equal(t, []string{"ev-1", "ev-2"}, changeUIDs(rep.Refreshed))

	after := f.active(t)
	assert.Equal(t, eventUIDs(before), eventUIDs(after))
	for i := range after {
		assert.Equal(t, before[i].CreatedAt, after[i].CreatedAt)
		assert.Equal(t, cycleStart.Add(5*time.Minute), after[i].LastSeenAt)
	}
}

func TestReconcile_AbsentEventsAreRemoved(t *testing.T) {
	f := newFixture(t)

	f.cycle(t, tu.Timed("1.1", 8, 0, 12, 0), tu.Timed("2.1", 12, 0, 16, 0))
	rep := f.cycle(t, tu.Timed("2.1", 12, 0, 16, 0))

	require.Len(t, rep.Removed, 1)
	assert.Equal(t, "ev-1", rep.Removed[0].UID)
	assert.Equal(t, outage.GroupCode("1.1"), rep.Removed[0].Group)
	assert.Equal(t, []string{"ev-2"}, eventUIDs(f.active(t)))

	removed, err := f.store.EventByUID(context.Background(), "ev-1")
	require.NoError(t, err)
	assert.Equal(t, outage.StatusRemoved, removed.Status)
	require.NotNil(t, removed.RemovedAt)
	assert.Equal(t, cycleStart.Add(5*time.Minute), *removed.RemovedAt)
}

func TestReconcile_ReappearanceGetsNewUID(t *testing.T) {
	f := newFixture(t)
	obs := tu.Timed("1.1", 8, 0, 12, 0)

	f.cycle(t, obs)
	f.cycle(t)
	rep := f.cycle(t, obs)

	assert.Equal(t, []string{"ev-2"}, changeUIDs(rep.Created))
	assert.Equal(t, []string{"ev-2"}, eventUIDs(f.active(t)))
}

func TestReconcile_EmptyCycleRemovesEverything(t *testing.T) {
	f := newFixture(t)

	f.cycle(t, tu.Timed("1.1", 8, 0, 12, 0), tu.AllDay("3.2"))
	rep := f.cycle(t)

	assert.Equal(t, 0, rep.Observed)
	assert.Len(t, rep.Removed, 2)
	assert.Empty(t, f.active(t))
}

func TestReconcile_Idempotent(t *testing.T) {
	f := newFixture(t)
	obs := []outage.Observation{
		tu.Timed("1.1", 8, 0, 12, 0),
		tu.Timed("1.1", 16, 0, 20, 0),
		tu.AllDay("4.1"),
	}

	f.cycle(t, obs...)
	first := eventUIDs(f.active(t))
	for i := 0; i < 3; i++ {
		rep := f.cycle(t, obs...)
		assert.Empty(t, rep.Created)
		assert.Empty(t, rep.Removed)
	}
	assert.Equal(t, first, eventUIDs(f.active(t)))
}

func TestReconcile_SameCycleDuplicates(t *testing.T) {
	f := newFixture(t)

	rep := f.cycle(t,
		tu.WithNote(tu.AllDay("5.5"), "fallback"),
		tu.WithNote(tu.Timed("5.5", 0, 0, 24, 0), "timed"),
		tu.WithNote(tu.AllDay("5.5"), "late fallback"),
		tu.WithNote(tu.Timed("1.1", 8, 0, 12, 0), "first"),
		tu.WithNote(tu.Timed("1.1", 8, 0, 12, 0), "second"),
	)

	assert.Equal(t, 5, rep.Observed)
	assert.Equal(t, 2, rep.Accepted)
	assert.Equal(t, 3, rep.Duplicates)
	assert.Equal(t, []string{"ev-1", "ev-2"}, changeUIDs(rep.Created))

	events := f.active(t)
	require.Len(t, events, 2)
	byGroup := map[outage.GroupCode]outage.Event{}
	for _, ev := range events {
		byGroup[ev.Group] = ev
	}
	assert.False(t, byGroup["5.5"].AllDay)
	assert.Equal(t, "timed", byGroup["5.5"].Note)
	assert.Equal(t, "second", byGroup["1.1"].Note)
}

func TestReconcile_RejectedObservationsAreExcluded(t *testing.T) {
	f := newFixture(t)

	f.cycle(t, tu.Timed("1.1", 8, 0, 12, 0))

	broken := tu.Timed("1.1", 8, 0, 12, 0)
	broken.Group = "Група 1.1"
	rep := f.cycle(t, broken, tu.Timed("2.1", 12, 0, 16, 0))

	require.Len(t, rep.Rejected, 1)
	assert.Equal(t, 0, rep.Rejected[0].Index)
	assert.Equal(t, "group", rep.Rejected[0].Field)
	assert.True(t, outage.IsAmbiguity(rep.Rejected[0].Err))

	assert.Equal(t, []string{"ev-1"}, changeUIDs(rep.Removed))
	assert.Equal(t, []string{"ev-2"}, eventUIDs(f.active(t)))
}

func TestReconcile_RecordsCycle(t *testing.T) {
	f := newFixture(t)

	f.cycle(t, tu.Timed("1.1", 8, 0, 12, 0), tu.Timed("1.1", 8, 0, 12, 0))
	f.cycle(t)

	cycles, err := f.store.RecentCycles(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, cycles, 2)
	assert.Equal(t, store.CycleRecord{
		ID:         1,
		StartedAt:  cycleStart,
		FinishedAt: cycleStart,
		Observed:   2,
		Accepted:   1,
		Duplicates: 1,
		Created:    1,
	}, cycles[1])
	assert.Equal(t, 1, cycles[0].Removed)
}

func TestReconcile_StorageFailureRollsBackWholeCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.cycle(t, tu.Timed("1.1", 8, 0, 12, 0))

	_, err := f.store.DB().Exec(`
		CREATE TRIGGER fail_remove BEFORE UPDATE OF status ON events
		WHEN NEW.status = 'removed'
		BEGIN SELECT RAISE(ABORT, 'injected fault'); END
	`)
	require.NoError(t, err)

	failedBefore := testutil.ToFloat64(cyclesTotal.WithLabelValues(resultFailed))

	// Creates 2.1 then fails while tombstoning 1.1.
	rep, err := f.rec.Reconcile(ctx, []outage.Observation{tu.Timed("2.1", 12, 0, 16, 0)})
	require.Error(t, err)
	assert.Nil(t, rep)
	assert.True(t, IsStorageFailure(err))
	assert.Contains(t, err.Error(), "injected fault")

	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.NotEmpty(t, ce.Fingerprint)

	assert.Equal(t, []string{"ev-1"}, eventUIDs(f.active(t)))
	all, err := f.store.ListEvents(ctx, store.EventFilter{IncludeRemoved: true})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	cycles, err := f.store.RecentCycles(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, cycles, 1)

	assert.Equal(t, failedBefore+1, testutil.ToFloat64(cyclesTotal.WithLabelValues(resultFailed)))
}

func TestReconcile_InsertFailureRollsBack(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.DB().Exec(`
		CREATE TRIGGER fail_insert BEFORE INSERT ON events
		WHEN NEW.group_code = '6.6'
		BEGIN SELECT RAISE(ABORT, 'injected fault'); END
	`)
	require.NoError(t, err)

	_, err = f.rec.Reconcile(context.Background(), []outage.Observation{
		tu.Timed("1.1", 8, 0, 12, 0),
		tu.Timed("6.6", 8, 0, 12, 0),
	})
	require.Error(t, err)
	assert.True(t, IsStorageFailure(err))
	assert.Empty(t, f.active(t))
}

func TestReconcile_DuplicateActiveIsInvariantViolation(t *testing.T) {
	f := newFixture(t)
	db := f.store.DB()

	_, err := db.Exec("DROP INDEX idx_events_active_fingerprint")
	require.NoError(t, err)
	fp := outage.MustFingerprint(tu.Timed("1.1", 8, 0, 12, 0))
	for _, uid := range []string{"dup-1", "dup-2"} {
		_, err := db.Exec(`
			INSERT INTO events (uid, fingerprint, group_code, kind, starts_at, ends_at, status, created_at, last_seen_at)
			VALUES (?, ?, '1.1', 'outage', 0, 60000, 'active', 0, 0)
		`, uid, string(fp))
		require.NoError(t, err)
	}

	_, err = f.rec.Reconcile(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, IsInvariantViolation(err))
	assert.True(t, store.IsDuplicateActive(err))

	// Nothing was tombstoned.
	assert.Len(t, f.active(t), 2)
}

func TestReconcile_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.cycle(t, tu.Timed("1.1", 8, 0, 12, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cancelledBefore := testutil.ToFloat64(cyclesTotal.WithLabelValues(resultCancelled))
	_, err := f.rec.Reconcile(ctx, nil)
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.Equal(t, cancelledBefore+1, testutil.ToFloat64(cyclesTotal.WithLabelValues(resultCancelled)))

	assert.Equal(t, []string{"ev-1"}, eventUIDs(f.active(t)))
}

func TestReconcile_Metrics(t *testing.T) {
	f := newFixture(t)

	created := testutil.ToFloat64(eventsCreatedTotal)
	refreshed := testutil.ToFloat64(eventsRefreshedTotal)
	removed := testutil.ToFloat64(eventsRemovedTotal)
	rejected := testutil.ToFloat64(observationsRejectedTotal)
	duplicate := testutil.ToFloat64(observationsDuplicateTotal)
	committed := testutil.ToFloat64(cyclesTotal.WithLabelValues(resultCommitted))

	f.cycle(t, tu.Timed("1.1", 8, 0, 12, 0), tu.Timed("1.1", 8, 0, 12, 0), tu.Timed("2.2", 1, 0, 2, 0))
	f.cycle(t, tu.Timed("1.1", 8, 0, 12, 0), outage.Observation{Group: "9.9"})

	assert.Equal(t, created+2, testutil.ToFloat64(eventsCreatedTotal))
	assert.Equal(t, refreshed+1, testutil.ToFloat64(eventsRefreshedTotal))
	assert.Equal(t, removed+1, testutil.ToFloat64(eventsRemovedTotal))
	assert.Equal(t, rejected+1, testutil.ToFloat64(observationsRejectedTotal))
	assert.Equal(t, duplicate+1, testutil.ToFloat64(observationsDuplicateTotal))
	assert.Equal(t, committed+2, testutil.ToFloat64(cyclesTotal.WithLabelValues(resultCommitted)))
}

func TestReconcile_PreferTimedPolicy(t *testing.T) {
	f := newFixture(t, store.WithMergePolicy(store.MergePreferTimed))

	f.cycle(t, tu.WithNote(tu.Timed("3.3", 0, 0, 24, 0), "timed"))
	rep := f.cycle(t, tu.WithNote(tu.AllDay("3.3"), "fallback"))

	assert.Equal(t, []string{"ev-1"}, changeUIDs(rep.Refreshed))
	events := f.active(t)
	require.Len(t, events, 1)
	assert.False(t, events[0].AllDay)
	assert.Equal(t, "timed", events[0].Note)
}
