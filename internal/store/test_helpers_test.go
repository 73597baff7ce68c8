package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/outagecal/internal/outage"
)

var t0 = time.Date(2026, time.October, 19, 6, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store under t.TempDir().
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testEvent builds the fingerprint and display fields of a timed outage.
func testEvent(t *testing.T, group string, startHour, endHour int) (outage.Fingerprint, outage.Fields) {
	t.Helper()
	obs := outage.Observation{
		Group: group,
		Kind:  outage.KindOutage,
		Start: time.Date(2026, time.October, 19, startHour, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.October, 19, endHour, 0, 0, 0, time.UTC),
	}
	fp, p, err := outage.FingerprintOf(obs)
	require.NoError(t, err)
	return fp, outage.DisplayFields(p, obs)
}

// applyCycle upserts each fields entry and commits.
func applyCycle(t *testing.T, s *Store, now time.Time, entries map[outage.Fingerprint]outage.Fields) map[outage.Fingerprint]UpsertResult {
	t.Helper()
	ctx := context.Background()

	tx, err := s.BeginCycle(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	results := make(map[outage.Fingerprint]UpsertResult, len(entries))
	for fp, f := range entries {
		res, err := tx.UpsertActive(ctx, fp, f, now)
		require.NoError(t, err)
		results[fp] = res
	}
	require.NoError(t, tx.Commit(ctx))
	return results
}

func removeInCycle(t *testing.T, s *Store, now time.Time, fps ...outage.Fingerprint) {
	t.Helper()
	ctx := context.Background()

	tx, err := s.BeginCycle(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	for _, fp := range fps {
		_, err := tx.MarkRemoved(ctx, fp, now)
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit(ctx))
}
