package store

import (
	"context"
	"fmt"
	"time"
)

// PurgeRemovedOlderThan permanently deletes removed events whose removal
// timestamp is strictly before cutoff, and returns how many were deleted.
// Active events are never deleted.
//
// Runs in its own IMMEDIATE transaction, so it is serialised against cycles.
func (s *Store) PurgeRemovedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("purge removed: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		DELETE FROM events
		WHERE status = 'removed' AND removed_at < ?
	`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge removed: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge removed: rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("purge removed: commit: %w", err)
	}
	return n, nil
}
