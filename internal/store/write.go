package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/outagecal/internal/outage"
)

// MergePolicy decides how display fields are merged when an active event is
// refreshed. The UID is never touched by either policy.
type MergePolicy string

const (
	// MergeOverwrite replaces display fields with the latest observation.
	MergeOverwrite MergePolicy = "overwrite"

	// MergePreferTimed keeps stored timed display fields when the refresh
	// is an all-day fallback for the same period.
	MergePreferTimed MergePolicy = "prefer-timed"
)

// ParseMergePolicy validates a policy name. Empty means MergeOverwrite.
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch MergePolicy(s) {
	case "", MergeOverwrite:
		return MergeOverwrite, nil
	case MergePreferTimed:
		return MergePreferTimed, nil
	}
	return "", fmt.Errorf("unknown merge policy %q", s)
}

// UpsertResult describes what UpsertActive did.
type UpsertResult struct {
	UID     string
	Created bool
}

// UpsertActive records that fp was observed at now.
//
// If an active event with fp exists its last-seen is bumped (never moved
// backwards) and its display fields are merged per the store's MergePolicy.
// Otherwise a new active event is inserted with a freshly minted UID and
// created = last-seen = now.
func (c *CycleTx) UpsertActive(ctx context.Context, fp outage.Fingerprint, f outage.Fields, now time.Time) (UpsertResult, error) {
	if c.done {
		return UpsertResult{}, ErrTxDone
	}

	var uid string
	var storedAllDay bool
	err := c.tx.QueryRowContext(ctx, `
		SELECT uid, all_day
		FROM events
		WHERE fingerprint = ? AND status = 'active'
	`, string(fp)).Scan(&uid, &storedAllDay)

	switch {
	case err == sql.ErrNoRows:
		return c.insertActive(ctx, fp, f, now)
	case err != nil:
		return UpsertResult{}, fmt.Errorf("upsert active: %w", err)
	}

	if c.store.merge == MergePreferTimed && !storedAllDay && f.AllDay {
		_, err = c.tx.ExecContext(ctx, `
			UPDATE events
			SET last_seen_at = MAX(last_seen_at, ?)
			WHERE uid = ?
		`, toMillis(now), uid)
	} else {
		_, err = c.tx.ExecContext(ctx, `
			UPDATE events
			SET group_code = ?, kind = ?, starts_at = ?, ends_at = ?, all_day = ?, note = ?,
			    last_seen_at = MAX(last_seen_at, ?)
			WHERE uid = ?
		`,
			string(f.Group),
			string(f.Kind),
			toMillis(f.Start),
			toMillis(f.End),
			f.AllDay,
			f.Note,
			toMillis(now),
			uid,
		)
	}
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert active: refresh %s: %w", uid, err)
	}

	return UpsertResult{UID: uid}, nil
}

func (c *CycleTx) insertActive(ctx context.Context, fp outage.Fingerprint, f outage.Fields, now time.Time) (UpsertResult, error) {
	uid := c.store.uids.Generate()
	ms := toMillis(now)

	_, err := c.tx.ExecContext(ctx, `
		INSERT INTO events
		(uid, fingerprint, group_code, kind, starts_at, ends_at, all_day, note,
		 status, created_at, last_seen_at, removed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'active', ?, ?, NULL)
	`,
		uid,
		string(fp),
		string(f.Group),
		string(f.Kind),
		toMillis(f.Start),
		toMillis(f.End),
		f.AllDay,
		f.Note,
		ms,
		ms,
	)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert active: insert: %w", err)
	}

	return UpsertResult{UID: uid, Created: true}, nil
}

// MarkRemoved tombstones the active event with fp, stamping removed_at = now.
// Returns false without error if no active event exists for fp.
func (c *CycleTx) MarkRemoved(ctx context.Context, fp outage.Fingerprint, now time.Time) (bool, error) {
	if c.done {
		return false, ErrTxDone
	}

	result, err := c.tx.ExecContext(ctx, `
		UPDATE events
		SET status = 'removed', removed_at = ?
		WHERE fingerprint = ? AND status = 'active'
	`, toMillis(now), string(fp))
	if err != nil {
		return false, fmt.Errorf("mark removed: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark removed: rows affected: %w", err)
	}
	return n > 0, nil
}

// CycleRecord is the audit row of one committed cycle.
type CycleRecord struct {
	ID         int64     `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Observed   int       `json:"observed"`
	Accepted   int       `json:"accepted"`
	Duplicates int       `json:"duplicates"`
	Rejected   int       `json:"rejected"`
	Created    int       `json:"created"`
	Refreshed  int       `json:"refreshed"`
	Removed    int       `json:"removed"`
}

// RecordCycle appends rec to the cycle log inside the cycle transaction and
// returns its ID.
func (c *CycleTx) RecordCycle(ctx context.Context, rec CycleRecord) (int64, error) {
	if c.done {
		return 0, ErrTxDone
	}

	result, err := c.tx.ExecContext(ctx, `
		INSERT INTO cycles
		(started_at, finished_at, observed, accepted, duplicates, rejected, created, refreshed, removed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		toMillis(rec.StartedAt),
		toMillis(rec.FinishedAt),
		rec.Observed,
		rec.Accepted,
		rec.Duplicates,
		rec.Rejected,
		rec.Created,
		rec.Refreshed,
		rec.Removed,
	)
	if err != nil {
		return 0, fmt.Errorf("record cycle: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record cycle: last insert id: %w", err)
	}
	return id, nil
}
