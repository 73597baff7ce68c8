package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/outagecal/internal/outage"
)

// CycleTx is the write transaction of one reconciliation cycle.
//
// Every cycle write goes through it. Nothing is visible to readers until
// Commit succeeds; Rollback is safe to defer and is a no-op after Commit.
// A CycleTx is not safe for concurrent use.
type CycleTx struct {
	tx    *sql.Tx
	store *Store
	done  bool
}

// BeginCycle opens the write transaction for one cycle.
// The transaction is IMMEDIATE, so a second BeginCycle (or a purge) blocks
// until this one finishes. If ctx is cancelled the transaction is rolled back.
func (s *Store) BeginCycle(ctx context.Context) (*CycleTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin cycle: %w", err)
	}
	return &CycleTx{tx: tx, store: s}, nil
}

// Commit makes the cycle's writes durable.
// A cancelled ctx rolls the transaction back instead.
func (c *CycleTx) Commit(ctx context.Context) error {
	if c.done {
		return ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		c.Rollback()
		return fmt.Errorf("commit cycle: %w", err)
	}
	c.done = true
	if err := c.tx.Commit(); err != nil {
		return fmt.Errorf("commit cycle: %w", err)
	}
	return nil
}

// Rollback discards the cycle's writes. Safe to call after Commit.
func (c *CycleTx) Rollback() error {
	if c.done {
		return nil
	}
	c.done = true
	if err := c.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("rollback cycle: %w", err)
	}
	return nil
}

// ActiveRef identifies an active event.
type ActiveRef struct {
	UID   string
	Group outage.GroupCode
}

// ActiveFingerprints returns the active events keyed by fingerprint, as of the
// moment it is called within the transaction.
//
// Returns a DuplicateActiveError if any fingerprint has more than one active row.
func (c *CycleTx) ActiveFingerprints(ctx context.Context) (map[outage.Fingerprint]ActiveRef, error) {
	if c.done {
		return nil, ErrTxDone
	}
	if err := checkDuplicateActive(ctx, c.tx); err != nil {
		return nil, err
	}

	rows, err := c.tx.QueryContext(ctx, `
		SELECT fingerprint, uid, group_code
		FROM events
		WHERE status = 'active'
	`)
	if err != nil {
		return nil, fmt.Errorf("query active fingerprints: %w", err)
	}
	defer rows.Close()

	active := make(map[outage.Fingerprint]ActiveRef)
	for rows.Next() {
		var fp, uid, group string
		if err := rows.Scan(&fp, &uid, &group); err != nil {
			return nil, fmt.Errorf("scan active fingerprint: %w", err)
		}
		active[outage.Fingerprint(fp)] = ActiveRef{UID: uid, Group: outage.GroupCode(group)}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active fingerprints: %w", err)
	}

	return active, nil
}

func checkDuplicateActive(ctx context.Context, tx *sql.Tx) error {
	var fp, uids string
	err := tx.QueryRowContext(ctx, `
		SELECT fingerprint, group_concat(uid, ',')
		FROM (
			SELECT fingerprint, uid FROM events
			WHERE status = 'active'
			ORDER BY uid COLLATE BINARY
		)
		GROUP BY fingerprint
		HAVING COUNT(*) > 1
		ORDER BY fingerprint COLLATE BINARY
		LIMIT 1
	`).Scan(&fp, &uids)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check duplicate active: %w", err)
	}
	return &DuplicateActiveError{
		Fingerprint: outage.Fingerprint(fp),
		UIDs:        strings.Split(uids, ","),
	}
}
