package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/outagecal/internal/outage"
)

const eventColumns = `uid, fingerprint, group_code, kind, starts_at, ends_at, all_day, note,
	status, created_at, last_seen_at, removed_at`

// EventFilter restricts ListEvents.
type EventFilter struct {
	// Groups limits results to these group codes. Empty means all groups.
	Groups []outage.GroupCode

	// IncludeRemoved also returns tombstoned events that have not been purged.
	IncludeRemoved bool
}

// ActiveEvents returns the active events, optionally restricted to groups.
// Results are ordered by group_code, starts_at, uid and read from one snapshot.
//
// Returns an empty slice (not nil) if there are no active events.
func (s *Store) ActiveEvents(ctx context.Context, groups ...outage.GroupCode) ([]outage.Event, error) {
	return s.ListEvents(ctx, EventFilter{Groups: groups})
}

// ListEvents returns events matching filter, ordered by group_code, starts_at, uid.
func (s *Store) ListEvents(ctx context.Context, filter EventFilter) ([]outage.Event, error) {
	var where []string
	var args []any
	if !filter.IncludeRemoved {
		where = append(where, "status = 'active'")
	}
	if len(filter.Groups) > 0 {
		placeholders := make([]string, len(filter.Groups))
		for i, g := range filter.Groups {
			placeholders[i] = "?"
			args = append(args, string(g))
		}
		where = append(where, "group_code IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := "SELECT " + eventColumns + " FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY group_code ASC, starts_at ASC, uid COLLATE BINARY ASC"

	var events []outage.Event
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		var err error
		events, err = queryEvents(ctx, tx, query, args...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// EventByUID retrieves a single event, active or removed.
// Returns sql.ErrNoRows if not found.
func (s *Store) EventByUID(ctx context.Context, uid string) (outage.Event, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE uid = ?", uid)
	return scanEvent(row)
}

// EventsOnDate returns active events overlapping the calendar day of day,
// evaluated in day's location.
func (s *Store) EventsOnDate(ctx context.Context, day time.Time) ([]outage.Event, error) {
	y, m, d := day.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	to := from.AddDate(0, 0, 1)

	var events []outage.Event
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		var err error
		events, err = queryEvents(ctx, tx, `
			SELECT `+eventColumns+`
			FROM events
			WHERE status = 'active' AND starts_at < ? AND ends_at > ?
			ORDER BY group_code ASC, starts_at ASC, uid COLLATE BINARY ASC
		`, toMillis(to), toMillis(from))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("events on %s: %w", from.Format(time.DateOnly), err)
	}
	return events, nil
}

// Stats summarises the ledger.
type Stats struct {
	Active        int                      `json:"active"`
	Removed       int                      `json:"removed"`
	ActiveByGroup map[outage.GroupCode]int `json:"active_by_group"`
	EarliestStart *time.Time               `json:"earliest_start,omitempty"`
	LatestEnd     *time.Time               `json:"latest_end,omitempty"`
	Cycles        int                      `json:"cycles"`
	LastCycle     *CycleRecord             `json:"last_cycle,omitempty"`
}

// Stats returns ledger totals read from one snapshot.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ActiveByGroup: map[outage.GroupCode]int{}}

	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		var minStart, maxEnd sql.NullInt64
		err := tx.QueryRowContext(ctx, `
			SELECT
				COALESCE(SUM(status = 'active'), 0),
				COALESCE(SUM(status = 'removed'), 0),
				MIN(CASE WHEN status = 'active' THEN starts_at END),
				MAX(CASE WHEN status = 'active' THEN ends_at END)
			FROM events
		`).Scan(&st.Active, &st.Removed, &minStart, &maxEnd)
		if err != nil {
			return fmt.Errorf("query totals: %w", err)
		}
		if minStart.Valid {
			t := fromMillis(minStart.Int64)
			st.EarliestStart = &t
		}
		if maxEnd.Valid {
			t := fromMillis(maxEnd.Int64)
			st.LatestEnd = &t
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT group_code, COUNT(*)
			FROM events
			WHERE status = 'active'
			GROUP BY group_code
		`)
		if err != nil {
			return fmt.Errorf("query groups: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var g string
			var n int
			if err := rows.Scan(&g, &n); err != nil {
				return fmt.Errorf("scan group: %w", err)
			}
			st.ActiveByGroup[outage.GroupCode(g)] = n
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate groups: %w", err)
		}

		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM cycles").Scan(&st.Cycles); err != nil {
			return fmt.Errorf("count cycles: %w", err)
		}
		cycles, err := queryCycles(ctx, tx, 1)
		if err != nil {
			return err
		}
		if len(cycles) > 0 {
			st.LastCycle = &cycles[0]
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// RecentCycles returns up to limit cycle records, newest first.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	var cycles []CycleRecord
	err := s.withReadTx(ctx, func(tx *sql.Tx) error {
		var err error
		cycles, err = queryCycles(ctx, tx, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("recent cycles: %w", err)
	}
	return cycles, nil
}

func queryCycles(ctx context.Context, tx *sql.Tx, limit int) ([]CycleRecord, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, started_at, finished_at, observed, accepted, duplicates, rejected, created, refreshed, removed
		FROM cycles
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	cycles := []CycleRecord{}
	for rows.Next() {
		var rec CycleRecord
		var started, finished int64
		if err := rows.Scan(
			&rec.ID, &started, &finished, &rec.Observed, &rec.Accepted, &rec.Duplicates,
			&rec.Rejected, &rec.Created, &rec.Refreshed, &rec.Removed,
		); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		rec.StartedAt = fromMillis(started)
		rec.FinishedAt = fromMillis(finished)
		cycles = append(cycles, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycles: %w", err)
	}
	return cycles, nil
}

func queryEvents(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]outage.Event, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []outage.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanEvent scans one events row. sql.ErrNoRows is returned unwrapped.
func scanEvent(row rowScanner) (outage.Event, error) {
	var ev outage.Event
	var fp, group, kind, status string
	var starts, ends, created, lastSeen int64
	var removed sql.NullInt64

	err := row.Scan(
		&ev.UID, &fp, &group, &kind, &starts, &ends, &ev.AllDay, &ev.Note,
		&status, &created, &lastSeen, &removed,
	)
	if err == sql.ErrNoRows {
		return outage.Event{}, err
	}
	if err != nil {
		return outage.Event{}, fmt.Errorf("scan event: %w", err)
	}

	ev.Fingerprint = outage.Fingerprint(fp)
	ev.Group = outage.GroupCode(group)
	ev.Kind = outage.Kind(kind)
	ev.Status = outage.Status(status)
	ev.Start = fromMillis(starts)
	ev.End = fromMillis(ends)
	ev.CreatedAt = fromMillis(created)
	ev.LastSeenAt = fromMillis(lastSeen)
	if removed.Valid {
		t := fromMillis(removed.Int64)
		ev.RemovedAt = &t
	}
	return ev, nil
}
