package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/outagecal/internal/outage"
	"github.com/roach88/outagecal/internal/store"
)

// Reconciler diffs one cycle of observations against the ledger.
//
// Only one cycle may be in flight per ledger. The store enforces this with an
// IMMEDIATE transaction, so concurrent calls serialise rather than interleave.
type Reconciler struct {
	store  *store.Store
	clock  Clock
	logger *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock sets the source of cycle timestamps.
func WithClock(c Clock) Option {
	return func(r *Reconciler) {
		r.clock = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = l
	}
}

// New creates a Reconciler over st.
func New(st *store.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:  st,
		clock:  NewSystemClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Change is one event created, refreshed or removed by a cycle.
type Change struct {
	UID         string             `json:"uid"`
	Fingerprint outage.Fingerprint `json:"fingerprint"`
	Group       outage.GroupCode   `json:"group"`
}

// Report summarises a committed cycle.
type Report struct {
	CycleID    int64       `json:"cycle_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Observed   int         `json:"observed"`
	Accepted   int         `json:"accepted"`
	Duplicates int         `json:"duplicates"`
	Created    []Change    `json:"created"`
	Refreshed  []Change    `json:"refreshed"`
	Removed    []Change    `json:"removed"`
	Rejected   []Rejection `json:"rejected"`
}

// Reconcile applies one cycle's observations and commits, or returns a
// *CycleError and leaves the ledger untouched.
//
// Observations that cannot be fingerprinted are excluded from the cycle and
// listed in Report.Rejected; an event whose only observation was rejected is
// therefore tombstoned.
func (r *Reconciler) Reconcile(ctx context.Context, obs []outage.Observation) (*Report, error) {
	wallStart := time.Now()
	now := r.clock.Now()

	entries, rejections, duplicates := Dedupe(obs)
	rep := &Report{
		StartedAt:  now,
		Observed:   len(obs),
		Accepted:   len(entries),
		Duplicates: duplicates,
		Created:    []Change{},
		Refreshed:  []Change{},
		Removed:    []Change{},
		Rejected:   []Rejection{},
	}
	for _, rej := range rejections {
		r.logger.Warn("observation rejected",
			"index", rej.Index,
			"group", rej.Group,
			"field", rej.Field,
			"reason", rej.Reason,
		)
		rep.Rejected = append(rep.Rejected, rej)
	}

	r.logger.Debug("cycle starting",
		"observed", rep.Observed,
		"accepted", rep.Accepted,
		"duplicates", duplicates,
		"rejected", len(rejections),
	)

	if err := r.apply(ctx, now, entries, rep); err != nil {
		r.countFailure(err)
		return nil, err
	}

	cyclesTotal.WithLabelValues(resultCommitted).Inc()
	eventsCreatedTotal.Add(float64(len(rep.Created)))
	eventsRefreshedTotal.Add(float64(len(rep.Refreshed)))
	eventsRemovedTotal.Add(float64(len(rep.Removed)))
	observationsRejectedTotal.Add(float64(len(rep.Rejected)))
	observationsDuplicateTotal.Add(float64(rep.Duplicates))
	cycleDurationSeconds.Observe(time.Since(wallStart).Seconds())

	r.logger.Info("cycle committed",
		"cycle", rep.CycleID,
		"observed", rep.Observed,
		"created", len(rep.Created),
		"refreshed", len(rep.Refreshed),
		"removed", len(rep.Removed),
		"rejected", len(rep.Rejected),
	)
	return rep, nil
}

func (r *Reconciler) apply(ctx context.Context, now time.Time, entries []Entry, rep *Report) error {
	tx, err := r.store.BeginCycle(ctx)
	if err != nil {
		return r.fail(ctx, "begin cycle", "", err)
	}
	defer tx.Rollback()

	prior, err := tx.ActiveFingerprints(ctx)
	if err != nil {
		return r.fail(ctx, "read active set", "", err)
	}

	seen := make(map[outage.Fingerprint]struct{}, len(entries))
	for _, e := range entries {
		seen[e.Fingerprint] = struct{}{}

		res, err := tx.UpsertActive(ctx, e.Fingerprint, e.Fields, now)
		if err != nil {
			return r.fail(ctx, "upsert", e.Fingerprint, err)
		}

		ref, wasActive := prior[e.Fingerprint]
		if wasActive != !res.Created || (wasActive && ref.UID != res.UID) {
			return r.invariant("upsert disagrees with the pre-cycle active set", e.Fingerprint)
		}

		change := Change{UID: res.UID, Fingerprint: e.Fingerprint, Group: e.Fields.Group}
		if res.Created {
			rep.Created = append(rep.Created, change)
		} else {
			rep.Refreshed = append(rep.Refreshed, change)
		}
	}

	gone := make([]outage.Fingerprint, 0, len(prior))
	for fp := range prior {
		if _, ok := seen[fp]; !ok {
			gone = append(gone, fp)
		}
	}
	sort.Slice(gone, func(i, j int) bool { return gone[i] < gone[j] })

	for _, fp := range gone {
		removed, err := tx.MarkRemoved(ctx, fp, now)
		if err != nil {
			return r.fail(ctx, "mark removed", fp, err)
		}
		if !removed {
			return r.invariant("active event vanished during the cycle", fp)
		}
		rep.Removed = append(rep.Removed, Change{UID: prior[fp].UID, Fingerprint: fp, Group: prior[fp].Group})
	}

	rep.FinishedAt = r.clock.Now()
	id, err := tx.RecordCycle(ctx, store.CycleRecord{
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
		Observed:   rep.Observed,
		Accepted:   rep.Accepted,
		Duplicates: rep.Duplicates,
		Rejected:   len(rep.Rejected),
		Created:    len(rep.Created),
		Refreshed:  len(rep.Refreshed),
		Removed:    len(rep.Removed),
	})
	if err != nil {
		return r.fail(ctx, "record cycle", "", err)
	}
	rep.CycleID = id

	if err := tx.Commit(ctx); err != nil {
		return r.fail(ctx, "commit", "", err)
	}
	return nil
}

func (r *Reconciler) fail(ctx context.Context, msg string, fp outage.Fingerprint, err error) error {
	code := ErrCodeStorageFailure
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		code = ErrCodeCancelled
	case store.IsDuplicateActive(err):
		code = ErrCodeInvariantViolation
	}

	cerr := &CycleError{Code: code, Message: msg, Fingerprint: fp, Err: err}
	switch code {
	case ErrCodeCancelled:
		r.logger.Info("cycle cancelled, rolled back", "step", msg)
	case ErrCodeInvariantViolation:
		r.logger.Error("ledger invariant violated, operator investigation required", "error", cerr)
	default:
		r.logger.Error("cycle failed, rolled back", "error", cerr)
	}
	return cerr
}

func (r *Reconciler) invariant(msg string, fp outage.Fingerprint) error {
	cerr := &CycleError{
		Code:        ErrCodeInvariantViolation,
		Message:     msg,
		Fingerprint: fp,
		Err:         errInvariant,
	}
	r.logger.Error("ledger invariant violated, operator investigation required", "error", cerr)
	return cerr
}

var errInvariant = errors.New("ledger invariant violated")

func (r *Reconciler) countFailure(err error) {
	if IsCancelled(err) {
		cyclesTotal.WithLabelValues(resultCancelled).Inc()
		return
	}
	cyclesTotal.WithLabelValues(resultFailed).Inc()
}
