// Package retention purges tombstoned events once they have been removed for
// longer than the retention horizon.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/outagecal/internal/store"
)

// DefaultHorizon is how long removed events are kept for audit.
const DefaultHorizon = 30 * 24 * time.Hour

var purgedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "outagecal_retention_purged_total",
	Help: "Removed events permanently deleted by the retention sweeper.",
})

// Sweeper deletes removed events older than a horizon. It is the only
// component that deletes ledger rows, and it never deletes active ones.
type Sweeper struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates a Sweeper. A nil logger means slog.Default().
func New(st *store.Store, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: st, logger: logger}
}

// Sweep deletes events removed before now-horizon and returns how many were
// deleted. An event removed exactly horizon ago is kept.
//
// Sweep takes the store's write lock, so it never overlaps a cycle.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time, horizon time.Duration) (int, error) {
	if horizon <= 0 {
		return 0, fmt.Errorf("sweep: horizon must be positive, got %s", horizon)
	}

	cutoff := now.Add(-horizon)
	n, err := s.store.PurgeRemovedOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}

	purgedTotal.Add(float64(n))
	s.logger.Info("retention sweep finished",
		"purged", n,
		"cutoff", cutoff.UTC().Format(time.RFC3339),
	)
	return int(n), nil
}
