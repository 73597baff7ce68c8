package cycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/outagecal/internal/reconcile"
	"github.com/roach88/outagecal/internal/retention"
	"github.com/roach88/outagecal/internal/source"
)

var (
	cyclesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outagecal_cycles_skipped_total",
		Help: "Cycles not reconciled because the empty-cycle policy skipped them.",
	})
	cyclesRefusedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outagecal_cycles_refused_total",
		Help: "Cycles not reconciled, by reason (scrape_failed, too_few_observations).",
	}, []string{"reason"})
)

// Outcome status values.
const (
	OutcomeReconciled = "reconciled"
	OutcomeSkipped    = "skipped"
)

// Outcome describes one RunOnce.
type Outcome struct {
	Status       string            `json:"status"`
	Source       string            `json:"source,omitempty"`
	Validation   source.Validation `json:"validation"`
	Observations int               `json:"observations"`
	Report       *reconcile.Report `json:"report,omitempty"`
}

// Runner drives scrape, policy and reconciliation, plus retention sweeps.
// Cycles and sweeps started through one Runner never overlap.
type Runner struct {
	scraper Scraper
	rec     *reconcile.Reconciler
	sweeper *retention.Sweeper
	policy  Policy
	horizon time.Duration
	clock   reconcile.Clock
	loc     *time.Location
	logger  *slog.Logger

	mu sync.Mutex
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithPolicy sets the boundary policy. Defaults to DefaultPolicy().
func WithPolicy(p Policy) RunnerOption {
	return func(r *Runner) { r.policy = p }
}

// WithRetention sets the retention horizon used by Sweep.
func WithRetention(horizon time.Duration) RunnerOption {
	return func(r *Runner) { r.horizon = horizon }
}

// WithClock sets the clock Sweep measures the horizon against.
func WithClock(c reconcile.Clock) RunnerOption {
	return func(r *Runner) { r.clock = c }
}

// WithLocation sets the zone schedules in Watch are evaluated in.
func WithLocation(loc *time.Location) RunnerOption {
	return func(r *Runner) { r.loc = loc }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a Runner.
func NewRunner(scraper Scraper, rec *reconcile.Reconciler, sweeper *retention.Sweeper, opts ...RunnerOption) *Runner {
	r := &Runner{
		scraper: scraper,
		rec:     rec,
		sweeper: sweeper,
		policy:  DefaultPolicy(),
		horizon: retention.DefaultHorizon,
		clock:   reconcile.NewSystemClock(),
		loc:     time.UTC,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce runs one cycle: scrape, apply the policy, reconcile.
//
// A failed scrape returns an error wrapping ErrScrapeFailed and a refused
// cycle one wrapping ErrTooFewObservations; neither touches the ledger.
// A skipped cycle returns an Outcome with Status OutcomeSkipped.
func (r *Runner) RunOnce(ctx context.Context) (*Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	scrape, err := r.scraper.Scrape(ctx)
	if err != nil {
		if errors.Is(err, ErrScrapeFailed) {
			cyclesRefusedTotal.WithLabelValues("scrape_failed").Inc()
		}
		r.logger.Warn("scrape failed, cycle not reconciled", "error", err)
		return nil, err
	}

	out := &Outcome{
		Source:       scrape.Source,
		Validation:   scrape.Validation,
		Observations: len(scrape.Observations),
	}

	run, err := r.policy.Admit(len(scrape.Observations))
	if err != nil {
		cyclesRefusedTotal.WithLabelValues("too_few_observations").Inc()
		r.logger.Warn("cycle refused by policy", "error", err, "source", scrape.Source)
		return nil, err
	}
	if !run {
		cyclesSkippedTotal.Inc()
		r.logger.Info("empty cycle skipped",
			"policy", string(r.policy.EmptyCycle),
			"source", scrape.Source,
			"status", string(scrape.Validation.Status),
		)
		out.Status = OutcomeSkipped
		return out, nil
	}

	rep, err := r.rec.Reconcile(ctx, scrape.Observations)
	if err != nil {
		return nil, err
	}
	out.Status = OutcomeReconciled
	out.Report = rep
	return out, nil
}

// Sweep purges removed events older than the retention horizon.
func (r *Runner) Sweep(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sweeper.Sweep(ctx, r.clock.Now(), r.horizon)
}
