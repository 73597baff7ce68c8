package cli

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/outagecal/internal/config"
	"github.com/roach88/outagecal/internal/cycle"
	"github.com/roach88/outagecal/internal/reconcile"
	"github.com/roach88/outagecal/internal/retention"
	"github.com/roach88/outagecal/internal/source"
	"github.com/roach88/outagecal/internal/store"
)

// app is what every command needs: config, logger, ledger and output.
type app struct {
	opts      *RootOptions
	cfg       *config.Config
	loc       *time.Location
	logger    *slog.Logger
	store     *store.Store
	formatter *OutputFormatter
}

// cycleFlags are the overrides shared by reconcile and watch.
type cycleFlags struct {
	Groups     string
	EmptyCycle string
}

func (f *cycleFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Groups, "groups", "", "comma-separated group codes, e.g. 1.1,2.1 (overrides config)")
	cmd.Flags().StringVar(&f.EmptyCycle, "empty-cycle", "", "empty cycle policy: skip|reconcile|fail (overrides config)")
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openApp loads the config, sets up logging and opens the ledger.
// Errors are already reported through the formatter.
func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	formatter := newFormatter(opts, cmd)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err, nil)
	}
	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid timezone", err, nil)
	}
	merge, err := store.ParseMergePolicy(cfg.MergePolicy)
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid merge policy", err, nil)
	}

	logger.Debug("opening ledger", "path", cfg.DBPath, "merge_policy", string(merge))
	st, err := store.Open(cfg.DBPath, store.WithMergePolicy(merge))
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err, nil)
	}

	return &app{
		opts:      opts,
		cfg:       cfg,
		loc:       loc,
		logger:    logger,
		store:     st,
		formatter: formatter,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

func (a *app) now() time.Time {
	if a.opts.Now != nil {
		return a.opts.Now()
	}
	return time.Now()
}

func (a *app) clock() reconcile.Clock {
	if a.opts.Now != nil {
		return reconcile.NewMonotonicClock(a.opts.Now)
	}
	return reconcile.NewSystemClock()
}

// groupFilter resolves the group filter: --groups, then the config's groups,
// then the groups file.
func (a *app) groupFilter(flag string) (source.GroupFilter, error) {
	list := flag
	if strings.TrimSpace(list) == "" {
		list = strings.Join(a.cfg.Groups, ",")
	}
	codes, err := source.LoadGroups(list, a.cfg.GroupsFile)
	if err != nil {
		return source.GroupFilter{}, err
	}
	return source.NewGroupFilter(codes), nil
}

// runner wires a snapshot scraper, the reconciler and the sweeper.
// snapshot pins a specific file; empty means the newest in snapshot_dir.
func (a *app) runner(flags cycleFlags, snapshot string, horizon time.Duration) (*cycle.Runner, error) {
	filter, err := a.groupFilter(flags.Groups)
	if err != nil {
		return nil, a.formatter.Fail(ExitCommandError, ErrCodeArgs, "invalid groups", err, nil)
	}

	if flags.EmptyCycle != "" {
		a.cfg.EmptyCycle = flags.EmptyCycle
	}
	policy, err := a.cfg.Policy()
	if err != nil {
		return nil, a.formatter.Fail(ExitCommandError, ErrCodeArgs, "invalid empty cycle policy", err, nil)
	}
	if horizon <= 0 {
		horizon = a.cfg.Retention()
	}

	clock := a.clock()
	scraper := &cycle.SnapshotScraper{
		Dir:      a.cfg.SnapshotDir,
		Path:     snapshot,
		Location: a.loc,
		Filter:   filter,
		Now:      clock.Now,
	}
	if !filter.Empty() {
		a.logger.Debug("group filter active", "groups", filter.Codes())
	}

	rec := reconcile.New(a.store, reconcile.WithClock(clock), reconcile.WithLogger(a.logger))
	sweeper := retention.New(a.store, a.logger)
	return cycle.NewRunner(scraper, rec, sweeper,
		cycle.WithPolicy(policy),
		cycle.WithRetention(horizon),
		cycle.WithClock(clock),
		cycle.WithLocation(a.loc),
		cycle.WithLogger(a.logger),
	), nil
}

// cycleFailure maps a RunOnce error to an exit error.
func (a *app) cycleFailure(err error) error {
	switch {
	case errors.Is(err, cycle.ErrScrapeFailed):
		return a.formatter.Fail(ExitFailure, ErrCodeScrape, "scrape failed, ledger unchanged", err, nil)
	case errors.Is(err, cycle.ErrTooFewObservations):
		return a.formatter.Fail(ExitFailure, ErrCodeRefused, "cycle refused, ledger unchanged", err, nil)
	case reconcile.IsInvariantViolation(err):
		return a.formatter.Fail(ExitFailure, ErrCodeInvariant, "ledger invariant violated, operator investigation required", err, nil)
	case reconcile.IsCancelled(err):
		return a.formatter.Fail(ExitFailure, ErrCodeCancelled, "cycle cancelled, ledger unchanged", err, nil)
	case reconcile.IsStorageFailure(err):
		return a.formatter.Fail(ExitFailure, ErrCodeStorage, "cycle rolled back", err, nil)
	}
	return a.formatter.Fail(ExitFailure, ErrCodeGeneric, "cycle failed", err, nil)
}
