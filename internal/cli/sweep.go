package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/outagecal/internal/retention"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	*RootOptions
	RetentionDays int
}

// SweepResult is the sweep command's output.
type SweepResult struct {
	Purged        int       `json:"purged"`
	RetentionDays int       `json:"retention_days"`
	Cutoff        time.Time `json:"cutoff"`
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SweepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Purge removed events past the retention horizon",
		Long: `Permanently delete events that were removed more than the retention
horizon ago. Active events are never deleted.

Examples:
  outagecal sweep
  outagecal sweep --retention-days 7`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.RetentionDays, "retention-days", 0, "retention horizon in days (overrides retention_days)")

	return cmd
}

func runSweep(opts *SweepOptions, cmd *cobra.Command) error {
	if opts.RetentionDays < 0 {
		return newFormatter(opts.RootOptions, cmd).Fail(ExitCommandError, ErrCodeArgs,
			"invalid --retention-days", fmt.Errorf("must be positive, got %d", opts.RetentionDays), nil)
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.RetentionDays > 0 {
		a.cfg.RetentionDays = opts.RetentionDays
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	now := a.now()
	cutoff := now.Add(-a.cfg.Retention())
	n, err := retention.New(a.store, a.logger).Sweep(ctx, now, a.cfg.Retention())
	if err != nil {
		return a.formatter.Fail(ExitFailure, ErrCodeStorage, "retention sweep failed", err, nil)
	}

	result := SweepResult{Purged: n, RetentionDays: a.cfg.RetentionDays, Cutoff: cutoff.UTC()}
	return a.formatter.Render(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Purged %d removed event(s) older than %d day(s)\n", result.Purged, result.RetentionDays)
	})
}
