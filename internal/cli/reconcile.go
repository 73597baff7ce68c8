package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/outagecal/internal/cycle"
	"github.com/roach88/outagecal/internal/reconcile"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	cycleFlags
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile [snapshot.json]",
		Short: "Run one reconciliation cycle",
		Long: `Run one reconciliation cycle against a schedule snapshot.

Without an argument the newest snapshot in snapshot_dir is used. A stale
or undated schedule is a scrape failure and leaves the ledger untouched.
An empty schedule is handled by the empty cycle policy.

Examples:
  outagecal reconcile
  outagecal reconcile json_data/20261019_071000_power_outages.json
  outagecal reconcile --groups 1.1,2.1 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot := ""
			if len(args) == 1 {
				snapshot = args[0]
			}
			return runReconcile(opts, snapshot, cmd)
		},
	}

	opts.cycleFlags.register(cmd)

	return cmd
}

func runReconcile(opts *ReconcileOptions, snapshot string, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := a.runner(opts.cycleFlags, snapshot, 0)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out, err := runner.RunOnce(ctx)
	if err != nil {
		return a.cycleFailure(err)
	}

	return a.formatter.Render(out, func(w io.Writer) {
		writeOutcome(w, out, opts.Verbose)
	})
}

func writeOutcome(w io.Writer, out *cycle.Outcome, verbose bool) {
	if out.Status == cycle.OutcomeSkipped {
		fmt.Fprintf(w, "Cycle skipped: no observations in %s (%s)\n", out.Source, out.Validation.Status)
		return
	}

	rep := out.Report
	fmt.Fprintf(w, "✓ Cycle %d reconciled from %s (%s)\n", rep.CycleID, out.Source, out.Validation.Status)
	fmt.Fprintf(w, "  Observed: %d, accepted: %d, duplicates: %d, rejected: %d\n",
		rep.Observed, rep.Accepted, rep.Duplicates, len(rep.Rejected))
	fmt.Fprintf(w, "  Created: %d, refreshed: %d, removed: %d\n",
		len(rep.Created), len(rep.Refreshed), len(rep.Removed))

	for _, rej := range rep.Rejected {
		fmt.Fprintf(w, "  ✗ Rejected #%d (group %q): %s: %s\n", rej.Index, rej.Group, rej.Field, rej.Reason)
	}

	if verbose {
		writeChanges(w, "+", rep.Created)
		writeChanges(w, "-", rep.Removed)
	}
}

func writeChanges(w io.Writer, mark string, changes []reconcile.Change) {
	for _, c := range changes {
		fmt.Fprintf(w, "  %s %s  %s\n", mark, c.Group, c.UID)
	}
}
