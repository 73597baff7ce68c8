package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/outagecal/internal/outage"
	"github.com/roach88/outagecal/internal/store"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Cycles int
}

// StatsResult is the stats command's output.
type StatsResult struct {
	store.Stats
	RecentCycles []store.CycleRecord `json:"recent_cycles"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise the ledger",
		Long: `Show ledger totals: active and removed events, active events per
group, the span of active periods and the most recent cycles.

Examples:
  outagecal stats
  outagecal stats --cycles 10 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Cycles, "cycles", 5, "number of recent cycles to show")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	stats, err := a.store.Stats(ctx)
	if err != nil {
		return a.formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to read stats", err, nil)
	}
	recent := []store.CycleRecord{}
	if opts.Cycles > 0 {
		recent, err = a.store.RecentCycles(ctx, opts.Cycles)
		if err != nil {
			return a.formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to read cycles", err, nil)
		}
	}

	result := StatsResult{Stats: stats, RecentCycles: recent}
	return a.formatter.Render(result, func(w io.Writer) {
		writeStats(w, result, a.loc)
	})
}

func writeStats(w io.Writer, r StatsResult, loc *time.Location) {
	fmt.Fprintf(w, "Events: %d active, %d removed\n", r.Active, r.Removed)

	if len(r.ActiveByGroup) > 0 {
		groups := make([]outage.GroupCode, 0, len(r.ActiveByGroup))
		for g := range r.ActiveByGroup {
			groups = append(groups, g)
		}
		sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })

		fmt.Fprintln(w, "Active by group:")
		for _, g := range groups {
			fmt.Fprintf(w, "  %s: %d\n", g, r.ActiveByGroup[g])
		}
	}

	if r.EarliestStart != nil && r.LatestEnd != nil {
		fmt.Fprintf(w, "Span: %s to %s\n",
			r.EarliestStart.In(loc).Format("2006-01-02 15:04"),
			r.LatestEnd.In(loc).Format("2006-01-02 15:04"))
	}

	fmt.Fprintf(w, "Cycles: %d\n", r.Cycles)
	for _, c := range r.RecentCycles {
		fmt.Fprintf(w, "  #%d %s  observed %d, created %d, refreshed %d, removed %d, rejected %d\n",
			c.ID, c.StartedAt.In(loc).Format("2006-01-02 15:04:05"),
			c.Observed, c.Created, c.Refreshed, c.Removed, c.Rejected)
	}
}
