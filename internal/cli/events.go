package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/outagecal/internal/outage"
	"github.com/roach88/outagecal/internal/store"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Groups []string
	All    bool
	Date   string
}

// EventsResult is the events command's output.
type EventsResult struct {
	Count  int            `json:"count"`
	Events []outage.Event `json:"events"`
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List ledger events",
		Long: `List the active events in the ledger, ordered by group and start time.

Times are shown in the configured timezone. --all also lists removed
events that have not been purged yet. --date lists the active events
overlapping one day (YYYY-MM-DD, configured timezone).

Examples:
  outagecal events
  outagecal events --group 1.1 --group 2.2
  outagecal events --date 2026-10-19
  outagecal events --all --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Groups, "group", nil, "only list these group codes (repeatable)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "include removed events")
	cmd.Flags().StringVar(&opts.Date, "date", "", "only list active events on this day (YYYY-MM-DD)")

	return cmd
}

func runEvents(opts *EventsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	groups, err := outage.ParseGroupCodes(opts.Groups)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, "invalid --group", err, nil)
	}
	if opts.Date != "" && opts.All {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, "--date and --all cannot be combined", nil, nil)
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var events []outage.Event
	if opts.Date != "" {
		day, perr := time.ParseInLocation(time.DateOnly, opts.Date, a.loc)
		if perr != nil {
			return a.formatter.Fail(ExitCommandError, ErrCodeArgs, "invalid --date", perr, nil)
		}
		events, err = a.store.EventsOnDate(ctx, day)
		if err == nil && len(groups) > 0 {
			events = filterGroups(events, groups)
		}
	} else {
		events, err = a.store.ListEvents(ctx, store.EventFilter{Groups: groups, IncludeRemoved: opts.All})
	}
	if err != nil {
		return a.formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to list events", err, nil)
	}

	result := EventsResult{Count: len(events), Events: events}
	return a.formatter.Render(result, func(w io.Writer) {
		writeEvents(w, events, a.loc, opts.All)
	})
}

func filterGroups(events []outage.Event, groups []outage.GroupCode) []outage.Event {
	keep := make(map[outage.GroupCode]bool, len(groups))
	for _, g := range groups {
		keep[g] = true
	}
	out := make([]outage.Event, 0, len(events))
	for _, e := range events {
		if keep[e.Group] {
			out = append(out, e)
		}
	}
	return out
}

func writeEvents(w io.Writer, events []outage.Event, loc *time.Location, withStatus bool) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events.")
		return
	}
	for _, e := range events {
		line := fmt.Sprintf("%-4s %-9s %-30s %s", e.Group, e.Kind, formatPeriod(e.Fields, loc), e.UID)
		if withStatus {
			line += "  " + string(e.Status)
			if e.RemovedAt != nil {
				line += " " + e.RemovedAt.In(loc).Format("2006-01-02 15:04")
			}
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "%d event(s)\n", len(events))
}

// formatPeriod renders a period in loc. End is exclusive, so an all-day
// period ending at midnight is shown up to the previous day.
func formatPeriod(f outage.Fields, loc *time.Location) string {
	start, end := f.Start.In(loc), f.End.In(loc)
	if f.AllDay {
		last := end.AddDate(0, 0, -1)
		if last.Format(time.DateOnly) == start.Format(time.DateOnly) {
			return start.Format(time.DateOnly) + " all day"
		}
		return start.Format(time.DateOnly) + ".." + last.Format(time.DateOnly) + " all day"
	}
	if end.Format(time.DateOnly) == start.Format(time.DateOnly) {
		return start.Format("2006-01-02 15:04") + "-" + end.Format("15:04")
	}
	return start.Format("2006-01-02 15:04") + "-" + end.Format("2006-01-02 15:04")
}
