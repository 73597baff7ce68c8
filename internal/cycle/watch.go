package cycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Watch runs a cycle immediately and then on cycleSpec, and a retention sweep
// on sweepSpec, until ctx is cancelled. Specs use standard cron syntax or
// descriptors such as "@daily" and "@every 5m". An empty sweepSpec disables
// sweeps.
//
// A run that is still in progress when its next tick fires is skipped, and
// Watch waits for in-flight runs before returning.
func (r *Runner) Watch(ctx context.Context, cycleSpec, sweepSpec string) error {
	logger := cronLogger{r.logger}
	c := cron.New(
		cron.WithLocation(r.loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := c.AddFunc(cycleSpec, func() { r.scheduledCycle(ctx) }); err != nil {
		return fmt.Errorf("cycle schedule %q: %w", cycleSpec, err)
	}
	if sweepSpec != "" {
		if _, err := c.AddFunc(sweepSpec, func() { r.scheduledSweep(ctx) }); err != nil {
			return fmt.Errorf("sweep schedule %q: %w", sweepSpec, err)
		}
	}

	r.logger.Info("watch starting", "schedule", cycleSpec, "sweep_schedule", sweepSpec)
	r.scheduledCycle(ctx)

	c.Start()
	<-ctx.Done()
	r.logger.Info("watch stopping: context cancelled")
	<-c.Stop().Done()
	return nil
}

func (r *Runner) scheduledCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	out, err := r.RunOnce(ctx)
	if err != nil {
		// RunOnce and the reconciler already logged the details.
		return
	}
	r.logger.Debug("scheduled cycle finished", "status", out.Status, "source", out.Source)
}

func (r *Runner) scheduledSweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := r.Sweep(ctx); err != nil {
		r.logger.Error("retention sweep failed", "error", err)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

// ValidateSchedule reports whether spec is a schedule Watch accepts.
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}
