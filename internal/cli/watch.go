package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	cycleFlags
	MetricsAddr   string
	RetentionDays int
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reconcile on a schedule until interrupted",
		Long: `Run a cycle immediately, then on the configured cron schedule, with
retention sweeps on sweep_schedule. Cycles and sweeps never overlap; a
tick that fires while the previous run is still going is skipped.

A failed cycle is logged and the loop keeps going: the ledger is left as
it was and the next tick tries again.

Examples:
  outagecal watch
  outagecal watch --metrics-addr 127.0.0.1:9464 --groups 1.1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	opts.cycleFlags.register(cmd)
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus /metrics on this address (overrides metrics_addr)")
	cmd.Flags().IntVar(&opts.RetentionDays, "retention-days", 0, "retention horizon in days (overrides retention_days)")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.RetentionDays > 0 {
		a.cfg.RetentionDays = opts.RetentionDays
	}
	if opts.MetricsAddr != "" {
		a.cfg.MetricsAddr = opts.MetricsAddr
	}

	runner, err := a.runner(opts.cycleFlags, "", a.cfg.Retention())
	if err != nil {
		return err
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if a.cfg.MetricsAddr != "" {
		srv, err := serveMetrics(a.cfg.MetricsAddr, a.logger)
		if err != nil {
			return a.formatter.Fail(ExitCommandError, ErrCodeArgs, "failed to serve metrics", err, nil)
		}
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	a.formatter.VerboseLog("Watching %s (schedule %q, sweep %q)", a.cfg.SnapshotDir, a.cfg.Schedule, a.cfg.SweepSchedule)
	if err := runner.Watch(ctx, a.cfg.Schedule, a.cfg.SweepSchedule); err != nil {
		return a.formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid schedule", err, nil)
	}

	a.logger.Info("watch stopped gracefully")
	return nil
}

// metricsHandler serves the default Prometheus registry on /metrics.
func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// serveMetrics listens on addr and serves metricsHandler in the background.
func serveMetrics(addr string, logger *slog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           metricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	return srv, nil
}
