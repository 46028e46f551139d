package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/recall/internal/observability"
	"github.com/harun/recall/internal/tracing"
	"github.com/harun/recall/pkg/history"
	"github.com/harun/recall/pkg/recall"
)

var (
	watchDir         string
	watchSchedule    string
	watchMetricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the background import watcher",
	Long: `Watch a drop directory for *.jsonl files and import them as they land.
Optionally re-summarizes active sessions on a cron schedule and exposes
Prometheus metrics over HTTP. Runs until interrupted.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "drop directory (defaults to import.watch_dir from config)")
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", "cron spec for periodic summarization (e.g. @hourly)")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "address to serve /metrics on (e.g. :9090)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	dir := watchDir
	if dir == "" {
		dir = rt.cfg.Import.WatchDir
	}
	if dir == "" {
		return fmt.Errorf("no drop directory configured (use --dir or set import.watch_dir)")
	}

	if err := tracing.InitOpenTelemetry("recall"); err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.ShutdownOpenTelemetry(shutdownCtx)
	}()

	watcher, err := history.NewImportWatcher(rt.store, dir, rt.log.GetZerolog())
	if err != nil {
		return fmt.Errorf("failed to start import watcher: %w", err)
	}
	defer watcher.Stop()

	if watchSchedule != "" {
		provider, err := newProvider(rt.cfg)
		if err != nil {
			return err
		}
		sched, err := recall.NewScheduler(recall.SchedulerConfig{
			Store:      rt.store,
			Summarizer: recall.ProviderSummarizer(provider, rt.cfg.Provider.Model, rt.cfg.Provider.MaxTokens),
			Logger:     rt.log.GetZerolog(),
		})
		if err != nil {
			return err
		}
		if err := sched.Start(watchSchedule); err != nil {
			return fmt.Errorf("invalid schedule: %w", err)
		}
		defer sched.Stop()
	}

	if watchMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		srv := &http.Server{Addr: watchMetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				rt.log.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for JSONL drops. Ctrl-C to stop.\n", dir)
	<-ctx.Done()
	return nil
}
