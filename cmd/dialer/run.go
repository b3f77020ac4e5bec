package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"cart-dialer/internal/calllog"
	"cart-dialer/internal/config"
)

const defaultSource = "abandoned_cart.csv"

type runFlags struct {
	delay       time.Duration
	logPath     string
	schema      string
	workers     int
	policy      string
	maxAttempts int
	dryRun      bool
	archive     bool
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run [source.csv]",
		Short: "Dial every contact in a CSV file and log the outcomes",
		Long: `Dial every contact in source order (default ` + defaultSource + `).

Per-record failures are logged and do not change the exit code. The command
exits non-zero on configuration errors, an unreadable or malformed source,
or a call log write failure.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := defaultSource
			if len(args) == 1 {
				source = args[0]
			}
			return runBatch(cmd, source, f)
		},
	}
	fl := cmd.Flags()
	fl.DurationVar(&f.delay, "delay", 0, "pause between provider calls (overrides CALL_DELAY)")
	fl.StringVar(&f.logPath, "log", "", "call log path (overrides LOG_PATH)")
	fl.StringVar(&f.schema, "schema", "", "call log schema: basic or detailed (overrides LOG_SCHEMA)")
	fl.IntVar(&f.workers, "workers", 0, "parallel dispatch workers (overrides CALL_WORKERS)")
	fl.StringVar(&f.policy, "policy", "", "rerun policy: all, skip-logged, skip-initiated (overrides RERUN_POLICY)")
	fl.IntVar(&f.maxAttempts, "max-attempts", 0, "attempts per record for retryable failures (overrides CALL_MAX_ATTEMPTS)")
	fl.BoolVar(&f.dryRun, "dry-run", false, "log calls without contacting any provider")
	fl.BoolVar(&f.archive, "archive", true, "upload the log to S3 when ARCHIVE_S3_BUCKET is set")
	return cmd
}

func (f runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("delay") {
		cfg.Batch.Delay = f.delay
	}
	if f.logPath != "" {
		cfg.Batch.LogPath = f.logPath
	}
	if f.schema != "" {
		cfg.Batch.LogSchema = f.schema
	}
	if f.workers > 0 {
		cfg.Batch.Workers = f.workers
	}
	if f.policy != "" {
		cfg.Batch.RerunPolicy = f.policy
	}
	if f.maxAttempts > 0 {
		cfg.Batch.MaxAttempts = f.maxAttempts
	}
	if f.dryRun {
		cfg.Provider.Name = config.ProviderDryRun
	}
}

func runBatch(cmd *cobra.Command, source string, f runFlags) error {
	ctx := cmd.Context()
	cfg, log, err := loadConfig(func(c *config.Config) error {
		f.apply(cmd, c)
		return c.Validate()
	})
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.App.MetricsAddr != "" {
		stopMetrics := serveMetrics(a, cfg.App.MetricsAddr)
		defer stopMetrics()
	}

	schema, err := calllog.ParseSchema(cfg.Batch.LogSchema)
	if err != nil {
		return err
	}
	w, history, err := a.openLog(cfg.Batch.LogPath, schema)
	if err != nil {
		return err
	}
	defer w.Close()

	r, err := a.runner(w, history, cfg.Batch)
	if err != nil {
		return err
	}

	summary, runErr := r.Run(ctx, source)
	if runErr == nil || summary.Total > 0 {
		out, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	}
	if runErr != nil {
		return runErr
	}
	if summary.Interrupted {
		log.Warn("run interrupted; remaining records were not dispatched", "run_id", summary.RunID)
	}

	if f.archive {
		store, err := a.archiveStore(context.WithoutCancel(ctx))
		if err != nil {
			log.Warn("archive disabled", "err", err)
			return nil
		}
		if _, err := store.ArchiveLog(context.WithoutCancel(ctx), summary.RunID, cfg.Batch.LogPath, summary); err != nil {
			log.Warn("archive upload failed", "err", err)
		}
	}
	return nil
}

// serveMetrics exposes /metrics while a batch runs.
func serveMetrics(a *app, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server failed", "err", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
