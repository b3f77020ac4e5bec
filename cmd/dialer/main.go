// Command dialer places abandoned-cart recovery calls from a CSV export and
// keeps an append-only log of every outcome.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"cart-dialer/internal/config"
	"cart-dialer/pkg/logger"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	// Root context that cancels on shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		var ce *config.ConfigurationError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.Error())
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dialer",
		Short: "Abandoned-cart outbound call dialer",
		Long: `dialer reads abandoned-cart contacts from a CSV file, places one outbound
call per contact through Vapi or Twilio, and appends every outcome to a
durable CSV call log.

Configuration comes from the environment (and an optional .env file).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newServeCmd(), newReportCmd(), newTokenCmd())
	return root
}

// loadConfig reads the environment; validate picks the checks the command needs.
func loadConfig(validate func(*config.Config) error) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)
	if validate != nil {
		if err := validate(&cfg); err != nil {
			return config.Config{}, nil, err
		}
	}
	return cfg, log, nil
}
