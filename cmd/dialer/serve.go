package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"cart-dialer/internal/auth"
	"cart-dialer/internal/calllog"
	"cart-dialer/internal/config"
	"cart-dialer/internal/httpapi"
	"cart-dialer/internal/reconcile"
	"cart-dialer/internal/reporting"
	"cart-dialer/internal/telephony"
	"cart-dialer/pkg/logger"
)

func newServeCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP trigger API and provider status webhooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log calls without contacting any provider")
	return cmd
}

func serve(ctx context.Context, dryRun bool) error {
	cfg, log, err := loadConfig(func(c *config.Config) error {
		if dryRun {
			c.Provider.Name = config.ProviderDryRun
		}
		return c.ValidateServe()
	})
	if err != nil {
		return err
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return err
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

	runner, err := a.runner(w, history, cfg.Batch)
	if err != nil {
		return err
	}

	repo, err := a.eventStore(ctx)
	if err != nil {
		return err
	}
	events := reconcile.NewService(repo, a.metrics, log)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	httpapi.RegisterRoutes(r, httpapi.RouterDeps{
		Handlers: httpapi.Handlers{
			Calls:   runner,
			Events:  events,
			Reports: reporting.NewService(reporting.FileRepo{}),
			LogPath: cfg.Batch.LogPath,
			Ready:   a.ready,
		},
		Webhooks: telephony.StatusWebhookHandler{
			Sink:              events,
			TwilioAuthToken:   cfg.Twilio.AuthToken,
			TwilioCallbackURL: cfg.Twilio.StatusCallbackURL,
			VapiSecret:        cfg.Vapi.WebhookSecret,
		},
		Auth:     auth.RequireOperator(authManager),
		Gatherer: a.reg,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// provider call plus optional script generation
		WriteTimeout: cfg.Provider.CallTimeout + 45*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "provider", a.caller.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	return nil
}
