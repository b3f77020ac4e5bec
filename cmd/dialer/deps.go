package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"cart-dialer/internal/archive"
	"cart-dialer/internal/batch"
	"cart-dialer/internal/calllog"
	"cart-dialer/internal/calls"
	"cart-dialer/internal/config"
	"cart-dialer/internal/dispatch"
	"cart-dialer/internal/metrics"
	"cart-dialer/internal/reconcile"
	"cart-dialer/internal/scriptgen"
	"cart-dialer/internal/telephony"
	"cart-dialer/pkg/utils"
)

// lineHoldTTL bounds how long a crashed process can hold an outbound line.
const lineHoldTTL = 2 * time.Minute

// app holds every long-lived dependency built from Config. close releases
// them in reverse order of construction.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	reg     *prometheus.Registry
	metrics *metrics.DialerMetrics
	caller  telephony.Caller
	gen     scriptgen.Generator
	lines   dispatch.LineLimiter
	rdb     *redis.Client
	db      *sql.DB

	closers []io.Closer
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn("close failed", "err", err)
		}
	}
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, reg: prometheus.NewRegistry()}
	a.metrics = metrics.NewDialerMetrics(a.reg)

	caller, err := newCaller(cfg, log)
	if err != nil {
		return nil, err
	}
	a.caller = caller

	gen, err := newGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if c, ok := gen.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	a.gen = gen

	if cfg.Redis.Addr != "" {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.Redis.Addr})
		if err != nil {
			a.close()
			return nil, err
		}
		a.rdb = rdb
		a.closers = append(a.closers, rdb)
		if cfg.Redis.LineCap > 0 {
			lc, err := utils.NewLineCap(rdb, cfg.Redis.LineKey, cfg.Redis.LineCap, lineHoldTTL)
			if err != nil {
				a.close()
				return nil, err
			}
			a.lines = lc
		}
	}
	return a, nil
}

func newCaller(cfg config.Config, log *slog.Logger) (telephony.Caller, error) {
	switch cfg.Provider.Name {
	case config.ProviderVapi:
		return telephony.NewVapiCaller(telephony.VapiConfig{
			BaseURL:       cfg.Vapi.BaseURL,
			APIKey:        cfg.Vapi.APIKey,
			PhoneNumberID: cfg.Vapi.PhoneNumberID,
			AssistantID:   cfg.Vapi.AssistantID,
		})
	case config.ProviderTwilio:
		return telephony.NewTwilioCaller(telephony.TwilioConfig{
			BaseURL:           cfg.Twilio.BaseURL,
			AccountSID:        cfg.Twilio.AccountSID,
			AuthToken:         cfg.Twilio.AuthToken,
			From:              cfg.Twilio.FromNumber,
			StatusCallbackURL: cfg.Twilio.StatusCallbackURL,
		})
	case config.ProviderDryRun:
		return telephony.NewDryRunCaller(log), nil
	default:
		return nil, fmt.Errorf("unknown call provider %q", cfg.Provider.Name)
	}
}

// newGenerator returns nil when scripts are disabled.
func newGenerator(ctx context.Context, cfg config.Config) (scriptgen.Generator, error) {
	switch cfg.Script.Provider {
	case config.ScriptGroq:
		return scriptgen.NewGroqGenerator(scriptgen.GroqConfig{
			BaseURL: cfg.Script.GroqBaseURL,
			APIKey:  cfg.Script.GroqAPIKey,
			Model:   cfg.Script.GroqModel,
		})
	case config.ScriptGemini:
		return scriptgen.NewGeminiGenerator(ctx, cfg.Script.GeminiAPIKey, cfg.Script.GeminiModel)
	case config.ScriptNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown script provider %q", cfg.Script.Provider)
	}
}

func (a *app) dispatcher() *dispatch.Dispatcher {
	return dispatch.New(a.caller, dispatch.Options{
		Timeout: a.cfg.Provider.CallTimeout,
		Lines:   a.lines,
		Metrics: a.metrics,
		Logger:  a.log,
	})
}

// openLog opens the call log, writes or checks its header and loads the rows
// already in it.
func (a *app) openLog(path string, schema calllog.Schema) (*calllog.Writer, []calllog.LoggedRow, error) {
	history, err := calllog.ReadRows(path)
	if err != nil {
		return nil, nil, err
	}
	w, err := calllog.Open(path, schema)
	if err != nil {
		return nil, nil, err
	}
	if err := w.EnsureHeader(); err != nil {
		_ = w.Close()
		return nil, nil, err
	}
	return w, history, nil
}

func (a *app) runner(w calllog.Appender, history []calllog.LoggedRow, b config.BatchConfig) (*batch.Runner, error) {
	policy, err := batch.ParsePolicy(b.RerunPolicy)
	if err != nil {
		return nil, err
	}
	return batch.New(calls.NewBuilder(a.cfg.Vapi.AssistantID), a.dispatcher(), w, batch.Options{
		Delay:           b.Delay,
		MaxAttempts:     b.MaxAttempts,
		RetryBackoff:    b.RetryBackoff,
		Workers:         b.Workers,
		Policy:          policy,
		DefaultLanguage: b.DefaultLanguage,
		Generator:       a.gen,
		DiscountCode:    a.cfg.Script.DiscountCode,
		History:         history,
		Logger:          a.log,
		Metrics:         a.metrics,
	}), nil
}

// eventStore picks Postgres when DATABASE_URL is set, memory otherwise.
func (a *app) eventStore(ctx context.Context) (reconcile.Repository, error) {
	if a.cfg.DB.URL == "" {
		a.log.Info("DATABASE_URL not set; status events kept in memory")
		return reconcile.NewMemoryStore(), nil
	}
	db, err := utils.OpenPostgres(ctx, a.cfg.DB.URL, utils.PostgresPoolConfig{})
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db)
	store := reconcile.NewPostgresStore(db)
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (a *app) archiveStore(ctx context.Context) (*archive.Store, error) {
	if a.cfg.Archive.Bucket == "" {
		return archive.NewStore(nil, "", "", a.log), nil
	}
	client, err := archive.NewS3Client(ctx, a.cfg.Archive.AWSRegion)
	if err != nil {
		return nil, err
	}
	return archive.NewStore(client, a.cfg.Archive.Bucket, a.cfg.Archive.Prefix, a.log), nil
}

// ready pings whatever backing stores are configured.
func (a *app) ready(ctx context.Context) error {
	if a.db != nil {
		if err := utils.HealthCheck(ctx, a.db, 2*time.Second); err != nil {
			return err
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}
	return nil
}
