// Package batch drives records from a source through build, optional script
// generation, dispatch and the durable log.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"cart-dialer/internal/calllog"
	"cart-dialer/internal/calls"
	"cart-dialer/internal/contacts"
	"cart-dialer/internal/metrics"
	"cart-dialer/internal/scriptgen"
)

// Dispatcher places one call attempt (see dispatch.Dispatcher).
type Dispatcher interface {
	Provider() string
	Dispatch(ctx context.Context, req calls.CallRequest) calls.CallOutcome
}

type Options struct {
	// Delay is the minimum gap between provider dispatches.
	Delay time.Duration

	MaxAttempts  int
	RetryBackoff time.Duration
	Workers      int
	Policy       Policy

	DefaultLanguage string

	Generator       scriptgen.Generator
	DiscountCode    string
	GenerateTimeout time.Duration

	// History is the log as it was before this run; it drives Policy and
	// previous_contact_count.
	History []calllog.LoggedRow

	Logger  *slog.Logger
	Metrics *metrics.DialerMetrics
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 1
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = time.Second
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Policy == "" {
		o.Policy = PolicyAll
	}
	if o.DefaultLanguage == "" {
		o.DefaultLanguage = "en"
	}
	if o.GenerateTimeout <= 0 {
		o.GenerateTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// RunSummary reports one batch run.
type RunSummary struct {
	RunID         string    `json:"run_id"`
	Source        string    `json:"source"`
	Total         int       `json:"total"`
	Initiated     int       `json:"initiated"`
	Failed        int       `json:"failed"`
	Skipped       int       `json:"skipped"`
	AlreadyLogged int       `json:"already_logged"`
	Interrupted   bool      `json:"interrupted"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Runner is safe for concurrent ProcessOne calls; Run itself should not be
// called concurrently against the same log.
type Runner struct {
	builder    *calls.Builder
	dispatcher Dispatcher
	log        calllog.Appender
	index      *calllog.Index
	limiter    *rate.Limiter
	opts       Options
}

func New(builder *calls.Builder, d Dispatcher, log calllog.Appender, opts Options) *Runner {
	opts = opts.withDefaults()
	r := &Runner{
		builder:    builder,
		dispatcher: d,
		log:        log,
		index:      calllog.NewIndex(opts.History),
		opts:       opts,
	}
	if opts.Delay > 0 {
		r.limiter = rate.NewLimiter(rate.Every(opts.Delay), 1)
	}
	return r
}

// result is one processed record. interrupted means cancellation stopped it
// before any dispatch; it is neither logged nor counted.
type result struct {
	rec         contacts.ContactRecord
	out         calls.CallOutcome
	policySkip  bool
	interrupted bool
}

// Run processes every record of sourcePath in order. Per-record failures are
// logged and counted; the returned error is non-nil only for a source format
// problem (before any dispatch) or a log write failure.
func (r *Runner) Run(ctx context.Context, sourcePath string) (RunSummary, error) {
	sum := RunSummary{RunID: uuid.NewString(), Source: sourcePath, StartedAt: r.opts.Now()}
	log := r.opts.Logger.With("run_id", sum.RunID)

	recs, err := contacts.Load(sourcePath, contacts.Options{DefaultLanguage: r.opts.DefaultLanguage})
	if err != nil {
		sum.FinishedAt = r.opts.Now()
		return sum, err
	}
	sum.Total = len(recs)
	log.Info("batch started",
		"source", sourcePath,
		"records", len(recs),
		"provider", r.dispatcher.Provider(),
		"workers", r.opts.Workers,
		"policy", r.opts.Policy,
	)

	processed, err := r.runAll(ctx, recs, &sum, log)
	sum.Interrupted = processed < len(recs) && ctx.Err() != nil
	sum.FinishedAt = r.opts.Now()

	if err != nil {
		log.Error("batch stopped: call log not writable", "err", err)
		return sum, err
	}
	if sum.Interrupted {
		log.Warn("batch interrupted", "processed", processed, "records", len(recs))
	}
	log.Info("batch finished",
		"initiated", sum.Initiated,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"already_logged", sum.AlreadyLogged,
	)
	return sum, nil
}

type indexed struct {
	i   int
	res result
}

// runAll processes records and appends their results in source order from
// this goroutine only. With one worker every result is appended before the
// next record starts.
func (r *Runner) runAll(ctx context.Context, recs []contacts.ContactRecord, sum *RunSummary, log *slog.Logger) (int, error) {
	if r.opts.Workers == 1 {
		return r.runSequential(ctx, recs, sum, log)
	}

	stopCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(stopCtx)
	jobs := make(chan int)
	results := make(chan indexed, r.opts.Workers)
	// window holds one slot per record handed out but not yet appended. The
	// writer stops releasing slots once the log fails.
	window := make(chan struct{}, r.opts.Workers)

	acquire := func() bool {
		select {
		case window <- struct{}{}:
			return true
		case <-gctx.Done():
			return false
		}
	}

	g.Go(func() error {
		defer close(jobs)
		seen := make(map[string]bool)
		for i, rec := range recs {
			if r.opts.Policy != PolicyAll && rec.Valid() {
				key := calls.RecordKey(rec)
				if seen[key] {
					// A repeated key waits until everything handed out
					// is appended, so its policy check sees the earlier row.
					for n := 0; n < r.opts.Workers; n++ {
						if !acquire() {
							return nil
						}
					}
					for n := 0; n < r.opts.Workers; n++ {
						<-window
					}
				}
				seen[key] = true
			}
			if !acquire() {
				return nil
			}
			select {
			case jobs <- i:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})
	for w := 0; w < r.opts.Workers; w++ {
		g.Go(func() error {
			for i := range jobs {
				results <- indexed{i: i, res: r.process(gctx, recs[i], r.opts.Policy)}
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	var (
		pending   = make(map[int]result)
		next      int
		processed int
		writeErr  error
	)
	for ir := range results {
		pending[ir.i] = ir.res
		for {
			res, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if writeErr != nil {
				if !res.interrupted {
					r.reportUnlogged(log, res)
				}
				continue
			}
			if !res.interrupted {
				if err := r.record(res, sum, log); err != nil {
					writeErr = err
					stop()
					continue
				}
				processed++
			}
			<-window
		}
	}
	return processed, writeErr
}

func (r *Runner) runSequential(ctx context.Context, recs []contacts.ContactRecord, sum *RunSummary, log *slog.Logger) (int, error) {
	processed := 0
	for _, rec := range recs {
		res := r.process(ctx, rec, r.opts.Policy)
		if res.interrupted {
			break
		}
		if err := r.record(res, sum, log); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// process takes one record to a terminal outcome. Cancellation is honoured
// only before the first dispatch; a placed call always finishes and returns.
func (r *Runner) process(ctx context.Context, rec contacts.ContactRecord, policy Policy) result {
	if ctx.Err() != nil {
		return result{rec: rec, interrupted: true}
	}
	if !rec.Valid() {
		return result{rec: rec, out: calls.Skipped(rec.Invalid, r.opts.Now())}
	}

	key := calls.RecordKey(rec)
	switch policy {
	case PolicySkipLogged:
		if r.index.Logged(key) {
			return result{rec: rec, policySkip: true}
		}
	case PolicySkipInitiated:
		if r.index.Initiated(key) {
			return result{rec: rec, policySkip: true}
		}
	}

	req := r.builder.Build(rec)
	if r.opts.Generator != nil {
		genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.GenerateTimeout)
		scripted, err := scriptgen.Apply(genCtx, r.opts.Generator, req, r.opts.DiscountCode)
		cancel()
		if err != nil {
			now := r.opts.Now()
			out := calls.Failed(err.Error(), false, now, now)
			out.Attempts = 0
			return result{rec: rec, out: out}
		}
		req = scripted
	}

	out, ok := r.dispatchWithRetry(ctx, req)
	if !ok {
		return result{rec: rec, interrupted: true}
	}
	return result{rec: rec, out: out}
}

// dispatchWithRetry returns ok=false only if ctx ended before the first attempt.
func (r *Runner) dispatchWithRetry(ctx context.Context, req calls.CallRequest) (calls.CallOutcome, bool) {
	var (
		out     calls.CallOutcome
		started time.Time
	)
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			r.opts.Metrics.ObserveRetry(r.dispatcher.Provider())
			if !sleepCtx(ctx, r.opts.RetryBackoff<<(attempt-2)) {
				break
			}
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				if attempt == 1 {
					return out, false
				}
				break
			}
		} else if attempt == 1 && ctx.Err() != nil {
			return out, false
		}

		out = r.dispatcher.Dispatch(context.WithoutCancel(ctx), req)
		if attempt == 1 {
			started = out.StartedAt
		}
		out.Attempts = attempt
		if out.Status != calls.OutcomeFailed || !out.Retryable {
			break
		}
		r.opts.Logger.Debug("retryable dispatch failure", "to", req.To, "attempt", attempt, "err", out.Error)
	}
	out.StartedAt = started
	return out, true
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// record appends one result and updates the summary.
func (r *Runner) record(res result, sum *RunSummary, log *slog.Logger) error {
	if res.policySkip {
		sum.AlreadyLogged++
		log.Info("record already logged", "row", res.rec.Row, "phone", res.rec.Phone)
		return nil
	}
	if err := r.appendOutcome(res.rec, res.out); err != nil {
		r.reportUnlogged(log, res)
		return err
	}
	switch res.out.Status {
	case calls.OutcomeInitiated:
		sum.Initiated++
		log.Info("call initiated", "row", res.rec.Row, "name", res.rec.Name, "call_id", res.out.CallID, "attempts", res.out.Attempts)
	case calls.OutcomeSkipped:
		sum.Skipped++
		log.Warn("record skipped", "row", res.rec.Row, "phone", res.rec.Phone, "reason", res.out.Error)
	default:
		sum.Failed++
		log.Warn("call failed", "row", res.rec.Row, "name", res.rec.Name, "err", res.out.Error, "detail", res.out.Detail, "attempts", res.out.Attempts)
	}
	return nil
}

func (r *Runner) appendOutcome(rec contacts.ContactRecord, out calls.CallOutcome) error {
	entry := calllog.NewEntry(rec, out, r.index.ContactCount(rec.Phone))
	err := r.log.Append(entry)
	r.opts.Metrics.ObserveAppend(err == nil)
	if err != nil {
		var lwe *calllog.LogWriteError
		if !errors.As(err, &lwe) {
			err = &calllog.LogWriteError{Op: "append", Err: err}
		}
		return err
	}
	r.index.Add(entry.RecordKey, rec.Phone, out.Status)
	return nil
}

// reportUnlogged leaves a trace of an outcome the log could not take, so a
// placed call is never silently lost.
func (r *Runner) reportUnlogged(log *slog.Logger, res result) {
	if res.policySkip {
		return
	}
	log.Error("outcome not recorded in call log",
		"row", res.rec.Row,
		"name", res.rec.Name,
		"phone", res.rec.Phone,
		"status", res.out.Status,
		"call_id", res.out.CallID,
		"err", res.out.Error,
		"detail", res.out.Detail,
	)
}

// ProcessOne runs a single record through the same path as Run, ignoring the
// rerun policy. The outcome is returned even when appending fails.
func (r *Runner) ProcessOne(ctx context.Context, rec contacts.ContactRecord) (calls.CallOutcome, error) {
	rec = contacts.Normalize(rec, r.opts.DefaultLanguage)
	res := r.process(ctx, rec, PolicyAll)
	if res.interrupted {
		return calls.CallOutcome{}, fmt.Errorf("batch: not dispatched: %w", ctx.Err())
	}
	if err := r.appendOutcome(res.rec, res.out); err != nil {
		r.reportUnlogged(r.opts.Logger, res)
		return res.out, err
	}
	return res.out, nil
}
