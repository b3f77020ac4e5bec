// Package dispatch places exactly one provider call per request and turns the
// result into a typed CallOutcome. It never retries; the batch runner does.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cart-dialer/internal/calls"
	"cart-dialer/internal/metrics"
	"cart-dialer/internal/telephony"
)

const DefaultTimeout = 30 * time.Second

var tracer = otel.Tracer("cart-dialer.internal.dispatch")

// LineLimiter bounds concurrent calls across processes (see utils.LineCap).
type LineLimiter interface {
	Wait(ctx context.Context) error
	Release(ctx context.Context) error
}

type Options struct {
	Timeout time.Duration
	Lines   LineLimiter
	Metrics *metrics.DialerMetrics
	Logger  *slog.Logger
	Now     func() time.Time
}

type Dispatcher struct {
	caller  telephony.Caller
	timeout time.Duration
	lines   LineLimiter
	metrics *metrics.DialerMetrics
	logger  *slog.Logger
	now     func() time.Time
}

func New(caller telephony.Caller, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		caller:  caller,
		timeout: opts.Timeout,
		lines:   opts.Lines,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		now:     opts.Now,
	}
}

// Provider names the underlying caller.
func (d *Dispatcher) Provider() string { return d.caller.Name() }

// Dispatch performs one placement attempt bounded by the call timeout. It
// always returns an outcome; provider errors and panics become failed.
func (d *Dispatcher) Dispatch(ctx context.Context, req calls.CallRequest) calls.CallOutcome {
	started := d.now()

	ctx, span := tracer.Start(ctx, "dispatch.place_call")
	defer span.End()
	span.SetAttributes(
		attribute.String("dialer.provider", d.caller.Name()),
		attribute.String("dialer.record_key", req.RecordKey),
	)

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var out calls.CallOutcome
	if d.lines != nil {
		if err := d.lines.Wait(callCtx); err != nil {
			out = calls.Failed(fmt.Sprintf("line cap: %v", err), true, started, d.now())
			d.finish(span, req, out)
			return out
		}
		defer func() {
			relCtx, relCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer relCancel()
			if err := d.lines.Release(relCtx); err != nil {
				d.logger.Warn("line release failed", "err", err)
			}
		}()
	}

	id, err := d.place(callCtx, req)
	finished := d.now()
	switch {
	case err != nil:
		out = calls.Failed(errorCode(err), telephony.IsRetryable(err), started, finished)
		out.Detail = err.Error()
		span.RecordError(err)
	case id == "":
		out = calls.Failed("provider returned no call id", false, started, finished)
	default:
		out = calls.Initiated(id, started, finished)
	}
	d.finish(span, req, out)
	return out
}

func (d *Dispatcher) place(ctx context.Context, req calls.CallRequest) (id string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &telephony.DispatchError{
				Provider: d.caller.Name(),
				Code:     telephony.CodeProvider,
				Err:      fmt.Errorf("panic: %v", p),
			}
		}
	}()
	id, err = d.caller.PlaceCall(ctx, req)
	if err != nil {
		var de *telephony.DispatchError
		if !errors.As(err, &de) {
			code := telephony.CodeProvider
			if errors.Is(err, context.DeadlineExceeded) {
				code = telephony.CodeTimeout
			}
			err = &telephony.DispatchError{Provider: d.caller.Name(), Code: code, Err: err}
		}
	}
	return id, err
}

// errorCode is the taxonomy code that goes into the call log.
func errorCode(err error) string {
	var de *telephony.DispatchError
	if errors.As(err, &de) && de.Code != "" {
		return string(de.Code)
	}
	return string(telephony.CodeProvider)
}

func (d *Dispatcher) finish(span trace.Span, req calls.CallRequest, out calls.CallOutcome) {
	span.SetAttributes(attribute.String("dialer.status", string(out.Status)))
	if out.Status == calls.OutcomeFailed {
		span.SetStatus(codes.Error, out.Error)
	}
	d.metrics.ObserveDispatch(d.caller.Name(), string(out.Status), out.FinishedAt.Sub(out.StartedAt).Seconds())
	d.logger.Debug("dispatch finished",
		"record_key", req.RecordKey,
		"status", out.Status,
		"call_id", out.CallID,
		"err", out.Error,
		"detail", out.Detail,
	)
}
