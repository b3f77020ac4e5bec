package telephony

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"cart-dialer/internal/calls"
)

// DryRunCaller never touches the network. It returns synthetic call ids and
// records every request, which makes it the caller used by tests and by
// `dialer run --dry-run`.
type DryRunCaller struct {
	Logger *slog.Logger

	// FailNumbers maps a phone number to the error returned for it.
	FailNumbers map[string]error

	mu    sync.Mutex
	calls []calls.CallRequest
}

func NewDryRunCaller(l *slog.Logger) *DryRunCaller {
	return &DryRunCaller{Logger: l}
}

func (d *DryRunCaller) Name() string { return "dryrun" }

func (d *DryRunCaller) PlaceCall(ctx context.Context, req calls.CallRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", transportError(d.Name(), err)
	}
	if !strings.HasPrefix(req.To, "+") {
		return "", &DispatchError{Provider: d.Name(), Code: CodeInvalidNumber, Err: errors.New("number must be E.164")}
	}

	d.mu.Lock()
	d.calls = append(d.calls, req)
	fail := d.FailNumbers[req.To]
	d.mu.Unlock()

	if fail != nil {
		var de *DispatchError
		if errors.As(fail, &de) {
			return "", de
		}
		return "", &DispatchError{Provider: d.Name(), Code: CodeProvider, Err: fail}
	}

	id := "dry-" + uuid.NewString()
	if d.Logger != nil {
		d.Logger.Info("dry run call", "to", req.To, "call_id", id)
	}
	return id, nil
}

// Calls returns a copy of every request seen so far.
func (d *DryRunCaller) Calls() []calls.CallRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]calls.CallRequest, len(d.calls))
	copy(out, d.calls)
	return out
}
