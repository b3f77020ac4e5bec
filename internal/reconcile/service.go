package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"cart-dialer/internal/metrics"
	"cart-dialer/internal/telephony"
)

// Repository is the persistence contract for status events. It is
// append-only: there are no Update/Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByCall(ctx context.Context, providerCallID string) ([]Event, error)
}

var ErrInvalidEvent = errors.New("reconcile: invalid event")

// Service records provider status events and answers "what happened to this
// call" queries. It implements telephony.EventSink.
type Service struct {
	repo    Repository
	metrics *metrics.DialerMetrics
	logger  *slog.Logger
	clock   func() time.Time
}

func NewService(repo Repository, m *metrics.DialerMetrics, l *slog.Logger) *Service {
	if l == nil {
		l = slog.Default()
	}
	return &Service{repo: repo, metrics: m, logger: l, clock: time.Now}
}

var _ telephony.EventSink = (*Service)(nil)

func (s *Service) Record(ctx context.Context, ev telephony.StatusEvent) error {
	if strings.TrimSpace(ev.ProviderCallID) == "" || strings.TrimSpace(ev.Provider) == "" {
		return ErrInvalidEvent
	}
	now := s.clock().UTC()
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = now
	}
	e := Event{ID: uuid.NewString(), StatusEvent: ev, ReceivedAt: now}
	if err := s.repo.Append(ctx, e); err != nil {
		return err
	}
	s.metrics.ObserveStatusEvent(ev.Provider, ev.Status)
	s.logger.Debug("status event stored", "call_id", ev.ProviderCallID, "status", ev.Status)
	return nil
}

// State returns the folded view of a call, or false if no event arrived yet.
func (s *Service) State(ctx context.Context, providerCallID string) (CallState, bool, error) {
	events, err := s.repo.ListByCall(ctx, providerCallID)
	if err != nil {
		return CallState{}, false, err
	}
	st, ok := Fold(events)
	return st, ok, nil
}
