package reporting

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cart-dialer/internal/calllog"
	"cart-dialer/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts where log rows come from. Implementations only read;
// the call log is never modified by reporting.
type Repository interface {
	ListRows(ctx context.Context, path string) ([]calllog.LoggedRow, error)
}

const maxTopErrors = 5

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) Summary(ctx context.Context, req SummaryRequest) (Summary, error) {
	if strings.TrimSpace(req.LogPath) == "" {
		return Summary{}, ErrInvalidRequest
	}
	if !req.Range.From.IsZero() && !req.Range.To.IsZero() && !req.Range.To.After(req.Range.From) {
		return Summary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return Summary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListRows(ctx, req.LogPath)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{
		LogPath:     req.LogPath,
		ByTimeOfDay: map[string]int{},
		ByDayOfWeek: map[string]int{},
		ByLanguage:  map[string]int{},
		ByReason:    map[string]int{},
	}
	phones := map[string]struct{}{}
	keys := map[string]struct{}{}
	errs := map[string]int{}

	for _, r := range rows {
		if !inRange(r.Timestamp, req.Range) {
			continue
		}
		out.TotalRows++
		switch r.Status {
		case calls.OutcomeInitiated:
			out.Initiated++
		case calls.OutcomeFailed:
			out.Failed++
		case calls.OutcomeSkipped:
			out.Skipped++
		}
		if r.Attempts > 1 {
			out.Retried++
		}
		if r.Phone != "" {
			phones[r.Phone] = struct{}{}
		}
		if r.RecordKey != "" {
			keys[r.RecordKey] = struct{}{}
		}
		bump(out.ByTimeOfDay, r.TimeOfDay)
		bump(out.ByDayOfWeek, r.DayOfWeek)
		bump(out.ByLanguage, r.Language)
		bump(out.ByReason, r.Reason)
		if r.Status != calls.OutcomeInitiated && r.Error != "" {
			errs[r.Error]++
		}
		if r.Timestamp != "" {
			if out.FirstAt == "" {
				out.FirstAt = r.Timestamp
			}
			out.LastAt = r.Timestamp
		}
	}

	out.UniquePhones = len(phones)
	out.UniqueRecords = len(keys)
	if placed := out.Initiated + out.Failed; placed > 0 {
		out.InitiationRate = float64(out.Initiated) / float64(placed)
	}
	out.TopErrors = topErrors(errs, maxTopErrors)
	return out, nil
}

func bump(m map[string]int, k string) {
	if k == "" {
		k = "unknown"
	}
	m[k]++
}

// inRange keeps rows whose timestamp cannot be parsed; legacy logs used
// several formats.
func inRange(ts string, r TimeRange) bool {
	if r.From.IsZero() && r.To.IsZero() {
		return true
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return true
	}
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

func topErrors(m map[string]int, n int) []ErrorCount {
	out := make([]ErrorCount, 0, len(m))
	for e, c := range m {
		out = append(out, ErrorCount{Error: e, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Error < out[j].Error
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
