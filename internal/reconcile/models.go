package reconcile

import (
	"time"

	"cart-dialer/internal/telephony"
)

// Event is an immutable provider status update for a call the dialer placed.
//
// Invariants:
//   - Events are never updated or deleted.
//   - ProviderCallID matches the call_id column of the call log.
//   - Events are kept beside the call log, never merged into it.
type Event struct {
	ID string `json:"id" db:"id"`

	telephony.StatusEvent

	ReceivedAt time.Time `json:"received_at" db:"received_at"`
}

// CallState folds a call's events into the latest known view.
type CallState struct {
	ProviderCallID string    `json:"provider_call_id"`
	Provider       string    `json:"provider"`
	Status         string    `json:"status"`
	DurationSecs   int       `json:"duration_seconds,omitempty"`
	EndedReason    string    `json:"ended_reason,omitempty"`
	RecordingURL   string    `json:"recording_url,omitempty"`
	Summary        string    `json:"summary,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
	Events         int       `json:"events"`
}

// Fold applies events in order; later non-empty values win.
func Fold(events []Event) (CallState, bool) {
	if len(events) == 0 {
		return CallState{}, false
	}
	var s CallState
	for _, e := range events {
		s.ProviderCallID = e.ProviderCallID
		s.Provider = e.Provider
		s.Events++
		if e.Status != "" {
			s.Status = e.Status
		}
		if e.DurationSecs > 0 {
			s.DurationSecs = e.DurationSecs
		}
		if e.EndedReason != "" {
			s.EndedReason = e.EndedReason
		}
		if e.RecordingURL != "" {
			s.RecordingURL = e.RecordingURL
		}
		if e.Summary != "" {
			s.Summary = e.Summary
		}
		if e.OccurredAt.After(s.UpdatedAt) {
			s.UpdatedAt = e.OccurredAt
		}
	}
	return s, true
}
