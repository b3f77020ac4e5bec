package telephony

import "time"

// StatusEvent is a provider-agnostic call status update. Events arrive after
// the batch has logged the call; they are stored separately and never merged
// back into the call log.
type StatusEvent struct {
	Provider       string    `json:"provider"`
	ProviderCallID string    `json:"provider_call_id"`
	Status         string    `json:"status"`
	To             string    `json:"to,omitempty"`
	DurationSecs   int       `json:"duration_seconds,omitempty"`
	EndedReason    string    `json:"ended_reason,omitempty"`
	RecordingURL   string    `json:"recording_url,omitempty"`
	Summary        string    `json:"summary,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`

	// RawPayload is kept as a JSON string for debugging.
	RawPayload string `json:"raw_payload,omitempty"`
}
