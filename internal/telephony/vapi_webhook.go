package telephony

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// VapiWebhook is the envelope of a Vapi server message. Only the fields we
// store are decoded.
type VapiWebhook struct {
	Message struct {
		Type            string  `json:"type"`
		Status          string  `json:"status"`
		EndedReason     string  `json:"endedReason"`
		DurationSeconds float64 `json:"durationSeconds"`
		RecordingURL    string  `json:"recordingUrl"`
		Summary         string  `json:"summary"`
		Timestamp       int64   `json:"timestamp"`
		Call            struct {
			ID       string `json:"id"`
			Customer struct {
				Number string `json:"number"`
			} `json:"customer"`
		} `json:"call"`
		Analysis struct {
			Summary string `json:"summary"`
		} `json:"analysis"`
	} `json:"message"`

	raw []byte
}

const (
	VapiEndOfCallReport = "end-of-call-report"
	VapiStatusUpdate    = "status-update"
)

func ParseVapiWebhook(r *http.Request) (VapiWebhook, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return VapiWebhook{}, err
	}
	var w VapiWebhook
	if err := json.Unmarshal(body, &w); err != nil {
		return VapiWebhook{}, fmt.Errorf("telephony: decode vapi webhook: %w", err)
	}
	if w.Message.Call.ID == "" {
		return VapiWebhook{}, errors.New("telephony: vapi webhook carried no call id")
	}
	w.raw = body
	return w, nil
}

// Storable reports whether the message type carries call status.
func (w VapiWebhook) Storable() bool {
	return w.Message.Type == VapiEndOfCallReport || w.Message.Type == VapiStatusUpdate
}

func (w VapiWebhook) ToStatusEvent(receivedAt time.Time) StatusEvent {
	m := w.Message
	at := receivedAt
	if m.Timestamp > 0 {
		at = time.UnixMilli(m.Timestamp)
	}
	status := m.Status
	if m.Type == VapiEndOfCallReport {
		status = "ended"
	}
	summary := m.Summary
	if summary == "" {
		summary = m.Analysis.Summary
	}
	return StatusEvent{
		Provider:       "vapi",
		ProviderCallID: m.Call.ID,
		Status:         status,
		To:             m.Call.Customer.Number,
		DurationSecs:   int(math.Round(m.DurationSeconds)),
		EndedReason:    m.EndedReason,
		RecordingURL:   m.RecordingURL,
		Summary:        summary,
		OccurredAt:     at.UTC(),
		RawPayload:     string(w.raw),
	}
}
