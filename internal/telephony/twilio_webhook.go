package telephony

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// TwilioStatusForm captures the status callback fields we store.
// Twilio sends application/x-www-form-urlencoded.
type TwilioStatusForm struct {
	CallSid        string
	AccountSid     string
	From           string
	To             string
	CallStatus     string
	CallDuration   string
	Timestamp      string
	SequenceNumber string
	RecordingURL   string
}

func ParseTwilioStatus(r *http.Request) (TwilioStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioStatusForm{}, err
	}
	f := TwilioStatusForm{
		CallSid:        strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid:     r.PostFormValue("AccountSid"),
		From:           strings.TrimSpace(r.PostFormValue("From")),
		To:             strings.TrimSpace(r.PostFormValue("To")),
		CallStatus:     strings.TrimSpace(r.PostFormValue("CallStatus")),
		CallDuration:   r.PostFormValue("CallDuration"),
		Timestamp:      r.PostFormValue("Timestamp"),
		SequenceNumber: r.PostFormValue("SequenceNumber"),
		RecordingURL:   r.PostFormValue("RecordingUrl"),
	}
	if f.CallSid == "" {
		return f, errors.New("telephony: CallSid missing")
	}
	return f, nil
}

// ToStatusEvent converts the form. Twilio's Timestamp is RFC1123Z; receivedAt
// is used when it is absent or unparseable.
func (f TwilioStatusForm) ToStatusEvent(receivedAt time.Time) StatusEvent {
	at := receivedAt
	if ts, err := time.Parse(time.RFC1123Z, f.Timestamp); err == nil {
		at = ts
	}
	dur, _ := strconv.Atoi(f.CallDuration)
	raw, _ := json.Marshal(f)
	return StatusEvent{
		Provider:       "twilio",
		ProviderCallID: f.CallSid,
		Status:         f.CallStatus,
		To:             f.To,
		DurationSecs:   dur,
		RecordingURL:   f.RecordingURL,
		OccurredAt:     at.UTC(),
		RawPayload:     string(raw),
	}
}
