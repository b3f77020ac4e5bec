package calls

import "time"

// CallRequest is the provider-agnostic payload for one outbound call.
//
// NOTE: Provider-specific shapes (Vapi assistantOverrides, Twilio TwiML) are
// produced by the telephony adapters, not here.
type CallRequest struct {
	// RecordKey ties the request back to its source row across runs.
	RecordKey string `json:"record_key"`

	To           string `json:"to"`
	CustomerName string `json:"customer_name"`

	// AssistantID is the template/assistant the provider should run.
	AssistantID string `json:"assistant_id,omitempty"`

	// FirstMessage is what the assistant says first (or the TwiML <Say> text).
	FirstMessage string `json:"first_message"`

	// Variables are interpolated by the provider into the assistant prompt.
	Variables map[string]string `json:"variables"`
}

// Variable names understood by the assistant templates.
const (
	VarCustomerName = "customerName"
	VarItems        = "items"
	VarTotal        = "total"
	VarCartReason   = "cartReason"
	VarLanguage     = "language"
	VarCallDate     = "callDate"
	VarCallTime     = "callTime"
)

// OutcomeStatus is the terminal result kind of one record.
type OutcomeStatus string

const (
	OutcomeInitiated OutcomeStatus = "initiated"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeSkipped   OutcomeStatus = "skipped"
)

// CallOutcome is the typed result of one dispatch attempt (or of a skip).
//
// Invariants:
//   - CallID is set only when Status == initiated.
//   - Error is set only when Status is failed or skipped.
type CallOutcome struct {
	Status OutcomeStatus `json:"status"`
	CallID string        `json:"call_id,omitempty"`
	Error  string        `json:"error,omitempty"`
	// Detail is the provider's message behind Error, when there is one.
	Detail string        `json:"detail,omitempty"`

	// Retryable marks failures the provider reported before placing anything.
	Retryable bool `json:"-"`

	Attempts   int       `json:"attempts"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Initiated builds a success outcome.
func Initiated(callID string, started, finished time.Time) CallOutcome {
	return CallOutcome{Status: OutcomeInitiated, CallID: callID, Attempts: 1, StartedAt: started, FinishedAt: finished}
}

// Failed builds a failure outcome.
func Failed(msg string, retryable bool, started, finished time.Time) CallOutcome {
	return CallOutcome{Status: OutcomeFailed, Error: msg, Retryable: retryable, Attempts: 1, StartedAt: started, FinishedAt: finished}
}

// Skipped builds the outcome for a record that never reaches a provider.
func Skipped(reason string, at time.Time) CallOutcome {
	return CallOutcome{Status: OutcomeSkipped, Error: reason, StartedAt: at, FinishedAt: at}
}

// State tracks a record through the pipeline.
type State string

const (
	StatePending     State = "pending"
	StateValidated   State = "validated"
	StateSkipped     State = "skipped"
	StateDispatching State = "dispatching"
	StateInitiated   State = "initiated"
	StateFailed      State = "failed"
	StateLogged      State = "logged"
)

var transitions = map[State][]State{
	StatePending:     {StateValidated, StateSkipped},
	StateValidated:   {StateDispatching},
	StateDispatching: {StateInitiated, StateFailed},
	StateSkipped:     {StateLogged},
	StateInitiated:   {StateLogged},
	StateFailed:      {StateLogged},
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StateFor maps an outcome to the state it leaves the record in.
func StateFor(o CallOutcome) State {
	switch o.Status {
	case OutcomeInitiated:
		return StateInitiated
	case OutcomeSkipped:
		return StateSkipped
	default:
		return StateFailed
	}
}
