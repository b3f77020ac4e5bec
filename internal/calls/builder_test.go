package calls

import (
	"testing"
	"time"

	"cart-dialer/internal/contacts"
)

func TestBuild_PopulatesVariables(t *testing.T) {
	b := NewBuilder("assistant-1")
	b.Now = func() time.Time { return time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC) }

	rec := contacts.Normalize(contacts.ContactRecord{
		Name:      "Rahul Sharma",
		Phone:     "+917499902809",
		CartItems: "Headphones, Speaker",
		CartTotal: "4098",
	}, "en")

	req := b.Build(rec)

	if req.To != "+917499902809" || req.CustomerName != "Rahul Sharma" {
		t.Fatalf("unexpected target: %+v", req)
	}
	if req.AssistantID != "assistant-1" {
		t.Fatalf("expected assistant id")
	}
	want := map[string]string{
		VarCustomerName: "Rahul Sharma",
		VarItems:        "Headphones, Speaker",
		VarTotal:        "4098.00",
		VarCartReason:   "Unknown",
		VarLanguage:     "en",
		VarCallDate:     "2026-10-18",
		VarCallTime:     "09:30:00",
	}
	for k, v := range want {
		if req.Variables[k] != v {
			t.Fatalf("variable %s: expected %q, got %q", k, v, req.Variables[k])
		}
	}
	if req.RecordKey == "" {
		t.Fatalf("expected record key")
	}
}

func TestFormatTotal(t *testing.T) {
	cases := map[string]string{
		"4098":    "4098.00",
		" 25.5 ":  "25.50",
		"4,098":   "4098.00",
		"₹4098":   "₹4098",
		"":        "",
		"1e3":     "1000.00",
		"12.3456": "12.35",
	}
	for in, want := range cases {
		if got := FormatTotal(in); got != want {
			t.Fatalf("FormatTotal(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordKey_StableAcrossRowsAndFormatting(t *testing.T) {
	a := contacts.ContactRecord{Row: 1, Name: "Asha", Phone: "+1555", CartItems: "Lamp", CartTotal: "25"}
	b := contacts.ContactRecord{Row: 9, Name: "Asha", Phone: "+1555", CartItems: "Lamp", CartTotal: "25.00"}
	if RecordKey(a) != RecordKey(b) {
		t.Fatalf("expected equal keys")
	}
	b.CartItems = "Desk"
	if RecordKey(a) == RecordKey(b) {
		t.Fatalf("expected different keys")
	}
}

func TestStateMachine(t *testing.T) {
	if !CanTransition(StatePending, StateSkipped) || !CanTransition(StateDispatching, StateFailed) {
		t.Fatalf("expected legal transitions")
	}
	if CanTransition(StateSkipped, StateDispatching) {
		t.Fatalf("skipped records must never dispatch")
	}
	if CanTransition(StateLogged, StatePending) {
		t.Fatalf("logged is terminal")
	}
	if StateFor(Failed("x", false, time.Time{}, time.Time{})) != StateFailed {
		t.Fatalf("expected failed state")
	}
}
