package calllog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cart-dialer/internal/calls"
	"cart-dialer/internal/contacts"
)

// Entry is one durable log row: the record, its outcome, and call context.
type Entry struct {
	Timestamp time.Time
	Record    contacts.ContactRecord
	Outcome   calls.CallOutcome
	RecordKey string

	// PreviousContacts counts rows already logged for the same phone.
	PreviousContacts int
}

// NewEntry stamps an entry with the outcome's finish time.
func NewEntry(rec contacts.ContactRecord, out calls.CallOutcome, previous int) Entry {
	ts := out.FinishedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return Entry{
		Timestamp:        ts,
		Record:           rec,
		Outcome:          out,
		RecordKey:        calls.RecordKey(rec),
		PreviousContacts: previous,
	}
}

// TimeOfDay buckets t: Morning before 12:00, Afternoon before 17:00, Evening otherwise.
func TimeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h < 12:
		return "Morning"
	case h < 17:
		return "Afternoon"
	default:
		return "Evening"
	}
}

// Row renders the entry for schema. Every value is a single physical line.
func (e Entry) Row(s Schema) []string {
	if s == SchemaDetailed {
		fields := e.Fields()
		row := make([]string, len(detailedColumns))
		for i, c := range detailedColumns {
			row[i] = oneLine(fields[c].String())
		}
		return row
	}

	callID, errMsg := "", e.Outcome.Error
	if e.Outcome.Status == calls.OutcomeInitiated {
		callID, errMsg = e.Outcome.CallID, ""
	}
	row := []string{
		e.Timestamp.Format(time.RFC3339),
		e.Record.Name,
		e.Record.Phone,
		e.Record.CartItems,
		e.Record.CartTotal,
		e.Record.Reason,
		e.Record.Language,
		string(e.Outcome.Status),
		callID,
		errMsg,
		strconv.Itoa(e.Outcome.Attempts),
		TimeOfDay(e.Timestamp),
		e.Timestamp.Weekday().String(),
		e.RecordKey,
	}
	for i := range row {
		row[i] = oneLine(row[i])
	}
	return row
}

// Fields resolves every detailed column. Values the pipeline cannot know are
// never invented: they are pending after a placed call and n/a otherwise.
func (e Entry) Fields() map[string]Field {
	r, o := e.Record, e.Outcome
	placed := o.Status == calls.OutcomeInitiated
	f := make(map[string]Field, len(detailedColumns))

	for _, c := range outcomeAnalytics {
		if placed {
			f[c] = Pending()
		} else {
			f[c] = NotApplicable()
		}
	}

	f["timestamp"] = Resolved(e.Timestamp.Format(time.RFC3339))
	f["call_date"] = Resolved(e.Timestamp.Format("2006-01-02"))
	f["call_time"] = Resolved(e.Timestamp.Format("15:04:05"))
	f["customer_name"] = Resolved(r.Name)
	f["customer_phone"] = Resolved(r.Phone)

	f["cart_items"] = Resolved(r.CartItems)
	f["cart_total"] = Resolved(r.CartTotal)
	f["cart_quantity"] = cartQuantity(r.CartItems)
	f["cart_abandoned_date"] = ResolvedIf(r.AbandonedDate)
	f["days_since_abandonment"] = daysSince(r.AbandonedDate, e.Timestamp)

	f["call_status"] = Resolved(string(o.Status))
	f["call_initiated"] = Resolved(yesNo(placed))
	if placed {
		f["call_id"] = Resolved(o.CallID)
	} else {
		f["call_id"] = NotApplicable()
		f["call_answered"] = Resolved("no")
		f["call_duration_seconds"] = Resolved("0")
		f["call_ended_reason"] = Resolved(o.Error)
	}

	f["call_back_attempts"] = Resolved(strconv.Itoa(o.Attempts))
	f["previous_contact_count"] = Resolved(strconv.Itoa(e.PreviousContacts))

	f["customer_language"] = Resolved(r.Language)
	f["customer_location"] = ResolvedIf(r.Location)
	f["customer_timezone"] = ResolvedIf(r.Timezone)
	f["time_of_day"] = Resolved(TimeOfDay(e.Timestamp))
	f["day_of_week"] = Resolved(e.Timestamp.Weekday().String())

	f["call_notes"] = Resolved(callNotes(r, o))
	f["cart_reason"] = Resolved(r.Reason)
	if placed {
		f["error"] = Resolved("")
	} else {
		f["error"] = Resolved(o.Error)
	}
	f["record_key"] = Resolved(e.RecordKey)
	return f
}

func callNotes(r contacts.ContactRecord, o calls.CallOutcome) string {
	switch o.Status {
	case calls.OutcomeInitiated:
		return fmt.Sprintf("Call initiated to %s for %s", r.Name, r.CartItems)
	case calls.OutcomeSkipped:
		return "Skipped: " + o.Error
	default:
		if o.Detail != "" {
			return "Call failed: " + o.Detail
		}
		return "Call failed: " + o.Error
	}
}

var quantityRe = regexp.MustCompile(`(?i)(?:^|\s)x\s*(\d+)\s*$|^\s*(\d+)\s*x\s`)

// cartQuantity sums "Item x2" / "2x Item" multipliers, counting one per
// comma-separated item otherwise.
func cartQuantity(items string) Field {
	items = strings.TrimSpace(items)
	if items == "" {
		return Unknown()
	}
	total := 0
	for _, part := range strings.Split(items, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n := 1
		if m := quantityRe.FindStringSubmatch(part); m != nil {
			digits := m[1]
			if digits == "" {
				digits = m[2]
			}
			if v, err := strconv.Atoi(digits); err == nil && v > 0 {
				n = v
			}
		}
		total += n
	}
	return Resolved(strconv.Itoa(total))
}

func daysSince(date string, now time.Time) Field {
	if date == "" {
		return Unknown()
	}
	d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(date), now.Location())
	if err != nil {
		return Unknown()
	}
	y, m, day := now.Date()
	today := time.Date(y, m, day, 0, 0, 0, 0, now.Location())
	return Resolved(strconv.Itoa(int(today.Sub(d).Hours() / 24)))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func oneLine(s string) string { return lineBreaks.Replace(s) }
