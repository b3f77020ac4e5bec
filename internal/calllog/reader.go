package calllog

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"cart-dialer/internal/calls"
	"cart-dialer/internal/contacts"
)

// LoggedRow is the schema-independent view of one log row.
type LoggedRow struct {
	Timestamp string
	Name      string
	Phone     string
	Items     string
	Total     string
	Reason    string
	Language  string
	Status    calls.OutcomeStatus
	CallID    string
	Error     string
	Attempts  int
	TimeOfDay string
	DayOfWeek string
	RecordKey string
}

// column name -> LoggedRow field, across basic, detailed and legacy headers
var rowAliases = map[string]string{
	"timestamp":          "timestamp",
	"name":               "name",
	"customer_name":      "name",
	"phone":              "phone",
	"number":             "phone",
	"customer_phone":     "phone",
	"items":              "items",
	"cart_items":         "items",
	"total":              "total",
	"cart_total":         "total",
	"reason":             "reason",
	"cart_reason":        "reason",
	"language":           "language",
	"customer_language":  "language",
	"status":             "status",
	"call_status":        "status",
	"call_id":            "call_id",
	"error":              "error",
	"attempts":           "attempts",
	"call_back_attempts": "attempts",
	"time_of_day":        "time_of_day",
	"day_of_week":        "day_of_week",
	"record_key":         "record_key",
}

// ReadRows reads every complete row of a log. A trailing line without a
// newline is ignored. A missing file yields no rows.
func ReadRows(path string) ([]LoggedRow, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("calllog: read %s: %w", path, err)
	}
	defer f.Close()
	return readRows(f)
}

func readRows(r io.Reader) ([]LoggedRow, error) {
	br := bufio.NewReader(r)
	var (
		idx  map[string]int
		rows []LoggedRow
		line int
	)
	for {
		text, err := br.ReadString('\n')
		if errors.Is(err, io.EOF) {
			// text (if any) is a torn tail
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("calllog: read: %w", err)
		}
		line++
		if strings.TrimSpace(text) == "" {
			continue
		}
		cr := csv.NewReader(strings.NewReader(text))
		// older logs wrote raw provider responses without quoting
		cr.LazyQuotes = true
		cells, err := cr.Read()
		if err != nil {
			return nil, fmt.Errorf("calllog: line %d: %w", line, err)
		}
		if idx == nil {
			idx = headerIndex(cells)
			continue
		}
		rows = append(rows, toLoggedRow(idx, cells))
	}
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		if field, ok := rowAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, seen := idx[field]; !seen {
				idx[field] = i
			}
		}
	}
	return idx
}

func toLoggedRow(idx map[string]int, cells []string) LoggedRow {
	get := func(field string) string {
		i, ok := idx[field]
		if !ok || i >= len(cells) {
			return ""
		}
		f := ParseField(cells[i])
		if !f.IsResolved() {
			return ""
		}
		return f.Value
	}

	row := LoggedRow{
		Timestamp: get("timestamp"),
		Name:      get("name"),
		Phone:     get("phone"),
		Items:     get("items"),
		Total:     get("total"),
		Reason:    get("reason"),
		Language:  get("language"),
		Status:    normalizeStatus(get("status")),
		CallID:    get("call_id"),
		Error:     get("error"),
		TimeOfDay: get("time_of_day"),
		DayOfWeek: get("day_of_week"),
		RecordKey: get("record_key"),
	}
	row.Attempts, _ = strconv.Atoi(get("attempts"))
	if row.RecordKey == "" {
		row.RecordKey = calls.RecordKey(contacts.ContactRecord{
			Name: row.Name, Phone: row.Phone, CartItems: row.Items, CartTotal: row.Total,
		})
	}
	return row
}

// normalizeStatus maps older logs ("success") onto outcome statuses.
func normalizeStatus(s string) calls.OutcomeStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "initiated", "success":
		return calls.OutcomeInitiated
	case "skipped":
		return calls.OutcomeSkipped
	case "":
		return ""
	default:
		return calls.OutcomeFailed
	}
}
