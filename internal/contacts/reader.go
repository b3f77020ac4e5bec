package contacts

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// SourceFormatError means the input cannot be used at all. A run that hits it
// must stop before any dispatch.
type SourceFormatError struct {
	Path    string
	Missing []string
	Err     error
}

func (e *SourceFormatError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("contacts: %s: missing required columns: %s", e.Path, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("contacts: %s: %v", e.Path, e.Err)
}

func (e *SourceFormatError) Unwrap() error { return e.Err }

// Options tune how rows become records.
type Options struct {
	DefaultLanguage string
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.DefaultLanguage) == "" {
		o.DefaultLanguage = "en"
	}
	return o
}

// column aliases, first match wins
var columnAliases = map[string][]string{
	"name":           {"name", "customer_name"},
	"phone":          {"phone", "number", "customer_phone"},
	"items":          {"items", "cart_items"},
	"total":          {"total", "cart_total", "cart_value"},
	"reason":         {"reason", "cart_reason"},
	"language":       {"language", "customer_language"},
	"abandoned_date": {"abandoned_date", "cart_abandoned_date", "abandoned_at"},
	"location":       {"location", "customer_location"},
	"timezone":       {"timezone", "customer_timezone"},
}

var requiredColumns = []string{"name", "phone"}

// Reader streams ContactRecords from a delimited file in source order.
type Reader struct {
	path string
	opts Options
	f    *os.File
	csv  *csv.Reader
	idx  map[string]int
	row  int
}

// Open reads the header and checks the required columns. Rows are read lazily
// through Next.
func Open(path string, opts Options) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SourceFormatError{Path: path, Err: err}
	}
	r := &Reader{path: path, opts: opts.withDefaults(), f: f}
	if err := r.readHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) readHeader() error {
	cr := csv.NewReader(r.f)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &SourceFormatError{Path: r.path, Err: errors.New("file is empty")}
	}
	if err != nil {
		return &SourceFormatError{Path: r.path, Err: err}
	}

	positions := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, seen := positions[key]; !seen {
			positions[key] = i
		}
	}

	r.idx = make(map[string]int, len(columnAliases))
	for field, aliases := range columnAliases {
		for _, a := range aliases {
			if i, ok := positions[a]; ok {
				r.idx[field] = i
				break
			}
		}
	}

	var missing []string
	for _, req := range requiredColumns {
		if _, ok := r.idx[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return &SourceFormatError{Path: r.path, Missing: missing}
	}
	r.csv = cr
	return nil
}

// Next returns the next record or io.EOF. A malformed line (for example an
// unterminated quote) is reported as *SourceFormatError.
func (r *Reader) Next() (ContactRecord, error) {
	for {
		cells, err := r.csv.Read()
		if errors.Is(err, io.EOF) {
			return ContactRecord{}, io.EOF
		}
		if err != nil {
			return ContactRecord{}, &SourceFormatError{Path: r.path, Err: err}
		}
		if blank(cells) {
			continue
		}
		r.row++
		rec := ContactRecord{
			Row:           r.row,
			Name:          r.cell(cells, "name"),
			Phone:         r.cell(cells, "phone"),
			CartItems:     r.cell(cells, "items"),
			CartTotal:     r.cell(cells, "total"),
			Reason:        r.cell(cells, "reason"),
			Language:      r.cell(cells, "language"),
			AbandonedDate: r.cell(cells, "abandoned_date"),
			Location:      r.cell(cells, "location"),
			Timezone:      r.cell(cells, "timezone"),
		}
		return Normalize(rec, r.opts.DefaultLanguage), nil
	}
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	if r == nil || r.f == nil {
		return nil
	}
	return r.f.Close()
}

func (r *Reader) cell(cells []string, field string) string {
	i, ok := r.idx[field]
	if !ok || i >= len(cells) {
		return ""
	}
	return cells[i]
}

// Load is the eager form of Open/Next.
func Load(path string, opts Options) ([]ContactRecord, error) {
	r, err := Open(path, opts)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []ContactRecord
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// normalizeItems flattens a JSON list cell (["a","b"]) into "a, b".
func normalizeItems(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") {
		return s
	}
	var list []any
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return s
	}
	parts := make([]string, 0, len(list))
	for _, v := range list {
		parts = append(parts, strings.TrimSpace(fmt.Sprint(v)))
	}
	return strings.Join(parts, ", ")
}
