package calls

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cart-dialer/internal/contacts"
)

// Builder turns ContactRecords into CallRequests. It performs no I/O.
type Builder struct {
	AssistantID string
	Now         func() time.Time
}

func NewBuilder(assistantID string) *Builder {
	return &Builder{AssistantID: assistantID, Now: time.Now}
}

// Build maps one record. Callers must not pass records tagged invalid.
func (b *Builder) Build(rec contacts.ContactRecord) CallRequest {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	t := now()
	total := FormatTotal(rec.CartTotal)

	return CallRequest{
		RecordKey:    RecordKey(rec),
		To:           rec.Phone,
		CustomerName: rec.Name,
		AssistantID:  b.AssistantID,
		FirstMessage: FirstMessage(rec.Name, rec.CartItems, total),
		Variables: map[string]string{
			VarCustomerName: rec.Name,
			VarItems:        rec.CartItems,
			VarTotal:        total,
			VarCartReason:   rec.Reason,
			VarLanguage:     rec.Language,
			VarCallDate:     t.Format("2006-01-02"),
			VarCallTime:     t.Format("15:04:05"),
		},
	}
}

// FirstMessage is the personalised greeting used when no script is generated.
func FirstMessage(name, items, total string) string {
	return fmt.Sprintf(
		"Hi %s! I'm calling from the store. I noticed you left %s in your cart for %s. "+
			"I wanted to reach out and see if you need any help completing your purchase. "+
			"Is there anything I can assist you with today?",
		name, items, total)
}

// FormatTotal renders numeric totals with two decimals so repeated runs never
// drift on locale or float formatting. Non-numeric values pass through trimmed.
func FormatTotal(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatFloat(f, 'f', 2, 64)
	}
	if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
		return strconv.FormatFloat(f, 'f', 2, 64)
	}
	return s
}

// RecordKey is a stable identity for a cart row, independent of its position
// in the file.
func RecordKey(rec contacts.ContactRecord) string {
	h := sha256.New()
	for _, part := range []string{rec.Name, rec.Phone, rec.CartItems, FormatTotal(rec.CartTotal)} {
		h.Write([]byte(part))
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
