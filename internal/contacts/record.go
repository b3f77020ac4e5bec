package contacts

import "strings"

// ContactRecord is one abandoned-cart row. It is never mutated after the
// Reader hands it out.
type ContactRecord struct {
	// Row is the 1-based data row number (header excluded).
	Row int `json:"row"`

	Name      string `json:"name"`
	Phone     string `json:"phone"`
	CartItems string `json:"cart_items"`
	CartTotal string `json:"cart_total"`
	Reason    string `json:"reason"`
	Language  string `json:"language"`

	AbandonedDate string `json:"abandoned_date,omitempty"`
	Location      string `json:"location,omitempty"`
	Timezone      string `json:"timezone,omitempty"`

	// Invalid holds the skip reason; empty means the record can be dialed.
	Invalid string `json:"invalid,omitempty"`
}

// PhonePrefix is the international dialing marker every phone must carry.
const PhonePrefix = "+"

// DefaultReason fills an empty reason cell.
const DefaultReason = "Unknown"

const (
	SkipPhoneMissing = "phone missing"
	SkipPhonePrefix  = "phone must start with +"
	SkipNameMissing  = "name missing"
)

// Valid reports whether the record may be handed to a dispatcher.
func (r ContactRecord) Valid() bool { return r.Invalid == "" }

// Validate returns the skip reason for a record, or "" when it is dialable.
// Phone checks run first so the reason names the field that blocks dialing.
func Validate(name, phone string) string {
	switch {
	case phone == "":
		return SkipPhoneMissing
	case !strings.HasPrefix(phone, PhonePrefix):
		return SkipPhonePrefix
	case strings.TrimSpace(name) == "":
		return SkipNameMissing
	default:
		return ""
	}
}

// Normalize trims fields, fills defaults and tags the record. It is used by
// the CSV reader and by callers that build records from JSON.
func Normalize(r ContactRecord, defaultLanguage string) ContactRecord {
	r.Name = strings.TrimSpace(r.Name)
	r.Phone = strings.TrimSpace(r.Phone)
	r.CartItems = normalizeItems(r.CartItems)
	r.CartTotal = strings.TrimSpace(r.CartTotal)
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		r.Reason = DefaultReason
	}
	r.Language = strings.TrimSpace(r.Language)
	if r.Language == "" {
		r.Language = defaultLanguage
	}
	r.AbandonedDate = strings.TrimSpace(r.AbandonedDate)
	r.Location = strings.TrimSpace(r.Location)
	r.Timezone = strings.TrimSpace(r.Timezone)
	r.Invalid = Validate(r.Name, r.Phone)
	return r
}
