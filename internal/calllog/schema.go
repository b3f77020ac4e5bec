package calllog

import "fmt"

// Schema selects the column layout of a log file.
type Schema string

const (
	SchemaBasic    Schema = "basic"
	SchemaDetailed Schema = "detailed"
)

func ParseSchema(s string) (Schema, error) {
	switch Schema(s) {
	case SchemaBasic, SchemaDetailed:
		return Schema(s), nil
	case "":
		return SchemaBasic, nil
	default:
		return "", fmt.Errorf("calllog: unknown schema %q", s)
	}
}

// Columns returns the header for the schema.
func (s Schema) Columns() []string {
	if s == SchemaDetailed {
		return detailedColumns
	}
	return basicColumns
}

var basicColumns = []string{
	"timestamp", "name", "phone", "items", "total", "reason", "language",
	"status", "call_id", "error", "attempts", "time_of_day", "day_of_week", "record_key",
}

var detailedColumns = []string{
	// identity
	"timestamp", "call_date", "call_time", "customer_name", "customer_phone",
	// cart
	"cart_items", "cart_total", "cart_quantity", "cart_abandoned_date", "days_since_abandonment",
	// call status
	"call_id", "call_status", "call_initiated", "call_answered", "call_duration_seconds", "call_ended_reason",
	// customer response
	"customer_sentiment", "customer_interest_level", "customer_engagement_score",
	// objections
	"primary_objection", "secondary_objection", "objection_details",
	"price_concern", "quality_concern", "timing_concern", "technical_issue",
	"competitor_mention", "changed_mind", "not_interested", "just_browsing",
	// conversion
	"conversion_result", "purchase_completed", "purchase_amount",
	"discount_offered", "discount_accepted", "discount_amount",
	// assistant performance
	"ai_technique_used", "objection_handled_successfully", "rapport_established",
	"follow_up_scheduled", "follow_up_date",
	// behaviour
	"callback_requested", "voicemail_left", "hung_up_early", "call_back_attempts", "previous_contact_count",
	// context
	"customer_language", "customer_location", "customer_timezone", "time_of_day", "day_of_week",
	// notes
	"call_notes", "ai_learnings", "improvement_suggestions", "script_effectiveness_rating",
	// bookkeeping
	"cart_reason", "error", "record_key",
}

// outcomeAnalytics are only knowable from the conversation itself: pending
// after a placed call, n/a otherwise.
var outcomeAnalytics = []string{
	"call_answered", "call_duration_seconds", "call_ended_reason",
	"customer_sentiment", "customer_interest_level", "customer_engagement_score",
	"primary_objection", "secondary_objection", "objection_details",
	"price_concern", "quality_concern", "timing_concern", "technical_issue",
	"competitor_mention", "changed_mind", "not_interested", "just_browsing",
	"conversion_result", "purchase_completed", "purchase_amount",
	"discount_offered", "discount_accepted", "discount_amount",
	"ai_technique_used", "objection_handled_successfully", "rapport_established",
	"follow_up_scheduled", "follow_up_date",
	"callback_requested", "voicemail_left", "hung_up_early",
	"ai_learnings", "improvement_suggestions", "script_effectiveness_rating",
}
