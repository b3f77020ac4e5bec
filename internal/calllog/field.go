package calllog

// FieldState says whether an analytics value is known.
type FieldState uint8

const (
	// FieldResolved carries a real value, possibly empty.
	FieldResolved FieldState = iota
	// FieldPending means a call was placed and the value awaits an event feed.
	FieldPending
	// FieldUnknown means this pipeline never captures the value.
	FieldUnknown
	// FieldNotApplicable means no call happened, so there is nothing to measure.
	FieldNotApplicable
)

// Sentinels written for unresolved fields. They are bracketed so they cannot
// be mistaken for a resolved value such as "Unknown".
const (
	SentinelPending       = "<pending>"
	SentinelUnknown       = "<unknown>"
	SentinelNotApplicable = "<n/a>"
)

// Field is one analytics cell.
type Field struct {
	State FieldState
	Value string
}

func Resolved(v string) Field { return Field{State: FieldResolved, Value: v} }
func Pending() Field          { return Field{State: FieldPending} }
func Unknown() Field          { return Field{State: FieldUnknown} }
func NotApplicable() Field    { return Field{State: FieldNotApplicable} }

// ResolvedIf returns Resolved(v) when v is non-empty and Unknown otherwise.
func ResolvedIf(v string) Field {
	if v == "" {
		return Unknown()
	}
	return Resolved(v)
}

func (f Field) String() string {
	switch f.State {
	case FieldPending:
		return SentinelPending
	case FieldUnknown:
		return SentinelUnknown
	case FieldNotApplicable:
		return SentinelNotApplicable
	default:
		return f.Value
	}
}

func (f Field) IsResolved() bool { return f.State == FieldResolved }

// ParseField is the inverse of String.
func ParseField(s string) Field {
	switch s {
	case SentinelPending:
		return Pending()
	case SentinelUnknown:
		return Unknown()
	case SentinelNotApplicable:
		return NotApplicable()
	default:
		return Resolved(s)
	}
}
