package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// SummaryRequest selects the rows of one call log. A zero Range means the
// whole file.
type SummaryRequest struct {
	LogPath string    `json:"log_path"`
	Range   TimeRange `json:"range"`
}

type Summary struct {
	LogPath string `json:"log_path"`

	TotalRows     int `json:"total_rows"`
	Initiated     int `json:"initiated"`
	Failed        int `json:"failed"`
	Skipped       int `json:"skipped"`
	UniquePhones  int `json:"unique_phones"`
	UniqueRecords int `json:"unique_records"`
	Retried       int `json:"retried"`

	// InitiationRate is initiated / (initiated + failed); skips are excluded.
	InitiationRate float64 `json:"initiation_rate"`

	ByTimeOfDay map[string]int `json:"by_time_of_day"`
	ByDayOfWeek map[string]int `json:"by_day_of_week"`
	ByLanguage  map[string]int `json:"by_language"`
	ByReason    map[string]int `json:"by_reason"`
	TopErrors   []ErrorCount   `json:"top_errors,omitempty"`

	FirstAt string `json:"first_at,omitempty"`
	LastAt  string `json:"last_at,omitempty"`
}

type ErrorCount struct {
	Error string `json:"error"`
	Count int    `json:"count"`
}
