package models

// Strictness modes for visa matching
const (
	StrictnessStrict   = "strict"
	StrictnessBalanced = "balanced"
)

// SearchQuery carries everything one search call needs. Only a subset of the
// fields identifies "the same search" for session reuse; paging and scan
// budget knobs never do.
type SearchQuery struct {
	UserID                   string   `json:"user_id" validate:"required"`
	Location                 string   `json:"location" validate:"required"`
	JobTitle                 string   `json:"job_title" validate:"required"`
	HoursOld                 int      `json:"hours_old"`
	Country                  string   `json:"country"`
	DatasetPath              string   `json:"dataset_path"`
	Sites                    []string `json:"sites"`
	ResultsWanted            int      `json:"results_wanted"`
	MaxReturned              int      `json:"max_returned"`
	Offset                   int      `json:"offset" validate:"gte=0"`
	RequireDescriptionSignal bool     `json:"require_description_signal"`
	StrictnessMode           string   `json:"strictness_mode"`
	PreferredVisaTypes       []string `json:"preferred_visa_types"`
	SessionID                string   `json:"session_id,omitempty"`
	RefreshSession           bool     `json:"refresh_session"`
	ScanMultiplier           int      `json:"scan_multiplier"`
	MaxScanResults           int      `json:"max_scan_results"`
}

// SetStageRequest mutates one tracked job's lifecycle stage
type SetStageRequest struct {
	UserID          string `json:"user_id" validate:"required"`
	JobID           int64  `json:"job_id,omitempty"`
	ResultID        string `json:"result_id,omitempty"`
	JobURL          string `json:"job_url,omitempty"`
	SessionID       string `json:"session_id,omitempty"`
	Stage           string `json:"stage" validate:"required"`
	Note            string `json:"note,omitempty"`
	AppliedAt       string `json:"applied_at,omitempty"`
	SourceSessionID string `json:"source_session_id,omitempty"`
}

// JobReference addresses one tracked job by id, URL, or search result id
type JobReference struct {
	UserID    string `json:"user_id" validate:"required"`
	JobID     int64  `json:"job_id,omitempty"`
	ResultID  string `json:"result_id,omitempty"`
	JobURL    string `json:"job_url,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// RunResultsRequest fetches a page of results from a background run
type RunResultsRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	RunID       string `json:"run_id" validate:"required"`
	Offset      int    `json:"offset" validate:"gte=0"`
	MaxReturned int    `json:"max_returned"`
}
