package models

// ScanAttempt records one scrape attempt made while filling a page
type ScanAttempt struct {
	ResultsWanted int `json:"results_wanted"`
	ScrapedJobs   int `json:"scraped_jobs"`
	AcceptedJobs  int `json:"accepted_jobs"`
}

// SessionInfo describes the search session backing a response
type SessionInfo struct {
	SessionID          string `json:"session_id"`
	ReusedSession      bool   `json:"reused_session"`
	CacheHit           bool   `json:"cache_hit"`
	CreatedAt          string `json:"created_at_utc"`
	UpdatedAt          string `json:"updated_at_utc"`
	ExpiresAt          string `json:"expires_at_utc"`
	TTLSeconds         int    `json:"ttl_seconds"`
	MaxSessionsPerUser int    `json:"max_sessions_per_user"`
}

// SearchStats summarizes one search execution
type SearchStats struct {
	ScrapedJobs             int           `json:"scraped_jobs"`
	AcceptedBeforeIgnore    int           `json:"accepted_jobs_before_ignore_filter"`
	IgnoredFilteredCount    int           `json:"ignored_filtered_count"`
	AcceptedJobs            int           `json:"accepted_jobs"`
	ReturnedJobs            int           `json:"returned_jobs"`
	CacheHit                bool          `json:"cache_hit"`
	ScanAttempts            int           `json:"scan_attempts"`
	ScanAttemptsDetail      []ScanAttempt `json:"scan_attempts_detail"`
	RateLimitRetryAttempts  int           `json:"rate_limit_retry_attempts"`
	RateLimitBackoffSeconds float64       `json:"rate_limit_backoff_seconds"`
	ConfidenceModelVersion  string        `json:"confidence_model_version"`
}

// Pagination describes the returned page relative to the accepted set
type Pagination struct {
	Offset                    int  `json:"offset"`
	PageSize                  int  `json:"page_size"`
	ReturnedJobs              int  `json:"returned_jobs"`
	NextOffset                *int `json:"next_offset"`
	HasNextPage               bool `json:"has_next_page"`
	AcceptedJobsTotal         int  `json:"accepted_jobs_total"`
	AcceptedJobsNeededForPage int  `json:"accepted_jobs_needed_for_page"`
	RequestedScanTarget       int  `json:"requested_scan_target"`
	MaxScanResults            int  `json:"max_scan_results"`
	ScanExhausted             bool `json:"scan_exhausted"`
	PossiblyResumable         bool `json:"possibly_resumable,omitempty"`
}

// RecoverySuggestion proposes a follow-up call after a low-yield search
type RecoverySuggestion struct {
	ID                       string         `json:"id"`
	Description              string         `json:"description"`
	Options                  []string       `json:"options,omitempty"`
	ProposedCallArgs         map[string]any `json:"proposed_call_args,omitempty"`
	RequiresUserConfirmation bool           `json:"requires_user_confirmation"`
}

// NextCallHint tells the agent how to fetch the next page
type NextCallHint struct {
	Tool        string `json:"tool"`
	SessionID   string `json:"session_id"`
	Offset      int    `json:"offset"`
	MaxReturned int    `json:"max_returned"`
}

// AgentGuidance carries fixed prompts for the tool-calling agent
type AgentGuidance struct {
	StrictVisaMatchApplied bool          `json:"strict_visa_match_applied"`
	StrictnessMode         string        `json:"strictness_mode"`
	UseSessionIDForNext    string        `json:"use_search_session_id_for_next_page"`
	SaveJobsPrompt         string        `json:"ask_user_to_save_jobs_prompt"`
	SaveForLaterTool       string        `json:"save_for_later_tool"`
	IgnoreJobsPrompt       string        `json:"ask_user_to_ignore_jobs_prompt"`
	IgnoreJobTool          string        `json:"ignore_job_tool"`
	RateLimitGuidance      string        `json:"rate_limit_guidance"`
	FallbackGuidance       string        `json:"fallback_guidance"`
	NextCallHint           *NextCallHint `json:"next_call_hint"`
}

// DatasetFreshness reports the age of the sponsor dataset backing a search
type DatasetFreshness struct {
	DatasetPath    string `json:"dataset_path"`
	Rows           int    `json:"rows"`
	ModifiedAt     string `json:"modified_at_utc,omitempty"`
	AgeDays        int    `json:"age_days"`
	Stale          bool   `json:"stale"`
	StaleAfterDays int    `json:"stale_after_days"`
}

// SearchResponse is the full payload of one synchronous search call
type SearchResponse struct {
	Query               SearchQuery          `json:"query"`
	SearchSession       SessionInfo          `json:"search_session"`
	Stats               SearchStats          `json:"stats"`
	AgentGuidance       AgentGuidance        `json:"agent_guidance"`
	DatasetFreshness    DatasetFreshness     `json:"dataset_freshness"`
	Pagination          Pagination           `json:"pagination"`
	RecoverySuggestions []RecoverySuggestion `json:"recovery_suggestions"`
	Jobs                []AcceptedResult     `json:"jobs"`
}

// ErrorResponse is the JSON body returned for failed API calls
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
