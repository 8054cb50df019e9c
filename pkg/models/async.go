package models

// RunStatus represents the status of a background search run
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusRunning    RunStatus = "running"
	RunStatusCancelling RunStatus = "cancelling"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelled  RunStatus = "cancelled"
)

// IsTerminal reports whether the run can no longer change state
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// RunEvent is one append-only progress event on a background run.
// EventID values are strictly monotonic per run and double as the cursor.
type RunEvent struct {
	EventID         int            `json:"event_id"`
	At              string         `json:"at_utc"`
	Phase           string         `json:"phase"`
	Detail          string         `json:"detail"`
	ProgressPercent *float64       `json:"progress_percent,omitempty"`
	Payload         map[string]any `json:"payload,omitempty"`
}

// StartRunResponse acknowledges an accepted background run
type StartRunResponse struct {
	RunID      string    `json:"run_id"`
	Status     RunStatus `json:"status"`
	UserID     string    `json:"user_id"`
	CreatedAt  string    `json:"created_at_utc"`
	ExpiresAt  string    `json:"expires_at_utc"`
	NextCursor int       `json:"next_cursor"`
}

// RunStatusResponse is the poll payload for a background run
type RunStatusResponse struct {
	RunID              string      `json:"run_id"`
	UserID             string      `json:"user_id"`
	Status             RunStatus   `json:"status"`
	IsTerminal         bool        `json:"is_terminal"`
	CancelRequested    bool        `json:"cancel_requested"`
	AttemptCount       int         `json:"attempt_count"`
	CreatedAt          string      `json:"created_at_utc"`
	UpdatedAt          string      `json:"updated_at_utc"`
	CompletedAt        string      `json:"completed_at_utc,omitempty"`
	ExpiresAt          string      `json:"expires_at_utc"`
	SearchSessionID    string      `json:"search_session_id"`
	CurrentScanTarget  int         `json:"current_scan_target"`
	Error              string      `json:"error"`
	Events             []RunEvent  `json:"events"`
	Cursor             int         `json:"cursor"`
	NextCursor         int         `json:"next_cursor"`
	LatestPagination   *Pagination `json:"latest_pagination,omitempty"`
	LatestReturnedJobs int         `json:"latest_returned_jobs"`
	CanFetchResults    bool        `json:"can_fetch_results"`
}

// CancelRunResponse acknowledges a cancellation request
type CancelRunResponse struct {
	RunID           string    `json:"run_id"`
	UserID          string    `json:"user_id"`
	Status          RunStatus `json:"status"`
	CancelRequested bool      `json:"cancel_requested"`
}

// RunResultsResponse serves a page of results from a run's snapshot
type RunResultsResponse struct {
	RunID               string               `json:"run_id"`
	Status              RunStatus            `json:"status"`
	AttemptCount        int                  `json:"attempt_count"`
	Stats               SearchStats          `json:"stats"`
	Pagination          Pagination           `json:"pagination"`
	RecoverySuggestions []RecoverySuggestion `json:"recovery_suggestions"`
	Jobs                []AcceptedResult     `json:"jobs"`
}
