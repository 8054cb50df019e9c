package models

// TrackedJob is one job a user acted on, unique per (user, URL)
type TrackedJob struct {
	ID        int64  `json:"id"`
	UserID    string `json:"user_id"`
	ResultID  string `json:"result_id"`
	JobURL    string `json:"job_url"`
	Title     string `json:"title"`
	Company   string `json:"company"`
	Location  string `json:"location"`
	Site      string `json:"site"`
	CreatedAt string `json:"created_at_utc"`
	UpdatedAt string `json:"updated_at_utc"`
}

// Application is the one-to-one lifecycle record for a tracked job.
// AppliedAt is set once on first entry into the applied stage; Note is
// append-only, newline-joined.
type Application struct {
	ID              int64  `json:"id"`
	UserID          string `json:"user_id"`
	JobID           int64  `json:"job_id"`
	Stage           string `json:"stage"`
	AppliedAt       string `json:"applied_at_utc,omitempty"`
	SourceSessionID string `json:"source_session_id"`
	Note            string `json:"note"`
	UpdatedAt       string `json:"updated_at_utc"`
}

// JobEvent is one audit-trail entry for a stage change
type JobEvent struct {
	ID        int64  `json:"id"`
	UserID    string `json:"user_id"`
	JobID     int64  `json:"job_id"`
	FromStage string `json:"from_stage,omitempty"`
	ToStage   string `json:"to_stage,omitempty"`
	Reason    string `json:"reason"`
	Note      string `json:"note"`
	CreatedAt string `json:"created_at_utc"`
}

// StageChange is the combined result of one set-stage call
type StageChange struct {
	Job         TrackedJob  `json:"job"`
	Application Application `json:"application"`
	Event       JobEvent    `json:"event"`
}
