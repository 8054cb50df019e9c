package jobs

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"visascout/pkg/models"
	"visascout/pkg/utils"
)

// Lifecycle stages a tracked job moves through
var ValidStages = []string{"applied", "ignored", "interview", "new", "offer", "rejected", "saved"}

const migrationKey = "json_saved_ignored_v1"

// ValidateStage canonicalizes a stage name or fails the call
func ValidateStage(stage string) (string, error) {
	clean := strings.ToLower(strings.TrimSpace(stage))
	for _, valid := range ValidStages {
		if clean == valid {
			return clean, nil
		}
	}
	return "", utils.NewValidationError(fmt.Sprintf("stage must be one of %v", ValidStages))
}

const schema = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  key TEXT PRIMARY KEY,
  applied_at_utc TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id TEXT NOT NULL,
  result_id TEXT NOT NULL DEFAULT '',
  job_url TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  company TEXT NOT NULL DEFAULT '',
  location TEXT NOT NULL DEFAULT '',
  site TEXT NOT NULL DEFAULT '',
  created_at_utc TEXT NOT NULL,
  updated_at_utc TEXT NOT NULL,
  UNIQUE(user_id, job_url)
);

CREATE TABLE IF NOT EXISTS job_applications (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id TEXT NOT NULL,
  job_id INTEGER NOT NULL,
  stage TEXT NOT NULL,
  applied_at_utc TEXT,
  source_session_id TEXT NOT NULL DEFAULT '',
  note TEXT NOT NULL DEFAULT '',
  updated_at_utc TEXT NOT NULL,
  UNIQUE(user_id, job_id),
  FOREIGN KEY(job_id) REFERENCES jobs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS job_events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id TEXT NOT NULL,
  job_id INTEGER NOT NULL,
  from_stage TEXT,
  to_stage TEXT,
  reason TEXT NOT NULL DEFAULT '',
  note TEXT NOT NULL DEFAULT '',
  created_at_utc TEXT NOT NULL,
  FOREIGN KEY(job_id) REFERENCES jobs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_jobs_user_id ON jobs(user_id);
CREATE INDEX IF NOT EXISTS idx_jobs_user_url ON jobs(user_id, job_url);
CREATE INDEX IF NOT EXISTS idx_apps_user_stage ON job_applications(user_id, stage, updated_at_utc);
CREATE INDEX IF NOT EXISTS idx_events_user_created ON job_events(user_id, created_at_utc);
`

// Store is the job lifecycle database. sqlite allows one writer, so all
// mutations serialize behind the mutex.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates or opens the lifecycle database and applies the schema
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply job schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertJob inserts or merges one tracked job by (user, URL). Non-empty
// incoming fields replace stored ones; empty fields keep them.
func (s *Store) UpsertJob(userID, jobURL, title, company, location, site, resultID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertJobLocked(userID, jobURL, title, company, location, site, resultID)
}

func (s *Store) upsertJobLocked(userID, jobURL, title, company, location, site, resultID string) (int64, error) {
	uid := strings.TrimSpace(userID)
	cleanURL := strings.TrimSpace(jobURL)
	if uid == "" {
		return 0, utils.NewValidationError("user_id is required")
	}
	if cleanURL == "" {
		return 0, utils.NewValidationError("job_url is required")
	}

	now := utils.ToISO(utils.UTCNow())
	row := s.db.QueryRow(
		`SELECT id, title, company, location, site, result_id
		 FROM jobs WHERE user_id = ? AND lower(job_url) = lower(?) LIMIT 1`,
		uid, cleanURL,
	)
	var existingID int64
	var curTitle, curCompany, curLocation, curSite, curResultID string
	err := row.Scan(&existingID, &curTitle, &curCompany, &curLocation, &curSite, &curResultID)
	switch {
	case err == sql.ErrNoRows:
		result, err := s.db.Exec(
			`INSERT INTO jobs (user_id, result_id, job_url, title, company, location, site, created_at_utc, updated_at_utc)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uid, strings.TrimSpace(resultID), cleanURL,
			strings.TrimSpace(title), strings.TrimSpace(company),
			strings.TrimSpace(location), strings.TrimSpace(site), now, now,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert job: %w", err)
		}
		return result.LastInsertId()
	case err != nil:
		return 0, fmt.Errorf("failed to look up job: %w", err)
	}

	merge := func(incoming, current string) string {
		if clean := strings.TrimSpace(incoming); clean != "" {
			return clean
		}
		return current
	}
	_, err = s.db.Exec(
		`UPDATE jobs SET result_id = ?, title = ?, company = ?, location = ?, site = ?, updated_at_utc = ? WHERE id = ?`,
		merge(resultID, curResultID), merge(title, curTitle), merge(company, curCompany),
		merge(location, curLocation), merge(site, curSite), now, existingID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update job: %w", err)
	}
	return existingID, nil
}

// SetStage moves a tracked job to a stage and records one audit event.
// Every call produces an event, including no-op transitions. applied_at is
// set on first entry into applied and kept afterwards unless an explicit
// timestamp overrides it.
func (s *Store) SetStage(userID string, jobID int64, stage, note, sourceSessionID, appliedAt, reason string) (*models.StageChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setStageLocked(userID, jobID, stage, note, sourceSessionID, appliedAt, reason)
}

func (s *Store) setStageLocked(userID string, jobID int64, stage, note, sourceSessionID, appliedAt, reason string) (*models.StageChange, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, utils.NewValidationError("user_id is required")
	}
	cleanStage, err := ValidateStage(stage)
	if err != nil {
		return nil, err
	}
	if jobID < 1 {
		return nil, utils.NewValidationError("job_id must be a positive integer")
	}

	var priorStage, priorNote, priorApplied, priorSource sql.NullString
	row := s.db.QueryRow(
		`SELECT stage, note, applied_at_utc, source_session_id
		 FROM job_applications WHERE user_id = ? AND job_id = ? LIMIT 1`,
		uid, jobID,
	)
	hadApplication := true
	if err := row.Scan(&priorStage, &priorNote, &priorApplied, &priorSource); err == sql.ErrNoRows {
		hadApplication = false
	} else if err != nil {
		return nil, fmt.Errorf("failed to look up application: %w", err)
	}

	newNote := strings.TrimSpace(note)
	mergedNote := priorNote.String
	if newNote != "" {
		if mergedNote != "" {
			mergedNote = mergedNote + "\n" + newNote
		} else {
			mergedNote = newNote
		}
	}

	var finalApplied any
	if priorApplied.String != "" {
		finalApplied = priorApplied.String
	}
	if cleanStage == "applied" {
		explicit := strings.TrimSpace(appliedAt)
		switch {
		case explicit != "":
			finalApplied = explicit
		case priorApplied.String != "":
			finalApplied = priorApplied.String
		default:
			finalApplied = utils.ToISO(utils.UTCNow())
		}
	}

	finalSource := strings.TrimSpace(sourceSessionID)
	if finalSource == "" {
		finalSource = priorSource.String
	}
	now := utils.ToISO(utils.UTCNow())

	_, err = s.db.Exec(
		`INSERT INTO job_applications (user_id, job_id, stage, applied_at_utc, source_session_id, note, updated_at_utc)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, job_id) DO UPDATE SET
		   stage = excluded.stage,
		   applied_at_utc = COALESCE(excluded.applied_at_utc, job_applications.applied_at_utc),
		   source_session_id = CASE
		     WHEN excluded.source_session_id <> '' THEN excluded.source_session_id
		     ELSE job_applications.source_session_id
		   END,
		   note = excluded.note,
		   updated_at_utc = excluded.updated_at_utc`,
		uid, jobID, cleanStage, finalApplied, finalSource, mergedNote, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert application: %w", err)
	}

	cleanReason := strings.TrimSpace(reason)
	if cleanReason == "" {
		cleanReason = "stage_update"
	}
	var fromStage any
	if hadApplication {
		fromStage = priorStage.String
	}
	result, err := s.db.Exec(
		`INSERT INTO job_events (user_id, job_id, from_stage, to_stage, reason, note, created_at_utc)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uid, jobID, fromStage, cleanStage, cleanReason, newNote, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record job event: %w", err)
	}
	eventID, _ := result.LastInsertId()

	job, err := s.getJobLocked(uid, jobID)
	if err != nil {
		return nil, err
	}
	application, err := s.getApplicationLocked(uid, jobID)
	if err != nil {
		return nil, err
	}
	event, err := s.getEventLocked(eventID)
	if err != nil {
		return nil, err
	}
	return &models.StageChange{Job: *job, Application: *application, Event: *event}, nil
}

// AppendNote adds one note line to a job's application, creating the
// application in the new stage first if none exists.
func (s *Store) AppendNote(userID string, jobID int64, note string) (*models.StageChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clean := strings.TrimSpace(note)
	if clean == "" {
		return nil, utils.NewValidationError("note is required")
	}

	var stage, existingNote sql.NullString
	row := s.db.QueryRow(
		`SELECT stage, note FROM job_applications WHERE user_id = ? AND job_id = ? LIMIT 1`,
		userID, jobID,
	)
	if err := row.Scan(&stage, &existingNote); err == sql.ErrNoRows {
		if _, err := s.setStageLocked(userID, jobID, "new", "", "", "", "initialize_application"); err != nil {
			return nil, err
		}
		stage.String = "new"
		existingNote.String = ""
	} else if err != nil {
		return nil, fmt.Errorf("failed to look up application: %w", err)
	}

	merged := clean
	if existingNote.String != "" {
		merged = existingNote.String + "\n" + clean
	}
	now := utils.ToISO(utils.UTCNow())
	if _, err := s.db.Exec(
		`UPDATE job_applications SET note = ?, updated_at_utc = ? WHERE user_id = ? AND job_id = ?`,
		merged, now, userID, jobID,
	); err != nil {
		return nil, fmt.Errorf("failed to append note: %w", err)
	}
	result, err := s.db.Exec(
		`INSERT INTO job_events (user_id, job_id, from_stage, to_stage, reason, note, created_at_utc)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, jobID, stage.String, stage.String, "note_added", clean, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record note event: %w", err)
	}
	eventID, _ := result.LastInsertId()

	job, err := s.getJobLocked(userID, jobID)
	if err != nil {
		return nil, err
	}
	application, err := s.getApplicationLocked(userID, jobID)
	if err != nil {
		return nil, err
	}
	event, err := s.getEventLocked(eventID)
	if err != nil {
		return nil, err
	}
	return &models.StageChange{Job: *job, Application: *application, Event: *event}, nil
}

// GetJob returns one tracked job by id, scoped to its owner
func (s *Store) GetJob(userID string, jobID int64) (*models.TrackedJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getJobLocked(userID, jobID)
}

// GetJobByURL looks a tracked job up by URL, case-insensitively
func (s *Store) GetJobByURL(userID, jobURL string) (*models.TrackedJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(
		`SELECT id, user_id, result_id, job_url, title, company, location, site, created_at_utc, updated_at_utc
		 FROM jobs WHERE user_id = ? AND lower(job_url) = lower(?) LIMIT 1`,
		userID, strings.TrimSpace(jobURL),
	)
	return scanJob(row)
}

// ListByStage returns tracked jobs in one stage, most recently updated first
func (s *Store) ListByStage(userID, stage string, limit, offset int) ([]models.TrackedJob, []models.Application, error) {
	cleanStage, err := ValidateStage(stage)
	if err != nil {
		return nil, nil, err
	}
	if limit < 1 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT j.id, j.user_id, j.result_id, j.job_url, j.title, j.company, j.location, j.site, j.created_at_utc, j.updated_at_utc,
		        ja.id, ja.stage, COALESCE(ja.applied_at_utc, ''), ja.source_session_id, ja.note, ja.updated_at_utc
		 FROM job_applications ja
		 JOIN jobs j ON j.id = ja.job_id AND j.user_id = ja.user_id
		 WHERE ja.user_id = ? AND ja.stage = ?
		 ORDER BY ja.updated_at_utc DESC, j.id DESC
		 LIMIT ? OFFSET ?`,
		userID, cleanStage, limit, offset,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list jobs by stage: %w", err)
	}
	defer rows.Close()

	var jobs []models.TrackedJob
	var applications []models.Application
	for rows.Next() {
		var job models.TrackedJob
		var app models.Application
		if err := rows.Scan(
			&job.ID, &job.UserID, &job.ResultID, &job.JobURL, &job.Title, &job.Company,
			&job.Location, &job.Site, &job.CreatedAt, &job.UpdatedAt,
			&app.ID, &app.Stage, &app.AppliedAt, &app.SourceSessionID, &app.Note, &app.UpdatedAt,
		); err != nil {
			return nil, nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		app.UserID = job.UserID
		app.JobID = job.ID
		jobs = append(jobs, job)
		applications = append(applications, app)
	}
	return jobs, applications, rows.Err()
}

// RecentEvents returns a user's latest audit events, newest first
func (s *Store) RecentEvents(userID string, limit int) ([]models.JobEvent, error) {
	if limit < 1 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, user_id, job_id, COALESCE(from_stage, ''), COALESCE(to_stage, ''), reason, note, created_at_utc
		 FROM job_events WHERE user_id = ?
		 ORDER BY created_at_utc DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list job events: %w", err)
	}
	defer rows.Close()

	var events []models.JobEvent
	for rows.Next() {
		var event models.JobEvent
		if err := rows.Scan(
			&event.ID, &event.UserID, &event.JobID, &event.FromStage, &event.ToStage,
			&event.Reason, &event.Note, &event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// StageSummary counts a user's applications per stage, with zeroes for
// stages they have not used.
func (s *Store) StageSummary(userID string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[string]int{}
	for _, stage := range ValidStages {
		counts[stage] = 0
	}
	rows, err := s.db.Query(
		`SELECT stage, COUNT(*) FROM job_applications WHERE user_id = ? GROUP BY stage`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize stages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var stage string
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stage count: %w", err)
		}
		if _, ok := counts[stage]; ok {
			counts[stage] = count
		}
	}
	return counts, rows.Err()
}

// ExportUser returns all of a user's tracked jobs with their applications
func (s *Store) ExportUser(userID string) ([]models.TrackedJob, []models.Application, []models.JobEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobRows, err := s.db.Query(
		`SELECT id, user_id, result_id, job_url, title, company, location, site, created_at_utc, updated_at_utc
		 FROM jobs WHERE user_id = ? ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to export jobs: %w", err)
	}
	defer jobRows.Close()
	var jobs []models.TrackedJob
	for jobRows.Next() {
		var job models.TrackedJob
		if err := jobRows.Scan(
			&job.ID, &job.UserID, &job.ResultID, &job.JobURL, &job.Title, &job.Company,
			&job.Location, &job.Site, &job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := jobRows.Err(); err != nil {
		return nil, nil, nil, err
	}

	appRows, err := s.db.Query(
		`SELECT id, user_id, job_id, stage, COALESCE(applied_at_utc, ''), source_session_id, note, updated_at_utc
		 FROM job_applications WHERE user_id = ? ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to export applications: %w", err)
	}
	defer appRows.Close()
	var applications []models.Application
	for appRows.Next() {
		var app models.Application
		if err := appRows.Scan(
			&app.ID, &app.UserID, &app.JobID, &app.Stage, &app.AppliedAt,
			&app.SourceSessionID, &app.Note, &app.UpdatedAt,
		); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to scan application: %w", err)
		}
		applications = append(applications, app)
	}
	if err := appRows.Err(); err != nil {
		return nil, nil, nil, err
	}

	eventRows, err := s.db.Query(
		`SELECT id, user_id, job_id, COALESCE(from_stage, ''), COALESCE(to_stage, ''), reason, note, created_at_utc
		 FROM job_events WHERE user_id = ? ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to export events: %w", err)
	}
	defer eventRows.Close()
	var events []models.JobEvent
	for eventRows.Next() {
		var event models.JobEvent
		if err := eventRows.Scan(
			&event.ID, &event.UserID, &event.JobID, &event.FromStage, &event.ToStage,
			&event.Reason, &event.Note, &event.CreatedAt,
		); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	return jobs, applications, events, eventRows.Err()
}

// DeleteUser removes a user's tracked jobs; applications and events
// cascade through the foreign keys.
func (s *Store) DeleteUser(userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM jobs WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user jobs: %w", err)
	}
	return result.RowsAffected()
}

func (s *Store) getJobLocked(userID string, jobID int64) (*models.TrackedJob, error) {
	row := s.db.QueryRow(
		`SELECT id, user_id, result_id, job_url, title, company, location, site, created_at_utc, updated_at_utc
		 FROM jobs WHERE user_id = ? AND id = ?`,
		userID, jobID,
	)
	return scanJob(row)
}

func scanJob(row *sql.Row) (*models.TrackedJob, error) {
	var job models.TrackedJob
	err := row.Scan(
		&job.ID, &job.UserID, &job.ResultID, &job.JobURL, &job.Title, &job.Company,
		&job.Location, &job.Site, &job.CreatedAt, &job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, utils.NewReferenceError("job record not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return &job, nil
}

func (s *Store) getApplicationLocked(userID string, jobID int64) (*models.Application, error) {
	row := s.db.QueryRow(
		`SELECT id, user_id, job_id, stage, COALESCE(applied_at_utc, ''), source_session_id, note, updated_at_utc
		 FROM job_applications WHERE user_id = ? AND job_id = ? LIMIT 1`,
		userID, jobID,
	)
	var app models.Application
	err := row.Scan(
		&app.ID, &app.UserID, &app.JobID, &app.Stage, &app.AppliedAt,
		&app.SourceSessionID, &app.Note, &app.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, utils.NewReferenceError("application record not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}
	return &app, nil
}

func (s *Store) getEventLocked(eventID int64) (*models.JobEvent, error) {
	row := s.db.QueryRow(
		`SELECT id, user_id, job_id, COALESCE(from_stage, ''), COALESCE(to_stage, ''), reason, note, created_at_utc
		 FROM job_events WHERE id = ?`,
		eventID,
	)
	var event models.JobEvent
	err := row.Scan(
		&event.ID, &event.UserID, &event.JobID, &event.FromStage, &event.ToStage,
		&event.Reason, &event.Note, &event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	return &event, nil
}
