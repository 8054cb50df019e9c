package jobs

import (
	"database/sql"
	"fmt"

	"visascout/internal/store"
	"visascout/pkg/utils"
)

// MigrationCounts reports what one legacy import moved
type MigrationCounts struct {
	SavedMigrated   int `json:"saved_migrated"`
	IgnoredMigrated int `json:"ignored_migrated"`
}

// MigrateLegacy imports the JSON saved and ignored lists into the lifecycle
// database. Runs at most once; a marker row in schema_migrations makes
// repeat calls no-ops. The JSON lists are left in place.
func (s *Store) MigrateLegacy(saved *store.SavedStore, ignored *store.IgnoredStore) (*MigrationCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var applied string
	row := s.db.QueryRow(`SELECT applied_at_utc FROM schema_migrations WHERE key = ?`, migrationKey)
	if err := row.Scan(&applied); err == nil {
		return &MigrationCounts{}, nil
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to check migration marker: %w", err)
	}

	savedUsers, err := saved.Users()
	if err != nil {
		return nil, err
	}
	ignoredUsers, err := ignored.Users()
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var userIDs []string
	for _, userID := range append(savedUsers, ignoredUsers...) {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		userIDs = append(userIDs, userID)
	}

	counts := &MigrationCounts{}
	for _, userID := range userIDs {
		savedJobs, err := saved.ExportUser(userID)
		if err != nil {
			return nil, err
		}
		for _, job := range savedJobs {
			jobID, err := s.upsertJobLocked(userID, job.JobURL, job.Title, job.Company, job.Location, job.Site, "")
			if err != nil {
				return nil, err
			}
			_, err = s.setStageLocked(userID, jobID, "saved", job.Note, job.SourceSessionID, "", "migration_saved_jobs")
			if err != nil {
				return nil, err
			}
			counts.SavedMigrated++
		}

		ignoredJobs, err := ignored.ExportUser(userID)
		if err != nil {
			return nil, err
		}
		for _, job := range ignoredJobs {
			jobID, err := s.upsertJobLocked(userID, job.JobURL, "", "", "", "", "")
			if err != nil {
				return nil, err
			}
			_, err = s.setStageLocked(userID, jobID, "ignored", job.Reason, job.Source, "", "migration_ignored_jobs")
			if err != nil {
				return nil, err
			}
			counts.IgnoredMigrated++
		}
	}

	if _, err := s.db.Exec(
		`INSERT INTO schema_migrations (key, applied_at_utc) VALUES (?, ?)`,
		migrationKey, utils.ToISO(utils.UTCNow()),
	); err != nil {
		return nil, fmt.Errorf("failed to record migration marker: %w", err)
	}
	return counts, nil
}
