package jobs

import (
	"strings"

	"visascout/pkg/utils"
)

// ResultLookup maps a search result id back to its posting metadata.
// The service layer adapts the session store into one.
type ResultLookup func(userID, resultID string) (*ResolvedResult, error)

// ResolvedResult is the posting metadata behind one result id
type ResolvedResult struct {
	ResultID  string
	SessionID string
	JobURL    string
	Title     string
	Company   string
	Location  string
	Site      string
}

// Target identifies the job a lifecycle call refers to. Callers may pass a
// database id, a raw URL, or a search result id.
type Target struct {
	JobID    int64
	ResultID string
	JobURL   string
	Title    string
	Company  string
	Location string
	Site     string
}

// ResolveTarget turns a caller-supplied reference into a concrete job row.
// An explicit job_id must already exist for this user. A URL or result id
// upserts the job first, so lifecycle calls work on jobs the database has
// never seen.
func (s *Store) ResolveTarget(userID string, target Target, lookup ResultLookup) (int64, error) {
	if target.JobID > 0 {
		if _, err := s.GetJob(userID, target.JobID); err != nil {
			return 0, err
		}
		return target.JobID, nil
	}

	jobURL := strings.TrimSpace(target.JobURL)
	resultID := strings.TrimSpace(target.ResultID)
	title, company, location, site := target.Title, target.Company, target.Location, target.Site

	if jobURL == "" && resultID != "" {
		if lookup == nil {
			return 0, utils.NewBadRequestError("result_id references require an active search session store")
		}
		resolved, err := lookup(userID, resultID)
		if err != nil {
			return 0, err
		}
		jobURL = resolved.JobURL
		if title == "" {
			title = resolved.Title
		}
		if company == "" {
			company = resolved.Company
		}
		if location == "" {
			location = resolved.Location
		}
		if site == "" {
			site = resolved.Site
		}
	}
	if jobURL == "" {
		return 0, utils.NewValidationError("provide job_id, job_url, or result_id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertJobLocked(userID, jobURL, title, company, location, site, resultID)
}
