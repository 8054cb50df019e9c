package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"visascout/pkg/utils"
)

// IgnoredJob is one suppressed URL in the legacy ignore list. Search
// filtering consults this list; the sqlite lifecycle store records the
// matching stage change.
type IgnoredJob struct {
	ID        int    `json:"id"`
	JobURL    string `json:"job_url"`
	Reason    string `json:"reason"`
	Source    string `json:"source"`
	IgnoredAt string `json:"ignored_at_utc"`
	UpdatedAt string `json:"updated_at_utc"`
}

type ignoredEntry struct {
	Jobs      []IgnoredJob `json:"jobs"`
	NextID    int          `json:"next_id"`
	UpdatedAt string       `json:"updated_at_utc,omitempty"`
}

type ignoredDocument struct {
	Users map[string]*ignoredEntry `json:"users"`
}

// IgnoredStore persists per-user ignored URL lists
type IgnoredStore struct {
	mu   sync.Mutex
	path string
}

// NewIgnoredStore creates an ignored-jobs store persisting at path
func NewIgnoredStore(path string) *IgnoredStore {
	return &IgnoredStore{path: path}
}

// Upsert suppresses a URL, updating reason and source if already listed.
// Returns the record and whether it already existed.
func (s *IgnoredStore) Upsert(userID string, job IgnoredJob) (*IgnoredJob, bool, error) {
	if strings.TrimSpace(job.JobURL) == "" {
		return nil, false, utils.NewValidationError("job_url is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return nil, false, err
	}
	entry := ensureIgnoredEntry(doc, userID)
	now := utils.ToISO(utils.UTCNow())

	target := strings.ToLower(strings.TrimSpace(job.JobURL))
	for i := range entry.Jobs {
		existing := &entry.Jobs[i]
		if strings.ToLower(strings.TrimSpace(existing.JobURL)) != target {
			continue
		}
		mergeNonEmpty(&existing.Reason, job.Reason)
		mergeNonEmpty(&existing.Source, job.Source)
		existing.UpdatedAt = now
		entry.UpdatedAt = now
		if err := s.saveLocked(doc); err != nil {
			return nil, false, err
		}
		clone := *existing
		return &clone, true, nil
	}

	job.ID = entry.NextID
	job.JobURL = strings.TrimSpace(job.JobURL)
	job.IgnoredAt = now
	job.UpdatedAt = now
	entry.Jobs = append(entry.Jobs, job)
	entry.NextID++
	entry.UpdatedAt = now
	if err := s.saveLocked(doc); err != nil {
		return nil, false, err
	}
	return &job, false, nil
}

// URLSet returns the user's suppressed URLs, lowercased, for fast lookup
// while filtering search results.
func (s *IgnoredStore) URLSet(userID string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	out := map[string]struct{}{}
	entry := doc.Users[userID]
	if entry == nil {
		return out, nil
	}
	for _, job := range entry.Jobs {
		if clean := strings.ToLower(strings.TrimSpace(job.JobURL)); clean != "" {
			out[clean] = struct{}{}
		}
	}
	return out, nil
}

// List returns a page of a user's ignored jobs, newest first
func (s *IgnoredStore) List(userID string, limit, offset int) ([]IgnoredJob, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return nil, 0, err
	}
	entry := doc.Users[userID]
	if entry == nil {
		return nil, 0, nil
	}
	jobs := append([]IgnoredJob(nil), entry.Jobs...)
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID > jobs[j].ID })
	total := len(jobs)
	return pageOf(jobs, limit, offset), total, nil
}

// Delete lifts one suppression by its per-user id
func (s *IgnoredStore) Delete(userID string, ignoredJobID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return err
	}
	entry := doc.Users[userID]
	if entry != nil {
		for i, job := range entry.Jobs {
			if job.ID == ignoredJobID {
				entry.Jobs = append(entry.Jobs[:i], entry.Jobs[i+1:]...)
				entry.UpdatedAt = utils.ToISO(utils.UTCNow())
				return s.saveLocked(doc)
			}
		}
	}
	return utils.NewReferenceError(fmt.Sprintf("unknown ignored_job_id %d", ignoredJobID))
}

// Users returns every user id with at least one suppression
func (s *IgnoredStore) Users() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(doc.Users))
	for userID := range doc.Users {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users, nil
}

// ExportUser returns all of a user's ignored jobs
func (s *IgnoredStore) ExportUser(userID string) ([]IgnoredJob, error) {
	jobs, _, err := s.List(userID, 0, 0)
	return jobs, err
}

// DeleteUser drops a user's whole ignore list, returning the count
func (s *IgnoredStore) DeleteUser(userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return 0, err
	}
	entry := doc.Users[userID]
	if entry == nil {
		return 0, nil
	}
	removed := len(entry.Jobs)
	delete(doc.Users, userID)
	return removed, s.saveLocked(doc)
}

func (s *IgnoredStore) loadLocked() (*ignoredDocument, error) {
	doc := &ignoredDocument{Users: map[string]*ignoredEntry{}}
	if err := LoadJSON(s.path, doc); err != nil {
		return nil, err
	}
	if doc.Users == nil {
		doc.Users = map[string]*ignoredEntry{}
	}
	return doc, nil
}

func (s *IgnoredStore) saveLocked(doc *ignoredDocument) error {
	return SaveJSON(s.path, doc)
}

func ensureIgnoredEntry(doc *ignoredDocument, userID string) *ignoredEntry {
	entry := doc.Users[userID]
	if entry == nil {
		entry = &ignoredEntry{NextID: 1}
		doc.Users[userID] = entry
	}
	maxID := 0
	for _, job := range entry.Jobs {
		if job.ID > maxID {
			maxID = job.ID
		}
	}
	if entry.NextID <= maxID {
		entry.NextID = maxID + 1
	}
	if entry.NextID < 1 {
		entry.NextID = 1
	}
	return entry
}
