package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"visascout/pkg/utils"
)

// SavedJob is one bookmark in the legacy saved-jobs list. The sqlite
// lifecycle store is authoritative; this list survives for export and for
// clients that still read it.
type SavedJob struct {
	ID              int    `json:"id"`
	JobURL          string `json:"job_url"`
	Title           string `json:"title"`
	Company         string `json:"company"`
	Location        string `json:"location"`
	Site            string `json:"site"`
	Note            string `json:"note"`
	SourceSessionID string `json:"source_session_id"`
	SavedAt         string `json:"saved_at_utc"`
	UpdatedAt       string `json:"updated_at_utc"`
}

type savedEntry struct {
	Jobs      []SavedJob `json:"jobs"`
	NextID    int        `json:"next_id"`
	UpdatedAt string     `json:"updated_at_utc,omitempty"`
}

type savedDocument struct {
	Users map[string]*savedEntry `json:"users"`
}

// SavedStore persists per-user bookmark lists with per-user serial ids
type SavedStore struct {
	mu   sync.Mutex
	path string
}

// NewSavedStore creates a saved-jobs store persisting at path
func NewSavedStore(path string) *SavedStore {
	return &SavedStore{path: path}
}

// Upsert saves a bookmark, merging non-empty fields into an existing entry
// for the same URL. Returns the bookmark and whether it already existed.
func (s *SavedStore) Upsert(userID string, job SavedJob) (*SavedJob, bool, error) {
	if strings.TrimSpace(job.JobURL) == "" {
		return nil, false, utils.NewValidationError("job_url is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return nil, false, err
	}
	entry := ensureSavedEntry(doc, userID)
	now := utils.ToISO(utils.UTCNow())

	target := strings.ToLower(strings.TrimSpace(job.JobURL))
	for i := range entry.Jobs {
		existing := &entry.Jobs[i]
		if strings.ToLower(strings.TrimSpace(existing.JobURL)) != target {
			continue
		}
		mergeNonEmpty(&existing.Title, job.Title)
		mergeNonEmpty(&existing.Company, job.Company)
		mergeNonEmpty(&existing.Location, job.Location)
		mergeNonEmpty(&existing.Site, job.Site)
		mergeNonEmpty(&existing.Note, job.Note)
		mergeNonEmpty(&existing.SourceSessionID, job.SourceSessionID)
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
	job.SavedAt = now
	job.UpdatedAt = now
	entry.Jobs = append(entry.Jobs, job)
	entry.NextID++
	entry.UpdatedAt = now
	if err := s.saveLocked(doc); err != nil {
		return nil, false, err
	}
	return &job, false, nil
}

// List returns a page of a user's bookmarks, newest first
func (s *SavedStore) List(userID string, limit, offset int) ([]SavedJob, int, error) {
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

	jobs := append([]SavedJob(nil), entry.Jobs...)
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID > jobs[j].ID })
	total := len(jobs)
	return pageOf(jobs, limit, offset), total, nil
}

// Delete removes one bookmark by its per-user id
func (s *SavedStore) Delete(userID string, savedJobID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return err
	}
	entry := doc.Users[userID]
	if entry != nil {
		for i, job := range entry.Jobs {
			if job.ID == savedJobID {
				entry.Jobs = append(entry.Jobs[:i], entry.Jobs[i+1:]...)
				entry.UpdatedAt = utils.ToISO(utils.UTCNow())
				return s.saveLocked(doc)
			}
		}
	}
	return utils.NewReferenceError(fmt.Sprintf("unknown saved_job_id %d", savedJobID))
}

// Users returns every user id with at least one bookmark
func (s *SavedStore) Users() ([]string, error) {
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

// ExportUser returns all of a user's bookmarks
func (s *SavedStore) ExportUser(userID string) ([]SavedJob, error) {
	jobs, _, err := s.List(userID, 0, 0)
	return jobs, err
}

// DeleteUser drops a user's whole bookmark list, returning the count
func (s *SavedStore) DeleteUser(userID string) (int, error) {
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

func (s *SavedStore) loadLocked() (*savedDocument, error) {
	doc := &savedDocument{Users: map[string]*savedEntry{}}
	if err := LoadJSON(s.path, doc); err != nil {
		return nil, err
	}
	if doc.Users == nil {
		doc.Users = map[string]*savedEntry{}
	}
	return doc, nil
}

func (s *SavedStore) saveLocked(doc *savedDocument) error {
	return SaveJSON(s.path, doc)
}

func ensureSavedEntry(doc *savedDocument, userID string) *savedEntry {
	entry := doc.Users[userID]
	if entry == nil {
		entry = &savedEntry{NextID: 1}
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

func mergeNonEmpty(dst *string, value string) {
	if clean := strings.TrimSpace(value); clean != "" {
		*dst = clean
	}
}

func pageOf[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
