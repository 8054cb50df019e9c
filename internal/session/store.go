package session

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"visascout/internal/store"
	"visascout/pkg/models"
	"visascout/pkg/utils"
)

// Record is one cached search session
type Record struct {
	SessionID               string                  `json:"-"`
	QueryFingerprint        string                  `json:"query_fingerprint"`
	Query                   QuerySnapshot           `json:"query"`
	CreatedAt               string                  `json:"created_at_utc"`
	UpdatedAt               string                  `json:"updated_at_utc"`
	ExpiresAt               string                  `json:"expires_at_utc"`
	AcceptedJobs            []models.AcceptedResult `json:"accepted_jobs"`
	AcceptedJobsTotal       int                     `json:"accepted_jobs_total"`
	LatestScanTarget        int                     `json:"latest_scan_target"`
	ScrapedJobs             int                     `json:"scraped_jobs"`
	ScanExhausted           bool                    `json:"scan_exhausted"`
	RateLimitRetryAttempts  int                     `json:"rate_limit_retry_attempts"`
	RateLimitBackoffSeconds float64                 `json:"rate_limit_backoff_seconds"`
}

type document struct {
	Sessions map[string]*Record `json:"sessions"`
}

// Store is the fingerprint-keyed session cache. One mutex guards the whole
// store; every write rewrites the document atomically.
type Store struct {
	mu         sync.Mutex
	path       string
	ttl        time.Duration
	maxGlobal  int
	maxPerUser int
}

// NewStore creates a session store persisting at path
func NewStore(path string, ttl time.Duration, maxGlobal, maxPerUser int) *Store {
	return &Store{path: path, ttl: ttl, maxGlobal: maxGlobal, maxPerUser: maxPerUser}
}

// NewSessionID mints an opaque session identifier
func NewSessionID() string {
	return utils.NewOpaqueID()
}

// Begin validates an explicit session id against the fingerprint of the
// current call, or mints a fresh id when none was supplied. A reused id
// whose stored fingerprint differs is rejected so a session can never serve
// a different query than the one that created it.
func (s *Store) Begin(sessionID, fingerprint string) (*Record, bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return &Record{SessionID: NewSessionID(), QueryFingerprint: fingerprint}, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadPrunedLocked()
	if err != nil {
		return nil, false, err
	}
	existing, ok := doc.Sessions[sessionID]
	if !ok {
		return nil, false, utils.NewReferenceError(fmt.Sprintf("unknown session_id '%s'; omit session_id to start a new search session", sessionID))
	}
	expiresAt := utils.ParseISO(existing.ExpiresAt)
	if !expiresAt.IsZero() && !expiresAt.After(utils.UTCNow()) {
		delete(doc.Sessions, sessionID)
		_ = s.saveLocked(doc)
		return nil, false, utils.NewReferenceError(fmt.Sprintf("session_id '%s' has expired; omit session_id to start a new search session", sessionID))
	}
	if existing.QueryFingerprint != fingerprint {
		return nil, false, utils.NewReferenceError("provided session_id does not match this query; omit session_id to start a new search session")
	}

	clone := *existing
	clone.SessionID = sessionID
	clone.AcceptedJobs = append([]models.AcceptedResult(nil), existing.AcceptedJobs...)
	return &clone, true, nil
}

// Save upserts a session record, refreshes its expiry, and prunes the store
// (expiry, global cap, per-user cap, oldest-by-update evicted first).
func (s *Store) Save(record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadPrunedLocked()
	if err != nil {
		return err
	}

	now := utils.UTCNow()
	if record.CreatedAt == "" {
		record.CreatedAt = utils.ToISO(now)
	}
	record.UpdatedAt = utils.ToISO(now)
	record.ExpiresAt = utils.ToISO(now.Add(s.ttl))
	record.AcceptedJobsTotal = len(record.AcceptedJobs)

	stored := *record
	doc.Sessions[record.SessionID] = &stored

	s.pruneLocked(doc)
	s.enforceUserLimitLocked(doc, record.Query.UserID)
	return s.saveLocked(doc)
}

// Get returns a user's session, rejecting unknown ids and cross-user access
func (s *Store) Get(sessionID, userID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadPrunedLocked()
	if err != nil {
		return nil, err
	}
	record, ok := doc.Sessions[sessionID]
	if !ok {
		return nil, utils.NewReferenceError(fmt.Sprintf("unknown session_id '%s'", sessionID))
	}
	if record.Query.UserID != userID {
		return nil, utils.NewReferenceError("session_id does not belong to this user_id")
	}

	clone := *record
	clone.SessionID = sessionID
	clone.AcceptedJobs = append([]models.AcceptedResult(nil), record.AcceptedJobs...)
	return &clone, nil
}

// ResolvedResult is the session-backed view of one result id
type ResolvedResult struct {
	ResultID  string
	SessionID string
	JobURL    string
	Title     string
	Company   string
	Location  string
	Site      string
}

// Resolve maps a "{session_id}:{ordinal}" result id to its posting metadata
func (s *Store) Resolve(userID, resultID string) (*ResolvedResult, error) {
	sessionID, _, ok := strings.Cut(resultID, ":")
	if !ok || sessionID == "" {
		return nil, utils.NewValidationError(fmt.Sprintf("result_id '%s' is not of the form session_id:ordinal", resultID))
	}

	record, err := s.Get(sessionID, userID)
	if err != nil {
		return nil, err
	}
	for _, job := range record.AcceptedJobs {
		if job.ResultID == resultID {
			return &ResolvedResult{
				ResultID:  resultID,
				SessionID: sessionID,
				JobURL:    job.JobURL,
				Title:     job.Title,
				Company:   job.Company,
				Location:  job.Location,
				Site:      job.Site,
			}, nil
		}
	}
	return nil, utils.NewReferenceError(fmt.Sprintf("unknown result_id '%s' in session '%s'", resultID, sessionID))
}

// Delete removes one session, rejecting unknown ids and cross-user access
func (s *Store) Delete(sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadPrunedLocked()
	if err != nil {
		return err
	}
	record, ok := doc.Sessions[sessionID]
	if !ok {
		return utils.NewReferenceError(fmt.Sprintf("unknown session_id '%s'", sessionID))
	}
	if record.Query.UserID != userID {
		return utils.NewReferenceError("session_id does not belong to this user_id")
	}
	delete(doc.Sessions, sessionID)
	return s.saveLocked(doc)
}

// Prune drops expired sessions and enforces the global cap
func (s *Store) Prune() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadPrunedLocked()
	if err != nil {
		return err
	}
	return s.saveLocked(doc)
}

// ExportUser returns all of one user's sessions, newest first
func (s *Store) ExportUser(userID string) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadPrunedLocked()
	if err != nil {
		return nil, err
	}
	var out []*Record
	for id, record := range doc.Sessions {
		if record.Query.UserID != userID {
			continue
		}
		clone := *record
		clone.SessionID = id
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	return out, nil
}

// DeleteUser removes all of one user's sessions, returning the count
func (s *Store) DeleteUser(userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadPrunedLocked()
	if err != nil {
		return 0, err
	}
	removed := 0
	for id, record := range doc.Sessions {
		if record.Query.UserID == userID {
			delete(doc.Sessions, id)
			removed++
		}
	}
	if removed > 0 {
		if err := s.saveLocked(doc); err != nil {
			return 0, err
		}
	}
	return removed, nil
}

// AttachResultIDs mints stable result ids for new entries. Results already
// carrying an id keep it; ordinals are 1-based and never renumbered.
func AttachResultIDs(sessionID string, jobs []models.AcceptedResult) []models.AcceptedResult {
	out := make([]models.AcceptedResult, len(jobs))
	for i, job := range jobs {
		if job.ResultID == "" {
			job.ResultID = fmt.Sprintf("%s:%d", sessionID, i+1)
		}
		out[i] = job
	}
	return out
}

func (s *Store) loadPrunedLocked() (*document, error) {
	doc := &document{Sessions: map[string]*Record{}}
	if err := store.LoadJSON(s.path, doc); err != nil {
		return nil, err
	}
	if doc.Sessions == nil {
		doc.Sessions = map[string]*Record{}
	}
	s.pruneLocked(doc)
	return doc, nil
}

func (s *Store) saveLocked(doc *document) error {
	return store.SaveJSON(s.path, doc)
}

func (s *Store) pruneLocked(doc *document) {
	now := utils.UTCNow()
	for id, record := range doc.Sessions {
		expiresAt := utils.ParseISO(record.ExpiresAt)
		if !expiresAt.IsZero() && !expiresAt.After(now) {
			delete(doc.Sessions, id)
		}
	}

	if s.maxGlobal > 0 && len(doc.Sessions) > s.maxGlobal {
		for _, id := range s.oldestFirst(doc, "")[:len(doc.Sessions)-s.maxGlobal] {
			delete(doc.Sessions, id)
		}
	}
}

func (s *Store) enforceUserLimitLocked(doc *document, userID string) {
	if s.maxPerUser <= 0 {
		return
	}
	userIDs := s.oldestFirst(doc, userID)
	if len(userIDs) <= s.maxPerUser {
		return
	}
	for _, id := range userIDs[:len(userIDs)-s.maxPerUser] {
		delete(doc.Sessions, id)
	}
}

// oldestFirst lists session ids sorted by update time ascending, optionally
// restricted to one user.
func (s *Store) oldestFirst(doc *document, userID string) []string {
	type pair struct {
		id string
		at time.Time
	}
	var pairs []pair
	for id, record := range doc.Sessions {
		if userID != "" && record.Query.UserID != userID {
			continue
		}
		at := utils.ParseISO(record.UpdatedAt)
		if at.IsZero() {
			at = utils.ParseISO(record.CreatedAt)
		}
		pairs = append(pairs, pair{id: id, at: at})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].at.Equal(pairs[j].at) {
			return pairs[i].id < pairs[j].id
		}
		return pairs[i].at.Before(pairs[j].at)
	})
	ids := make([]string, len(pairs))
	for i, p := range pairs {
		ids[i] = p.id
	}
	return ids
}
