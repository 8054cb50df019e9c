package runs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"visascout/internal/store"
	"visascout/pkg/models"
	"visascout/pkg/utils"
)

// Run is the persisted record of one background search run
type Run struct {
	RunID             string                 `json:"run_id"`
	Status            models.RunStatus       `json:"status"`
	CreatedAt         string                 `json:"created_at_utc"`
	UpdatedAt         string                 `json:"updated_at_utc"`
	CompletedAt       string                 `json:"completed_at_utc"`
	ExpiresAt         string                 `json:"expires_at_utc"`
	CancelRequested   bool                   `json:"cancel_requested"`
	AttemptCount      int                    `json:"attempt_count"`
	CurrentScanTarget int                    `json:"current_scan_target"`
	SearchSessionID   string                 `json:"search_session_id"`
	LatestResponse    *models.SearchResponse `json:"latest_response,omitempty"`
	Error             string                 `json:"error"`
	NextEventID       int                    `json:"next_event_id"`
	Events            []models.RunEvent      `json:"events"`
	Query             models.SearchQuery     `json:"query"`
}

// AppendEvent adds one progress event with a monotonic id. Progress below
// zero is omitted; above 100 it is clamped.
func (r *Run) AppendEvent(phase, detail string, progressPercent float64, payload map[string]any) {
	event := models.RunEvent{
		EventID: r.NextEventID,
		At:      utils.ToISO(utils.UTCNow()),
		Phase:   phase,
		Detail:  detail,
	}
	if progressPercent >= 0 {
		if progressPercent > 100 {
			progressPercent = 100
		}
		p := progressPercent
		event.ProgressPercent = &p
	}
	if len(payload) > 0 {
		event.Payload = payload
	}
	r.Events = append(r.Events, event)
	r.NextEventID++
}

// NewRunID mints an opaque run identifier
func NewRunID() string {
	return utils.NewOpaqueID()
}

type document struct {
	Runs map[string]*Run `json:"runs"`
}

// Store persists background runs as one JSON document. Expired runs drop
// on every load; above the cap, newest-by-update survive.
type Store struct {
	mu      sync.Mutex
	path    string
	ttl     time.Duration
	maxRuns int
}

// NewStore creates a run store persisting at path
func NewStore(path string, ttl time.Duration, maxRuns int) *Store {
	return &Store{path: path, ttl: ttl, maxRuns: maxRuns}
}

// TTL exposes the configured run lifetime
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Create inserts a new run with fresh timestamps
func (s *Store) Create(run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadPrunedLocked()
	if err != nil {
		return err
	}
	now := utils.UTCNow()
	run.CreatedAt = utils.ToISO(now)
	run.UpdatedAt = run.CreatedAt
	run.ExpiresAt = utils.ToISO(now.Add(s.ttl))

	stored := *run
	doc.Runs[run.RunID] = &stored
	return s.saveLocked(doc)
}

// Update applies a mutation to one run under the store lock and persists
// it, refreshing updated_at. The updater sees the stored copy directly.
func (s *Store) Update(runID string, updater func(run *Run) error) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadPrunedLocked()
	if err != nil {
		return nil, err
	}
	run, ok := doc.Runs[runID]
	if !ok {
		return nil, utils.NewReferenceError(fmt.Sprintf("unknown run_id '%s'", runID))
	}
	if err := updater(run); err != nil {
		return nil, err
	}
	run.UpdatedAt = utils.ToISO(utils.UTCNow())
	if err := s.saveLocked(doc); err != nil {
		return nil, err
	}
	clone := *run
	return &clone, nil
}

// Get returns one run without ownership checks; internal callers only
func (s *Store) Get(runID string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadPrunedLocked()
	if err != nil {
		return nil, err
	}
	run, ok := doc.Runs[runID]
	if !ok {
		return nil, utils.NewReferenceError(fmt.Sprintf("unknown run_id '%s'", runID))
	}
	clone := *run
	return &clone, nil
}

// GetForUser returns one run, rejecting ids owned by another user
func (s *Store) GetForUser(runID, userID string) (*Run, error) {
	run, err := s.Get(runID)
	if err != nil {
		return nil, err
	}
	if run.Query.UserID != userID {
		return nil, utils.NewReferenceError("run_id does not belong to this user_id")
	}
	return run, nil
}

// Prune drops expired runs and enforces the cap
func (s *Store) Prune() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadPrunedLocked()
	if err != nil {
		return err
	}
	return s.saveLocked(doc)
}

// ExportUser returns all of one user's runs, newest first
func (s *Store) ExportUser(userID string) ([]*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadPrunedLocked()
	if err != nil {
		return nil, err
	}
	var out []*Run
	for _, run := range doc.Runs {
		if run.Query.UserID != userID {
			continue
		}
		clone := *run
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	return out, nil
}

// DeleteUser removes all of one user's runs, returning the count
func (s *Store) DeleteUser(userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadPrunedLocked()
	if err != nil {
		return 0, err
	}
	removed := 0
	for id, run := range doc.Runs {
		if run.Query.UserID == userID {
			delete(doc.Runs, id)
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

func (s *Store) loadPrunedLocked() (*document, error) {
	doc := &document{Runs: map[string]*Run{}}
	if err := store.LoadJSON(s.path, doc); err != nil {
		return nil, err
	}
	if doc.Runs == nil {
		doc.Runs = map[string]*Run{}
	}
	s.pruneLocked(doc)
	return doc, nil
}

func (s *Store) saveLocked(doc *document) error {
	return store.SaveJSON(s.path, doc)
}

func (s *Store) pruneLocked(doc *document) {
	now := utils.UTCNow()
	for id, run := range doc.Runs {
		expiresAt := utils.ParseISO(run.ExpiresAt)
		if !expiresAt.IsZero() && !expiresAt.After(now) {
			delete(doc.Runs, id)
		}
	}
	if s.maxRuns <= 0 || len(doc.Runs) <= s.maxRuns {
		return
	}

	type pair struct {
		id string
		at time.Time
	}
	pairs := make([]pair, 0, len(doc.Runs))
	for id, run := range doc.Runs {
		at := utils.ParseISO(run.UpdatedAt)
		if at.IsZero() {
			at = utils.ParseISO(run.CreatedAt)
		}
		pairs = append(pairs, pair{id: id, at: at})
	}
	// Newest first, id as the tiebreak.
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].at.Equal(pairs[j].at) {
			return pairs[i].id < pairs[j].id
		}
		return pairs[i].at.After(pairs[j].at)
	})
	for _, p := range pairs[s.maxRuns:] {
		delete(doc.Runs, p.id)
	}
}
