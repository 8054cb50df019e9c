package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"visascout/internal/match"
	"visascout/pkg/utils"
)

var supportedWorkModes = map[string]struct{}{
	"remote": {},
	"hybrid": {},
	"onsite": {},
}

// Constraints are optional onboarding facts used by the agent, not the
// acceptance engine.
type Constraints struct {
	DaysRemaining     *int     `json:"days_remaining,omitempty"`
	WorkModes         []string `json:"work_modes,omitempty"`
	WillingToRelocate *bool    `json:"willing_to_relocate,omitempty"`
	UpdatedAt         string   `json:"updated_at_utc,omitempty"`
}

// Preferences is one user's persisted search preferences. Visa types are
// stored in canonical form, sorted and deduplicated.
type Preferences struct {
	PreferredVisaTypes []string     `json:"preferred_visa_types"`
	Constraints        *Constraints `json:"constraints,omitempty"`
}

// PrefsStore persists preferences keyed by user id
type PrefsStore struct {
	mu   sync.Mutex
	path string
}

// NewPrefsStore creates a preferences store persisting at path
func NewPrefsStore(path string) *PrefsStore {
	return &PrefsStore{path: path}
}

// SetVisaTypes replaces a user's preferred visa types. Unknown types fail
// the whole call.
func (s *PrefsStore) SetVisaTypes(userID string, visaTypes []string) (*Preferences, error) {
	seen := map[string]struct{}{}
	var normalized []string
	for _, v := range visaTypes {
		canonical, err := match.NormalizeVisaType(v)
		if err != nil {
			return nil, utils.NewValidationError(err.Error())
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		normalized = append(normalized, canonical)
	}
	sort.Strings(normalized)

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	prefs := doc[userID]
	if prefs == nil {
		prefs = &Preferences{}
	}
	prefs.PreferredVisaTypes = normalized
	doc[userID] = prefs
	if err := SaveJSON(s.path, doc); err != nil {
		return nil, err
	}
	return prefs, nil
}

// SetConstraints merges the provided constraint fields; nil fields keep
// their stored value.
func (s *PrefsStore) SetConstraints(userID string, daysRemaining *int, workModes []string, willingToRelocate *bool) (*Constraints, error) {
	if daysRemaining != nil && *daysRemaining < 0 {
		return nil, utils.NewValidationError("days_remaining must be >= 0")
	}
	var normalizedModes []string
	if workModes != nil {
		seen := map[string]struct{}{}
		for _, mode := range workModes {
			clean := strings.ToLower(strings.TrimSpace(mode))
			if _, ok := supportedWorkModes[clean]; !ok {
				return nil, utils.NewValidationError(fmt.Sprintf("unsupported work mode '%s'; use remote, hybrid, or onsite", mode))
			}
			if _, dup := seen[clean]; dup {
				continue
			}
			seen[clean] = struct{}{}
			normalizedModes = append(normalizedModes, clean)
		}
		sort.Strings(normalizedModes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	prefs := doc[userID]
	if prefs == nil {
		prefs = &Preferences{}
	}
	constraints := prefs.Constraints
	if constraints == nil {
		constraints = &Constraints{}
	}
	if daysRemaining != nil {
		constraints.DaysRemaining = daysRemaining
	}
	if workModes != nil {
		constraints.WorkModes = normalizedModes
	}
	if willingToRelocate != nil {
		constraints.WillingToRelocate = willingToRelocate
	}
	constraints.UpdatedAt = utils.ToISO(utils.UTCNow())
	prefs.Constraints = constraints
	doc[userID] = prefs
	if err := SaveJSON(s.path, doc); err != nil {
		return nil, err
	}
	return constraints, nil
}

// Get returns a user's preferences and whether any were ever set
func (s *PrefsStore) Get(userID string) (*Preferences, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return nil, false, err
	}
	prefs, ok := doc[userID]
	if !ok {
		return &Preferences{}, false, nil
	}
	clone := *prefs
	return &clone, true, nil
}

// DeleteUser removes a user's preferences, reporting whether any existed
func (s *PrefsStore) DeleteUser(userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return false, err
	}
	if _, ok := doc[userID]; !ok {
		return false, nil
	}
	delete(doc, userID)
	return true, SaveJSON(s.path, doc)
}

func (s *PrefsStore) loadLocked() (map[string]*Preferences, error) {
	doc := map[string]*Preferences{}
	if err := LoadJSON(s.path, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
