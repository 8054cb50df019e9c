package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// QuerySnapshot is the subset of search parameters bound to a session.
// Paging and scan budget knobs deliberately never appear here.
type QuerySnapshot struct {
	UserID                   string   `json:"user_id"`
	Location                 string   `json:"location"`
	JobTitle                 string   `json:"job_title"`
	HoursOld                 int      `json:"hours_old"`
	DatasetPath              string   `json:"dataset_path"`
	Sites                    []string `json:"sites"`
	RequireDescriptionSignal bool     `json:"require_description_signal"`
	PreferredVisaTypes       []string `json:"preferred_visa_types"`
	StrictnessMode           string   `json:"strictness_mode"`
}

// Fingerprint computes the deterministic identity of "the same search".
// List-valued fields are sorted and free-text fields lowercased so call
// order and casing never split a session.
func Fingerprint(q QuerySnapshot) string {
	sites := append([]string(nil), q.Sites...)
	sort.Strings(sites)
	visaTypes := append([]string(nil), q.PreferredVisaTypes...)
	sort.Strings(visaTypes)

	// json.Marshal emits map keys sorted, giving a canonical encoding.
	payload := map[string]any{
		"location":                   strings.ToLower(strings.TrimSpace(q.Location)),
		"job_title":                  strings.ToLower(strings.TrimSpace(q.JobTitle)),
		"user_id":                    q.UserID,
		"hours_old":                  q.HoursOld,
		"dataset_path":               q.DatasetPath,
		"sites":                      sites,
		"require_description_signal": q.RequireDescriptionSignal,
		"preferred_visa_types":       visaTypes,
		"strictness_mode":            q.StrictnessMode,
	}
	encoded, _ := json.Marshal(payload)
	digest := sha256.Sum256(encoded)
	return hex.EncodeToString(digest[:])
}
