package dataset

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"visascout/pkg/models"
	"visascout/pkg/utils"
)

// Store memoizes parsed datasets by resolved absolute path. Callers that
// rebuild a dataset file must Invalidate its path afterwards.
type Store struct {
	mu    sync.Mutex
	cache map[string]*Table
}

// NewStore creates an empty dataset cache
func NewStore() *Store {
	return &Store{cache: map[string]*Table{}}
}

// ResolvePath canonicalizes a dataset path the way fingerprinting expects
func ResolvePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

// Get returns the parsed table for a path, loading it on first use
func (s *Store) Get(path string) (*Table, error) {
	resolved := ResolvePath(path)

	s.mu.Lock()
	defer s.mu.Unlock()

	if table, ok := s.cache[resolved]; ok {
		return table, nil
	}
	table, err := Load(resolved)
	if err != nil {
		return nil, err
	}
	s.cache[resolved] = table
	return table, nil
}

// Invalidate drops the memo for one path
func (s *Store) Invalidate(path string) {
	resolved := ResolvePath(path)
	s.mu.Lock()
	delete(s.cache, resolved)
	s.mu.Unlock()
}

// Freshness reports the dataset file's age relative to the staleness cutoff
func (s *Store) Freshness(path string, staleAfterDays int) models.DatasetFreshness {
	resolved := ResolvePath(path)
	freshness := models.DatasetFreshness{
		DatasetPath:    resolved,
		StaleAfterDays: staleAfterDays,
	}

	info, err := os.Stat(resolved)
	if err != nil {
		freshness.Stale = true
		return freshness
	}
	modified := info.ModTime().UTC()
	freshness.ModifiedAt = utils.ToISO(modified)
	freshness.AgeDays = int(time.Since(modified).Hours() / 24)
	freshness.Stale = staleAfterDays > 0 && freshness.AgeDays > staleAfterDays

	s.mu.Lock()
	if table, ok := s.cache[resolved]; ok {
		freshness.Rows = table.Rows
	}
	s.mu.Unlock()
	return freshness
}
