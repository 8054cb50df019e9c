package service

import (
	"context"

	"visascout/internal/match"
	"visascout/internal/scan"
	"visascout/internal/session"
	"visascout/pkg/models"
)

// Search runs one synchronous visa-filtered job search. Paging within an
// existing session serves from the cached accepted set; anything else
// scrapes with expanding targets until the page fills or the budget runs
// out. Partial progress always lands in the session so a timed-out call can
// resume with the same session_id.
func (s *Service) Search(ctx context.Context, q models.SearchQuery) (*models.SearchResponse, error) {
	if err := s.applyQueryDefaults(&q); err != nil {
		return nil, err
	}
	if err := s.resolveVisaTypes(&q); err != nil {
		return nil, err
	}

	snapshot := snapshotOf(q)
	record, reused, err := s.sessions.Begin(q.SessionID, session.Fingerprint(snapshot))
	if err != nil {
		return nil, err
	}
	record.Query = snapshot
	needed := q.Offset + q.MaxReturned

	// A cache hit means the session already holds enough accepted results
	// for this page. An exhausted-but-short session is NOT a hit: a retry
	// may carry a larger scan cap (the cap is outside the fingerprint), so
	// it re-enters the scan loop, where the cached target keeps the rescan
	// from repeating shallow depths.
	cacheHit := reused && !q.RefreshSession && len(record.AcceptedJobs) >= needed

	var attempts []models.ScanAttempt
	resumable := false
	if !cacheHit {
		table, err := s.datasets.Get(q.DatasetPath)
		if err != nil {
			return nil, err
		}
		in := scan.Input{
			Sites:          q.Sites,
			Term:           q.JobTitle,
			Location:       q.Location,
			Country:        q.Country,
			HoursOld:       q.HoursOld,
			Needed:         needed,
			ResultsWanted:  q.ResultsWanted,
			MaxReturned:    q.MaxReturned,
			ScanMultiplier: q.ScanMultiplier,
			MaxScanResults: q.MaxScanResults,
			CachedTarget:   record.LatestScanTarget,
			Table:          table,
			Criteria: match.Criteria{
				DesiredVisaTypes:         q.PreferredVisaTypes,
				RequireDescriptionSignal: q.RequireDescriptionSignal,
				StrictnessMode:           q.StrictnessMode,
			},
		}
		if s.cfg.Search.SoftBudget > 0 {
			in.Deadline = s.now().Add(s.cfg.Search.SoftBudget)
		}

		outcome, scanErr := s.scan.Run(ctx, in)
		record.LatestScanTarget = outcome.FinalTarget
		record.RateLimitRetryAttempts += outcome.RetryAttempts
		record.RateLimitBackoffSeconds += outcome.BackoffSeconds
		if len(outcome.Accepted) > 0 || scanErr == nil {
			record.AcceptedJobs = session.AttachResultIDs(record.SessionID, outcome.Accepted)
			record.ScrapedJobs = outcome.ScrapedJobs
			record.ScanExhausted = outcome.ScanExhausted
		}
		if saveErr := s.sessions.Save(record); saveErr != nil {
			s.log.Error("Failed to persist search session", map[string]interface{}{
				"session_id": record.SessionID,
				"error":      saveErr.Error(),
			})
		}
		if scanErr != nil {
			s.log.Warn("Search scan failed", map[string]interface{}{
				"session_id": record.SessionID,
				"error":      scanErr.Error(),
			})
			return nil, scanErr
		}
		attempts = outcome.Attempts
		resumable = outcome.PossiblyResumable
	} else if err := s.sessions.Save(record); err != nil {
		// Cache hits still refresh the session TTL.
		return nil, err
	}

	response, err := s.assembleResponse(q, record, reused, cacheHit, attempts, resumable)
	if err != nil {
		return nil, err
	}
	return response, nil
}

// assembleResponse builds the full search payload from a saved session
// record. Background runs reuse it for their completion snapshot.
func (s *Service) assembleResponse(q models.SearchQuery, record *session.Record, reused, cacheHit bool, attempts []models.ScanAttempt, resumable bool) (*models.SearchResponse, error) {
	filtered, ignoredCount, err := s.filterIgnored(q.UserID, record.AcceptedJobs)
	if err != nil {
		return nil, err
	}

	needed := q.Offset + q.MaxReturned
	// When the ignore filter ate into an already-exhausted scan there is
	// nothing left to fetch, so the page presents as exhausted too.
	exhausted := record.ScanExhausted || (len(filtered) < needed && ignoredCount > 0)
	page := pageSlice(filtered, q.Offset, q.MaxReturned)
	pagination := buildPagination(q, len(filtered), len(page), record.LatestScanTarget, exhausted, resumable)

	stats := models.SearchStats{
		ScrapedJobs:             record.ScrapedJobs,
		AcceptedBeforeIgnore:    len(record.AcceptedJobs),
		IgnoredFilteredCount:    ignoredCount,
		AcceptedJobs:            len(filtered),
		ReturnedJobs:            len(page),
		CacheHit:                cacheHit,
		ScanAttempts:            len(attempts),
		ScanAttemptsDetail:      attempts,
		RateLimitRetryAttempts:  record.RateLimitRetryAttempts,
		RateLimitBackoffSeconds: record.RateLimitBackoffSeconds,
		ConfidenceModelVersion:  match.ConfidenceModelVersion,
	}

	recovery := match.BuildRecoverySuggestions(match.RecoveryInput{
		Location:       q.Location,
		JobTitle:       q.JobTitle,
		HoursOld:       q.HoursOld,
		MaxScanResults: q.MaxScanResults,
		AcceptedJobs:   len(filtered),
		ReturnedJobs:   len(page),
		ScanExhausted:  exhausted,
	})

	q.SessionID = record.SessionID
	return &models.SearchResponse{
		Query:               q,
		SearchSession:       sessionInfo(record, reused, cacheHit, s.cfg.Sessions.TTL, s.cfg.Sessions.MaxPerUser),
		Stats:               stats,
		AgentGuidance:       buildGuidance(q, record.SessionID, pagination),
		DatasetFreshness:    s.datasets.Freshness(q.DatasetPath, s.cfg.Dataset.StaleAfterDays),
		Pagination:          pagination,
		RecoverySuggestions: recovery,
		Jobs:                page,
	}, nil
}

// ClearSearchSession drops one cached session on user request
func (s *Service) ClearSearchSession(userID, sessionID string) error {
	return s.sessions.Delete(sessionID, userID)
}
