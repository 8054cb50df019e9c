package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"visascout/internal/config"
	"visascout/internal/dataset"
	"visascout/internal/jobs"
	"visascout/internal/logging"
	"visascout/internal/match"
	"visascout/internal/runs"
	"visascout/internal/scan"
	"visascout/internal/session"
	"visascout/internal/store"
	"visascout/pkg/models"
	"visascout/pkg/utils"
)

// Service composes the stores, the scan controller, and the run machinery
// behind the public API. One instance serves the whole process.
type Service struct {
	cfg      *config.Config
	log      logging.Logger
	datasets *dataset.Store
	sessions *session.Store
	runs     *runs.Store
	executor *runs.Executor
	jobs     *jobs.Store
	prefs    *store.PrefsStore
	saved    *store.SavedStore
	ignored  *store.IgnoredStore
	scan     *scan.Controller
	now      func() time.Time
}

// Deps bundles the collaborators a Service is built from
type Deps struct {
	Config   *config.Config
	Log      logging.Logger
	Datasets *dataset.Store
	Sessions *session.Store
	Runs     *runs.Store
	Jobs     *jobs.Store
	Prefs    *store.PrefsStore
	Saved    *store.SavedStore
	Ignored  *store.IgnoredStore
	Scan     *scan.Controller
}

// New wires a service. The run executor attaches separately because its
// step function closes over the service itself.
func New(deps Deps) *Service {
	return &Service{
		cfg:      deps.Config,
		log:      deps.Log.WithField("component", "service"),
		datasets: deps.Datasets,
		sessions: deps.Sessions,
		runs:     deps.Runs,
		jobs:     deps.Jobs,
		prefs:    deps.Prefs,
		saved:    deps.Saved,
		ignored:  deps.Ignored,
		scan:     deps.Scan,
		now:      time.Now,
	}
}

// AttachExecutor hands the service its background run executor
func (s *Service) AttachExecutor(executor *runs.Executor) {
	s.executor = executor
}

// applyQueryDefaults fills unset knobs from configuration and validates the
// strictness mode. The returned query is what gets echoed in responses.
func (s *Service) applyQueryDefaults(q *models.SearchQuery) error {
	if strings.TrimSpace(q.UserID) == "" {
		return utils.NewValidationError("user_id is required")
	}
	if strings.TrimSpace(q.Location) == "" {
		return utils.NewValidationError("location is required")
	}
	if strings.TrimSpace(q.JobTitle) == "" {
		return utils.NewValidationError("job_title is required")
	}
	if q.Offset < 0 {
		return utils.NewValidationError("offset must be >= 0")
	}
	if q.HoursOld <= 0 {
		q.HoursOld = s.cfg.Search.HoursOld
	}
	if q.ResultsWanted <= 0 {
		q.ResultsWanted = s.cfg.Search.ResultsWanted
	}
	if q.MaxReturned <= 0 {
		q.MaxReturned = s.cfg.Search.MaxReturned
	}
	if q.ScanMultiplier <= 0 {
		q.ScanMultiplier = s.cfg.Search.ScanMultiplier
	}
	if q.MaxScanResults <= 0 {
		q.MaxScanResults = s.cfg.Search.MaxScanResults
	}
	if q.DatasetPath == "" {
		q.DatasetPath = s.cfg.Dataset.Path
	}
	q.DatasetPath = dataset.ResolvePath(q.DatasetPath)

	switch q.StrictnessMode {
	case "":
		q.StrictnessMode = models.StrictnessBalanced
	case models.StrictnessStrict, models.StrictnessBalanced:
	default:
		return utils.NewValidationError(fmt.Sprintf("strictness_mode must be '%s' or '%s'", models.StrictnessStrict, models.StrictnessBalanced))
	}

	var sites []string
	for _, site := range q.Sites {
		if clean := strings.ToLower(strings.TrimSpace(site)); clean != "" {
			sites = append(sites, clean)
		}
	}
	q.Sites = sites
	return nil
}

// resolveVisaTypes normalizes the visa types on the call, falling back to
// the user's stored preferences. A search without either fails: the
// acceptance engine has nothing to match against.
func (s *Service) resolveVisaTypes(q *models.SearchQuery) error {
	raw := q.PreferredVisaTypes
	if len(raw) == 0 {
		prefs, ok, err := s.prefs.Get(q.UserID)
		if err != nil {
			return err
		}
		if ok {
			raw = prefs.PreferredVisaTypes
		}
	}
	if len(raw) == 0 {
		return utils.NewBadRequestError("no preferred visa types on this call and none stored; call set_user_visa_preferences first")
	}

	seen := map[string]struct{}{}
	var normalized []string
	for _, v := range raw {
		canonical, err := match.NormalizeVisaType(v)
		if err != nil {
			return utils.NewValidationError(err.Error())
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		normalized = append(normalized, canonical)
	}
	sort.Strings(normalized)
	q.PreferredVisaTypes = normalized
	return nil
}

func snapshotOf(q models.SearchQuery) session.QuerySnapshot {
	return session.QuerySnapshot{
		UserID:                   q.UserID,
		Location:                 q.Location,
		JobTitle:                 q.JobTitle,
		HoursOld:                 q.HoursOld,
		DatasetPath:              q.DatasetPath,
		Sites:                    q.Sites,
		RequireDescriptionSignal: q.RequireDescriptionSignal,
		PreferredVisaTypes:       q.PreferredVisaTypes,
		StrictnessMode:           q.StrictnessMode,
	}
}

// filterIgnored drops accepted results whose URL the user suppressed.
// Returns the surviving list and how many were dropped.
func (s *Service) filterIgnored(userID string, accepted []models.AcceptedResult) ([]models.AcceptedResult, int, error) {
	suppressed, err := s.ignored.URLSet(userID)
	if err != nil {
		return nil, 0, err
	}
	if len(suppressed) == 0 {
		return accepted, 0, nil
	}
	kept := make([]models.AcceptedResult, 0, len(accepted))
	for _, job := range accepted {
		if _, ok := suppressed[strings.ToLower(strings.TrimSpace(job.JobURL))]; ok {
			continue
		}
		kept = append(kept, job)
	}
	return kept, len(accepted) - len(kept), nil
}

func pageSlice(jobs []models.AcceptedResult, offset, max int) []models.AcceptedResult {
	if offset >= len(jobs) {
		return []models.AcceptedResult{}
	}
	end := offset + max
	if end > len(jobs) {
		end = len(jobs)
	}
	return jobs[offset:end]
}

func buildPagination(q models.SearchQuery, total, returned, finalTarget int, exhausted, resumable bool) models.Pagination {
	p := models.Pagination{
		Offset:                    q.Offset,
		PageSize:                  q.MaxReturned,
		ReturnedJobs:              returned,
		AcceptedJobsTotal:         total,
		AcceptedJobsNeededForPage: q.Offset + q.MaxReturned,
		RequestedScanTarget:       finalTarget,
		MaxScanResults:            q.MaxScanResults,
		ScanExhausted:             exhausted,
		PossiblyResumable:         resumable,
	}
	// More accepted results exist, or the source was not scanned to the
	// bottom, so a next page is worth asking for.
	if q.Offset+returned < total || (!exhausted && returned == q.MaxReturned && returned > 0) {
		next := q.Offset + q.MaxReturned
		p.NextOffset = &next
		p.HasNextPage = true
	}
	return p
}

func buildGuidance(q models.SearchQuery, sessionID string, pagination models.Pagination) models.AgentGuidance {
	guidance := models.AgentGuidance{
		StrictVisaMatchApplied: q.StrictnessMode == models.StrictnessStrict,
		StrictnessMode:         q.StrictnessMode,
		UseSessionIDForNext:    "Pass search_session_id back as session_id with the next offset to page without re-scanning.",
		SaveJobsPrompt:         "Ask the user which of these jobs to save for later before fetching more pages.",
		SaveForLaterTool:       "save_job_for_later",
		IgnoreJobsPrompt:       "Ask the user whether any of these jobs should be ignored so future searches skip them.",
		IgnoreJobTool:          "ignore_job",
		RateLimitGuidance:      "On a rate limit error, wait a few minutes and retry the same call with the same session_id.",
		FallbackGuidance:       "If results stay thin, apply one recovery suggestion at a time and re-run the search.",
	}
	if pagination.HasNextPage && pagination.NextOffset != nil {
		guidance.NextCallHint = &models.NextCallHint{
			Tool:        "search_visa_jobs",
			SessionID:   sessionID,
			Offset:      *pagination.NextOffset,
			MaxReturned: q.MaxReturned,
		}
	}
	return guidance
}

func sessionInfo(record *session.Record, reused, cacheHit bool, ttl time.Duration, maxPerUser int) models.SessionInfo {
	return models.SessionInfo{
		SessionID:          record.SessionID,
		ReusedSession:      reused,
		CacheHit:           cacheHit,
		CreatedAt:          record.CreatedAt,
		UpdatedAt:          record.UpdatedAt,
		ExpiresAt:          record.ExpiresAt,
		TTLSeconds:         int(ttl.Seconds()),
		MaxSessionsPerUser: maxPerUser,
	}
}

// resultLookup adapts the session store for job target resolution
func (s *Service) resultLookup() jobs.ResultLookup {
	return func(userID, resultID string) (*jobs.ResolvedResult, error) {
		resolved, err := s.sessions.Resolve(userID, resultID)
		if err != nil {
			return nil, err
		}
		return &jobs.ResolvedResult{
			ResultID:  resolved.ResultID,
			SessionID: resolved.SessionID,
			JobURL:    resolved.JobURL,
			Title:     resolved.Title,
			Company:   resolved.Company,
			Location:  resolved.Location,
			Site:      resolved.Site,
		}, nil
	}
}
