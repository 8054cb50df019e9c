package service

import (
	"strings"

	"visascout/internal/jobs"
	"visascout/internal/store"
	"visascout/pkg/models"
	"visascout/pkg/utils"
)

func targetOf(ref models.JobReference) jobs.Target {
	return jobs.Target{
		JobID:    ref.JobID,
		ResultID: ref.ResultID,
		JobURL:   ref.JobURL,
	}
}

// SetStage moves a tracked job through its lifecycle. The reference may be
// a job id, a URL, or a result id from a live search session.
func (s *Service) SetStage(req models.SetStageRequest) (*models.StageChange, error) {
	jobID, err := s.jobs.ResolveTarget(req.UserID, jobs.Target{
		JobID:    req.JobID,
		ResultID: req.ResultID,
		JobURL:   req.JobURL,
	}, s.resultLookup())
	if err != nil {
		return nil, err
	}

	source := req.SourceSessionID
	if source == "" {
		source = req.SessionID
	}
	return s.jobs.SetStage(req.UserID, jobID, req.Stage, req.Note, source, req.AppliedAt, "")
}

// MarkApplied is the shorthand for moving a job into the applied stage
func (s *Service) MarkApplied(ref models.JobReference, note, appliedAt string) (*models.StageChange, error) {
	return s.SetStage(models.SetStageRequest{
		UserID:    ref.UserID,
		JobID:     ref.JobID,
		ResultID:  ref.ResultID,
		JobURL:    ref.JobURL,
		SessionID: ref.SessionID,
		Stage:     "applied",
		Note:      note,
		AppliedAt: appliedAt,
	})
}

// AddJobNote appends one note line to a tracked job
func (s *Service) AddJobNote(ref models.JobReference, note string) (*models.StageChange, error) {
	jobID, err := s.jobs.ResolveTarget(ref.UserID, targetOf(ref), s.resultLookup())
	if err != nil {
		return nil, err
	}
	return s.jobs.AppendNote(ref.UserID, jobID, note)
}

// SaveForLater bookmarks a job. The legacy saved list and the lifecycle
// database both record it; the database is authoritative for stage queries.
func (s *Service) SaveForLater(ref models.JobReference, note string) (*store.SavedJob, *models.StageChange, error) {
	saved := store.SavedJob{
		JobURL:          ref.JobURL,
		Note:            note,
		SourceSessionID: ref.SessionID,
	}
	if ref.JobURL == "" && ref.ResultID != "" {
		resolved, err := s.resultLookup()(ref.UserID, ref.ResultID)
		if err != nil {
			return nil, nil, err
		}
		saved.JobURL = resolved.JobURL
		saved.Title = resolved.Title
		saved.Company = resolved.Company
		saved.Location = resolved.Location
		saved.Site = resolved.Site
		if saved.SourceSessionID == "" {
			saved.SourceSessionID = resolved.SessionID
		}
	}
	if strings.TrimSpace(saved.JobURL) == "" {
		return nil, nil, utils.NewValidationError("provide job_url or result_id")
	}

	bookmark, _, err := s.saved.Upsert(ref.UserID, saved)
	if err != nil {
		return nil, nil, err
	}
	jobID, err := s.jobs.UpsertJob(ref.UserID, bookmark.JobURL, bookmark.Title, bookmark.Company, bookmark.Location, bookmark.Site, ref.ResultID)
	if err != nil {
		return nil, nil, err
	}
	change, err := s.jobs.SetStage(ref.UserID, jobID, "saved", note, saved.SourceSessionID, "", "save_job_for_later")
	if err != nil {
		return nil, nil, err
	}
	return bookmark, change, nil
}

// ListSavedJobs pages a user's bookmarks, newest first
func (s *Service) ListSavedJobs(userID string, limit, offset int) ([]store.SavedJob, int, error) {
	return s.saved.List(userID, limit, offset)
}

// DeleteSavedJob removes one bookmark by id
func (s *Service) DeleteSavedJob(userID string, savedJobID int) error {
	return s.saved.Delete(userID, savedJobID)
}

// IgnoreJob suppresses a URL from future search results and records the
// matching stage change.
func (s *Service) IgnoreJob(ref models.JobReference, reason string) (*store.IgnoredJob, *models.StageChange, error) {
	ignored := store.IgnoredJob{
		JobURL: ref.JobURL,
		Reason: reason,
		Source: ref.SessionID,
	}
	if ref.JobURL == "" && ref.ResultID != "" {
		resolved, err := s.resultLookup()(ref.UserID, ref.ResultID)
		if err != nil {
			return nil, nil, err
		}
		ignored.JobURL = resolved.JobURL
		if ignored.Source == "" {
			ignored.Source = resolved.SessionID
		}
	}
	if strings.TrimSpace(ignored.JobURL) == "" {
		return nil, nil, utils.NewValidationError("provide job_url or result_id")
	}

	suppression, _, err := s.ignored.Upsert(ref.UserID, ignored)
	if err != nil {
		return nil, nil, err
	}
	jobID, err := s.jobs.UpsertJob(ref.UserID, suppression.JobURL, "", "", "", "", ref.ResultID)
	if err != nil {
		return nil, nil, err
	}
	change, err := s.jobs.SetStage(ref.UserID, jobID, "ignored", reason, ignored.Source, "", "ignore_job")
	if err != nil {
		return nil, nil, err
	}
	return suppression, change, nil
}

// ListIgnoredJobs pages a user's suppressions, newest first
func (s *Service) ListIgnoredJobs(userID string, limit, offset int) ([]store.IgnoredJob, int, error) {
	return s.ignored.List(userID, limit, offset)
}

// UnignoreJob lifts one suppression by id
func (s *Service) UnignoreJob(userID string, ignoredJobID int) error {
	return s.ignored.Delete(userID, ignoredJobID)
}

// ListJobsByStage returns tracked jobs in one lifecycle stage
func (s *Service) ListJobsByStage(userID, stage string, limit, offset int) ([]models.TrackedJob, []models.Application, error) {
	return s.jobs.ListByStage(userID, stage, limit, offset)
}

// RecentJobEvents returns a user's latest audit events
func (s *Service) RecentJobEvents(userID string, limit int) ([]models.JobEvent, error) {
	return s.jobs.RecentEvents(userID, limit)
}

// PipelineSummary counts a user's applications per stage
func (s *Service) PipelineSummary(userID string) (map[string]int, error) {
	return s.jobs.StageSummary(userID)
}
