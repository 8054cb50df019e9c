package service

import (
	"context"
	"errors"

	"visascout/internal/match"
	"visascout/internal/runs"
	"visascout/internal/scan"
	"visascout/internal/session"
	"visascout/pkg/models"
	"visascout/pkg/utils"
)

// StartRun accepts a search query for chunked background execution and
// returns immediately with a pollable run id.
func (s *Service) StartRun(q models.SearchQuery) (*models.StartRunResponse, error) {
	if s.executor == nil {
		return nil, utils.NewInternalServerError("background run executor is not attached")
	}
	if err := s.applyQueryDefaults(&q); err != nil {
		return nil, err
	}
	if err := s.resolveVisaTypes(&q); err != nil {
		return nil, err
	}

	snapshot := snapshotOf(q)
	record, _, err := s.sessions.Begin(q.SessionID, session.Fingerprint(snapshot))
	if err != nil {
		return nil, err
	}
	record.Query = snapshot
	if err := s.sessions.Save(record); err != nil {
		return nil, err
	}
	q.SessionID = record.SessionID

	run := &runs.Run{
		RunID:           runs.NewRunID(),
		Status:          models.RunStatusPending,
		SearchSessionID: record.SessionID,
		CurrentScanTarget: scan.InitialTarget(
			q.ResultsWanted, q.Offset+q.MaxReturned, q.ScanMultiplier,
			record.LatestScanTarget, q.MaxScanResults,
		),
		Query: q,
	}
	run.AppendEvent("started", "Search run accepted.", 0, map[string]any{
		"search_session_id": record.SessionID,
	})
	if err := s.runs.Create(run); err != nil {
		return nil, err
	}
	if err := s.executor.Enqueue(run.RunID); err != nil {
		return nil, utils.NewInternalServerError(err.Error())
	}

	return &models.StartRunResponse{
		RunID:      run.RunID,
		Status:     run.Status,
		UserID:     q.UserID,
		CreatedAt:  run.CreatedAt,
		ExpiresAt:  run.ExpiresAt,
		NextCursor: run.NextEventID,
	}, nil
}

// RunStep executes one scan chunk for a background run. It is the StepFunc
// the executor drives: each call scrapes at the run's current target,
// updates the session, and either finishes the run or advances the target
// for the next scheduling slot.
func (s *Service) RunStep(ctx context.Context, runID string) (bool, error) {
	run, err := s.runs.Update(runID, func(run *runs.Run) error {
		if run.CancelRequested {
			return utils.ErrRunCancelled
		}
		if run.Status == models.RunStatusPending {
			run.Status = models.RunStatusRunning
			run.AppendEvent("running", "Search run started.", 2, nil)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	q := run.Query
	record, err := s.sessions.Get(run.SearchSessionID, q.UserID)
	if err != nil {
		return false, err
	}
	table, err := s.datasets.Get(q.DatasetPath)
	if err != nil {
		return false, err
	}

	needed := q.Offset + q.MaxReturned
	target := run.CurrentScanTarget
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
		Table:          table,
		Criteria: match.Criteria{
			DesiredVisaTypes:         q.PreferredVisaTypes,
			RequireDescriptionSignal: q.RequireDescriptionSignal,
			StrictnessMode:           q.StrictnessMode,
		},
	}

	step, err := s.scan.Step(ctx, in, target)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false, utils.ErrRunCancelled
		}
		return false, err
	}

	record.AcceptedJobs = session.AttachResultIDs(record.SessionID, step.Accepted)
	record.ScrapedJobs = step.Scraped
	record.LatestScanTarget = target
	record.RateLimitRetryAttempts += step.Retry.Attempts
	record.RateLimitBackoffSeconds += step.Retry.BackoffSeconds

	next := scan.NextTarget(target, q.MaxReturned, q.ScanMultiplier, q.MaxScanResults)
	done := len(step.Accepted) >= needed ||
		step.Scraped < target ||
		(q.MaxScanResults > 0 && target >= q.MaxScanResults) ||
		next <= target
	if done && len(step.Accepted) < needed {
		record.ScanExhausted = true
	}
	if err := s.sessions.Save(record); err != nil {
		return false, err
	}

	if !done {
		_, err = s.runs.Update(runID, func(run *runs.Run) error {
			run.AttemptCount++
			run.CurrentScanTarget = next
			progress := chunkProgress(target, q.MaxScanResults)
			run.AppendEvent("chunk_complete", "Scan chunk complete, widening target.", progress, map[string]any{
				"target":   target,
				"scraped":  step.Scraped,
				"accepted": len(step.Accepted),
			})
			return nil
		})
		return false, err
	}

	response, err := s.assembleResponse(q, record, true, false, []models.ScanAttempt{step.Attempt}, false)
	if err != nil {
		return false, err
	}
	_, err = s.runs.Update(runID, func(run *runs.Run) error {
		run.AttemptCount++
		run.Status = models.RunStatusCompleted
		run.CompletedAt = utils.ToISO(utils.UTCNow())
		run.LatestResponse = response
		run.AppendEvent("completed", "Search run completed.", 100, map[string]any{
			"accepted_jobs": response.Stats.AcceptedJobs,
			"returned_jobs": response.Stats.ReturnedJobs,
		})
		return nil
	})
	return true, err
}

// chunkProgress approximates completion from scan depth; terminal events
// carry the real 100. Floored at the 2 reported by the "running" event so
// event progress never moves backwards, capped at 95 so only terminal
// events reach the top.
func chunkProgress(target, maxScan int) float64 {
	if maxScan <= 0 {
		return 50
	}
	progress := float64(target) / float64(maxScan) * 100
	if progress < 2 {
		progress = 2
	}
	if progress > 95 {
		progress = 95
	}
	return progress
}

// RunStatus polls a run, returning events past the caller's cursor
func (s *Service) RunStatus(userID, runID string, cursor int) (*models.RunStatusResponse, error) {
	run, err := s.runs.GetForUser(runID, userID)
	if err != nil {
		return nil, err
	}
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(run.Events) {
		cursor = len(run.Events)
	}

	response := &models.RunStatusResponse{
		RunID:             run.RunID,
		UserID:            userID,
		Status:            run.Status,
		IsTerminal:        run.Status.IsTerminal(),
		CancelRequested:   run.CancelRequested,
		AttemptCount:      run.AttemptCount,
		CreatedAt:         run.CreatedAt,
		UpdatedAt:         run.UpdatedAt,
		CompletedAt:       run.CompletedAt,
		ExpiresAt:         run.ExpiresAt,
		SearchSessionID:   run.SearchSessionID,
		CurrentScanTarget: run.CurrentScanTarget,
		Error:             run.Error,
		Events:            run.Events[cursor:],
		Cursor:            cursor,
		NextCursor:        len(run.Events),
	}
	if run.LatestResponse != nil {
		pagination := run.LatestResponse.Pagination
		response.LatestPagination = &pagination
		response.LatestReturnedJobs = run.LatestResponse.Stats.ReturnedJobs
		response.CanFetchResults = true
	}
	return response, nil
}

// CancelRun requests cooperative cancellation. The run stops between
// chunks; an already-terminal run is returned unchanged.
func (s *Service) CancelRun(userID, runID string) (*models.CancelRunResponse, error) {
	if _, err := s.runs.GetForUser(runID, userID); err != nil {
		return nil, err
	}
	run, err := s.runs.Update(runID, func(run *runs.Run) error {
		if run.Status.IsTerminal() || run.CancelRequested {
			return nil
		}
		run.CancelRequested = true
		run.Status = models.RunStatusCancelling
		run.AppendEvent("cancelling", "Cancellation requested. The run will stop after the current chunk.", -1, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &models.CancelRunResponse{
		RunID:           run.RunID,
		UserID:          userID,
		Status:          run.Status,
		CancelRequested: run.CancelRequested,
	}, nil
}

// RunResults serves a page of results from a completed run. The default
// page comes straight from the completion snapshot; other offsets re-slice
// the backing session without expanding the scan.
func (s *Service) RunResults(req models.RunResultsRequest) (*models.RunResultsResponse, error) {
	run, err := s.runs.GetForUser(req.RunID, req.UserID)
	if err != nil {
		return nil, err
	}
	if run.LatestResponse == nil {
		return nil, utils.NewBadRequestError("run has no results yet; poll run status until it completes")
	}

	snapshot := run.LatestResponse
	offset := req.Offset
	maxReturned := req.MaxReturned
	if maxReturned <= 0 {
		maxReturned = run.Query.MaxReturned
	}

	if offset == run.Query.Offset && maxReturned == run.Query.MaxReturned {
		return &models.RunResultsResponse{
			RunID:               run.RunID,
			Status:              run.Status,
			AttemptCount:        run.AttemptCount,
			Stats:               snapshot.Stats,
			Pagination:          snapshot.Pagination,
			RecoverySuggestions: snapshot.RecoverySuggestions,
			Jobs:                snapshot.Jobs,
		}, nil
	}

	record, err := s.sessions.Get(run.SearchSessionID, req.UserID)
	if err != nil {
		return nil, err
	}
	filtered, ignoredCount, err := s.filterIgnored(req.UserID, record.AcceptedJobs)
	if err != nil {
		return nil, err
	}
	page := pageSlice(filtered, offset, maxReturned)

	q := run.Query
	q.Offset = offset
	q.MaxReturned = maxReturned
	pagination := buildPagination(q, len(filtered), len(page), record.LatestScanTarget, record.ScanExhausted, false)

	stats := snapshot.Stats
	stats.AcceptedBeforeIgnore = len(record.AcceptedJobs)
	stats.IgnoredFilteredCount = ignoredCount
	stats.AcceptedJobs = len(filtered)
	stats.ReturnedJobs = len(page)

	return &models.RunResultsResponse{
		RunID:               run.RunID,
		Status:              run.Status,
		AttemptCount:        run.AttemptCount,
		Stats:               stats,
		Pagination:          pagination,
		RecoverySuggestions: snapshot.RecoverySuggestions,
		Jobs:                page,
	}, nil
}
