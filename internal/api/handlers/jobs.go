package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"visascout/internal/service"
	"visascout/pkg/models"
	"visascout/pkg/utils"
)

// SetStageHandler moves a tracked job through its lifecycle
func SetStageHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.SetStageRequest
		if err := bindAndValidate(c, &req); err != nil {
			return writeError(c, err)
		}
		change, err := svc.SetStage(req)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, change)
	}
}

// MarkAppliedHandler is the shorthand for the applied stage
func MarkAppliedHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req struct {
			models.JobReference
			Note      string `json:"note,omitempty"`
			AppliedAt string `json:"applied_at,omitempty"`
		}
		if err := bindAndValidate(c, &req); err != nil {
			return writeError(c, err)
		}
		change, err := svc.MarkApplied(req.JobReference, req.Note, req.AppliedAt)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, change)
	}
}

// AddNoteHandler appends one note line to a tracked job
func AddNoteHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req struct {
			models.JobReference
			Note string `json:"note" validate:"required"`
		}
		if err := bindAndValidate(c, &req); err != nil {
			return writeError(c, err)
		}
		change, err := svc.AddJobNote(req.JobReference, req.Note)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, change)
	}
}

// SaveJobHandler bookmarks a job for later
func SaveJobHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req struct {
			models.JobReference
			Note string `json:"note,omitempty"`
		}
		if err := bindAndValidate(c, &req); err != nil {
			return writeError(c, err)
		}
		bookmark, change, err := svc.SaveForLater(req.JobReference, req.Note)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"saved_job":    bookmark,
			"stage_change": change,
		})
	}
}

// ListSavedHandler pages a user's bookmarks
func ListSavedHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.QueryParam("user_id")
		if userID == "" {
			return writeError(c, utils.NewValidationError("user_id is required"))
		}
		jobs, total, err := svc.ListSavedJobs(userID, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"saved_jobs": jobs,
			"total":      total,
		})
	}
}

// DeleteSavedHandler removes one bookmark by id
func DeleteSavedHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.QueryParam("user_id")
		if userID == "" {
			return writeError(c, utils.NewValidationError("user_id is required"))
		}
		savedJobID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return writeError(c, utils.NewValidationError("saved job id must be an integer"))
		}
		if err := svc.DeleteSavedJob(userID, savedJobID); err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"deleted": true})
	}
}

// IgnoreJobHandler suppresses a URL from future search results
func IgnoreJobHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req struct {
			models.JobReference
			Reason string `json:"reason,omitempty"`
		}
		if err := bindAndValidate(c, &req); err != nil {
			return writeError(c, err)
		}
		suppression, change, err := svc.IgnoreJob(req.JobReference, req.Reason)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"ignored_job":  suppression,
			"stage_change": change,
		})
	}
}

// ListIgnoredHandler pages a user's suppressions
func ListIgnoredHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.QueryParam("user_id")
		if userID == "" {
			return writeError(c, utils.NewValidationError("user_id is required"))
		}
		jobs, total, err := svc.ListIgnoredJobs(userID, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"ignored_jobs": jobs,
			"total":        total,
		})
	}
}

// UnignoreHandler lifts one suppression by id
func UnignoreHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.QueryParam("user_id")
		if userID == "" {
			return writeError(c, utils.NewValidationError("user_id is required"))
		}
		ignoredJobID, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return writeError(c, utils.NewValidationError("ignored job id must be an integer"))
		}
		if err := svc.UnignoreJob(userID, ignoredJobID); err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"deleted": true})
	}
}

// ListByStageHandler returns tracked jobs in one lifecycle stage
func ListByStageHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.QueryParam("user_id")
		if userID == "" {
			return writeError(c, utils.NewValidationError("user_id is required"))
		}
		stage := c.QueryParam("stage")
		jobs, applications, err := svc.ListJobsByStage(userID, stage, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"stage":        stage,
			"jobs":         jobs,
			"applications": applications,
		})
	}
}

// RecentEventsHandler returns a user's latest audit events
func RecentEventsHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.QueryParam("user_id")
		if userID == "" {
			return writeError(c, utils.NewValidationError("user_id is required"))
		}
		events, err := svc.RecentJobEvents(userID, queryInt(c, "limit", 50))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"events": events})
	}
}

// PipelineSummaryHandler counts applications per stage
func PipelineSummaryHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.QueryParam("user_id")
		if userID == "" {
			return writeError(c, utils.NewValidationError("user_id is required"))
		}
		summary, err := svc.PipelineSummary(userID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"stage_counts": summary})
	}
}
