package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"visascout/internal/logging"
	"visascout/internal/service"
	"visascout/pkg/models"
	"visascout/pkg/utils"
)

// SearchHandler runs one synchronous visa-filtered job search
func SearchHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		logger := logging.GetGlobalLogger()

		var req models.SearchQuery
		if err := bindAndValidate(c, &req); err != nil {
			return writeError(c, err)
		}

		logger.Info("Search request received", map[string]interface{}{
			"user_id":   req.UserID,
			"job_title": req.JobTitle,
			"location":  req.Location,
		})

		response, err := svc.Search(c.Request().Context(), req)
		if err != nil {
			return writeError(c, err)
		}

		logger.Info("Search request completed", map[string]interface{}{
			"user_id":       req.UserID,
			"session_id":    response.SearchSession.SessionID,
			"returned_jobs": response.Stats.ReturnedJobs,
			"cache_hit":     response.Stats.CacheHit,
		})
		return c.JSON(http.StatusOK, response)
	}
}

// ClearSessionHandler drops one cached search session
func ClearSessionHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		sessionID := c.Param("session_id")
		userID := c.QueryParam("user_id")
		if userID == "" {
			return writeError(c, utils.NewValidationError("user_id is required"))
		}
		if err := svc.ClearSearchSession(userID, sessionID); err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"session_id": sessionID,
			"cleared":    true,
		})
	}
}

// StartRunHandler accepts a query for chunked background execution
func StartRunHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.SearchQuery
		if err := bindAndValidate(c, &req); err != nil {
			return writeError(c, err)
		}
		response, err := svc.StartRun(req)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusAccepted, response)
	}
}

// RunStatusHandler polls a background run past a cursor
func RunStatusHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.QueryParam("user_id")
		if userID == "" {
			return writeError(c, utils.NewValidationError("user_id is required"))
		}
		response, err := svc.RunStatus(userID, c.Param("run_id"), queryInt(c, "cursor", 0))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, response)
	}
}

// CancelRunHandler requests cooperative cancellation of a run
func CancelRunHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req struct {
			UserID string `json:"user_id" validate:"required"`
		}
		if err := bindAndValidate(c, &req); err != nil {
			return writeError(c, err)
		}
		response, err := svc.CancelRun(req.UserID, c.Param("run_id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, response)
	}
}

// RunResultsHandler serves a page of results from a completed run
func RunResultsHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.RunResultsRequest
		if err := c.Bind(&req); err != nil {
			return writeError(c, utils.NewBadRequestError("Invalid request format"))
		}
		req.RunID = c.Param("run_id")
		if err := validate.Struct(&req); err != nil {
			return writeError(c, utils.NewValidationError(err.Error()))
		}
		response, err := svc.RunResults(req)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, response)
	}
}
