package routes

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"visascout/internal/api/handlers"
	"visascout/internal/api/middleware"
	"visascout/internal/config"
	"visascout/internal/service"
)

// SetupRoutes configures all API routes
func SetupRoutes(e *echo.Echo, cfg *config.Config, svc *service.Service) {
	// Global middleware
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestValidation())

	// Health check routes
	health := e.Group("/health")
	{
		health.GET("", handlers.HealthHandler)
		health.GET("/ready", handlers.ReadinessHandler)
		health.GET("/live", handlers.LivenessHandler)
	}

	// API v1 routes
	v1 := e.Group("/api/v1")
	{
		// Synchronous search runs up to its soft budget, so it gets a wider
		// timeout than the bookkeeping endpoints.
		search := v1.Group("/search", middleware.Timeout(cfg.Search.SoftBudget+30*time.Second))
		{
			search.POST("", handlers.SearchHandler(svc))
			search.DELETE("/sessions/:session_id", handlers.ClearSessionHandler(svc))
		}

		runs := v1.Group("/search/runs", middleware.Timeout(cfg.Server.ReadTimeout))
		{
			runs.POST("", handlers.StartRunHandler(svc))
			runs.GET("/:run_id", handlers.RunStatusHandler(svc))
			runs.POST("/:run_id/cancel", handlers.CancelRunHandler(svc))
			runs.POST("/:run_id/results", handlers.RunResultsHandler(svc))
		}

		jobs := v1.Group("/jobs", middleware.Timeout(cfg.Server.ReadTimeout))
		{
			jobs.GET("", handlers.ListByStageHandler(svc))
			jobs.POST("/stage", handlers.SetStageHandler(svc))
			jobs.POST("/applied", handlers.MarkAppliedHandler(svc))
			jobs.POST("/notes", handlers.AddNoteHandler(svc))
			jobs.POST("/save", handlers.SaveJobHandler(svc))
			jobs.GET("/saved", handlers.ListSavedHandler(svc))
			jobs.DELETE("/saved/:id", handlers.DeleteSavedHandler(svc))
			jobs.POST("/ignore", handlers.IgnoreJobHandler(svc))
			jobs.GET("/ignored", handlers.ListIgnoredHandler(svc))
			jobs.DELETE("/ignored/:id", handlers.UnignoreHandler(svc))
			jobs.GET("/events", handlers.RecentEventsHandler(svc))
			jobs.GET("/pipeline", handlers.PipelineSummaryHandler(svc))
		}

		users := v1.Group("/users", middleware.Timeout(cfg.Server.ReadTimeout))
		{
			users.PUT("/:user_id/preferences/visas", handlers.SetVisaPreferencesHandler(svc))
			users.PUT("/:user_id/preferences/constraints", handlers.SetConstraintsHandler(svc))
			users.GET("/:user_id/preferences", handlers.GetPreferencesHandler(svc))
			users.GET("/:user_id/readiness", handlers.ReadinessReportHandler(svc))
			users.GET("/:user_id/export", handlers.ExportUserHandler(svc))
			users.DELETE("/:user_id", handlers.DeleteUserHandler(svc))
		}
	}

	// Root route
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"service": "VisaScout Job Search",
			"version": "1.0.0",
			"status":  "running",
		})
	})
}
