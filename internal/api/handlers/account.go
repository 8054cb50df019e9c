package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"visascout/internal/service"
)

// SetVisaPreferencesHandler replaces a user's preferred visa types
func SetVisaPreferencesHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req struct {
			VisaTypes []string `json:"preferred_visa_types" validate:"required,min=1"`
		}
		if err := bindAndValidate(c, &req); err != nil {
			return writeError(c, err)
		}
		prefs, err := svc.SetVisaPreferences(c.Param("user_id"), req.VisaTypes)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, prefs)
	}
}

// SetConstraintsHandler merges optional onboarding constraints
func SetConstraintsHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req struct {
			DaysRemaining     *int     `json:"days_remaining,omitempty"`
			WorkModes         []string `json:"work_modes,omitempty"`
			WillingToRelocate *bool    `json:"willing_to_relocate,omitempty"`
		}
		if err := bindAndValidate(c, &req); err != nil {
			return writeError(c, err)
		}
		constraints, err := svc.SetConstraints(c.Param("user_id"), req.DaysRemaining, req.WorkModes, req.WillingToRelocate)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, constraints)
	}
}

// GetPreferencesHandler returns a user's stored profile
func GetPreferencesHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		prefs, found, err := svc.GetPreferences(c.Param("user_id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"found":       found,
			"preferences": prefs,
		})
	}
}

// ReadinessReportHandler summarizes onboarding state and pipeline counts
func ReadinessReportHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		report, err := svc.Readiness(c.Param("user_id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, report)
	}
}

// ExportUserHandler returns everything stored about one user
func ExportUserHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		export, err := svc.ExportUserData(c.Param("user_id"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, export)
	}
}

// DeleteUserHandler removes all stored data for one user
func DeleteUserHandler(svc *service.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		confirm := c.QueryParam("confirm") == "true"
		summary, err := svc.DeleteUserData(c.Param("user_id"), confirm)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, summary)
	}
}
