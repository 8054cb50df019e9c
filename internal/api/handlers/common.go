package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"visascout/internal/logging"
	"visascout/pkg/models"
	"visascout/pkg/utils"
)

var validate = validator.New()

// bindAndValidate decodes a JSON body and runs struct validation
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return utils.NewBadRequestError("Invalid request format")
	}
	if err := validate.Struct(req); err != nil {
		return utils.NewValidationError(err.Error())
	}
	return nil
}

// writeError maps application errors to their HTTP responses. Anything
// untyped is a 500 with the detail withheld from the client.
func writeError(c echo.Context, err error) error {
	var custom *utils.CustomError
	if errors.As(err, &custom) {
		return c.JSON(custom.Code, models.ErrorResponse{
			Error:   http.StatusText(custom.Code),
			Message: custom.Message,
			Detail:  custom.Detail,
		})
	}

	logging.GetGlobalLogger().Error("Unhandled request error", map[string]interface{}{
		"request_id": c.Response().Header().Get("X-Request-ID"),
		"error":      err.Error(),
	})
	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   http.StatusText(http.StatusInternalServerError),
		Message: "Internal server error",
	})
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
