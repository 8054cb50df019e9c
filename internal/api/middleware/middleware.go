package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"visascout/pkg/models"
	"visascout/pkg/utils"
)

// maxBodyBytes bounds POST bodies. Every request body in this API is a
// small JSON document; anything past this is malformed or hostile.
const maxBodyBytes = 1 << 20

// RequestValidation tags every request with an opaque id (echoed in the
// X-Request-ID response header) and rejects oversized POST bodies before
// they reach a handler.
func RequestValidation() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := utils.NewRequestID()
			c.Set("request_id", requestID)
			c.Response().Header().Set("X-Request-ID", requestID)

			if c.Request().Method == http.MethodPost && c.Request().ContentLength > maxBodyBytes {
				return c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
					Error:   "request_too_large",
					Message: "Request body too large",
				})
			}

			return next(c)
		}
	}
}

// CORS permits any origin. The service fronts a local tool-calling agent,
// so there is no origin allowlist to maintain and no credentials to guard.
func CORS() echo.MiddlewareFunc {
	return echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		MaxAge:       3600,
	})
}

// Timeout bounds one request's handler. Search routes carry a limit wider
// than the scan's soft budget so the controller, not the transport, decides
// when a search is out of time.
func Timeout(limit time.Duration) echo.MiddlewareFunc {
	return echomiddleware.TimeoutWithConfig(echomiddleware.TimeoutConfig{
		Timeout:      limit,
		ErrorMessage: `{"error":"Request Timeout","message":"request exceeded its time budget"}`,
	})
}
