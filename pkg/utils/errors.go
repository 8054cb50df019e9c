package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// CustomError represents a custom application error
type CustomError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (e *CustomError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

// Sentinel errors callers branch on with errors.Is
var (
	// ErrRateLimited means the upstream source kept rate limiting for the
	// whole configured retry window.
	ErrRateLimited = errors.New("rate limited")
	// ErrScrapeTimeout means a single scrape attempt exceeded its hard
	// timeout. Not retried by the backoff wrapper.
	ErrScrapeTimeout = errors.New("scrape attempt timed out")
	// ErrRunCancelled signals cooperative cancellation of a background run.
	ErrRunCancelled = errors.New("search run cancelled")
)

// Common error constructors
func NewBadRequestError(message string) *CustomError {
	return &CustomError{
		Code:    http.StatusBadRequest,
		Message: message,
	}
}

func NewInternalServerError(message string) *CustomError {
	return &CustomError{
		Code:    http.StatusInternalServerError,
		Message: message,
	}
}

func NewValidationError(detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusBadRequest,
		Message: "Validation failed",
		Detail:  detail,
	}
}

// NewReferenceError covers unknown/expired/mismatched session, run, result
// and job references. Never reinterpreted, always surfaced.
func NewReferenceError(detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusNotFound,
		Message: "Unknown reference",
		Detail:  detail,
	}
}

// NewRateLimitError is returned once the retry window is exhausted
func NewRateLimitError(detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusTooManyRequests,
		Message: "Upstream source is rate limiting; wait a few minutes and retry the same call",
		Detail:  detail,
	}
}

// NewTimeoutError carries resume guidance for the same session or run id
func NewTimeoutError(detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusRequestTimeout,
		Message: "Operation timed out; resume with the same session_id or run_id",
		Detail:  detail,
	}
}

// NewDataError covers invalid or incomplete dataset input
func NewDataError(detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusUnprocessableEntity,
		Message: "Dataset is invalid",
		Detail:  detail,
	}
}
