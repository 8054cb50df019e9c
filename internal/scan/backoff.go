package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"visascout/pkg/models"
	"visascout/pkg/utils"
)

// ScrapeRequest asks a source for up to ResultsWanted postings
type ScrapeRequest struct {
	Sites         []string
	Term          string
	Location      string
	Country       string
	ResultsWanted int
	HoursOld      int
}

// Scraper fetches raw postings from one or more job boards
type Scraper interface {
	Scrape(ctx context.Context, req ScrapeRequest) ([]models.Posting, error)
}

var rateLimitMarkers = []string{"429", "rate limit", "ratelimit", "too many requests"}

// IsRateLimited classifies an upstream error as a rate limit by message
// content; scraper clients rarely type these.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, utils.ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// RetryPolicy bounds the backoff loop around a single scrape target
type RetryPolicy struct {
	// Window caps the total time spent sleeping between rate-limited
	// attempts. Once spent, the whole call fails.
	Window time.Duration
	// InitialBackoff is the first sleep; it doubles per retry up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// AttemptTimeout bounds one scrape attempt. A timed-out attempt is never
	// retried; the caller resumes via its session instead.
	AttemptTimeout time.Duration
}

// RetryStats reports what the backoff loop spent getting one result
type RetryStats struct {
	Attempts       int
	BackoffSeconds float64
}

// scrapeWithRetry runs one scrape target through the rate-limit backoff
// loop. Each sleep is min(current backoff, ceiling, time left in the
// window); a retry that would start past the window fails with a rate
// limit error instead.
func (c *Controller) scrapeWithRetry(ctx context.Context, req ScrapeRequest) ([]models.Posting, RetryStats, error) {
	stats := RetryStats{}
	deadline := c.now().Add(c.policy.Window)
	backoff := c.policy.InitialBackoff

	for {
		attemptCtx := ctx
		cancel := func() {}
		if c.policy.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, c.policy.AttemptTimeout)
		}
		postings, err := c.scraper.Scrape(attemptCtx, req)
		cancel()
		if err == nil {
			return postings, stats, nil
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, utils.ErrScrapeTimeout) {
			return nil, stats, utils.NewTimeoutError(fmt.Sprintf("scrape attempt for %d results exceeded %s", req.ResultsWanted, c.policy.AttemptTimeout))
		}
		if !IsRateLimited(err) {
			return nil, stats, err
		}

		remaining := deadline.Sub(c.now())
		if remaining <= 0 {
			return nil, stats, utils.NewRateLimitError(fmt.Sprintf("retry window of %s exhausted after %d retries", c.policy.Window, stats.Attempts))
		}
		sleep := backoff
		if c.policy.MaxBackoff > 0 && sleep > c.policy.MaxBackoff {
			sleep = c.policy.MaxBackoff
		}
		if sleep > remaining {
			sleep = remaining
		}
		c.log.Warn("Upstream rate limited, backing off", map[string]interface{}{
			"sleep_seconds": sleep.Seconds(),
			"retry":         stats.Attempts + 1,
		})
		c.sleep(sleep)
		stats.Attempts++
		stats.BackoffSeconds += sleep.Seconds()
		backoff *= 2
	}
}
