package scan

import (
	"context"
	"time"

	"visascout/internal/logging"
	"visascout/internal/match"
	"visascout/pkg/models"
)

// Controller widens scrape targets until a page can be filled or the scan
// budget is spent. Sleep and clock are injectable so backoff behavior is
// testable without wall time.
type Controller struct {
	scraper Scraper
	policy  RetryPolicy
	log     logging.Logger
	sleep   func(time.Duration)
	now     func() time.Time
}

// NewController wires a controller around a scraper and retry policy
func NewController(scraper Scraper, policy RetryPolicy, log logging.Logger) *Controller {
	return &Controller{
		scraper: scraper,
		policy:  policy,
		log:     log,
		sleep:   time.Sleep,
		now:     time.Now,
	}
}

// Input is everything one scan loop needs
type Input struct {
	Sites    []string
	Term     string
	Location string
	Country  string
	HoursOld int

	// Needed is offset + max_returned: the accepted count that fills the page.
	Needed         int
	ResultsWanted  int
	MaxReturned    int
	ScanMultiplier int
	MaxScanResults int
	// CachedTarget carries the session's previous scan depth so a resumed
	// search never shrinks its target.
	CachedTarget int

	Table    match.CompanyTable
	Criteria match.Criteria

	// Deadline is the soft wall-clock budget. Zero means unbounded. When it
	// passes mid-loop the controller stops expanding and marks the outcome
	// resumable instead of exhausted.
	Deadline time.Time
}

// Outcome is the result of one scan loop (possibly partial)
type Outcome struct {
	Accepted          []models.AcceptedResult
	ScrapedJobs       int
	Attempts          []models.ScanAttempt
	RetryAttempts     int
	BackoffSeconds    float64
	FinalTarget       int
	ScanExhausted     bool
	PossiblyResumable bool
}

// StepResult is one scrape-evaluate pass at a fixed target
type StepResult struct {
	Accepted []models.AcceptedResult
	Scraped  int
	Attempt  models.ScanAttempt
	Retry    RetryStats
}

// InitialTarget picks the first scrape depth: the largest of the explicit
// results_wanted, the page requirement amplified by the multiplier, and the
// session's cached depth, capped at the scan ceiling.
func InitialTarget(resultsWanted, needed, multiplier, cachedTarget, maxScan int) int {
	target := resultsWanted
	if multiplier > 0 && needed*multiplier > target {
		target = needed * multiplier
	}
	if cachedTarget > target {
		target = cachedTarget
	}
	if maxScan > 0 && target > maxScan {
		target = maxScan
	}
	return target
}

// NextTarget advances the scrape depth one step: at least double, at least
// one multiplied page more, never past the ceiling.
func NextTarget(current, maxReturned, multiplier, maxScan int) int {
	next := current * 2
	if step := current + maxReturned*multiplier; step > next {
		next = step
	}
	if maxScan > 0 && next > maxScan {
		next = maxScan
	}
	return next
}

// Step performs one bounded scrape at the given target and evaluates the
// whole raw batch. Background runs call this directly, one chunk per
// scheduling slot.
func (c *Controller) Step(ctx context.Context, in Input, target int) (*StepResult, error) {
	raw, retry, err := c.scrapeWithRetry(ctx, ScrapeRequest{
		Sites:         in.Sites,
		Term:          in.Term,
		Location:      in.Location,
		Country:       in.Country,
		ResultsWanted: target,
		HoursOld:      in.HoursOld,
	})
	if err != nil {
		return nil, err
	}

	accepted := match.EvaluateBatch(raw, in.Table, in.Criteria)
	c.log.Debug("Scan step complete", map[string]interface{}{
		"target":   target,
		"scraped":  len(raw),
		"accepted": len(accepted),
	})
	return &StepResult{
		Accepted: accepted,
		Scraped:  len(raw),
		Attempt: models.ScanAttempt{
			ResultsWanted: target,
			ScrapedJobs:   len(raw),
			AcceptedJobs:  len(accepted),
		},
		Retry: retry,
	}, nil
}

// Run loops Step with expanding targets until the page is filled, the
// source runs dry, the ceiling is reached, or the soft budget is spent.
// Errors surface alongside the partial outcome gathered so far.
func (c *Controller) Run(ctx context.Context, in Input) (*Outcome, error) {
	target := InitialTarget(in.ResultsWanted, in.Needed, in.ScanMultiplier, in.CachedTarget, in.MaxScanResults)
	outcome := &Outcome{FinalTarget: target}

	for {
		step, err := c.Step(ctx, in, target)
		outcome.FinalTarget = target
		if err != nil {
			return outcome, err
		}

		// Each scrape returns the full set up to target, so the evaluation
		// replaces rather than appends.
		outcome.Accepted = step.Accepted
		outcome.ScrapedJobs = step.Scraped
		outcome.Attempts = append(outcome.Attempts, step.Attempt)
		outcome.RetryAttempts += step.Retry.Attempts
		outcome.BackoffSeconds += step.Retry.BackoffSeconds

		if len(step.Accepted) >= in.Needed {
			return outcome, nil
		}
		if step.Scraped < target {
			outcome.ScanExhausted = true
			return outcome, nil
		}
		if in.MaxScanResults > 0 && target >= in.MaxScanResults {
			outcome.ScanExhausted = true
			return outcome, nil
		}
		next := NextTarget(target, in.MaxReturned, in.ScanMultiplier, in.MaxScanResults)
		if next <= target {
			outcome.ScanExhausted = true
			return outcome, nil
		}
		if !in.Deadline.IsZero() && !c.now().Before(in.Deadline) {
			outcome.PossiblyResumable = true
			return outcome, nil
		}
		target = next
	}
}
