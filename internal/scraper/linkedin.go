package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"visascout/internal/config"
	"visascout/internal/logging"
	"visascout/internal/scan"
	"visascout/pkg/models"
	"visascout/pkg/utils"
)

const (
	linkedInSearchURL = "https://www.linkedin.com/jobs-guest/jobs/api/seeMoreJobPostings/search"
	// The guest endpoint serves fixed pages of 25 cards.
	linkedInPageSize = 25
)

// LinkedInClient scrapes the LinkedIn guest search endpoint. All requests
// pass through one token-bucket limiter so widening scans never burst.
type LinkedInClient struct {
	http      *resty.Client
	limiter   *rate.Limiter
	log       logging.Logger
	searchURL string
	// fetchDetails controls whether each card gets a follow-up request for
	// its full description. Descriptions drive the acceptance signals, so
	// this is on everywhere except tests.
	fetchDetails bool
}

// NewLinkedInClient builds a client from the scraper config section
func NewLinkedInClient(cfg *config.Config, log logging.Logger) *LinkedInClient {
	client := resty.New()
	client.SetTimeout(cfg.Scraper.RequestTimeout)
	client.SetRetryCount(0)
	client.SetHeader("User-Agent", cfg.Scraper.UserAgent)
	client.SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	client.SetHeader("Accept-Language", "en-US,en;q=0.9")
	client.SetHeader("Cache-Control", "no-cache")
	client.SetHeader("Pragma", "no-cache")
	client.SetHeader("Upgrade-Insecure-Requests", "1")

	return &LinkedInClient{
		http:         client,
		limiter:      rate.NewLimiter(rate.Limit(cfg.Scraper.RequestsPerSecond), cfg.Scraper.Burst),
		log:          log.WithField("component", "linkedin_scraper"),
		searchURL:    linkedInSearchURL,
		fetchDetails: true,
	}
}

// Scrape pages through the guest endpoint until the requested count is
// collected or a short page signals the source is dry.
func (c *LinkedInClient) Scrape(ctx context.Context, req scan.ScrapeRequest) ([]models.Posting, error) {
	if !siteRequested(req.Sites, "linkedin") {
		return nil, nil
	}

	var postings []models.Posting
	for start := 0; len(postings) < req.ResultsWanted; start += linkedInPageSize {
		page, err := c.fetchSearchPage(ctx, req, start)
		if err != nil {
			return postings, err
		}
		if len(page) == 0 {
			break
		}
		for i := range page {
			if c.fetchDetails {
				description, err := c.fetchDescription(ctx, page[i].JobURL)
				if err != nil {
					return postings, err
				}
				page[i].Description = description
			}
			postings = append(postings, page[i])
			if len(postings) >= req.ResultsWanted {
				break
			}
		}
		if len(page) < linkedInPageSize {
			break
		}
	}

	c.log.Debug("LinkedIn scrape finished", map[string]interface{}{
		"requested": req.ResultsWanted,
		"scraped":   len(postings),
	})
	return postings, nil
}

func (c *LinkedInClient) fetchSearchPage(ctx context.Context, req scan.ScrapeRequest, start int) ([]models.Posting, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := map[string]string{
		"keywords": req.Term,
		"location": req.Location,
		"start":    strconv.Itoa(start),
	}
	if req.HoursOld > 0 {
		params["f_TPR"] = fmt.Sprintf("r%d", req.HoursOld*3600)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(c.searchURL)
	if err != nil {
		return nil, fmt.Errorf("linkedin search request failed: %w", err)
	}
	if resp.StatusCode() == 429 {
		return nil, fmt.Errorf("linkedin search returned 429: %w", utils.ErrRateLimited)
	}
	if resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("linkedin search returned status %d", resp.StatusCode())
	}
	return parseSearchHTML(string(resp.Body())), nil
}

func (c *LinkedInClient) fetchDescription(ctx context.Context, jobURL string) (string, error) {
	if jobURL == "" {
		return "", nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	resp, err := c.http.R().SetContext(ctx).Get(jobURL)
	if err != nil {
		return "", fmt.Errorf("linkedin job page request failed: %w", err)
	}
	if resp.StatusCode() == 429 {
		return "", fmt.Errorf("linkedin job page returned 429: %w", utils.ErrRateLimited)
	}
	if resp.StatusCode() >= 400 {
		// A single dead posting page is not worth failing the whole scan.
		c.log.Warn("LinkedIn job page unavailable", map[string]interface{}{
			"job_url": jobURL,
			"status":  resp.StatusCode(),
		})
		return "", nil
	}
	return parseDescriptionHTML(string(resp.Body())), nil
}

// parseSearchHTML extracts posting cards from a guest search result page
func parseSearchHTML(html string) []models.Posting {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var postings []models.Posting
	doc.Find("div.base-search-card").Each(func(_ int, card *goquery.Selection) {
		href, _ := card.Find("a.base-card__full-link").Attr("href")
		jobURL := stripQuery(href)
		if jobURL == "" {
			return
		}
		posting := models.Posting{
			Title:    firstNonEmptyText(card, "h3.base-search-card__title", "span.sr-only"),
			Company:  strings.TrimSpace(card.Find("h4.base-search-card__subtitle").Text()),
			Location: strings.TrimSpace(card.Find("span.job-search-card__location").First().Text()),
			Site:     "linkedin",
			JobURL:   jobURL,
		}
		if datetime, ok := card.Find("time").First().Attr("datetime"); ok {
			posting.DatePosted = strings.TrimSpace(datetime)
		}
		postings = append(postings, posting)
	})
	return postings
}

// parseDescriptionHTML extracts the full description text from a job page
func parseDescriptionHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	markup := doc.Find("div.show-more-less-html__markup").First()
	if markup.Length() == 0 {
		markup = doc.Find("div[class*='show-more-less-html__markup']").First()
	}
	return normalizeWhitespace(markup.Text())
}

// stripQuery drops tracking parameters so the URL doubles as a dedupe key
func stripQuery(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	parsed.RawQuery = ""
	return parsed.String()
}

func firstNonEmptyText(selection *goquery.Selection, selectors ...string) string {
	for _, selector := range selectors {
		if text := strings.TrimSpace(selection.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func siteRequested(sites []string, site string) bool {
	if len(sites) == 0 {
		return true
	}
	for _, s := range sites {
		if strings.EqualFold(strings.TrimSpace(s), site) {
			return true
		}
	}
	return false
}
