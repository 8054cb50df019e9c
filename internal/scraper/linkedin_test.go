package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visascout/internal/config"
	"visascout/internal/logging"
	"visascout/internal/scan"
	"visascout/pkg/utils"
)

func searchCard(i int) string {
	return fmt.Sprintf(`
<div class="base-search-card">
  <a class="base-card__full-link" href="https://www.linkedin.com/jobs/view/%d?refId=track-me"></a>
  <h3 class="base-search-card__title">Backend Engineer %d</h3>
  <h4 class="base-search-card__subtitle">Acme Inc.</h4>
  <span class="job-search-card__location">Sydney, NSW</span>
  <time datetime="2026-08-20"></time>
</div>`, i, i)
}

func newTestClient(t *testing.T, handler http.Handler) (*LinkedInClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Scraper.RequestsPerSecond = 1000
	cfg.Scraper.Burst = 1000

	client := NewLinkedInClient(cfg, logging.NewMultiLogger(logging.ErrorLevel))
	client.searchURL = server.URL + "/search"
	client.fetchDetails = false
	return client, server
}

func TestScrapePagesThroughResults(t *testing.T) {
	var starts []int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		starts = append(starts, start)
		assert.Equal(t, "backend engineer", r.URL.Query().Get("keywords"))
		assert.Equal(t, "r604800", r.URL.Query().Get("f_TPR"))

		// Two full pages, then a short one.
		count := 25
		if start >= 50 {
			count = 5
		}
		for i := 0; i < count; i++ {
			fmt.Fprint(w, searchCard(start+i))
		}
	})
	client, _ := newTestClient(t, handler)

	postings, err := client.Scrape(context.Background(), scan.ScrapeRequest{
		Sites:         []string{"linkedin"},
		Term:          "backend engineer",
		Location:      "Sydney",
		ResultsWanted: 100,
		HoursOld:      168,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 25, 50}, starts)
	assert.Len(t, postings, 55)

	first := postings[0]
	assert.Equal(t, "Backend Engineer 0", first.Title)
	assert.Equal(t, "Acme Inc.", first.Company)
	assert.Equal(t, "Sydney, NSW", first.Location)
	assert.Equal(t, "linkedin", first.Site)
	assert.Equal(t, "2026-08-20", first.DatePosted)
	// Tracking query parameters are stripped.
	assert.Equal(t, "https://www.linkedin.com/jobs/view/0", first.JobURL)
}

func TestScrapeStopsAtRequestedCount(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 25; i++ {
			fmt.Fprint(w, searchCard(i))
		}
	})
	client, _ := newTestClient(t, handler)

	postings, err := client.Scrape(context.Background(), scan.ScrapeRequest{
		Term:          "engineer",
		Location:      "Sydney",
		ResultsWanted: 10,
	})
	require.NoError(t, err)
	assert.Len(t, postings, 10)
}

func TestScrapeRateLimitClassified(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	client, _ := newTestClient(t, handler)

	_, err := client.Scrape(context.Background(), scan.ScrapeRequest{
		Term:          "engineer",
		Location:      "Sydney",
		ResultsWanted: 10,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrRateLimited)
	assert.True(t, scan.IsRateLimited(err))
}

func TestScrapeSkipsUnrequestedSite(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	client, _ := newTestClient(t, handler)

	postings, err := client.Scrape(context.Background(), scan.ScrapeRequest{
		Sites:         []string{"indeed"},
		Term:          "engineer",
		Location:      "Sydney",
		ResultsWanted: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, postings)
	assert.False(t, called)
}

func TestFetchDetailsFillsDescriptions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchCard(1))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<div class="show-more-less-html__markup">We  offer
			visa sponsorship for strong candidates.</div>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Scraper.RequestsPerSecond = 1000
	cfg.Scraper.Burst = 1000
	client := NewLinkedInClient(cfg, logging.NewMultiLogger(logging.ErrorLevel))
	client.searchURL = server.URL + "/search"

	// Rewrite the card URL to point at the test server.
	postings := parseSearchHTML(fmt.Sprintf(`
<div class="base-search-card">
  <a class="base-card__full-link" href="%s/jobs/view/1"></a>
  <h3 class="base-search-card__title">Engineer</h3>
  <h4 class="base-search-card__subtitle">Acme</h4>
</div>`, server.URL))
	require.Len(t, postings, 1)

	description, err := client.fetchDescription(context.Background(), postings[0].JobURL)
	require.NoError(t, err)
	assert.Equal(t, "We offer visa sponsorship for strong candidates.", description)
}

func TestParseDescriptionFallbackSelector(t *testing.T) {
	html := `<div class="decorated show-more-less-html__markup more">Sponsor H-1B.</div>`
	assert.Equal(t, "Sponsor H-1B.", parseDescriptionHTML(html))
}
