package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visascout/pkg/models"
)

type fakeTable map[string]*CompanyRow

func (t fakeTable) Lookup(normalized string) (*CompanyRow, bool) {
	row, ok := t[normalized]
	return row, ok
}

func acmeTable() fakeTable {
	return fakeTable{
		"acme": {
			CompanyName: "Acme Inc.",
			CompanyTier: "large",
			Counts:      map[string]int{VisaH1B: 12},
			TotalVisas:  12,
			Contacts: []models.Contact{
				{Name: "Dana Reyes", Title: "Immigration Lead", Email: "dana@acme.example", Phone: "+1 555 0100"},
			},
		},
	}
}

func TestNormalizeCompanyName(t *testing.T) {
	assert.Equal(t, "acme", NormalizeCompanyName("Acme Inc."))
	assert.Equal(t, "acme", NormalizeCompanyName("ACME, LLC"))
	assert.Equal(t, "acme", NormalizeCompanyName("Acme Holdings Group Inc"))
	assert.Equal(t, "data bricks", NormalizeCompanyName("Data-Bricks Technologies Ltd."))
	assert.Equal(t, "", NormalizeCompanyName("NaN"))
	assert.Equal(t, "", NormalizeCompanyName("n/a"))
	assert.Equal(t, "", NormalizeCompanyName("   "))
}

func TestDetectSignals(t *testing.T) {
	positive, negative, hits := DetectSignals("We offer visa sponsorship and H1B transfers.")
	assert.True(t, positive)
	assert.False(t, negative)
	assert.NotEmpty(t, hits)

	positive, negative, _ = DetectSignals("Candidates must be authorized to work. No visa sponsorship.")
	assert.True(t, negative)
	// "sponsorship" alone also matches the generic positive cue.
	assert.True(t, positive)

	positive, negative, hits = DetectSignals("A plain description.")
	assert.False(t, positive)
	assert.False(t, negative)
	assert.Empty(t, hits)
}

func TestVisaTypesFromDescription(t *testing.T) {
	types := VisaTypesFromDescription("H-1B and E3 welcome")
	assert.Contains(t, types, VisaH1B)
	assert.Contains(t, types, VisaE3Australian)

	types = VisaTypesFromDescription("H-1B1 treaty visa for Chile nationals")
	assert.Contains(t, types, VisaH1B1Chile)
	assert.NotContains(t, types, VisaH1B1Singapore)

	types = VisaTypesFromDescription("green card via PERM")
	assert.Contains(t, types, VisaGreenCard)

	assert.Empty(t, VisaTypesFromDescription("no immigration content"))
}

func TestNormalizeVisaType(t *testing.T) {
	for alias, want := range map[string]string{
		"H-1B":       VisaH1B,
		"perm":       VisaGreenCard,
		"E-3":        VisaE3Australian,
		"h1b1 chile": VisaH1B1Chile,
	} {
		got, err := NormalizeVisaType(alias)
		require.NoError(t, err, alias)
		assert.Equal(t, want, got, alias)
	}

	_, err := NormalizeVisaType("o1")
	assert.Error(t, err)
}

func TestEvaluateEndToEnd(t *testing.T) {
	table := acmeTable()
	criteria := Criteria{
		DesiredVisaTypes: []string{VisaH1B},
		StrictnessMode:   models.StrictnessStrict,
	}

	postings := []models.Posting{
		{Title: "Backend Engineer", Company: "Acme Inc.", JobURL: "https://jobs.example/1", Description: "Build services in Go."},
		{Title: "Data Engineer", Company: "Unlisted Co", JobURL: "https://jobs.example/2", Description: "H-1B candidates encouraged to apply."},
		{Title: "Analyst", Company: "Refusal Corp", JobURL: "https://jobs.example/3", Description: "No visa sponsorship available."},
	}

	results := EvaluateBatch(postings, table, criteria)
	require.Len(t, results, 2)

	byURL := map[string]models.AcceptedResult{}
	for _, r := range results {
		byURL[r.JobURL] = r
	}
	acme := byURL["https://jobs.example/1"]
	assert.True(t, acme.MatchedViaCompany)
	assert.False(t, acme.MatchedViaDescription)
	assert.Equal(t, 12, acme.VisaCounts[VisaH1B])
	assert.Equal(t, []string{"H-1B"}, acme.VisasSponsored)
	require.NotNil(t, acme.SponsorStats)
	assert.Equal(t, "Acme Inc.", acme.SponsorStats.CompanyName)

	desc := byURL["https://jobs.example/2"]
	assert.False(t, desc.MatchedViaCompany)
	assert.True(t, desc.MatchedViaDescription)
}

func TestEvaluateScores(t *testing.T) {
	table := acmeTable()
	criteria := Criteria{DesiredVisaTypes: []string{VisaH1B}, StrictnessMode: models.StrictnessStrict}

	record, ok := Evaluate(models.Posting{
		Title:       "Engineer",
		Company:     "Acme Inc.",
		JobURL:      "https://jobs.example/acme",
		Description: "We sponsor H-1B visas.",
	}, table, criteria)
	require.True(t, ok)

	// company 0.65 + positive cue 0.20 + preference 0.10 + contactable 0.05
	assert.InDelta(t, 1.0, record.ConfidenceScore, 1e-9)
	// email 0.6 + phone 0.25 + name 0.1 + title 0.05
	assert.InDelta(t, 1.0, record.ContactabilityScore, 1e-9)
	assert.Equal(t, ConfidenceModelVersion, record.ConfidenceModelVersion)

	record, ok = Evaluate(models.Posting{
		Title:       "Engineer",
		Company:     "Unlisted Co",
		JobURL:      "https://jobs.example/u",
		Description: "H-1B sponsorship offered.",
	}, table, criteria)
	require.True(t, ok)
	assert.InDelta(t, 0.30, record.ConfidenceScore, 1e-9)
	assert.Zero(t, record.ContactabilityScore)
}

func TestBalancedModeGenericLanguage(t *testing.T) {
	posting := models.Posting{
		Title:       "Engineer",
		Company:     "Unlisted Co",
		JobURL:      "https://jobs.example/g",
		Description: "Visa sponsorship available for the right candidate.",
	}

	_, ok := Evaluate(posting, fakeTable{}, Criteria{
		DesiredVisaTypes: []string{VisaE3Australian},
		StrictnessMode:   models.StrictnessStrict,
	})
	assert.False(t, ok, "strict mode rejects generic language")

	record, ok := Evaluate(posting, fakeTable{}, Criteria{
		DesiredVisaTypes: []string{VisaE3Australian},
		StrictnessMode:   models.StrictnessBalanced,
	})
	require.True(t, ok, "balanced mode accepts generic language")
	assert.Contains(t, record.EligibilityReasons, "Accepted in balanced mode using generic sponsorship language.")
}

func TestSpecificMismatchPrecedence(t *testing.T) {
	// Description names only E-3 while the user wants H-1B.
	posting := models.Posting{
		Title:       "Engineer",
		Company:     "Acme Inc.",
		JobURL:      "https://jobs.example/m",
		Description: "E-3 visa sponsorship for Australian citizens.",
	}

	// Company history proving the requested type overrides the mismatch.
	record, ok := Evaluate(posting, acmeTable(), Criteria{
		DesiredVisaTypes: []string{VisaH1B},
		StrictnessMode:   models.StrictnessBalanced,
	})
	require.True(t, ok)
	assert.True(t, record.MatchesUserPreferences)

	// Without company proof the mismatch always rejects, in both modes.
	posting.Company = "Unlisted Co"
	for _, mode := range []string{models.StrictnessStrict, models.StrictnessBalanced} {
		_, ok := Evaluate(posting, fakeTable{}, Criteria{
			DesiredVisaTypes: []string{VisaH1B},
			StrictnessMode:   mode,
		})
		assert.False(t, ok, mode)
	}
}

func TestNegativeCueAlwaysRejects(t *testing.T) {
	// Even a dataset-matched company cannot survive a refusal phrase.
	_, ok := Evaluate(models.Posting{
		Title:       "Engineer",
		Company:     "Acme Inc.",
		JobURL:      "https://jobs.example/n",
		Description: "We are unable to sponsor visas at this time.",
	}, acmeTable(), Criteria{StrictnessMode: models.StrictnessStrict})
	assert.False(t, ok)
}

func TestRequireDescriptionSignal(t *testing.T) {
	posting := models.Posting{
		Title:       "Engineer",
		Company:     "Acme Inc.",
		JobURL:      "https://jobs.example/r",
		Description: "Plain description with no cues.",
	}

	_, ok := Evaluate(posting, acmeTable(), Criteria{
		RequireDescriptionSignal: true,
		StrictnessMode:           models.StrictnessStrict,
	})
	assert.False(t, ok, "company match alone does not satisfy the description-signal requirement")

	_, ok = Evaluate(posting, acmeTable(), Criteria{StrictnessMode: models.StrictnessStrict})
	assert.True(t, ok)
}

func TestDedupe(t *testing.T) {
	postings := []models.Posting{
		{Title: "A", Company: "X", JobURL: "https://jobs.example/1"},
		{Title: "B", Company: "Y", JobURL: "https://jobs.example/1"},
		{Title: "C", Company: "Z", Location: "NYC", Site: "linkedin"},
		{Title: "C", Company: "Z", Location: "NYC", Site: "linkedin"},
		{Title: "C", Company: "Z", Location: "SF", Site: "linkedin"},
	}

	deduped := Dedupe(postings)
	require.Len(t, deduped, 3)
	assert.Equal(t, "A", deduped[0].Title, "first occurrence wins")
}

func TestEvaluateBatchOrdering(t *testing.T) {
	table := acmeTable()
	criteria := Criteria{StrictnessMode: models.StrictnessStrict}

	results := EvaluateBatch([]models.Posting{
		{Title: "Weak", Company: "Unlisted Co", JobURL: "https://jobs.example/w", Description: "visa sponsorship"},
		{Title: "Strong", Company: "Acme Inc.", JobURL: "https://jobs.example/s", Description: "visa sponsorship"},
	}, table, criteria)

	require.Len(t, results, 2)
	assert.Equal(t, "Strong", results[0].Title)
	assert.Equal(t, "Weak", results[1].Title)
}

func TestRelatedTitles(t *testing.T) {
	related := RelatedTitles("Software Engineer", 8)
	assert.Contains(t, related, "Backend Engineer")
	assert.NotContains(t, related, "Software Engineer")

	related = RelatedTitles("Underwater Basket Weaver", 3)
	assert.Len(t, related, 3)

	assert.Nil(t, RelatedTitles("  ", 5))
}

func TestRelatedTitlesDeterministic(t *testing.T) {
	// "Engineer" overlaps several hint keys; the selection must not drift
	// between calls.
	first := RelatedTitles("Engineer", 8)
	require.NotEmpty(t, first)
	assert.Equal(t, "Software Developer", first[0])
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, RelatedTitles("Engineer", 8))
	}
}

func TestBuildRecoverySuggestions(t *testing.T) {
	suggestions := BuildRecoverySuggestions(RecoveryInput{
		Location:       "Boston, MA",
		JobTitle:       "Data Engineer",
		HoursOld:       336,
		MaxScanResults: 1200,
		AcceptedJobs:   2,
		ReturnedJobs:   0,
		ScanExhausted:  true,
	})
	require.NotEmpty(t, suggestions)
	assert.Equal(t, "related_titles", suggestions[0].ID)

	ids := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		ids = append(ids, s.ID)
	}
	assert.Contains(t, ids, "expand_time_window")
	assert.Contains(t, ids, "increase_scan_depth")
	assert.Contains(t, ids, "nearby_location")

	assert.Empty(t, BuildRecoverySuggestions(RecoveryInput{AcceptedJobs: 50, ReturnedJobs: 10}))
}
