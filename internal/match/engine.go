package match

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"visascout/pkg/models"
)

// CompanyRow is the sponsor-dataset view of one company the engine consults
type CompanyRow struct {
	CompanyName string
	CompanyTier string
	Counts      map[string]int
	TotalVisas  int
	Contacts    []models.Contact
}

// Stats renders the row in the wire shape
func (r *CompanyRow) Stats() *models.SponsorStats {
	s := &models.SponsorStats{
		CompanyName:   r.CompanyName,
		CompanyTier:   r.CompanyTier,
		H1B:           r.Counts[VisaH1B],
		H1B1Chile:     r.Counts[VisaH1B1Chile],
		H1B1Singapore: r.Counts[VisaH1B1Singapore],
		E3Australian:  r.Counts[VisaE3Australian],
		GreenCard:     r.Counts[VisaGreenCard],
		TotalVisas:    r.TotalVisas,
	}
	if len(r.Contacts) > 0 {
		s.Email1 = r.Contacts[0].Email
		s.Contact1 = r.Contacts[0].Name
		s.Contact1Title = r.Contacts[0].Title
		s.Contact1Phone = r.Contacts[0].Phone
	}
	return s
}

// CompanyTable looks up dataset rows by normalized company name
type CompanyTable interface {
	Lookup(normalizedCompany string) (*CompanyRow, bool)
}

// Criteria holds the per-user matching knobs for one evaluation pass
type Criteria struct {
	DesiredVisaTypes         []string
	RequireDescriptionSignal bool
	StrictnessMode           string
}

const descriptionSnippetLen = 350

// Evaluate decides whether one posting is kept and, if so, builds its
// annotated record. Pure: no I/O, no shared state.
func Evaluate(posting models.Posting, table CompanyTable, criteria Criteria) (models.AcceptedResult, bool) {
	normalized := NormalizeCompanyName(posting.Company)
	hasPositive, hasNegative, hits := DetectSignals(posting.Description)

	desired := map[string]struct{}{}
	for _, v := range criteria.DesiredVisaTypes {
		desired[v] = struct{}{}
	}

	var company *CompanyRow
	visaCounts := map[string]int{}
	var visasSponsored []string
	matchedCompany := false
	companyMatchesRequested := false
	var contacts []models.Contact
	if normalized != "" && table != nil {
		if row, ok := table.Lookup(normalized); ok {
			company = row
			for _, key := range VisaTypeKeys {
				visaCounts[key] = row.Counts[key]
			}
			visaCounts["total_visas"] = row.TotalVisas
			for _, key := range VisaTypeKeys {
				if visaCounts[key] > 0 {
					visasSponsored = append(visasSponsored, VisaTypeLabels[key])
				}
			}
			matchedCompany = row.TotalVisas > 0
			if matchedCompany {
				contacts = row.Contacts
			}
			for v := range desired {
				if visaCounts[v] > 0 {
					companyMatchesRequested = true
					break
				}
			}
		}
	}

	descVisaTypes := VisaTypesFromDescription(posting.Description)
	descMatchesRequested := false
	for v := range desired {
		if _, ok := descVisaTypes[v]; ok {
			descMatchesRequested = true
			break
		}
	}
	// The description names specific visa classes, none of which the user asked for.
	descSpecificMismatch := len(desired) > 0 && len(descVisaTypes) > 0 && !descMatchesRequested
	descGenericSponsorship := hasPositive && len(descVisaTypes) == 0

	matchesUserPrefs := false
	if len(desired) > 0 {
		if criteria.StrictnessMode == models.StrictnessStrict {
			matchesUserPrefs = companyMatchesRequested || descMatchesRequested
		} else {
			matchesUserPrefs = companyMatchesRequested || descMatchesRequested || descGenericSponsorship
			if descSpecificMismatch && !companyMatchesRequested {
				matchesUserPrefs = false
			}
		}
	}

	accept := false
	if !hasNegative {
		if criteria.RequireDescriptionSignal {
			accept = hasPositive
		} else {
			accept = matchedCompany || hasPositive
		}
		if len(desired) > 0 {
			accept = accept && matchesUserPrefs
		}
		// A specific but different visa class rejects unless the company's
		// own filing history proves the requested one.
		if descSpecificMismatch && !companyMatchesRequested {
			accept = false
		}
	}
	if !accept {
		return models.AcceptedResult{}, false
	}

	var matchedPreferenceLabels []string
	for _, v := range criteria.DesiredVisaTypes {
		_, inDesc := descVisaTypes[v]
		if visaCounts[v] > 0 || inDesc {
			matchedPreferenceLabels = append(matchedPreferenceLabels, VisaTypeLabels[v])
		}
	}

	reasons := buildEligibilityReasons(
		criteria.StrictnessMode, matchedCompany, hasPositive,
		visaCounts, matchedPreferenceLabels, descGenericSponsorship,
	)

	contactability := 0.0
	if len(contacts) > 0 {
		primary := contacts[0]
		if strings.TrimSpace(primary.Email) != "" {
			contactability += 0.6
		}
		if strings.TrimSpace(primary.Phone) != "" {
			contactability += 0.25
		}
		if strings.TrimSpace(primary.Name) != "" {
			contactability += 0.1
		}
		if strings.TrimSpace(primary.Title) != "" {
			contactability += 0.05
		}
	}
	contactability = math.Min(1.0, round2(contactability))

	confidence := 0.0
	if matchedCompany {
		confidence += 0.65
	}
	if hasPositive {
		confidence += 0.20
	}
	if matchesUserPrefs {
		confidence += 0.10
	}
	if contactability > 0 {
		confidence += 0.05
	}
	confidence = math.Min(1.0, round2(confidence))

	snippet := posting.Description
	if len(snippet) > descriptionSnippetLen {
		snippet = snippet[:descriptionSnippetLen]
	}

	result := models.AcceptedResult{
		Title:                  posting.Title,
		Company:                posting.Company,
		Location:               posting.Location,
		Site:                   posting.Site,
		DatePosted:             posting.DatePosted,
		JobURL:                 posting.JobURL,
		DescriptionSnippet:     snippet,
		MatchedViaCompany:      matchedCompany,
		MatchedViaDescription:  hasPositive,
		SponsorshipReasons:     hits,
		EmployerContacts:       contacts,
		VisaCounts:             visaCounts,
		VisasSponsored:         visasSponsored,
		MatchesUserPreferences: matchesUserPrefs,
		EligibilityReasons:     reasons,
		ConfidenceScore:        confidence,
		ConfidenceModelVersion: ConfidenceModelVersion,
		ContactabilityScore:    contactability,
	}
	if company != nil {
		result.SponsorStats = company.Stats()
	}
	return result, true
}

// EvaluateBatch deduplicates, evaluates, and ranks one scraped batch.
// Ordering is descending (confidence, contactability).
func EvaluateBatch(postings []models.Posting, table CompanyTable, criteria Criteria) []models.AcceptedResult {
	results := make([]models.AcceptedResult, 0, len(postings))
	for _, posting := range Dedupe(postings) {
		if record, ok := Evaluate(posting, table, criteria); ok {
			results = append(results, record)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].ConfidenceScore != results[j].ConfidenceScore {
			return results[i].ConfidenceScore > results[j].ConfidenceScore
		}
		return results[i].ContactabilityScore > results[j].ContactabilityScore
	})
	return results
}

// Dedupe drops duplicate postings by canonical URL, falling back to a
// title|company|location|site composite when the URL is blank. First
// occurrence wins.
func Dedupe(postings []models.Posting) []models.Posting {
	seen := map[string]struct{}{}
	out := make([]models.Posting, 0, len(postings))
	for _, posting := range postings {
		key := strings.TrimSpace(posting.JobURL)
		if key == "" {
			key = strings.Join([]string{posting.Title, posting.Company, posting.Location, posting.Site}, "|")
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, posting)
	}
	return out
}

func buildEligibilityReasons(
	mode string,
	matchedCompany, hasPositive bool,
	visaCounts map[string]int,
	matchedPreferenceLabels []string,
	descGenericSponsorship bool,
) []string {
	var reasons []string
	if mode == models.StrictnessStrict {
		reasons = append(reasons, "Strict visa match mode is active.")
	} else {
		reasons = append(reasons, "Balanced visa match mode is active.")
	}
	if matchedCompany {
		var parts []string
		for _, key := range VisaTypeKeys {
			if visaCounts[key] > 0 {
				parts = append(parts, fmt.Sprintf("%s=%d", VisaTypeLabels[key], visaCounts[key]))
			}
		}
		if len(parts) > 0 {
			reasons = append(reasons, fmt.Sprintf("Company has historical sponsor filings (%s).", strings.Join(parts, ", ")))
		} else {
			reasons = append(reasons, "Company matched in sponsorship dataset.")
		}
	}
	if hasPositive {
		reasons = append(reasons, "Job description mentions visa sponsorship language.")
	}
	if len(matchedPreferenceLabels) > 0 {
		unique := map[string]struct{}{}
		var labels []string
		for _, label := range matchedPreferenceLabels {
			if _, ok := unique[label]; ok {
				continue
			}
			unique[label] = struct{}{}
			labels = append(labels, label)
		}
		sort.Strings(labels)
		reasons = append(reasons, fmt.Sprintf("Matches requested visa type(s): %s.", strings.Join(labels, ", ")))
	} else if mode == models.StrictnessBalanced && descGenericSponsorship {
		reasons = append(reasons, "Accepted in balanced mode using generic sponsorship language.")
	}
	return reasons
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
