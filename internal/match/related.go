package match

import (
	"strings"

	"visascout/pkg/models"
)

// relatedTitleKeys fixes the match order: a short title like "engineer"
// overlaps several hint keys, and the first in this list wins.
var relatedTitleKeys = []string{"software engineer", "data engineer", "product manager"}

var relatedTitleHints = map[string][]string{
	"software engineer": {
		"Software Developer",
		"Backend Engineer",
		"Full Stack Engineer",
		"Platform Engineer",
		"Site Reliability Engineer",
		"Application Engineer",
		"Machine Learning Engineer",
	},
	"data engineer": {
		"Data Platform Engineer",
		"Analytics Engineer",
		"ETL Engineer",
		"Big Data Engineer",
		"Data Infrastructure Engineer",
		"Data Developer",
	},
	"product manager": {
		"Technical Product Manager",
		"Program Manager",
		"Product Owner",
		"Growth Product Manager",
		"Platform Product Manager",
	},
}

// RelatedTitles suggests adjacent job titles for low-yield searches
func RelatedTitles(jobTitle string, limit int) []string {
	base := strings.TrimSpace(jobTitle)
	if base == "" {
		return nil
	}
	normalized := strings.ToLower(base)
	var related []string

	for _, key := range relatedTitleKeys {
		if strings.Contains(normalized, key) || strings.Contains(key, normalized) {
			related = append(related, relatedTitleHints[key]...)
			break
		}
	}

	if len(related) == 0 {
		switch {
		case strings.Contains(normalized, "engineer"):
			related = append(related,
				strings.ReplaceAll(base, "Engineer", "Developer"),
				strings.ReplaceAll(base, "Engineer", "Platform Engineer"),
				strings.ReplaceAll(base, "Engineer", "Systems Engineer"),
			)
		case strings.Contains(normalized, "developer"):
			related = append(related,
				strings.ReplaceAll(base, "Developer", "Engineer"),
				strings.ReplaceAll(base, "Developer", "Application Engineer"),
				strings.ReplaceAll(base, "Developer", "Software Engineer"),
			)
		case strings.Contains(normalized, "architect"):
			replaced := strings.ReplaceAll(strings.ReplaceAll(base, "architect", "engineer"), "Architect", "Engineer")
			related = append(related, replaced, "Senior "+base, "Lead "+base)
		}
	}

	if len(related) == 0 {
		related = append(related, "Senior "+base, "Lead "+base, base+" Specialist")
	}

	if limit < 1 {
		limit = 1
	}
	seen := map[string]struct{}{normalized: {}}
	var deduped []string
	for _, item := range related {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key := strings.ToLower(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, item)
		if len(deduped) >= limit {
			break
		}
	}
	return deduped
}

// RecoveryInput captures the search outcome a suggestion set is built from
type RecoveryInput struct {
	Location       string
	JobTitle       string
	HoursOld       int
	MaxScanResults int
	AcceptedJobs   int
	ReturnedJobs   int
	ScanExhausted  bool
}

// BuildRecoverySuggestions proposes follow-up calls when a search comes back
// thin. Empty result for healthy searches.
func BuildRecoverySuggestions(in RecoveryInput) []models.RecoverySuggestion {
	lowYield := in.ReturnedJobs == 0 || (in.AcceptedJobs < 10 && in.ScanExhausted)
	if !lowYield {
		return nil
	}

	nextHoursOld := in.HoursOld * 2
	if alt := in.HoursOld + 168; alt > nextHoursOld {
		nextHoursOld = alt
	}
	if nextHoursOld > 24*60 {
		nextHoursOld = 24 * 60
	}
	nextScanCap := in.MaxScanResults * 2
	if alt := in.MaxScanResults + 400; alt > nextScanCap {
		nextScanCap = alt
	}
	if nextScanCap > 5000 {
		nextScanCap = 5000
	}

	suggestions := []models.RecoverySuggestion{
		{
			ID:                       "expand_time_window",
			Description:              "Broaden the posting time window to find older eligible roles.",
			ProposedCallArgs:         map[string]any{"hours_old": nextHoursOld},
			RequiresUserConfirmation: true,
		},
		{
			ID:                       "increase_scan_depth",
			Description:              "Increase scan depth so more postings are sifted before filtering.",
			ProposedCallArgs:         map[string]any{"max_scan_results": nextScanCap},
			RequiresUserConfirmation: true,
		},
	}

	if related := RelatedTitles(in.JobTitle, 8); len(related) > 0 {
		suggestions = append([]models.RecoverySuggestion{{
			ID:                       "related_titles",
			Description:              "Try adjacent job titles that map to similar skill requirements.",
			Options:                  related,
			RequiresUserConfirmation: true,
		}}, suggestions...)
	}

	if strings.Contains(in.Location, ",") {
		city := strings.TrimSpace(strings.SplitN(in.Location, ",", 2)[0])
		suggestions = append(suggestions, models.RecoverySuggestion{
			ID:                       "nearby_location",
			Description:              "Try a nearby metro location to widen supply.",
			Options:                  []string{city, city + " Metro Area", in.Location},
			RequiresUserConfirmation: true,
		})
	}

	return suggestions
}
