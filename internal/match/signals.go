package match

import (
	"regexp"
	"strings"
)

var positivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bvisa sponsorship\b`),
	regexp.MustCompile(`\bsponsor(?:ship|ed|s)?\b`),
	regexp.MustCompile(`\bh-?1b\b`),
	regexp.MustCompile(`\be-?3\b`),
	regexp.MustCompile(`\bopt\b`),
	regexp.MustCompile(`\bcpt\b`),
	regexp.MustCompile(`\bgreen card\b`),
}

var negativePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bno visa sponsorship\b`),
	regexp.MustCompile(`\bwithout visa sponsorship\b`),
	regexp.MustCompile(`\bdo not sponsor\b`),
	regexp.MustCompile(`\bunable to sponsor\b`),
	regexp.MustCompile(`\bmust be authorized to work\b`),
}

var (
	reH1B       = regexp.MustCompile(`\bh-?1b\b`)
	reH1B1      = regexp.MustCompile(`\bh-?1b1\b`)
	reChile     = regexp.MustCompile(`\bchile\b`)
	reSingapore = regexp.MustCompile(`\bsingapore\b`)
	reE3        = regexp.MustCompile(`\be-?3\b`)
	reGreenCard = regexp.MustCompile(`\bgreen card\b`)
	rePERM      = regexp.MustCompile(`\bperm\b`)
)

// DetectSignals scans a description for sponsorship language. It returns
// whether any positive cue and any refusal cue matched, plus the matched
// pattern sources for diagnostics.
func DetectSignals(description string) (positive bool, negative bool, hits []string) {
	text := strings.ToLower(description)
	for _, p := range positivePatterns {
		if p.MatchString(text) {
			positive = true
			hits = append(hits, p.String())
		}
	}
	for _, p := range negativePatterns {
		if p.MatchString(text) {
			negative = true
			hits = append(hits, p.String())
		}
	}
	return positive, negative, hits
}

// VisaTypesFromDescription extracts the specific visa classes a description
// names. H-1B1 variants need the country qualifier present as well.
func VisaTypesFromDescription(description string) map[string]struct{} {
	text := strings.ToLower(description)
	found := map[string]struct{}{}
	if reH1B.MatchString(text) {
		found[VisaH1B] = struct{}{}
	}
	if reH1B1.MatchString(text) && reChile.MatchString(text) {
		found[VisaH1B1Chile] = struct{}{}
	}
	if reH1B1.MatchString(text) && reSingapore.MatchString(text) {
		found[VisaH1B1Singapore] = struct{}{}
	}
	if reE3.MatchString(text) {
		found[VisaE3Australian] = struct{}{}
	}
	if reGreenCard.MatchString(text) || rePERM.MatchString(text) {
		found[VisaGreenCard] = struct{}{}
	}
	return found
}
