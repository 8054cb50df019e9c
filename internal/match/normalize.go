package match

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ConfidenceModelVersion tags every scored result so downstream consumers
// can detect scoring rule changes.
const ConfidenceModelVersion = "v1.1.0-rules"

var legalSuffixes = map[string]struct{}{
	"inc": {}, "corp": {}, "corporation": {}, "co": {}, "llc": {}, "ltd": {},
	"lp": {}, "plc": {}, "pc": {}, "holdings": {}, "holding": {}, "group": {},
	"technologies": {}, "technology": {},
}

var placeholderNames = map[string]struct{}{
	"nan": {}, "none": {}, "null": {}, "na": {}, "n/a": {},
}

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9\s]`)

// NormalizeCompanyName lowercases a company name, strips punctuation, and
// drops trailing legal-entity suffix tokens so dataset and scraped spellings
// collide. Placeholder values normalize to "".
func NormalizeCompanyName(name string) string {
	text := strings.TrimSpace(name)
	if text == "" {
		return ""
	}
	if _, ok := placeholderNames[strings.ToLower(text)]; ok {
		return ""
	}
	cleaned := nonAlnum.ReplaceAllString(strings.ToLower(text), " ")
	tokens := strings.Fields(cleaned)
	for len(tokens) > 0 {
		if _, ok := legalSuffixes[tokens[len(tokens)-1]]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// Canonical visa type keys
const (
	VisaH1B           = "h1b"
	VisaH1B1Chile     = "h1b1_chile"
	VisaH1B1Singapore = "h1b1_singapore"
	VisaE3Australian  = "e3_australian"
	VisaGreenCard     = "green_card"
)

// VisaTypeKeys lists canonical keys in dataset column order
var VisaTypeKeys = []string{VisaH1B, VisaH1B1Chile, VisaH1B1Singapore, VisaE3Australian, VisaGreenCard}

var visaTypeAliases = map[string]string{
	"h1b":                  VisaH1B,
	"h-1b":                 VisaH1B,
	"h1b1_chile":           VisaH1B1Chile,
	"h-1b1 chile":          VisaH1B1Chile,
	"h1b1 chile":           VisaH1B1Chile,
	"h1b1_chile/singapore": VisaH1B1Chile,
	"h1b1_singapore":       VisaH1B1Singapore,
	"h-1b1 singapore":      VisaH1B1Singapore,
	"h1b1 singapore":       VisaH1B1Singapore,
	"e3":                   VisaE3Australian,
	"e-3":                  VisaE3Australian,
	"e3_australian":        VisaE3Australian,
	"e-3 australian":       VisaE3Australian,
	"green_card":           VisaGreenCard,
	"green card":           VisaGreenCard,
	"perm":                 VisaGreenCard,
}

// VisaTypeLabels maps canonical keys to human-readable names
var VisaTypeLabels = map[string]string{
	VisaH1B:           "H-1B",
	VisaH1B1Chile:     "H-1B1 Chile",
	VisaH1B1Singapore: "H-1B1 Singapore",
	VisaE3Australian:  "E-3 Australian",
	VisaGreenCard:     "Green Card",
}

// NormalizeVisaType resolves user-supplied visa type spellings to canonical
// keys, rejecting anything unknown.
func NormalizeVisaType(value string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(value))
	canonical, ok := visaTypeAliases[key]
	if !ok {
		supported := make([]string, 0, len(VisaTypeKeys))
		supported = append(supported, VisaTypeKeys...)
		sort.Strings(supported)
		return "", fmt.Errorf("unsupported visa type '%s'; use one of: %v", value, supported)
	}
	return canonical, nil
}
