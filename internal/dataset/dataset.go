package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"visascout/internal/match"
	"visascout/pkg/models"
	"visascout/pkg/utils"
)

// canonicalColumns maps each canonical column to the accepted header
// spellings, first match wins.
var canonicalColumns = map[string][]string{
	"company_tier":    {"company_tier", "size"},
	"company_name":    {"company_name", "EMPLOYER"},
	"h1b":             {"h1b", "H-1B"},
	"h1b1_chile":      {"h1b1_chile", "H-1B1 Chile"},
	"h1b1_singapore":  {"h1b1_singapore", "H-1B1 Singapore"},
	"e3_australian":   {"e3_australian", "E-3 Australian"},
	"green_card":      {"green_card", "Green Card"},
	"email_1":         {"email_1", "EMAIL_1"},
	"contact_1":       {"contact_1", "CONTACT_1"},
	"contact_1_title": {"contact_1_title", "CONTACT_1_TITLE"},
	"contact_1_phone": {"contact_1_phone", "CONTACT_1_PHONE"},
	"email_2":         {"email_2", "EMAIL_2"},
	"contact_2":       {"contact_2", "CONTACT_2"},
	"contact_2_title": {"contact_2_title", "CONTACT_2_TITLE"},
	"contact_2_phone": {"contact_2_phone", "CONTACT_2_PHONE"},
	"email_3":         {"email_3", "EMAIL_3"},
	"contact_3":       {"contact_3", "CONTACT_3"},
	"contact_3_title": {"contact_3_title", "CONTACT_3_TITLE"},
	"contact_3_phone": {"contact_3_phone", "CONTACT_3_PHONE"},
}

var requiredColumns = []string{
	"company_tier",
	"company_name",
	"h1b",
	"h1b1_chile",
	"h1b1_singapore",
	"e3_australian",
	"green_card",
}

var countColumns = []string{"h1b", "h1b1_chile", "h1b1_singapore", "e3_australian", "green_card"}

// Table is a parsed sponsor dataset keyed by normalized company name
type Table struct {
	Rows                int
	ByNormalizedCompany map[string]*match.CompanyRow
}

// Lookup implements match.CompanyTable
func (t *Table) Lookup(normalized string) (*match.CompanyRow, bool) {
	row, ok := t.ByNormalizedCompany[normalized]
	return row, ok
}

// Load parses a sponsor dataset CSV. Missing required columns fail the whole
// operation; malformed numeric cells coerce to zero. When two rows normalize
// to the same company the one with more total filings wins.
func Load(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, utils.NewDataError(fmt.Sprintf("dataset not found at '%s'", path))
		}
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, utils.NewDataError(fmt.Sprintf("failed to parse dataset '%s': %v", path, err))
	}
	if len(records) == 0 {
		return nil, utils.NewDataError(fmt.Sprintf("dataset '%s' is empty", path))
	}

	columns, missing := resolveColumns(records[0])
	if len(missing) > 0 {
		return nil, utils.NewDataError(fmt.Sprintf("dataset missing required columns: %v", missing))
	}

	table := &Table{ByNormalizedCompany: map[string]*match.CompanyRow{}}
	for _, record := range records[1:] {
		name := strings.TrimSpace(cell(record, columns, "company_name"))
		normalized := match.NormalizeCompanyName(name)
		if normalized == "" {
			continue
		}

		counts := map[string]int{}
		total := 0
		for _, col := range countColumns {
			counts[col] = intCell(record, columns, col)
			total += counts[col]
		}

		row := &match.CompanyRow{
			CompanyName: name,
			CompanyTier: strings.TrimSpace(cell(record, columns, "company_tier")),
			Counts:      counts,
			TotalVisas:  total,
			Contacts:    parseContacts(record, columns),
		}

		if existing, ok := table.ByNormalizedCompany[normalized]; ok && existing.TotalVisas >= total {
			continue
		}
		table.ByNormalizedCompany[normalized] = row
	}
	table.Rows = len(table.ByNormalizedCompany)
	return table, nil
}

func resolveColumns(header []string) (map[string]int, []string) {
	index := map[string]int{}
	for i, raw := range header {
		index[strings.TrimSpace(raw)] = i
	}

	columns := map[string]int{}
	for canonical, options := range canonicalColumns {
		for _, option := range options {
			if i, ok := index[option]; ok {
				columns[canonical] = i
				break
			}
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	return columns, missing
}

func cell(record []string, columns map[string]int, name string) string {
	i, ok := columns[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

func intCell(record []string, columns map[string]int, name string) int {
	raw := strings.TrimSpace(cell(record, columns, name))
	if raw == "" {
		return 0
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return int(f)
	}
	return 0
}

// parseContacts keeps at most three contacts, skipping fully blank slots.
// Upstream already orders them by contactability.
func parseContacts(record []string, columns map[string]int) []models.Contact {
	var contacts []models.Contact
	for i := 1; i <= 3; i++ {
		contact := models.Contact{
			Name:  strings.TrimSpace(cell(record, columns, fmt.Sprintf("contact_%d", i))),
			Title: strings.TrimSpace(cell(record, columns, fmt.Sprintf("contact_%d_title", i))),
			Email: strings.TrimSpace(cell(record, columns, fmt.Sprintf("email_%d", i))),
			Phone: strings.TrimSpace(cell(record, columns, fmt.Sprintf("contact_%d_phone", i))),
		}
		if contact.Name == "" && contact.Title == "" && contact.Email == "" && contact.Phone == "" {
			continue
		}
		contacts = append(contacts, contact)
	}
	return contacts
}
