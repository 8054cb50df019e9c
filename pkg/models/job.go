package models

// Posting is one raw scraped job posting, before any eligibility filtering
type Posting struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Site        string `json:"site"`
	DatePosted  string `json:"date_posted,omitempty"`
	JobURL      string `json:"job_url"`
	Description string `json:"description"`
}

// Contact is one employer contact from the sponsor dataset, ordered by
// contactability upstream
type Contact struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// SponsorStats holds the dataset row for a matched company
type SponsorStats struct {
	CompanyName   string `json:"company_name"`
	CompanyTier   string `json:"company_tier"`
	H1B           int    `json:"h1b"`
	H1B1Chile     int    `json:"h1b1_chile"`
	H1B1Singapore int    `json:"h1b1_singapore"`
	E3Australian  int    `json:"e3_australian"`
	GreenCard     int    `json:"green_card"`
	TotalVisas    int    `json:"total_visas"`
	Email1        string `json:"email_1,omitempty"`
	Contact1      string `json:"contact_1,omitempty"`
	Contact1Title string `json:"contact_1_title,omitempty"`
	Contact1Phone string `json:"contact_1_phone,omitempty"`
}

// AcceptedResult is a posting that passed the acceptance engine, annotated
// with match evidence and scores. ResultID is minted once per session and
// never renumbered.
type AcceptedResult struct {
	ResultID               string         `json:"result_id,omitempty"`
	Title                  string         `json:"title"`
	Company                string         `json:"company"`
	Location               string         `json:"location"`
	Site                   string         `json:"site"`
	DatePosted             string         `json:"date_posted,omitempty"`
	JobURL                 string         `json:"job_url"`
	DescriptionSnippet     string         `json:"description_snippet"`
	MatchedViaCompany      bool           `json:"matched_via_company_dataset"`
	MatchedViaDescription  bool           `json:"matched_via_job_description"`
	SponsorshipReasons     []string       `json:"sponsorship_reasons"`
	EmployerContacts       []Contact      `json:"employer_contacts"`
	VisaCounts             map[string]int `json:"visa_counts"`
	VisasSponsored         []string       `json:"visas_sponsored"`
	MatchesUserPreferences bool           `json:"matches_user_visa_preferences"`
	EligibilityReasons     []string       `json:"eligibility_reasons"`
	ConfidenceScore        float64        `json:"confidence_score"`
	ConfidenceModelVersion string         `json:"confidence_model_version"`
	ContactabilityScore    float64        `json:"contactability_score"`
	SponsorStats           *SponsorStats  `json:"sponsor_stats,omitempty"`
}
