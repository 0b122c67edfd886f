package model

// CitationType tags the variant of a citation
type CitationType string

const (
	CitationFDALabel       CitationType = "fda_label"
	CitationJournalArticle CitationType = "journal_article"
	CitationClinicalTrial  CitationType = "clinical_trial"
)

// SourceType describes where a claim's substantiation came from
type SourceType string

const (
	SourceTypeFDALabel        SourceType = "FDA-Approved Label"
	SourceTypeFullTextArticle SourceType = "Peer-Reviewed Journal (Full Text)"
	SourceTypeClinicalTrial   SourceType = "Clinical Trial Registry"
)

// Confidence tiers
const (
	ConfidenceLabel         = "Highest - FDA Approved"
	ConfidenceValidatedData = "High - Full text substantiation with validated data"
	ConfidenceFullText      = "High - Full text substantiation"
)

// Citation is a bibliographic reference. Fields not used by the variant stay empty.
type Citation struct {
	Primary           bool         `json:"primary"`
	Type              CitationType `json:"citation_type"`
	Text              string       `json:"text"`
	Section           string       `json:"section,omitempty"`
	URL               string       `json:"url,omitempty"`
	Authors           string       `json:"authors,omitempty"`
	Title             string       `json:"title,omitempty"`
	Journal           string       `json:"journal,omitempty"`
	Year              string       `json:"year,omitempty"`
	PMID              string       `json:"pmid,omitempty"`
	PMCID             string       `json:"pmcid,omitempty"`
	DOI               string       `json:"doi,omitempty"`
	PMCURL            string       `json:"pmc_url,omitempty"`
	FullTextAvailable bool         `json:"full_text_available,omitempty"`
	NCTID             string       `json:"nct_id,omitempty"`
}

// Claim is one accepted, evidence-backed statement
type Claim struct {
	ID              int            `json:"claim_id"`
	Type            ClaimType      `json:"claim_type"`
	Text            string         `json:"claim_text"`
	Substantiation  string         `json:"substantiation"`
	SourceType      SourceType     `json:"source_type"`
	Citations       []Citation     `json:"citations"`
	Confidence      string         `json:"confidence"`
	FullTextUsed    bool           `json:"full_text_used"`
	ExcerptLocation string         `json:"excerpt_location,omitempty"`
	NumericalData   map[string]any `json:"numerical_data,omitempty"`
}

// PrimaryCitation returns the claim's primary citation, if any
func (c *Claim) PrimaryCitation() (Citation, bool) {
	for _, cit := range c.Citations {
		if cit.Primary {
			return cit, true
		}
	}
	return Citation{}, false
}

// ClaimDraft is the generation service's proposal before validation
type ClaimDraft struct {
	ClaimText      string         `json:"claim_text"`
	Substantiation string         `json:"substantiation"`
	NumericalData  map[string]any `json:"numerical_data,omitempty"`
	ExtractedFrom  string         `json:"extracted_from,omitempty"`
}
