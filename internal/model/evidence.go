package model

import "time"

// LabelRecord is an FDA prescribing-information label, one named text block list per section
type LabelRecord struct {
	BrandName               string   `json:"brand_name,omitempty"`
	GenericName             string   `json:"generic_name,omitempty"`
	Manufacturer            string   `json:"manufacturer,omitempty"`
	IndicationsAndUsage     []string `json:"indications_and_usage,omitempty"`
	ClinicalStudies         []string `json:"clinical_studies,omitempty"`
	DosageAndAdministration []string `json:"dosage_and_administration,omitempty"`
	Warnings                []string `json:"warnings,omitempty"`
	AdverseReactions        []string `json:"adverse_reactions,omitempty"`
	EffectiveTime           string   `json:"effective_time,omitempty"`
}

// ArticleSummary is PubMed metadata for a search hit.
// PMCID is empty when the article has no free full text (abstract-only).
type ArticleSummary struct {
	PMID             string   `json:"pmid"`
	Title            string   `json:"title"`
	Abstract         string   `json:"abstract,omitempty"`
	Authors          []string `json:"authors"`
	Journal          string   `json:"journal,omitempty"`
	Year             string   `json:"year,omitempty"`
	DOI              string   `json:"doi,omitempty"`
	PMCID            string   `json:"pmcid,omitempty"`
	PublicationTypes []string `json:"publication_types,omitempty"`
}

// HasFullText reports whether the summary carries a PMC identifier
func (a ArticleSummary) HasFullText() bool {
	return a.PMCID != ""
}

// Section is one named block of article body text
type Section struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// FullTextArticle is a PMC article body with ordered sections
type FullTextArticle struct {
	PMID     string    `json:"pmid"`
	PMCID    string    `json:"pmcid"`
	Title    string    `json:"title"`
	Abstract string    `json:"abstract,omitempty"`
	Authors  []string  `json:"authors"`
	Journal  string    `json:"journal,omitempty"`
	Year     string    `json:"year,omitempty"`
	DOI      string    `json:"doi,omitempty"`
	Sections []Section `json:"sections"`
	FullText string    `json:"full_text"`
}

// Section returns the text of the section with exactly this title
func (a *FullTextArticle) Section(title string) (string, bool) {
	for _, s := range a.Sections {
		if s.Title == title {
			return s.Text, true
		}
	}
	return "", false
}

// TrialRecord is a ClinicalTrials.gov registry entry
type TrialRecord struct {
	NCTID             string   `json:"nct_id"`
	Title             string   `json:"title"`
	BriefTitle        string   `json:"brief_title,omitempty"`
	Status            string   `json:"status"`
	Phase             string   `json:"phase,omitempty"`
	Enrollment        int      `json:"enrollment,omitempty"`
	StartDate         string   `json:"start_date,omitempty"`
	CompletionDate    string   `json:"completion_date,omitempty"`
	PrimaryOutcomes   []string `json:"primary_outcomes"`
	SecondaryOutcomes []string `json:"secondary_outcomes"`
	InterventionType  string   `json:"intervention_type,omitempty"`
	InterventionName  string   `json:"intervention_name,omitempty"`
	Sponsor           string   `json:"sponsor,omitempty"`
	HasResults        bool     `json:"has_results"`
	URL               string   `json:"url"`
}

// DisplayTitle prefers the brief title over the official one
func (t TrialRecord) DisplayTitle() string {
	if t.BriefTitle != "" {
		return t.BriefTitle
	}
	return t.Title
}

// Counts are provenance counters recorded alongside aggregated results
type Counts struct {
	TotalFound          int `json:"pubmed_total_found"`
	FullTextAvailable   int `json:"pubmed_full_text_available"`
	AbstractOnly        int `json:"pubmed_abstract_only"`
	ClinicalTrialsFound int `json:"clinical_trials_found"`
}

// NewCounts derives counters so that FullTextAvailable + AbstractOnly == TotalFound
func NewCounts(summaries, fullText, trials int) Counts {
	if fullText > summaries {
		fullText = summaries
	}
	return Counts{
		TotalFound:          summaries,
		FullTextAvailable:   fullText,
		AbstractOnly:        summaries - fullText,
		ClinicalTrialsFound: trials,
	}
}

// Source names used in provenance and error reporting
const (
	SourceOpenFDA        = "OpenFDA"
	SourcePubMed         = "PubMed/PMC"
	SourceClinicalTrials = "ClinicalTrials.gov"
)

// ResultSet aggregates one request's results across all sources
type ResultSet struct {
	Label          *LabelRecord      `json:"fda_label,omitempty"`
	Articles       []ArticleSummary  `json:"pubmed_articles"`
	FullText       []FullTextArticle `json:"pubmed_full_text"`
	ClinicalTrials []TrialRecord     `json:"clinical_trials"`
	Counts         Counts            `json:"counts"`
	SourceErrors   map[string]string `json:"source_errors,omitempty"`
	Elapsed        time.Duration     `json:"-"`
}

// AbstractOnly returns the summaries with no retrieved full text, including
// those whose PMC fetch failed
func (r *ResultSet) AbstractOnly() []ArticleSummary {
	fetched := make(map[string]struct{}, len(r.FullText))
	for _, ft := range r.FullText {
		fetched[ft.PMID] = struct{}{}
	}
	var out []ArticleSummary
	for _, a := range r.Articles {
		if _, ok := fetched[a.PMID]; !ok {
			out = append(out, a)
		}
	}
	return out
}

// ScoreBreakdown explains how a ranking score was computed
type ScoreBreakdown struct {
	Authority          float64 `json:"authority"`
	Relevance          float64 `json:"relevance"`
	Recency            float64 `json:"recency"`
	RelevanceDefaulted bool    `json:"relevance_defaulted,omitempty"`
	Formula            string  `json:"formula"`
}

// RankedArticle pairs a full-text article with its ranking score
type RankedArticle struct {
	Article   FullTextArticle `json:"article"`
	Score     float64         `json:"score"`
	Breakdown ScoreBreakdown  `json:"breakdown"`
}
