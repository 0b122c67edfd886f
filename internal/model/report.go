package model

import "time"

// FullTextStrategy is reported with every output
const FullTextStrategy = "Claims generated only from full-text articles (PMC)"

// ExclusionReason explains why an abstract-only article was set aside
const ExclusionReason = "Relevant but full text not available in PMC - paywalled"

// MaxExcludedArticles caps the excluded-articles side list
const MaxExcludedArticles = 10

// ResultsFound is the per-source count block of the search summary
type ResultsFound struct {
	FDALabels          int `json:"fda_labels"`
	PubMedTotal        int `json:"pubmed_total"`
	PubMedFullText     int `json:"pubmed_full_text"`
	PubMedAbstractOnly int `json:"pubmed_abstract_only"`
	ClinicalTrials     int `json:"clinical_trials"`
}

// SearchSummary records what was searched and what came back
type SearchSummary struct {
	RequestID         string       `json:"request_id,omitempty"`
	UserQuery         string       `json:"user_query"`
	SourcesSearched   []string     `json:"sources_searched"`
	ResultsFound      ResultsFound `json:"results_found"`
	FullTextStrategy  string       `json:"full_text_strategy"`
	SearchTimeSeconds float64      `json:"search_time_seconds"`
	Timestamp         time.Time    `json:"timestamp"`
}

// ExcludedArticle is a relevant article left out because it lacks full text
type ExcludedArticle struct {
	PMID     string   `json:"pmid"`
	Title    string   `json:"title"`
	Journal  string   `json:"journal,omitempty"`
	Year     string   `json:"year,omitempty"`
	Authors  []string `json:"authors"`
	Abstract string   `json:"abstract,omitempty"`
	Reason   string   `json:"reason"`
	DOI      string   `json:"doi,omitempty"`
}

// AdditionalContext carries side output that is not itself a claim
type AdditionalContext struct {
	ArticlesWithoutFullText []ExcludedArticle `json:"articles_without_full_text"`
	Recommendation          string            `json:"recommendation"`
	Warnings                []string          `json:"warnings,omitempty"`
}

// ClaimsOutput is the pipeline's final document
type ClaimsOutput struct {
	SearchSummary     SearchSummary     `json:"search_summary"`
	Claims            []Claim           `json:"claims"`
	AdditionalContext AdditionalContext `json:"additional_context"`
}
