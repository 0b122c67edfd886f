package extract

import (
	"fmt"
	"strings"

	"github.com/ppiankov/rxclaims/internal/model"
	"github.com/ppiankov/rxclaims/internal/source"
	"github.com/ppiankov/rxclaims/internal/util"
)

const (
	resultsFallbackLimit    = 3000
	validationFallbackLimit = 2000
	citationAuthors         = 3
	excludedAbstractLimit   = 200
)

// LabelCitationURL is the Drugs@FDA landing page cited for label claims
const LabelCitationURL = "https://www.accessdata.fda.gov/scripts/cder/daf/"

// LabelSection picks the label section that substantiates category. It returns
// the section's display name and its blocks joined with spaces.
func LabelSection(label *model.LabelRecord, category model.ClaimType) (name, text string) {
	if label == nil {
		return "", ""
	}

	var blocks []string
	switch category {
	case model.ClaimTypeEfficacy:
		name, blocks = "Clinical Studies", label.ClinicalStudies
	case model.ClaimTypeSafety:
		name, blocks = "Adverse Reactions", label.AdverseReactions
	case model.ClaimTypeDosing:
		name, blocks = "Dosage and Administration", label.DosageAndAdministration
	default:
		name, blocks = "Indications and Usage", label.IndicationsAndUsage
	}
	return name, strings.TrimSpace(strings.Join(blocks, " "))
}

// ResultsSection finds the article's results text: "Results", then "RESULTS",
// then the first section whose title mentions "result".
func ResultsSection(a *model.FullTextArticle) (string, bool) {
	if text, ok := a.Section("Results"); ok {
		return text, true
	}
	if text, ok := a.Section("RESULTS"); ok {
		return text, true
	}
	for _, s := range a.Sections {
		if strings.Contains(strings.ToLower(s.Title), "result") {
			return s.Text, true
		}
	}
	return "", false
}

// ResultsExcerpt is the text sent for claim extraction
func ResultsExcerpt(a *model.FullTextArticle) string {
	if text, ok := ResultsSection(a); ok {
		return text
	}
	return util.Truncate(a.FullText, resultsFallbackLimit)
}

// ValidationSource is the text an article claim's numbers are checked against
func ValidationSource(a *model.FullTextArticle) string {
	if text, ok := ResultsSection(a); ok {
		return text
	}
	return util.Truncate(a.FullText, validationFallbackLimit)
}

// FormatAuthors lists up to three authors, adding "et al." when there are more
func FormatAuthors(authors []string) string {
	if len(authors) == 0 {
		return "Unknown"
	}
	if len(authors) <= citationAuthors {
		return strings.Join(authors, ", ")
	}
	return strings.Join(authors[:citationAuthors], ", ") + " et al."
}

// JournalCitation builds the primary citation for a full-text article
func JournalCitation(a *model.FullTextArticle) model.Citation {
	authors := FormatAuthors(a.Authors)
	return model.Citation{
		Primary:           true,
		Type:              model.CitationJournalArticle,
		Text:              fmt.Sprintf("%s. %s. %s. %s.", strings.TrimSuffix(authors, "."), strings.TrimSuffix(a.Title, "."), a.Journal, a.Year),
		Authors:           authors,
		Title:             a.Title,
		Journal:           a.Journal,
		Year:              a.Year,
		PMID:              a.PMID,
		PMCID:             a.PMCID,
		DOI:               a.DOI,
		PMCURL:            source.PMCURL(a.PMCID),
		FullTextAvailable: true,
	}
}

// LabelCitation builds the primary citation for a label claim
func LabelCitation(label *model.LabelRecord, category model.ClaimType) model.Citation {
	brand := label.BrandName
	if brand == "" {
		brand = "Drug"
	}
	effective := label.EffectiveTime
	if effective == "" {
		effective = "current"
	}

	return model.Citation{
		Primary: true,
		Type:    model.CitationFDALabel,
		Text:    fmt.Sprintf("%s Prescribing Information. FDA-approved label. %s.", brand, effective),
		Section: category.Title(),
		URL:     LabelCitationURL,
	}
}

// FindTrialReference returns a supporting citation for the first trial, in
// list order, whose NCT id appears anywhere in the article's full text
func FindTrialReference(a *model.FullTextArticle, trials []model.TrialRecord) *model.Citation {
	if len(trials) == 0 || a.FullText == "" {
		return nil
	}

	text := strings.ToLower(a.FullText)
	for _, t := range trials {
		if t.NCTID == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(t.NCTID)) {
			url := t.URL
			if url == "" {
				url = source.TrialURL(t.NCTID)
			}
			return &model.Citation{
				Primary: false,
				Type:    model.CitationClinicalTrial,
				Text:    t.DisplayTitle(),
				NCTID:   t.NCTID,
				URL:     url,
			}
		}
	}
	return nil
}

// ExcludedArticles lists the abstract-only summaries of results, capped, and
// the uncapped total
func ExcludedArticles(results *model.ResultSet) ([]model.ExcludedArticle, int) {
	out := []model.ExcludedArticle{}
	if results == nil {
		return out, 0
	}
	total := 0
	for _, a := range results.AbstractOnly() {
		total++
		if len(out) >= model.MaxExcludedArticles {
			continue
		}

		authors := a.Authors
		if len(authors) > citationAuthors {
			authors = authors[:citationAuthors]
		}
		abstract := ""
		if a.Abstract != "" {
			abstract = util.Truncate(a.Abstract, excludedAbstractLimit) + "..."
		}

		out = append(out, model.ExcludedArticle{
			PMID:     a.PMID,
			Title:    a.Title,
			Journal:  a.Journal,
			Year:     a.Year,
			Authors:  append([]string{}, authors...),
			Abstract: abstract,
			Reason:   model.ExclusionReason,
			DOI:      a.DOI,
		})
	}
	return out, total
}
