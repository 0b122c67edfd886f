package validate

import (
	"fmt"

	"github.com/ppiankov/rxclaims/internal/model"
)

// minFullTextArticles is the point below which claim coverage is likely thin
const minFullTextArticles = 3

// NoResultsMessage is the fatal reason when every source came back empty
const NoResultsMessage = "No results found from any source"

// ValidateResults is the minimum-viability check on an aggregated result set.
// ok is false only when no source produced anything; otherwise warnings
// describe a degraded but usable set.
func ValidateResults(rs *model.ResultSet) (ok bool, warnings []string) {
	if rs == nil {
		return false, []string{NoResultsMessage}
	}

	hasLabel := rs.Label != nil
	hasArticles := len(rs.Articles) > 0
	hasTrials := len(rs.ClinicalTrials) > 0

	if !hasLabel && !hasArticles && !hasTrials {
		return false, []string{NoResultsMessage}
	}

	total := rs.Counts.TotalFound
	fullText := rs.Counts.FullTextAvailable

	if total > 0 && fullText == 0 {
		warnings = append(warnings, fmt.Sprintf("Found %d articles but none have full text available", total))
	}
	if fullText > 0 && fullText < minFullTextArticles {
		warnings = append(warnings, fmt.Sprintf("Only %d full-text articles found - may not be enough for comprehensive claims", fullText))
	}
	if hasLabel && len(rs.Label.IndicationsAndUsage) == 0 {
		warnings = append(warnings, "FDA label found but missing indications section")
	}

	return true, warnings
}
