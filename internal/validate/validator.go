// Package validate holds the claim quality gates: completeness, numeric
// fidelity against source text, citation completeness, and the minimum
// viability check on aggregated search results.
package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/rxclaims/internal/model"
)

const (
	MinClaimTextLength      = 20
	MinSubstantiationLength = 100
)

// numberPatterns extract number-like tokens: plain and comma-grouped numbers,
// decimals, sample sizes, p-values, confidence-interval ranges
var numberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d+(?:,\d{3})*(?:\.\d+)?%?`),
	regexp.MustCompile(`\b\d+\.\d+%?`),
	regexp.MustCompile(`(?i)\bN\s*=\s*\d+(?:,\d{3})*`),
	regexp.MustCompile(`(?i)\bp\s*[<>=]\s*0\.\d+`),
	regexp.MustCompile(`(?i)\bCI:?\s*\d+%?-\d+%?`),
}

// ValidateCompleteness checks that a draft has both texts at their minimum lengths
func ValidateCompleteness(d model.ClaimDraft) (bool, []string) {
	var issues []string

	claimText := strings.TrimSpace(d.ClaimText)
	substantiation := strings.TrimSpace(d.Substantiation)

	if claimText == "" {
		issues = append(issues, "Missing required field: claim_text")
	}
	if substantiation == "" {
		issues = append(issues, "Missing required field: substantiation")
	}
	if len(claimText) < MinClaimTextLength {
		issues = append(issues, fmt.Sprintf("Claim text too short (minimum %d characters)", MinClaimTextLength))
	}
	if len(substantiation) < MinSubstantiationLength {
		issues = append(issues, fmt.Sprintf("Substantiation too short (minimum %d characters)", MinSubstantiationLength))
	}

	return len(issues) == 0, issues
}

// ValidateNumericFidelity checks that every number in claimText, and every
// value in numericData, also appears in source. Tokens match after
// normalization when equal or when either contains the other.
func ValidateNumericFidelity(claimText, source string, numericData map[string]any) (bool, []string) {
	var issues []string
	sourceTokens := normalizeAll(ExtractNumbers(source))

	for _, n := range dedupe(ExtractNumbers(claimText)) {
		if !fuzzyMatch(normalize(n), sourceTokens) {
			issues = append(issues, fmt.Sprintf("Number '%s' in claim not found in source text", n))
		}
	}

	keys := make([]string, 0, len(numericData))
	for k := range numericData {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, field := range keys {
		value, ok := valueString(numericData[field])
		if !ok {
			continue
		}
		if !valueMatches(value, sourceTokens) {
			issues = append(issues, fmt.Sprintf("Numerical data field '%s' value '%s' not found in source", field, value))
		}
	}

	return len(issues) == 0, issues
}

// ExtractNumbers returns every number-like token in text, pattern by pattern
func ExtractNumbers(text string) []string {
	var out []string
	for _, re := range numberPatterns {
		for _, m := range re.FindAllString(text, -1) {
			if m = strings.TrimSpace(m); m != "" {
				out = append(out, m)
			}
		}
	}
	return out
}

func valueMatches(value string, sourceTokens []string) bool {
	tokens := ExtractNumbers(value)
	if len(tokens) == 0 {
		return fuzzyMatch(normalize(value), sourceTokens)
	}
	for _, t := range tokens {
		if !fuzzyMatch(normalize(t), sourceTokens) {
			return false
		}
	}
	return true
}

// valueString renders strings and numbers; nil, empty and other kinds are skipped
func valueString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		x = strings.TrimSpace(x)
		return x, x != ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	default:
		return "", false
	}
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", "")
	return strings.ToLower(s)
}

func normalizeAll(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = normalize(t)
	}
	return out
}

func fuzzyMatch(n string, sourceTokens []string) bool {
	if n == "" {
		return true
	}
	for _, s := range sourceTokens {
		if s == "" {
			continue
		}
		if n == s || strings.Contains(s, n) || strings.Contains(n, s) {
			return true
		}
	}
	return false
}

func dedupe(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// ValidateCitation checks that a citation carries the fields its type needs
func ValidateCitation(c model.Citation) (bool, []string) {
	var issues []string

	switch c.Type {
	case model.CitationJournalArticle:
		if c.Authors == "" {
			issues = append(issues, "Missing required citation field: authors")
		}
		if c.Title == "" {
			issues = append(issues, "Missing required citation field: title")
		}
		if c.Journal == "" {
			issues = append(issues, "Missing required citation field: journal")
		}
		if c.PMCID == "" && c.DOI == "" {
			issues = append(issues, "Missing article identifier (PMCID or DOI required)")
		}
	case model.CitationFDALabel:
		if c.Text == "" {
			issues = append(issues, "Missing FDA label citation text")
		}
		if c.URL == "" {
			issues = append(issues, "Missing FDA label URL")
		}
	case model.CitationClinicalTrial:
		if c.NCTID == "" {
			issues = append(issues, "Missing NCT number")
		}
	default:
		issues = append(issues, fmt.Sprintf("Unknown citation type %q", c.Type))
	}

	return len(issues) == 0, issues
}

// ValidateFullTextRequirement checks that an article claim was built from full text
func ValidateFullTextRequirement(c model.Claim) (bool, []string) {
	if c.SourceType != model.SourceTypeFullTextArticle {
		return true, nil
	}

	var issues []string
	if !c.FullTextUsed {
		issues = append(issues, "Claim based on abstract only - full text not available")
	}
	primary, ok := c.PrimaryCitation()
	if !ok {
		issues = append(issues, "Missing primary citation")
	} else if !primary.FullTextAvailable {
		issues = append(issues, "Primary citation has no full text")
	}

	return len(issues) == 0, issues
}
