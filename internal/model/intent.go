package model

import "strings"

// ClaimType is the category of claim the user asked for
type ClaimType string

const (
	ClaimTypeEfficacy   ClaimType = "efficacy"
	ClaimTypeSafety     ClaimType = "safety"
	ClaimTypeDosing     ClaimType = "dosing"
	ClaimTypeIndication ClaimType = "indication"
	ClaimTypeMechanism  ClaimType = "mechanism"
)

// Claim count bounds
const (
	DefaultClaimCount = 6
	MinClaimCount     = 1
	MaxClaimCount     = 20
)

// ParseClaimType maps free text onto a known claim type (efficacy when unknown)
func ParseClaimType(s string) ClaimType {
	switch ClaimType(strings.ToLower(strings.TrimSpace(s))) {
	case ClaimTypeSafety:
		return ClaimTypeSafety
	case ClaimTypeDosing, "dosage":
		return ClaimTypeDosing
	case ClaimTypeIndication:
		return ClaimTypeIndication
	case ClaimTypeMechanism:
		return ClaimTypeMechanism
	default:
		return ClaimTypeEfficacy
	}
}

// Title returns the category in title case ("Efficacy")
func (t ClaimType) Title() string {
	s := string(t)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// DrugIdentification names the product in every form the sources may know it by
type DrugIdentification struct {
	BrandName   string   `json:"brand_name,omitempty" yaml:"brand_name,omitempty"`
	GenericName string   `json:"generic_name,omitempty" yaml:"generic_name,omitempty"`
	Synonyms    []string `json:"synonyms" yaml:"synonyms"`
	SearchTerms []string `json:"search_terms" yaml:"search_terms"`
}

// OutputRequirements controls the shape of the claims output
type OutputRequirements struct {
	ClaimCount            int    `json:"claim_count" yaml:"claim_count"`
	IncludeSubstantiation bool   `json:"include_substantiation" yaml:"include_substantiation"`
	FormatType            string `json:"format_type" yaml:"format_type"`
	IncludeSafety         bool   `json:"include_safety" yaml:"include_safety"`
	IncludeDosing         bool   `json:"include_dosing" yaml:"include_dosing"`
}

// DefaultOutputRequirements returns the requirements used when the query names none
func DefaultOutputRequirements() OutputRequirements {
	return OutputRequirements{
		ClaimCount:            DefaultClaimCount,
		IncludeSubstantiation: true,
		FormatType:            "MLR-ready",
	}
}

// Intent is the structured form of a user query. Built once per request, read-only afterwards.
type Intent struct {
	Drug          DrugIdentification `json:"drug"`
	ClaimType     ClaimType          `json:"claim_type"`
	Indication    string             `json:"indication,omitempty"`
	Population    string             `json:"population,omitempty"`
	Output        OutputRequirements `json:"output_requirements"`
	OriginalQuery string             `json:"original_query"`
}

// PrimaryDrugName returns the most specific name available for the drug
func (i *Intent) PrimaryDrugName() string {
	if i.Drug.BrandName != "" {
		return i.Drug.BrandName
	}
	if i.Drug.GenericName != "" {
		return i.Drug.GenericName
	}
	if len(i.Drug.SearchTerms) > 0 {
		return i.Drug.SearchTerms[0]
	}
	return ""
}

// Quota returns the claim count clamped to the allowed range
func (i *Intent) Quota() int {
	return ClampClaimCount(i.Output.ClaimCount)
}

// ClampClaimCount bounds n to [MinClaimCount, MaxClaimCount]; zero means default
func ClampClaimCount(n int) int {
	if n == 0 {
		return DefaultClaimCount
	}
	if n < MinClaimCount {
		return MinClaimCount
	}
	if n > MaxClaimCount {
		return MaxClaimCount
	}
	return n
}
