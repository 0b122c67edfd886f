package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/rxclaims/internal/model"
	"github.com/ppiankov/rxclaims/internal/util"
)

// Input windows sent to the model
const (
	relevanceTextLimit    = 1000
	labelSectionLimit     = 2000
	articleResultsLimit   = 3000
	articlePromptAuthors  = 3
	relevanceMaxTokens    = 10
	intentMaxTokens       = 1024
	labelClaimMaxTokens   = 1024
	articleClaimMaxTokens = 2048
)

const (
	intentSystem    = "You are a pharmaceutical data extraction expert. Always return valid JSON."
	relevanceSystem = "You are a relevance scorer. Return only a single number."
	claimSystem     = "You are a medical writer. Return only valid JSON."
)

// BuildIntentPrompt asks for the structured form of a free-text query
func BuildIntentPrompt(query string) string {
	return fmt.Sprintf(`You are a pharmaceutical information assistant. Extract structured information from this user query about drug claims.

User Query: %q

Extract the following information in JSON format:
{
  "drug": {
    "brand_name": "Brand name if mentioned (e.g., Paxlovid)",
    "generic_name": "Generic name if mentioned or can be inferred",
    "search_terms": ["list of all relevant search terms including brand, generic, and synonyms"]
  },
  "claim_type": "Type of claim (efficacy, safety, dosing, mechanism, indication)",
  "indication": "Medical condition/indication",
  "population": "Target patient population (e.g., high-risk patients, adults, elderly)",
  "output_requirements": {
    "claim_count": %d,
    "include_substantiation": true,
    "format_type": "MLR-ready",
    "include_safety": false,
    "include_dosing": false
  }
}

Important:
- If brand name is given but not generic, leave generic_name as null (will be looked up via OpenFDA)
- Default to "efficacy" if claim type is unclear
- Use the number of claims the user asks for as claim_count, otherwise %d
- Be generous with search_terms - include all variations
- Set include_safety to true only if explicitly requested
- Set include_dosing to true only if explicitly requested

Return ONLY valid JSON, no other text.`, query, model.DefaultClaimCount, model.DefaultClaimCount)
}

// BuildRelevancePrompt asks for a single 0..max relevance number
func BuildRelevancePrompt(preview string, intent *model.Intent, max float64) string {
	drug := intent.PrimaryDrugName()
	if drug == "" {
		drug = "the drug"
	}
	claimType := intent.ClaimType
	if claimType == "" {
		claimType = model.ClaimTypeEfficacy
	}

	return fmt.Sprintf(`Rate the relevance of this article to the user's information need on a scale of 0-%[1]g.

User is looking for: %[2]s claims for %[3]s in %[4]s for %[5]s

Article text (title + beginning):
%[6]s

Consider:
- Does it study the correct drug?
- Does it address the right indication?
- Does it cover the requested claim type (efficacy/safety)?
- Is it the right patient population?
- Is it a rigorous clinical trial vs observational study?

Return ONLY a number from 0-%[1]g, no other text.
10 = Perfect match, highly relevant Phase 3 RCT
7-9 = Good match, relevant study
4-6 = Moderate match, some relevance
1-3 = Weak match, tangentially related
0 = Not relevant`, max, claimType, drug, intent.Indication, intent.Population, util.Truncate(preview, relevanceTextLimit))
}

// BuildLabelClaimPrompt asks for one claim from a label section
func BuildLabelClaimPrompt(brand, sectionName, sectionText string, category model.ClaimType) string {
	if brand == "" {
		brand = "This drug"
	}
	if category == "" {
		category = model.ClaimTypeIndication
	}

	return fmt.Sprintf(`Extract an MLR-ready claim from this FDA-approved label section.

Drug: %s
Section: %s
Claim type: %s

Text:
%s

Create:
1. **claim_text**: Concise claim using FDA-approved language (1-2 sentences)
2. **substantiation**: The exact FDA label text that supports this claim

For indication claims, use the approved indication wording.
For efficacy claims, include specific data from clinical studies.

Return JSON:
{
  "claim_text": "FDA-approved claim here",
  "substantiation": "Exact FDA label text here"
}

Return ONLY valid JSON, no other text.`, brand, sectionName, category, util.Truncate(sectionText, labelSectionLimit))
}

// BuildArticleClaimPrompt asks for one claim with numeric data from an article's results
func BuildArticleClaimPrompt(req ArticleClaimRequest) string {
	authors := req.Authors
	if len(authors) > articlePromptAuthors {
		authors = authors[:articlePromptAuthors]
	}
	claimType := req.ClaimType
	if claimType == "" {
		claimType = model.ClaimTypeEfficacy
	}

	return fmt.Sprintf(`You are a medical writer creating MLR-ready pharmaceutical claims. Extract a %s claim from this clinical trial article.

Article: %s
Journal: %s
Authors: %s

Results Section:
%s

Extract:
1. **claim_text**: A concise, MLR-ready claim statement (1-2 sentences, no longer)
2. **substantiation**: A detailed paragraph with:
   - Study design (randomized, double-blind, etc.)
   - Population (N=, inclusion criteria)
   - Intervention (drug, dose, duration)
   - Comparator (placebo, active control)
   - Primary endpoint measured
   - Specific results with exact numbers
   - Risk reduction or effect size
   - Statistical significance (p-value, confidence interval)
   - Time frame

3. **numerical_data**: Extract exact numbers for validation:
   - sample_size: Total N
   - primary_endpoint_result: e.g., "0.58%% vs 5.73%%"
   - risk_reduction: e.g., "89%%"
   - confidence_interval: e.g., "95%% CI: 83%%-93%%"
   - p_value: e.g., "P<0.001"

CRITICAL RULES:
- Use EXACT numbers from the text - never round or approximate
- If a number says "89%%", write "89%%" not "approximately 90%%"
- Include confidence intervals exactly as stated
- Quote statistical significance exactly
- If data is missing, return null for that field

Return JSON:
{
  "claim_text": "Concise claim here",
  "substantiation": "Detailed paragraph here",
  "numerical_data": {
    "sample_size": 2246,
    "primary_endpoint_result": "0.58%% vs 5.73%%",
    "risk_reduction": "89%%",
    "confidence_interval": "95%% CI: 83%%-93%%",
    "p_value": "P<0.001"
  },
  "extracted_from": "Results section, paragraphs 3-5"
}

Return ONLY valid JSON, no other text.`, claimType, req.Title, req.Journal, strings.Join(authors, ", "), util.Truncate(req.ResultsText, articleResultsLimit))
}
