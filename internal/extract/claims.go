// Package extract turns ranked evidence into validated, cited claims.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/rxclaims/internal/llm"
	"github.com/ppiankov/rxclaims/internal/logging"
	"github.com/ppiankov/rxclaims/internal/model"
	"github.com/ppiankov/rxclaims/internal/validate"
	"go.uber.org/zap"
)

// validatedDataThreshold is the ranking score at which an article claim
// earns the "validated data" confidence tier
const validatedDataThreshold = 20.0

// SourcesSearched is reported in every search summary
var SourcesSearched = []string{model.SourceOpenFDA, model.SourcePubMed, model.SourceClinicalTrials}

// ClaimExtractor proposes claim drafts from source text
type ClaimExtractor interface {
	ExtractLabelClaim(ctx context.Context, brand, sectionName, sectionText string, category model.ClaimType) (*model.ClaimDraft, error)
	ExtractArticleClaim(ctx context.Context, req llm.ArticleClaimRequest) (*model.ClaimDraft, error)
}

// GenerateInput is everything one request contributes to its output
type GenerateInput struct {
	Intent    *model.Intent
	Results   *model.ResultSet
	Ranked    []model.RankedArticle
	RequestID string
	Elapsed   time.Duration
	Warnings  []string
}

// Generator builds the claims output: label claim first, then article
// claims in rank order until the quota is met
type Generator struct {
	extractor ClaimExtractor
	log       *zap.SugaredLogger
	now       func() time.Time
}

// NewGenerator creates a Generator
func NewGenerator(extractor ClaimExtractor, log *zap.SugaredLogger) *Generator {
	return &Generator{
		extractor: extractor,
		log:       logging.OrNop(log),
		now:       time.Now,
	}
}

// Generate produces the final output. Candidates that fail extraction or
// validation are dropped; only a cancelled context is an error.
func (g *Generator) Generate(ctx context.Context, in GenerateInput) (*model.ClaimsOutput, error) {
	if in.Intent == nil || in.Results == nil {
		return nil, fmt.Errorf("generate claims: intent and results are required")
	}

	quota := in.Intent.Quota()
	claims := make([]model.Claim, 0, quota)

	if in.Results.Label != nil {
		if c, ok := g.labelClaim(ctx, in.Intent, in.Results.Label); ok {
			c.ID = len(claims) + 1
			claims = append(claims, c)
		}
	}

	for _, ranked := range in.Ranked {
		if len(claims) >= quota {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("generate claims: %w", err)
		}

		c, ok := g.articleClaim(ctx, in.Intent, ranked, in.Results.ClinicalTrials)
		if !ok {
			continue
		}
		c.ID = len(claims) + 1
		claims = append(claims, c)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("generate claims: %w", err)
	}

	excluded, excludedTotal := ExcludedArticles(in.Results)
	g.log.Infow("claims generated",
		"claims", len(claims),
		"quota", quota,
		"ranked", len(in.Ranked),
		"excluded", excludedTotal,
	)

	return &model.ClaimsOutput{
		SearchSummary: g.summary(in),
		Claims:        claims,
		AdditionalContext: model.AdditionalContext{
			ArticlesWithoutFullText: excluded,
			Recommendation: fmt.Sprintf(
				"%d claims generated from full-text sources. %d additional relevant articles identified but excluded due to lack of full text access.",
				len(claims), excludedTotal),
			Warnings: in.Warnings,
		},
	}, nil
}

func (g *Generator) labelClaim(ctx context.Context, intent *model.Intent, label *model.LabelRecord) (model.Claim, bool) {
	sectionName, sectionText := LabelSection(label, intent.ClaimType)
	if sectionText == "" {
		g.log.Debugw("label section empty, no label claim", "section", sectionName)
		return model.Claim{}, false
	}

	brand := label.BrandName
	if brand == "" {
		brand = intent.PrimaryDrugName()
	}

	draft, err := g.extractor.ExtractLabelClaim(ctx, brand, sectionName, sectionText, intent.ClaimType)
	if err != nil {
		g.log.Warnw("label claim extraction failed", "section", sectionName, "error", err)
		return model.Claim{}, false
	}
	if draft == nil {
		g.log.Debugw("label claim extraction returned nothing", "section", sectionName)
		return model.Claim{}, false
	}

	if ok, issues := validate.ValidateCompleteness(*draft); !ok {
		g.log.Debugw("label claim discarded", "section", sectionName, "issues", issues)
		return model.Claim{}, false
	}

	c := model.Claim{
		Type:            intent.ClaimType,
		Text:            draft.ClaimText,
		Substantiation:  draft.Substantiation,
		SourceType:      model.SourceTypeFDALabel,
		Citations:       []model.Citation{LabelCitation(label, intent.ClaimType)},
		Confidence:      model.ConfidenceLabel,
		FullTextUsed:    true,
		ExcerptLocation: "FDA label: " + sectionName,
	}
	g.audit(c)
	return c, true
}

func (g *Generator) articleClaim(ctx context.Context, intent *model.Intent, ranked model.RankedArticle, trials []model.TrialRecord) (model.Claim, bool) {
	a := &ranked.Article

	draft, err := g.extractor.ExtractArticleClaim(ctx, llm.ArticleClaimRequest{
		Title:       a.Title,
		Journal:     a.Journal,
		Authors:     a.Authors,
		ResultsText: ResultsExcerpt(a),
		ClaimType:   intent.ClaimType,
	})
	if err != nil {
		g.log.Warnw("article claim extraction failed", "pmcid", a.PMCID, "error", err)
		return model.Claim{}, false
	}
	if draft == nil {
		g.log.Debugw("article claim extraction returned nothing", "pmcid", a.PMCID)
		return model.Claim{}, false
	}

	if ok, issues := validate.ValidateCompleteness(*draft); !ok {
		g.log.Debugw("article claim discarded: incomplete", "pmcid", a.PMCID, "issues", issues)
		return model.Claim{}, false
	}
	if ok, issues := validate.ValidateNumericFidelity(draft.ClaimText+" "+draft.Substantiation, ValidationSource(a), draft.NumericalData); !ok {
		g.log.Debugw("article claim discarded: numbers not in source", "pmcid", a.PMCID, "issues", issues)
		return model.Claim{}, false
	}

	citations := []model.Citation{JournalCitation(a)}
	if trial := FindTrialReference(a, trials); trial != nil {
		citations = append(citations, *trial)
	}

	confidence := model.ConfidenceFullText
	if ranked.Score >= validatedDataThreshold {
		confidence = model.ConfidenceValidatedData
	}

	location := draft.ExtractedFrom
	if location == "" {
		location = "Results section"
	}

	c := model.Claim{
		Type:            intent.ClaimType,
		Text:            draft.ClaimText,
		Substantiation:  draft.Substantiation,
		SourceType:      model.SourceTypeFullTextArticle,
		Citations:       citations,
		Confidence:      confidence,
		FullTextUsed:    true,
		ExcerptLocation: location,
		NumericalData:   draft.NumericalData,
	}
	g.audit(c)
	return c, true
}

// audit logs citation or full-text gaps on an accepted claim
func (g *Generator) audit(c model.Claim) {
	for _, cit := range c.Citations {
		if ok, issues := validate.ValidateCitation(cit); !ok {
			g.log.Debugw("citation incomplete", "citation_type", cit.Type, "issues", issues)
		}
	}
	if ok, issues := validate.ValidateFullTextRequirement(c); !ok {
		g.log.Warnw("claim fails full-text requirement", "issues", issues)
	}
}

func (g *Generator) summary(in GenerateInput) model.SearchSummary {
	rs := in.Results
	labels := 0
	if rs.Label != nil {
		labels = 1
	}

	return model.SearchSummary{
		RequestID:       in.RequestID,
		UserQuery:       in.Intent.OriginalQuery,
		SourcesSearched: append([]string{}, SourcesSearched...),
		ResultsFound: model.ResultsFound{
			FDALabels:          labels,
			PubMedTotal:        rs.Counts.TotalFound,
			PubMedFullText:     rs.Counts.FullTextAvailable,
			PubMedAbstractOnly: rs.Counts.AbstractOnly,
			ClinicalTrials:     rs.Counts.ClinicalTrialsFound,
		},
		FullTextStrategy:  model.FullTextStrategy,
		SearchTimeSeconds: in.Elapsed.Seconds(),
		Timestamp:         g.now().UTC(),
	}
}
