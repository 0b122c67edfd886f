package extract

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/rxclaims/internal/llm"
	"github.com/ppiankov/rxclaims/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const longSubstantiation = "The randomized, double-blind, placebo-controlled trial enrolled unvaccinated adults at high risk of progression and measured hospitalization or death through the end of follow-up."

type fakeExtractor struct {
	mu       sync.Mutex
	label    *model.ClaimDraft
	labelErr error
	articles map[string]*model.ClaimDraft
	errs     map[string]error
	calls    []string
}

func (f *fakeExtractor) ExtractLabelClaim(ctx context.Context, brand, sectionName, sectionText string, category model.ClaimType) (*model.ClaimDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "label:"+sectionName)
	return f.label, f.labelErr
}

func (f *fakeExtractor) ExtractArticleClaim(ctx context.Context, req llm.ArticleClaimRequest) (*model.ClaimDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.Title)
	if err := f.errs[req.Title]; err != nil {
		return nil, err
	}
	return f.articles[req.Title], nil
}

func testIntent(count int) *model.Intent {
	return &model.Intent{
		Drug:          model.DrugIdentification{BrandName: "Paxlovid", GenericName: "nirmatrelvir"},
		ClaimType:     model.ClaimTypeEfficacy,
		Indication:    "COVID-19",
		Output:        model.OutputRequirements{ClaimCount: count},
		OriginalQuery: "efficacy claims for Paxlovid",
	}
}

func testLabel() *model.LabelRecord {
	return &model.LabelRecord{
		BrandName:       "PAXLOVID",
		ClinicalStudies: []string{"In EPIC-HR, PAXLOVID reduced hospitalization or death by 89% versus placebo."},
		EffectiveTime:   "20230525",
	}
}

func rankedArticle(title, pmcid, results string, score float64) model.RankedArticle {
	return model.RankedArticle{
		Article: model.FullTextArticle{
			PMID:     "1" + strings.TrimPrefix(pmcid, "PMC"),
			PMCID:    pmcid,
			Title:    title,
			Journal:  "N Engl J Med",
			Year:     "2022",
			Authors:  []string{"Hammond J", "Leister-Tebbe H", "Gardner A", "Abreu P"},
			Sections: []model.Section{{Title: "Results", Text: results}},
			FullText: results,
		},
		Score: score,
	}
}

func draft(text string) *model.ClaimDraft {
	return &model.ClaimDraft{ClaimText: text, Substantiation: longSubstantiation}
}

func TestGenerate_LabelCountsTowardQuota(t *testing.T) {
	ex := &fakeExtractor{
		label: draft("PAXLOVID reduced hospitalization or death by 89% versus placebo."),
		articles: map[string]*model.ClaimDraft{
			"A": draft("Treatment lowered viral load by 0.87 log10 copies/mL at day 5."),
			"B": draft("Hospitalization fell to 0.8% in the treatment arm."),
			"C": draft("Relative risk reduction reached 99% in the subgroup."),
		},
	}
	ranked := []model.RankedArticle{
		rankedArticle("A", "PMC100", "Viral load decreased by 0.87 log10 copies/mL at day 5.", 20.5),
		rankedArticle("B", "PMC200", "Hospitalization occurred in 0.8% of treated patients.", 19.0),
		rankedArticle("C", "PMC300", "Relative risk reduction was 88.9% overall.", 18.0),
	}
	results := &model.ResultSet{
		Label: testLabel(),
		Articles: []model.ArticleSummary{
			{PMID: "1100", PMCID: "PMC100", Title: "A"},
			{PMID: "1200", PMCID: "PMC200", Title: "B"},
			{PMID: "1300", PMCID: "PMC300", Title: "C"},
		},
		FullText: []model.FullTextArticle{ranked[0].Article, ranked[1].Article, ranked[2].Article},
		Counts:   model.NewCounts(3, 3, 0),
	}

	out, err := NewGenerator(ex, nil).Generate(context.Background(), GenerateInput{
		Intent:  testIntent(2),
		Results: results,
		Ranked:  ranked,
	})
	require.NoError(t, err)

	require.Len(t, out.Claims, 2)
	assert.Equal(t, 1, out.Claims[0].ID)
	assert.Equal(t, model.SourceTypeFDALabel, out.Claims[0].SourceType)
	assert.Equal(t, model.ConfidenceLabel, out.Claims[0].Confidence)
	assert.Equal(t, "FDA label: Clinical Studies", out.Claims[0].ExcerptLocation)
	assert.True(t, out.Claims[0].FullTextUsed)

	assert.Equal(t, 2, out.Claims[1].ID)
	assert.Equal(t, model.SourceTypeFullTextArticle, out.Claims[1].SourceType)
	assert.Equal(t, "PMC100", out.Claims[1].Citations[0].PMCID)
	assert.Equal(t, model.ConfidenceValidatedData, out.Claims[1].Confidence)
	assert.Equal(t, "Results section", out.Claims[1].ExcerptLocation)

	assert.Equal(t, []string{"label:Clinical Studies", "A"}, ex.calls)
	assert.Empty(t, out.AdditionalContext.ArticlesWithoutFullText)
}

func TestGenerate_NumericFailureIsSkippedAndIDsStayContiguous(t *testing.T) {
	ex := &fakeExtractor{
		articles: map[string]*model.ClaimDraft{
			"A": draft("Risk of hospitalization dropped by 42% compared with placebo."),
			"B": draft("Symptom resolution occurred 2 days sooner than with placebo."),
			"C": draft("Viral RNA was undetectable in 71% of treated participants."),
		},
	}
	ranked := []model.RankedArticle{
		rankedArticle("A", "PMC100", "Risk of hospitalization dropped by 30% compared with placebo.", 19.0),
		rankedArticle("B", "PMC200", "Symptoms resolved 2 days sooner in the treatment group.", 18.0),
		rankedArticle("C", "PMC300", "Viral RNA was undetectable in 71% of treated participants.", 17.0),
	}

	out, err := NewGenerator(ex, nil).Generate(context.Background(), GenerateInput{
		Intent:  testIntent(2),
		Results: &model.ResultSet{},
		Ranked:  ranked,
	})
	require.NoError(t, err)

	require.Len(t, out.Claims, 2)
	assert.Equal(t, 1, out.Claims[0].ID)
	assert.Equal(t, "PMC200", out.Claims[0].Citations[0].PMCID)
	assert.Equal(t, model.ConfidenceFullText, out.Claims[0].Confidence)
	assert.Equal(t, 2, out.Claims[1].ID)
	assert.Equal(t, "PMC300", out.Claims[1].Citations[0].PMCID)
}

func TestGenerate_SubstantiationNumbersMustAppearInSource(t *testing.T) {
	ex := &fakeExtractor{
		articles: map[string]*model.ClaimDraft{
			"A": {
				ClaimText:      "Nirmatrelvir lowered the risk of hospitalization or death by 89%.",
				Substantiation: "The reduction reached 92% among 2,246 adults enrolled across sites, with consistent effects in every prespecified subgroup.",
			},
			"B": {
				ClaimText:      "Nirmatrelvir lowered the risk of hospitalization or death by 89%.",
				Substantiation: "Among 2,246 adults enrolled, the reduction was consistent across every prespecified subgroup and sensitivity analysis.",
			},
		},
	}
	source := "Risk of hospitalization or death was reduced by 89% among 2,246 adults."
	ranked := []model.RankedArticle{
		rankedArticle("A", "PMC100", source, 19.0),
		rankedArticle("B", "PMC200", source, 18.0),
	}

	out, err := NewGenerator(ex, nil).Generate(context.Background(), GenerateInput{
		Intent:  testIntent(1),
		Results: &model.ResultSet{},
		Ranked:  ranked,
	})
	require.NoError(t, err)

	require.Len(t, out.Claims, 1)
	assert.Equal(t, "PMC200", out.Claims[0].Citations[0].PMCID)
	assert.Equal(t, []string{"A", "B"}, ex.calls)
}

func TestGenerate_FailedFullTextFetchIsExcluded(t *testing.T) {
	ex := &fakeExtractor{
		articles: map[string]*model.ClaimDraft{"A": draft("Hospitalization fell to 0.8% in the treatment arm.")},
	}
	a := rankedArticle("A", "PMC100", "Hospitalization occurred in 0.8% of patients.", 18.0)
	results := &model.ResultSet{
		Articles: []model.ArticleSummary{
			{PMID: a.Article.PMID, PMCID: "PMC100", Title: "A"},
			{PMID: "555", PMCID: "PMC555", Title: "Fetch failed"},
		},
		FullText: []model.FullTextArticle{a.Article},
		Counts:   model.NewCounts(2, 1, 0),
	}

	out, err := NewGenerator(ex, nil).Generate(context.Background(), GenerateInput{
		Intent:  testIntent(1),
		Results: results,
		Ranked:  []model.RankedArticle{a},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, out.SearchSummary.ResultsFound.PubMedAbstractOnly)
	require.Len(t, out.AdditionalContext.ArticlesWithoutFullText, 1)
	assert.Equal(t, "555", out.AdditionalContext.ArticlesWithoutFullText[0].PMID)
	assert.Equal(t, "1 claims generated from full-text sources. 1 additional relevant articles identified but excluded due to lack of full text access.",
		out.AdditionalContext.Recommendation)
}

func TestGenerate_IncompleteLabelDraftIsDiscarded(t *testing.T) {
	ex := &fakeExtractor{
		label:    &model.ClaimDraft{ClaimText: "Works well.", Substantiation: "Short."},
		articles: map[string]*model.ClaimDraft{"A": draft("Hospitalization fell to 0.8% in the treatment arm.")},
	}

	out, err := NewGenerator(ex, nil).Generate(context.Background(), GenerateInput{
		Intent:  testIntent(3),
		Results: &model.ResultSet{Label: testLabel()},
		Ranked:  []model.RankedArticle{rankedArticle("A", "PMC100", "Hospitalization occurred in 0.8% of patients.", 18.0)},
	})
	require.NoError(t, err)

	require.Len(t, out.Claims, 1)
	assert.Equal(t, 1, out.Claims[0].ID)
	assert.Equal(t, model.SourceTypeFullTextArticle, out.Claims[0].SourceType)
}

func TestGenerate_ExtractionErrorsSkipCandidate(t *testing.T) {
	ex := &fakeExtractor{
		labelErr: errors.New("provider down"),
		errs:     map[string]error{"A": errors.New("bad json")},
		articles: map[string]*model.ClaimDraft{"B": draft("Hospitalization fell to 0.8% in the treatment arm.")},
	}

	out, err := NewGenerator(ex, nil).Generate(context.Background(), GenerateInput{
		Intent:  testIntent(5),
		Results: &model.ResultSet{Label: testLabel()},
		Ranked: []model.RankedArticle{
			rankedArticle("A", "PMC100", "irrelevant", 18.0),
			rankedArticle("B", "PMC200", "Hospitalization occurred in 0.8% of patients.", 18.0),
		},
	})
	require.NoError(t, err)

	require.Len(t, out.Claims, 1)
	assert.Equal(t, "PMC200", out.Claims[0].Citations[0].PMCID)
}

func TestGenerate_EmptyLabelSectionMakesNoCall(t *testing.T) {
	ex := &fakeExtractor{label: draft("PAXLOVID reduced hospitalization or death by 89% versus placebo.")}
	label := &model.LabelRecord{BrandName: "PAXLOVID", IndicationsAndUsage: []string{"Treatment of COVID-19."}}

	out, err := NewGenerator(ex, nil).Generate(context.Background(), GenerateInput{
		Intent:  testIntent(2),
		Results: &model.ResultSet{Label: label},
	})
	require.NoError(t, err)

	assert.Empty(t, out.Claims)
	assert.Empty(t, ex.calls)
}

func TestGenerate_TrialCrossReference(t *testing.T) {
	ex := &fakeExtractor{
		articles: map[string]*model.ClaimDraft{"A": draft("Hospitalization fell to 0.8% in the treatment arm.")},
	}
	a := rankedArticle("A", "PMC100", "Hospitalization occurred in 0.8% of patients.", 18.0)
	a.Article.FullText = "Registered as nct04960202. " + a.Article.FullText
	trials := []model.TrialRecord{
		{NCTID: "NCT00000001", Title: "Other"},
		{NCTID: "NCT04960202", Title: "EPIC-HR official", BriefTitle: "EPIC-HR"},
	}

	out, err := NewGenerator(ex, nil).Generate(context.Background(), GenerateInput{
		Intent:  testIntent(1),
		Results: &model.ResultSet{ClinicalTrials: trials},
		Ranked:  []model.RankedArticle{a},
	})
	require.NoError(t, err)

	require.Len(t, out.Claims, 1)
	require.Len(t, out.Claims[0].Citations, 2)
	trial := out.Claims[0].Citations[1]
	assert.False(t, trial.Primary)
	assert.Equal(t, model.CitationClinicalTrial, trial.Type)
	assert.Equal(t, "NCT04960202", trial.NCTID)
	assert.Equal(t, "EPIC-HR", trial.Text)
	assert.Equal(t, "https://clinicaltrials.gov/study/NCT04960202", trial.URL)
}

func TestGenerate_SummaryAndRecommendation(t *testing.T) {
	var articles []model.ArticleSummary
	for i := 0; i < 12; i++ {
		articles = append(articles, model.ArticleSummary{PMID: string(rune('a' + i)), Title: "abstract only"})
	}
	articles = append(articles, model.ArticleSummary{PMID: "z", PMCID: "PMC9"})

	g := NewGenerator(&fakeExtractor{}, nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	out, err := g.Generate(context.Background(), GenerateInput{
		Intent:    testIntent(2),
		Results: &model.ResultSet{
			Label:    testLabel(),
			Articles: articles,
			FullText: []model.FullTextArticle{{PMID: "z", PMCID: "PMC9"}},
			Counts:   model.NewCounts(13, 1, 4),
		},
		RequestID: "01HZX",
		Elapsed:   1500 * time.Millisecond,
		Warnings:  []string{"No full-text articles found"},
	})
	require.NoError(t, err)

	s := out.SearchSummary
	assert.Equal(t, "01HZX", s.RequestID)
	assert.Equal(t, "efficacy claims for Paxlovid", s.UserQuery)
	assert.Equal(t, []string{"OpenFDA", "PubMed/PMC", "ClinicalTrials.gov"}, s.SourcesSearched)
	assert.Equal(t, model.ResultsFound{FDALabels: 1, PubMedTotal: 13, PubMedFullText: 1, PubMedAbstractOnly: 12, ClinicalTrials: 4}, s.ResultsFound)
	assert.Equal(t, model.FullTextStrategy, s.FullTextStrategy)
	assert.InDelta(t, 1.5, s.SearchTimeSeconds, 0.001)
	assert.Equal(t, fixed, s.Timestamp)

	assert.Len(t, out.AdditionalContext.ArticlesWithoutFullText, model.MaxExcludedArticles)
	assert.Equal(t, "0 claims generated from full-text sources. 12 additional relevant articles identified but excluded due to lack of full text access.",
		out.AdditionalContext.Recommendation)
	assert.Equal(t, []string{"No full-text articles found"}, out.AdditionalContext.Warnings)
}

func TestGenerate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewGenerator(&fakeExtractor{}, nil).Generate(ctx, GenerateInput{
		Intent:  testIntent(2),
		Results: &model.ResultSet{},
		Ranked:  []model.RankedArticle{rankedArticle("A", "PMC100", "x", 18)},
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerate_RequiresIntentAndResults(t *testing.T) {
	_, err := NewGenerator(&fakeExtractor{}, nil).Generate(context.Background(), GenerateInput{})
	assert.Error(t, err)
}
