package search

import (
	"context"
	"strings"
	"time"

	"github.com/ppiankov/rxclaims/internal/logging"
	"github.com/ppiankov/rxclaims/internal/model"
	"github.com/ppiankov/rxclaims/internal/source"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LabelSource finds an FDA label by brand, falling back to generic
type LabelSource interface {
	FindLabel(ctx context.Context, brand, generic string) (*model.LabelRecord, error)
}

// TrialSource searches the trial registry
type TrialSource interface {
	Search(ctx context.Context, q source.TrialQuery) ([]model.TrialRecord, error)
}

// Orchestrator runs the label, literature and registry searches concurrently.
// A failing sub-search never cancels or fails its siblings.
type Orchestrator struct {
	labels        LabelSource
	chain         *Chain
	trials        TrialSource
	lookbackYears int
	log           *zap.SugaredLogger
	now           func() time.Time
}

// NewOrchestrator wires the three sub-searches
func NewOrchestrator(labels LabelSource, chain *Chain, trials TrialSource, lookbackYears int, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{
		labels:        labels,
		chain:         chain,
		trials:        trials,
		lookbackYears: lookbackYears,
		log:           logging.OrNop(log),
		now:           time.Now,
	}
}

// Search aggregates every source for intent. Failed sources are recorded in
// ResultSet.SourceErrors and otherwise treated as empty.
func (o *Orchestrator) Search(ctx context.Context, intent *model.Intent) (*model.ResultSet, time.Duration) {
	start := o.now()

	var (
		label     *model.LabelRecord
		summaries []model.ArticleSummary
		fullText  []model.FullTextArticle
		trials    []model.TrialRecord
		labelErr  error
		chainErr  error
		trialsErr error
	)

	// Join barrier only: every Go func returns nil and records its own error.
	// No derived context, so one failure cannot cancel the others.
	var g errgroup.Group

	g.Go(func() error {
		label, labelErr = o.labels.FindLabel(ctx, intent.Drug.BrandName, intent.Drug.GenericName)
		return nil
	})

	g.Go(func() error {
		summaries, fullText, chainErr = o.chain.Run(ctx, ChainQuery{
			DrugTerms:     articleTerms(intent),
			Indication:    intent.Indication,
			Population:    intent.Population,
			LookbackYears: o.lookbackYears,
		})
		return nil
	})

	g.Go(func() error {
		trials, trialsErr = o.trials.Search(ctx, source.DefaultTrialQuery(intent.PrimaryDrugName(), intent.Indication))
		return nil
	})

	_ = g.Wait()

	rs := &model.ResultSet{
		SourceErrors: map[string]string{},
	}

	if labelErr != nil {
		o.log.Warnw("source unavailable", "source", model.SourceOpenFDA, "error", labelErr)
		rs.SourceErrors[model.SourceOpenFDA] = labelErr.Error()
	} else {
		rs.Label = label
	}

	if chainErr != nil {
		o.log.Warnw("source unavailable", "source", model.SourcePubMed, "error", chainErr)
		rs.SourceErrors[model.SourcePubMed] = chainErr.Error()
	} else {
		rs.Articles = summaries
		rs.FullText = fullText
	}

	if trialsErr != nil {
		o.log.Warnw("source unavailable", "source", model.SourceClinicalTrials, "error", trialsErr)
		rs.SourceErrors[model.SourceClinicalTrials] = trialsErr.Error()
	} else {
		rs.ClinicalTrials = trials
	}

	if len(rs.SourceErrors) == 0 {
		rs.SourceErrors = nil
	}

	rs.Counts = model.NewCounts(len(rs.Articles), len(rs.FullText), len(rs.ClinicalTrials))
	rs.Elapsed = o.now().Sub(start)

	o.log.Infow("search complete",
		"fda_label", rs.Label != nil,
		"pubmed_total", rs.Counts.TotalFound,
		"pubmed_full_text", rs.Counts.FullTextAvailable,
		"clinical_trials", rs.Counts.ClinicalTrialsFound,
		"elapsed", rs.Elapsed,
	)

	return rs, rs.Elapsed
}

// articleTerms prefers the parsed search terms, then brand, then generic
func articleTerms(intent *model.Intent) []string {
	var terms []string
	for _, t := range intent.Drug.SearchTerms {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	if len(terms) > 0 {
		return terms
	}
	if intent.Drug.BrandName != "" {
		return []string{intent.Drug.BrandName}
	}
	if intent.Drug.GenericName != "" {
		return []string{intent.Drug.GenericName}
	}
	return nil
}
