// Package search runs the evidence searches for one request: the dependent
// PubMed -> PMC fetch chain and the three-source orchestrator around it.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/rxclaims/internal/logging"
	"github.com/ppiankov/rxclaims/internal/model"
	"github.com/ppiankov/rxclaims/internal/worker"
	"go.uber.org/zap"
)

// clinicalTrialFilter restricts esearch to trial publications
const clinicalTrialFilter = "(clinical trial[Publication Type] OR randomized controlled trial[Publication Type])"

// ArticleSource is the subset of source.PubMed the chain needs
type ArticleSource interface {
	Search(ctx context.Context, term string, lookbackYears int) ([]string, error)
	FetchSummaries(ctx context.Context, pmids []string) ([]model.ArticleSummary, error)
	FetchFullText(ctx context.Context, pmcid string) (*model.FullTextArticle, error)
}

// ChainQuery is the literature search for one intent
type ChainQuery struct {
	DrugTerms     []string
	Indication    string
	Population    string
	LookbackYears int
}

// BuildQuery renders q as a PubMed boolean query.
// Empty modifiers are omitted; drug terms are OR-joined.
func BuildQuery(q ChainQuery) string {
	var terms []string
	for _, t := range q.DrugTerms {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}

	var parts []string
	if len(terms) > 0 {
		parts = append(parts, "("+strings.Join(terms, " OR ")+")")
	}
	if ind := strings.TrimSpace(q.Indication); ind != "" {
		parts = append(parts, "("+ind+")")
	}
	if pop := strings.TrimSpace(q.Population); pop != "" {
		parts = append(parts, "("+pop+")")
	}
	parts = append(parts, clinicalTrialFilter)

	return strings.Join(parts, " AND ")
}

// Chain runs esearch -> efetch(pubmed) -> efetch(pmc).
// Only the third stage fans out; it runs on the worker pool.
type Chain struct {
	articles ArticleSource
	pool     *worker.Pool
	log      *zap.SugaredLogger
}

// NewChain creates a chain over articles. The pool is borrowed, not owned.
func NewChain(articles ArticleSource, pool *worker.Pool, log *zap.SugaredLogger) *Chain {
	return &Chain{
		articles: articles,
		pool:     pool,
		log:      logging.OrNop(log),
	}
}

// fullTextResult is a stage-3 slot
type fullTextResult struct {
	article *model.FullTextArticle
	err     error
}

func (r *fullTextResult) GetError() error { return r.err }

// Run executes the chain. Stage 1 and 2 errors are returned; stage 3 failures
// only drop the affected article. Every returned full-text record carries the
// PMID and PMCID of the summary it was fetched for.
func (c *Chain) Run(ctx context.Context, q ChainQuery) ([]model.ArticleSummary, []model.FullTextArticle, error) {
	term := BuildQuery(q)
	c.log.Infow("searching pubmed", "query", term)

	pmids, err := c.articles.Search(ctx, term, q.LookbackYears)
	if err != nil {
		return nil, nil, fmt.Errorf("search: %w", err)
	}
	if len(pmids) == 0 {
		c.log.Infow("no pubmed results")
		return nil, nil, nil
	}

	summaries, err := c.articles.FetchSummaries(ctx, pmids)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch summaries: %w", err)
	}

	var (
		targets []model.ArticleSummary
		jobs    []worker.Job
	)
	for _, s := range summaries {
		if !s.HasFullText() {
			continue
		}
		pmcid := s.PMCID
		targets = append(targets, s)
		jobs = append(jobs, worker.FuncJob(func(ctx context.Context) worker.Result {
			a, err := c.articles.FetchFullText(ctx, pmcid)
			return &fullTextResult{article: a, err: err}
		}))
	}
	c.log.Infow("pubmed summaries", "total", len(summaries), "with_pmc", len(targets))

	if len(jobs) == 0 {
		return summaries, nil, nil
	}

	results := c.pool.Run(ctx, jobs)

	fullText := make([]model.FullTextArticle, 0, len(results))
	for i, r := range results {
		res, ok := r.(*fullTextResult)
		if !ok || res.err != nil || res.article == nil {
			c.log.Debugw("full text unavailable", "pmcid", targets[i].PMCID, "error", r.GetError())
			continue
		}
		fullText = append(fullText, mergeSummary(*res.article, targets[i]))
	}
	c.log.Infow("pmc full text retrieved", "articles", len(fullText), "attempted", len(jobs))

	return summaries, fullText, nil
}

// mergeSummary ties a full-text record to its originating summary and
// back-fills metadata the PMC document lacked.
func mergeSummary(a model.FullTextArticle, s model.ArticleSummary) model.FullTextArticle {
	a.PMID = s.PMID
	a.PMCID = s.PMCID
	if a.Title == "" {
		a.Title = s.Title
	}
	if a.Abstract == "" {
		a.Abstract = s.Abstract
	}
	if len(a.Authors) == 0 {
		a.Authors = s.Authors
	}
	if a.Journal == "" {
		a.Journal = s.Journal
	}
	if a.Year == "" {
		a.Year = s.Year
	}
	if a.DOI == "" {
		a.DOI = s.DOI
	}
	return a
}
