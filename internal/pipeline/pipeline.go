// Package pipeline wires intent parsing, search, ranking and claim generation
// into one request flow.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/ppiankov/rxclaims/internal/cache"
	"github.com/ppiankov/rxclaims/internal/extract"
	"github.com/ppiankov/rxclaims/internal/intent"
	"github.com/ppiankov/rxclaims/internal/llm"
	"github.com/ppiankov/rxclaims/internal/logging"
	"github.com/ppiankov/rxclaims/internal/model"
	"github.com/ppiankov/rxclaims/internal/score"
	"github.com/ppiankov/rxclaims/internal/search"
	"github.com/ppiankov/rxclaims/internal/source"
	"github.com/ppiankov/rxclaims/internal/validate"
	"github.com/ppiankov/rxclaims/internal/worker"
	"go.uber.org/zap"
)

// IntentParser turns a query into an Intent
type IntentParser interface {
	Parse(ctx context.Context, query string) (*model.Intent, error)
}

// Searcher aggregates the evidence sources for an intent
type Searcher interface {
	Search(ctx context.Context, intent *model.Intent) (*model.ResultSet, time.Duration)
}

// ArticleRanker orders full-text articles
type ArticleRanker interface {
	Rank(ctx context.Context, articles []model.FullTextArticle, intent *model.Intent) []model.RankedArticle
}

// ClaimGenerator produces the final output
type ClaimGenerator interface {
	Generate(ctx context.Context, in extract.GenerateInput) (*model.ClaimsOutput, error)
}

// Pipeline runs one query end to end
type Pipeline struct {
	parser    IntentParser
	searcher  Searcher
	ranker    ArticleRanker
	generator ClaimGenerator
	log       *zap.SugaredLogger
	newID     func() string

	closers []io.Closer
}

// New assembles a pipeline from its stages
func New(parser IntentParser, searcher Searcher, ranker ArticleRanker, generator ClaimGenerator, log *zap.SugaredLogger) *Pipeline {
	return &Pipeline{
		parser:    parser,
		searcher:  searcher,
		ranker:    ranker,
		generator: generator,
		log:       logging.OrNop(log),
		newID:     func() string { return ulid.Make().String() },
	}
}

// NewFromConfig builds the production pipeline: one fetcher (client, limiter,
// cache) shared by the three source adapters and one LLM service shared by
// every generation step. Call Close when done.
func NewFromConfig(cfg *model.Config, log *zap.SugaredLogger) (*Pipeline, error) {
	log = logging.OrNop(log)

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM, cfg.HTTP))
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	svc, err := llm.NewService(provider, log)
	if err != nil {
		return nil, fmt.Errorf("llm service: %w", err)
	}

	c, err := cache.New(cfg.Cache, log)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	limiter := worker.NewSourceLimiter(cfg.Sources.NCBIAPIKey != "")
	fetcher := source.NewFetcher(cfg.HTTP, limiter, c, log)

	fda := source.NewOpenFDA(fetcher, cfg.Sources)
	pubmed := source.NewPubMed(fetcher, cfg.Sources)
	trials := source.NewTrials(fetcher, cfg.Sources)

	pool, err := worker.NewPool(cfg.Concurrency.FullTextWorkers)
	if err != nil {
		if closer, ok := c.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("fulltext pool: %w", err)
	}

	orchestrator := search.NewOrchestrator(fda, search.NewChain(pubmed, pool, log), trials, cfg.Sources.LookbackYears, log)

	p := New(
		intent.NewParser(svc, fda, log),
		orchestrator,
		score.NewRanker(svc, cfg.Concurrency.ScoringWorkers, log),
		extract.NewGenerator(svc, log),
		log,
	)
	p.closers = append(p.closers, closerFunc(func() error { pool.Release(); return nil }))
	if closer, ok := c.(io.Closer); ok {
		p.closers = append(p.closers, closer)
	}

	log.Infow("pipeline ready", "llm", svc.ProviderName(), "cache", cfg.Cache.Enabled)
	return p, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Close releases the worker pool and cache connections
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

// Run parses query, searches every source, ranks the full-text articles and
// generates the validated claims output
func (p *Pipeline) Run(ctx context.Context, query string) (*model.ClaimsOutput, error) {
	requestID := p.newID()
	log := p.log.With("request_id", requestID)

	in, err := p.parser.Parse(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIntent, err)
	}
	log.Infow("intent parsed", "intent", intent.Describe(in))

	results, elapsed := p.searcher.Search(ctx, in)
	if results != nil {
		for name, msg := range results.SourceErrors {
			log.Warnw("source unavailable", "source", name, "error", msg)
		}
	}

	ok, warnings := validate.ValidateResults(results)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoResults, strings.Join(warnings, "; "))
	}
	for _, w := range warnings {
		log.Warnw("search results degraded", "warning", w)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	ranked := p.ranker.Rank(ctx, results.FullText, in)
	log.Infow("articles ranked", "count", len(ranked))

	out, err := p.generator.Generate(ctx, extract.GenerateInput{
		Intent:    in,
		Results:   results,
		Ranked:    ranked,
		RequestID: requestID,
		Elapsed:   elapsed,
		Warnings:  warnings,
	})
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	return out, nil
}
