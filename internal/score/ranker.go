package score

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ppiankov/rxclaims/internal/logging"
	"github.com/ppiankov/rxclaims/internal/model"
	"github.com/ppiankov/rxclaims/internal/util"
	"go.uber.org/zap"
)

const (
	// MaxRelevance is the top of the relevance scale
	MaxRelevance = 10.0
	// DefaultRelevance is used when the relevance call fails
	DefaultRelevance = 5.0
	// RecencyScore is a flat placeholder until publication dates feed a decay curve
	RecencyScore = 3.0

	previewAbstractChars = 500
	previewResultsChars  = 500

	formula = "authority + relevance + recency"
)

// RelevanceScorer rates how well an evidence preview matches the request
type RelevanceScorer interface {
	ScoreRelevance(ctx context.Context, preview string, intent *model.Intent, max float64) (float64, error)
}

// Ranker orders full-text articles by authority + relevance + recency
type Ranker struct {
	scorer  RelevanceScorer
	workers int
	log     *zap.SugaredLogger
}

// NewRanker creates a ranker that scores at most workers articles at once
func NewRanker(scorer RelevanceScorer, workers int, log *zap.SugaredLogger) *Ranker {
	if workers <= 0 {
		workers = 5
	}
	return &Ranker{
		scorer:  scorer,
		workers: workers,
		log:     logging.OrNop(log),
	}
}

// Rank scores every article concurrently, then sorts descending.
// Ties keep input order. The output always has len(articles) entries.
func (r *Ranker) Rank(ctx context.Context, articles []model.FullTextArticle, intent *model.Intent) []model.RankedArticle {
	ranked := make([]model.RankedArticle, len(articles))
	if len(articles) == 0 {
		return ranked
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, r.workers)

	for i := range articles {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			ranked[idx] = r.rankOne(ctx, articles[idx], intent)
		}(i)
	}

	wg.Wait()

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	return ranked
}

func (r *Ranker) rankOne(ctx context.Context, a model.FullTextArticle, intent *model.Intent) model.RankedArticle {
	authority := AuthorityFor(model.SourceTypeFullTextArticle)

	defaulted := false
	relevance, err := r.scorer.ScoreRelevance(ctx, Preview(a), intent, MaxRelevance)
	if err != nil {
		r.log.Warnw("relevance scoring failed, using default", "pmid", a.PMID, "default", DefaultRelevance, "error", err)
		relevance = DefaultRelevance
		defaulted = true
	}
	relevance = clamp(relevance, 0, MaxRelevance)

	total := authority + relevance + RecencyScore

	return model.RankedArticle{
		Article: a,
		Score:   total,
		Breakdown: model.ScoreBreakdown{
			Authority:          authority,
			Relevance:          relevance,
			Recency:            RecencyScore,
			RelevanceDefaulted: defaulted,
			Formula:            fmt.Sprintf("%s = %.1f + %.1f + %.1f", formula, authority, relevance, RecencyScore),
		},
	}
}

// Preview is the text shown to the relevance scorer: the title, the head of
// the abstract, and the head of the Results section when there is one.
func Preview(a model.FullTextArticle) string {
	parts := []string{a.Title}
	if a.Abstract != "" {
		parts = append(parts, util.Truncate(a.Abstract, previewAbstractChars))
	}
	if results, ok := a.Section("Results"); ok && results != "" {
		parts = append(parts, util.Truncate(results, previewResultsChars))
	}
	return strings.Join(parts, "\n\n")
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
