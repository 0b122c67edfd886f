// Package intent turns a free-text claims request into a model.Intent.
package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/rxclaims/internal/llm"
	"github.com/ppiankov/rxclaims/internal/logging"
	"github.com/ppiankov/rxclaims/internal/model"
	"go.uber.org/zap"
)

// ErrNoDrug is returned when the query names no drug at all
var ErrNoDrug = errors.New("could not identify drug in query")

// ErrEmptyQuery is returned for blank input
var ErrEmptyQuery = errors.New("query is empty")

// Extractor produces the raw structured reading of a query
type Extractor interface {
	ExtractIntent(ctx context.Context, query string) (*llm.IntentDocument, error)
}

// GenericLookup resolves a brand name to its registered generic name
type GenericLookup interface {
	LookupGeneric(ctx context.Context, brand string) (string, error)
}

// Parser builds an Intent from a query
type Parser struct {
	extractor Extractor
	generics  GenericLookup
	log       *zap.SugaredLogger
}

// NewParser creates a Parser. generics may be nil to skip enrichment.
func NewParser(extractor Extractor, generics GenericLookup, log *zap.SugaredLogger) *Parser {
	return &Parser{
		extractor: extractor,
		generics:  generics,
		log:       logging.OrNop(log),
	}
}

// Parse extracts, normalizes and enriches the intent for query
func (p *Parser) Parse(ctx context.Context, query string) (*model.Intent, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	doc, err := p.extractor.ExtractIntent(ctx, query)
	if err != nil {
		return nil, err
	}

	intent := normalize(doc, query)

	if intent.Drug.BrandName != "" && intent.Drug.GenericName == "" && p.generics != nil {
		generic, err := p.generics.LookupGeneric(ctx, intent.Drug.BrandName)
		switch {
		case err != nil:
			p.log.Warnw("generic name lookup failed", "brand", intent.Drug.BrandName, "error", err)
		case generic != "":
			p.log.Infow("resolved generic name", "brand", intent.Drug.BrandName, "generic", generic)
			intent.Drug.GenericName = generic
		}
	}

	intent.Drug.SearchTerms = searchTerms(intent.Drug.BrandName, intent.Drug.GenericName, intent.Drug.SearchTerms)
	intent.Drug.Synonyms = synonyms(intent.Drug)

	if len(intent.Drug.SearchTerms) == 0 {
		return nil, ErrNoDrug
	}

	p.log.Debugw("parsed intent",
		"drug", intent.PrimaryDrugName(),
		"claim_type", intent.ClaimType,
		"indication", intent.Indication,
		"claim_count", intent.Output.ClaimCount,
	)
	return intent, nil
}

func normalize(doc *llm.IntentDocument, query string) *model.Intent {
	out := model.DefaultOutputRequirements()
	req := doc.OutputRequirements
	out.ClaimCount = model.ClampClaimCount(req.ClaimCount.Int())
	if req.IncludeSubstantiation != nil {
		out.IncludeSubstantiation = *req.IncludeSubstantiation
	}
	if f := strings.TrimSpace(req.FormatType); f != "" {
		out.FormatType = f
	}
	out.IncludeSafety = req.IncludeSafety
	out.IncludeDosing = req.IncludeDosing

	var terms []string
	for _, t := range doc.Drug.SearchTerms {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}

	return &model.Intent{
		Drug: model.DrugIdentification{
			BrandName:   strings.TrimSpace(doc.Drug.BrandName),
			GenericName: strings.TrimSpace(doc.Drug.GenericName),
			SearchTerms: terms,
		},
		ClaimType:     model.ParseClaimType(doc.ClaimType),
		Indication:    strings.TrimSpace(doc.Indication),
		Population:    strings.TrimSpace(doc.Population),
		Output:        out,
		OriginalQuery: query,
	}
}

// searchTerms puts the brand first, appends the generic, and drops
// case-insensitive duplicates keeping the first spelling
func searchTerms(brand, generic string, terms []string) []string {
	all := make([]string, 0, len(terms)+2)
	if brand != "" {
		all = append(all, brand)
	}
	all = append(all, terms...)
	if generic != "" {
		all = append(all, generic)
	}

	seen := make(map[string]bool, len(all))
	out := all[:0]
	for _, t := range all {
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

func synonyms(d model.DrugIdentification) []string {
	out := []string{}
	for _, t := range d.SearchTerms {
		if strings.EqualFold(t, d.BrandName) || strings.EqualFold(t, d.GenericName) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Describe renders the parsed intent as one line for CLI progress output
func Describe(i *model.Intent) string {
	parts := []string{fmt.Sprintf("%s claims for %s", i.ClaimType, i.PrimaryDrugName())}
	if i.Indication != "" {
		parts = append(parts, "in "+i.Indication)
	}
	if i.Population != "" {
		parts = append(parts, "for "+i.Population)
	}
	return fmt.Sprintf("%s (%d requested)", strings.Join(parts, " "), i.Quota())
}
