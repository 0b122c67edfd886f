package score

import "github.com/ppiankov/rxclaims/internal/model"

// Authority weights per evidence source (0-10).
// Only full-text articles are ranked; label and registry entries sit on the
// same scale for comparison.
var authorityWeights = map[model.SourceType]float64{
	model.SourceTypeFDALabel:        10.0,
	model.SourceTypeFullTextArticle: 8.5,
	model.SourceTypeClinicalTrial:   7.0,
}

// AuthorityFor returns the authority weight for a source type (0 when unknown)
func AuthorityFor(t model.SourceType) float64 {
	return authorityWeights[t]
}
