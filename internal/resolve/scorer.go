package resolve

import "github.com/agext/levenshtein"

// Scorer rates the similarity of two normalized strings in [0, 1]. The
// tiered resolution logic is independent of the algorithm behind it.
type Scorer interface {
	Similarity(a, b string) float64
}

// LevenshteinScorer is the default Scorer: normalized Levenshtein
// similarity without prefix bonuses.
type LevenshteinScorer struct{}

var levParams = levenshtein.NewParams()

func (LevenshteinScorer) Similarity(a, b string) float64 {
	return levenshtein.Similarity(a, b, levParams)
}
