package mapping

import (
	"math"
	"strings"
)

// AuxFactors carries auxiliary mapping signals beyond title similarity.
// YearDifference is directional (candidate year minus reference year is not
// symmetric under swap), so scores using it are not either.
type AuxFactors struct {
	EpisodeCountMatch bool
	YearDifference    int
}

// ConfidenceScore estimates how likely two titles describe the same anime,
// in [0, 1] rounded to two decimals. It is a best-effort triage aid for
// operators reviewing mappings, not an authoritative match.
//
// Exact match (after lowercase/trim) scores 1.0, substring containment in
// either direction 0.8, otherwise Jaccard similarity over whitespace word
// sets, adjusted by aux factors: +0.1 when episode counts match (capped at
// 1.0), -0.2 when the airing years differ by more than five (floored at 0).
func ConfidenceScore(titleA, titleB string, aux *AuxFactors) float64 {
	a := strings.ToLower(strings.TrimSpace(titleA))
	b := strings.ToLower(strings.TrimSpace(titleB))

	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}

	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0.0
	}

	common := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			common++
		}
	}
	union := len(wordsA) + len(wordsB) - common
	similarity := float64(common) / float64(union)

	if aux != nil {
		if aux.EpisodeCountMatch {
			similarity = math.Min(1.0, similarity+0.1)
		}
		if aux.YearDifference > 5 {
			similarity = math.Max(0.0, similarity-0.2)
		}
	}

	return math.Round(similarity*100) / 100
}

func wordSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		out[w] = struct{}{}
	}
	return out
}
