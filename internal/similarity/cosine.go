// Package similarity holds the single cosine implementation shared by every
// embedding backend and vector store tier.
//
// Convention: a similarity score is cosine similarity, i.e. 1 - cosine
// distance, clamped to [0,1]. Remote stores that report a cosine distance are
// converted with FromCosineDistance so scores compare across tiers.
package similarity

import (
	"math"
	"sort"

	"personalrag/internal/domain"
)

// Cosine returns the cosine similarity of a and b in [-1,1]. It returns 0 for
// empty, mismatched or zero-norm vectors.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	c := dot / math.Sqrt(normA*normB)
	return clamp(c, -1, 1)
}

// Score is Cosine clamped to [0,1].
func Score(a, b []float64) float64 {
	return clamp(Cosine(a, b), 0, 1)
}

// FromCosineDistance converts a cosine distance (0 = identical) to a score.
func FromCosineDistance(d float64) float64 {
	return clamp(1-d, 0, 1)
}

// FromCosine clamps a cosine similarity reported by a remote store to [0,1].
func FromCosine(c float64) float64 {
	return clamp(c, 0, 1)
}

// Norm is the L2 norm of v.
func Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Normalize returns v scaled to unit length. Zero vectors are returned as is.
func Normalize(v []float64) []float64 {
	n := Norm(v)
	if n == 0 {
		return v
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

// Ranked is one entry of FindMostSimilar.
type Ranked struct {
	Index int
	Score float64
}

// FindMostSimilar ranks candidates against query and returns at most topK
// entries sorted by descending score. Ties keep candidate order.
func FindMostSimilar(query []float64, candidates [][]float64, topK int) []Ranked {
	ranked := make([]Ranked, 0, len(candidates))
	for i, c := range candidates {
		ranked = append(ranked, Ranked{Index: i, Score: Score(query, c)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if topK > 0 && topK < len(ranked) {
		ranked = ranked[:topK]
	}
	return ranked
}

// SortMatches orders matches by descending score, most recent first on ties.
func SortMatches(matches []domain.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Item.Metadata.CreatedAt.After(matches[j].Item.Metadata.CreatedAt)
	})
}

// Truncate sorts matches and keeps the first limit entries. A non-positive
// limit keeps everything.
func Truncate(matches []domain.Match, limit int) []domain.Match {
	SortMatches(matches)
	if limit > 0 && len(matches) > limit {
		return matches[:limit]
	}
	return matches
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
