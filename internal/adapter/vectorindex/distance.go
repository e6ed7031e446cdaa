package vectorindex

import (
	"fmt"
	"math"
	"sort"

	"surgrag/internal/domain"
	surgerr "surgrag/pkg/errors"
)

// cosineDistance returns 1 - cosine similarity. Zero vectors are treated as
// orthogonal to everything.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return 1
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 1
	}

	return 1 - dotProduct/(math.Sqrt(normA)*math.Sqrt(normB))
}

// sortMatches orders by ascending distance, then ascending id.
func sortMatches(matches []domain.Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})
}

func topK(matches []domain.Match, k int) []domain.Match {
	sortMatches(matches)
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches
}

func checkDimension(got, want int, what string) error {
	if got == want {
		return nil
	}
	return surgerr.New(surgerr.CodeIndexDimensionMismatch,
		fmt.Sprintf("%s dimension mismatch: expected %d, got %d", what, want, got),
		surgerr.Field("expected", want), surgerr.Field("got", got))
}

func copyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
