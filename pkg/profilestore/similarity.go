package profilestore

import (
	"cmp"
	"math"
	"slices"
)

// CosineDistance returns 1 - cos(a, b), matching pgvector's <=> operator.
// Vectors of different length or with zero magnitude are at distance 1.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// RankMatches sorts matches by ascending distance (FID breaks ties) and
// truncates to k. Used by backends that search in process.
func RankMatches(matches []Match, k int) []Match {
	slices.SortFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Profile.FID, b.Profile.FID)
	})
	if k >= 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
