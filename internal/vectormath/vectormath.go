// Package vectormath holds the numeric kernel for similarity search:
// cosine similarity, squared norms, and euclidean distance over float32
// vectors with float64 accumulation.
package vectormath

import (
	"math"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// LowSimilarityThreshold is the cutoff below which CosineSimilarity
// short-circuits to 0 instead of returning the exact value. This trades a
// small accuracy loss at the extreme low end for speed on large scans.
// Callers must not rely on exact cosine values below the threshold.
// Set to 0 to disable the short-circuit.
var LowSimilarityThreshold = 0.1

// Norm returns the sum of squares of v (not its square root).
// Callers take the square root only at comparison time.
// Returns 0 for an empty vector.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		f := float64(x)
		sum += f * f
	}
	return sum
}

// CosineSimilarity computes the cosine of the angle between a and b.
// Optional precomputed squared norms (as returned by Norm) may be passed to
// avoid recomputation across repeated comparisons against the same vector:
// the first value is taken as the squared norm of a, the second of b.
// Fails with domain.ErrDimensionMismatch when lengths differ.
func CosineSimilarity(a, b []float32, precomputed ...float64) (float64, error) {
	if len(a) != len(b) {
		return 0, domain.NewDimensionMismatch(len(a), len(b))
	}
	if len(a) == 0 {
		return 0, nil
	}

	var normA, normB float64
	haveA := len(precomputed) > 0
	haveB := len(precomputed) > 1
	if haveA {
		normA = precomputed[0]
	}
	if haveB {
		normB = precomputed[1]
	}

	// Single pass: dot product plus whichever norms were not supplied.
	var dot float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		if !haveA {
			normA += fa * fa
		}
		if !haveB {
			normB += fb * fb
		}
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if LowSimilarityThreshold > 0 && math.Abs(dot)/denom < LowSimilarityThreshold {
		return 0, nil
	}
	return dot / denom, nil
}

// EuclideanDistance returns the L2 norm of a-b.
// Fails with domain.ErrDimensionMismatch when lengths differ.
func EuclideanDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, domain.NewDimensionMismatch(len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
