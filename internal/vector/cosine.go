// Package vector holds the small amount of vector math the semantic search
// path needs.
package vector

import (
	"errors"
	"math"
)

// ErrDimensionMismatch is returned when two vectors cannot be compared
// because their lengths differ.
var ErrDimensionMismatch = errors.New("vector: dimension mismatch")

// epsilon guards the denominator against near-zero-norm vectors.
const epsilon = 1e-9

// Cosine returns the cosine similarity dot(a,b) / (|a|*|b| + epsilon).
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	return dot / (math.Sqrt(normA)*math.Sqrt(normB) + epsilon), nil
}
