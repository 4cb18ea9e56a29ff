package cluster

import (
	"context"
	"fmt"
	"math"
)

// maxDistance is returned for pairs that cannot be compared
// (mismatched dimensions or zero vectors).
const maxDistance = 2.0

// CosineDistance computes the cosine distance between two vectors
// Returns a value between 0 (identical) and 2 (opposite)
// Cosine distance = 1 - cosine similarity
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return maxDistance
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return maxDistance
	}

	return clampDistance(1 - dotProduct/(math.Sqrt(normA)*math.Sqrt(normB)))
}

// clampDistance keeps floating point drift inside [0, 2].
func clampDistance(d float64) float64 {
	if d < 0 {
		return 0
	}
	if d > maxDistance {
		return maxDistance
	}
	return d
}

// CosineDistanceMatrix computes the full symmetric pairwise cosine distance matrix.
// Norms are computed once per vector, so the cost is one dot product per pair.
// The context is checked between rows so long runs can be abandoned.
func CosineDistanceMatrix(ctx context.Context, vectors [][]float32) ([][]float64, error) {
	n := len(vectors)
	norms := make([]float64, n)
	for i, v := range vectors {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		norms[i] = math.Sqrt(sum)
	}

	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
	}

	for i := range n {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("computing distance row %d: %w", i, err)
		}
		for j := i + 1; j < n; j++ {
			d := pairDistance(vectors[i], vectors[j], norms[i], norms[j])
			matrix[i][j] = d
			matrix[j][i] = d
		}
		if norms[i] == 0 {
			matrix[i][i] = maxDistance
		}
	}

	return matrix, nil
}

func pairDistance(a, b []float32, normA, normB float64) float64 {
	if len(a) != len(b) || len(a) == 0 || normA == 0 || normB == 0 {
		return maxDistance
	}
	var dot float64
	for k := range a {
		dot += float64(a[k]) * float64(b[k])
	}
	return clampDistance(1 - dot/(normA*normB))
}
