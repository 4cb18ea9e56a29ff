package cluster

import (
	"context"
	"fmt"
	"slices"

	"github.com/coder/hnsw"
)

// HNSW parameters for the approximate neighbor search
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	HNSWEfSearch = 100

	// HNSWCandidates is how many nearest nodes are fetched per point before the eps filter.
	// Dense near-duplicate bursts larger than this are truncated.
	HNSWCandidates = 64
)

// NeighborFinder computes eps-neighborhoods for a set of vectors.
// Every returned list contains the point itself and is sorted ascending.
type NeighborFinder interface {
	Neighbors(ctx context.Context, vectors [][]float32, eps float64) ([][]int, error)
}

// ExactNeighbors derives neighborhoods from the full pairwise distance matrix.
type ExactNeighbors struct{}

// Neighbors implements NeighborFinder.
func (ExactNeighbors) Neighbors(ctx context.Context, vectors [][]float32, eps float64) ([][]int, error) {
	matrix, err := CosineDistanceMatrix(ctx, vectors)
	if err != nil {
		return nil, err
	}
	return NeighborsFromMatrix(matrix, eps), nil
}

// NeighborsFromMatrix returns, for every row of a precomputed distance matrix,
// the indices whose distance is at most eps. The point itself is always included.
func NeighborsFromMatrix(matrix [][]float64, eps float64) [][]int {
	result := make([][]int, len(matrix))
	for i, row := range matrix {
		nb := make([]int, 0, 4)
		for j, d := range row {
			if j == i || d <= eps {
				nb = append(nb, j)
			}
		}
		result[i] = nb
	}
	return result
}

// HNSWNeighbors approximates neighborhoods with an in-memory HNSW graph.
// Candidates are re-checked with the exact cosine distance, so no false
// neighbors are produced, but true neighbors outside the candidate window may be missed.
type HNSWNeighbors struct {
	Candidates int
}

// Neighbors implements NeighborFinder.
func (h HNSWNeighbors) Neighbors(ctx context.Context, vectors [][]float32, eps float64) ([][]int, error) {
	k := h.Candidates
	if k <= 0 {
		k = HNSWCandidates
	}

	g := hnsw.NewGraph[int]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors)
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance

	for i, v := range vectors {
		if len(v) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(i, v))
	}

	result := make([][]int, len(vectors))
	for i, v := range vectors {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("searching neighbors of %d: %w", i, err)
			}
		}

		nb := []int{i}
		if len(v) > 0 {
			for _, node := range g.Search(v, k) {
				if node.Key != i && CosineDistance(v, node.Value) <= eps {
					nb = append(nb, node.Key)
				}
			}
		}
		slices.Sort(nb)
		result[i] = nb
	}

	return result, nil
}
