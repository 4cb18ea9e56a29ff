// Package cluster groups image embeddings by visual similarity.
//
// Distances are cosine distances (1 - cosine similarity): embedding magnitude
// carries no meaning for visual similarity, only direction does. Grouping uses
// DBSCAN semantics so isolated images are left out as noise instead of being
// forced into a group.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
)

// Default clustering parameters
const (
	DefaultEps        = 0.15
	DefaultMinSamples = 2
)

// ErrInvalidParameter is returned when eps or min_samples are out of range.
var ErrInvalidParameter = errors.New("invalid clustering parameter")

// Params controls a clustering run
type Params struct {
	Eps        float64 // maximum neighborhood distance
	MinSamples int     // minimum neighborhood size (point itself included) for a core point
}

// DefaultParams returns the default clustering parameters.
func DefaultParams() Params {
	return Params{Eps: DefaultEps, MinSamples: DefaultMinSamples}
}

// Validate rejects parameters that cannot produce meaningful groups.
func (p Params) Validate() error {
	// NaN fails every comparison, so check for a finite positive value explicitly.
	if math.IsNaN(p.Eps) || math.IsInf(p.Eps, 0) || p.Eps <= 0 {
		return fmt.Errorf("%w: eps must be a finite positive number, got %v", ErrInvalidParameter, p.Eps)
	}
	if p.MinSamples < 2 {
		return fmt.Errorf("%w: min_samples must be at least 2, got %d", ErrInvalidParameter, p.MinSamples)
	}
	return nil
}

// Result is the outcome of a clustering run
type Result struct {
	// Labels holds one label per input vector, Noise for outliers.
	Labels []int
	// Clusters maps each dense label to the input indices that carry it, ascending.
	Clusters map[int][]int
	// Noise lists the outlier indices.
	Noise []int
}

// SortedLabels returns the cluster labels in ascending order.
func (r Result) SortedLabels() []int {
	labels := make([]int, 0, len(r.Clusters))
	for l := range r.Clusters {
		labels = append(labels, l)
	}
	slices.Sort(labels)
	return labels
}

// Engine runs density-based clustering over embeddings
type Engine struct {
	exact           NeighborFinder
	approx          NeighborFinder
	approxThreshold int
}

// Option configures an Engine
type Option func(*Engine)

// WithApproximateAbove switches to HNSW neighbor search for inputs larger than n.
// A threshold of 0 keeps the exact matrix for every input size.
func WithApproximateAbove(n int) Option {
	return func(e *Engine) {
		e.approxThreshold = n
	}
}

// NewEngine creates a clustering engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		exact:  ExactNeighbors{},
		approx: HNSWNeighbors{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cluster partitions vectors into groups of similar embeddings.
// Fewer vectors than MinSamples yields an empty result, not an error.
func (e *Engine) Cluster(ctx context.Context, vectors [][]float32, params Params) (Result, error) {
	if err := params.Validate(); err != nil {
		return Result{}, err
	}
	if len(vectors) < params.MinSamples {
		return Result{Clusters: map[int][]int{}}, nil
	}

	finder := e.exact
	if e.approxThreshold > 0 && len(vectors) > e.approxThreshold {
		finder = e.approx
	}

	neighbors, err := finder.Neighbors(ctx, vectors, params.Eps)
	if err != nil {
		return Result{}, fmt.Errorf("finding neighbors: %w", err)
	}

	return buildResult(DBSCAN(neighbors, params.MinSamples), params.MinSamples), nil
}

// buildResult collects indices per label. A core point whose neighbors were all
// claimed by earlier clusters can seed a cluster smaller than minSamples; such
// clusters are folded into noise and the remaining labels are re-densified.
func buildResult(raw []int, minSamples int) Result {
	byLabel := make(map[int][]int)
	for i, l := range raw {
		if l != Noise {
			byLabel[l] = append(byLabel[l], i)
		}
	}

	remap := make(map[int]int, len(byLabel))
	next := 0
	for l := range len(raw) {
		members, ok := byLabel[l]
		if !ok {
			continue
		}
		if len(members) >= minSamples {
			remap[l] = next
			next++
		}
	}

	res := Result{
		Labels:   make([]int, len(raw)),
		Clusters: make(map[int][]int, next),
	}
	for i, l := range raw {
		dense, ok := remap[l]
		if l == Noise || !ok {
			res.Labels[i] = Noise
			res.Noise = append(res.Noise, i)
			continue
		}
		res.Labels[i] = dense
		res.Clusters[dense] = append(res.Clusters[dense], i)
	}
	return res
}
