package cluster

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenarioVectors returns five embeddings where the first three are near
// duplicates and the last two are far from everything, including each other.
func scenarioVectors() [][]float32 {
	return [][]float32{
		{1, 0, 0},
		{1, 0.1, 0},
		{1, 0, 0.1},
		{0, 1, 0},
		{0, 0, -1},
	}
}

func TestEngine_Cluster_ThreeSimilarTwoOutliers(t *testing.T) {
	res, err := NewEngine().Cluster(context.Background(), scenarioVectors(), DefaultParams())
	require.NoError(t, err)

	require.Len(t, res.Clusters, 1)
	assert.Equal(t, []int{0, 1, 2}, res.Clusters[0])
	assert.Equal(t, []int{3, 4}, res.Noise)
	assert.Equal(t, []int{0, 0, 0, Noise, Noise}, res.Labels)
}

func TestEngine_Cluster_FewerThanMinSamples(t *testing.T) {
	tests := []struct {
		name    string
		vectors [][]float32
		params  Params
	}{
		{"empty input", nil, DefaultParams()},
		{"single vector", [][]float32{{1, 0}}, DefaultParams()},
		{"below custom min samples", [][]float32{{1, 0}, {1, 0}, {1, 0}}, Params{Eps: 0.15, MinSamples: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewEngine().Cluster(context.Background(), tt.vectors, tt.params)
			require.NoError(t, err)
			assert.Empty(t, res.Clusters)
			assert.Empty(t, res.Noise)
		})
	}
}

func TestEngine_Cluster_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{"zero eps", Params{Eps: 0, MinSamples: 2}},
		{"negative eps", Params{Eps: -0.1, MinSamples: 2}},
		{"nan eps", Params{Eps: math.NaN(), MinSamples: 2}},
		{"infinite eps", Params{Eps: math.Inf(1), MinSamples: 2}},
		{"negative infinite eps", Params{Eps: math.Inf(-1), MinSamples: 2}},
		{"min samples one", Params{Eps: 0.15, MinSamples: 1}},
		{"min samples zero", Params{Eps: 0.15, MinSamples: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine().Cluster(context.Background(), scenarioVectors(), tt.params)
			assert.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
}

func TestEngine_Cluster_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine().Cluster(ctx, scenarioVectors(), DefaultParams())
	assert.True(t, errors.Is(err, context.Canceled), "expected context.Canceled, got %v", err)
}

func randomVectors(r *rand.Rand, n, dim int) [][]float32 {
	// A handful of random centers with small jitter, plus uniform noise points.
	centers := make([][]float32, 4)
	for c := range centers {
		centers[c] = make([]float32, dim)
		for k := range dim {
			centers[c][k] = float32(r.NormFloat64())
		}
	}

	vectors := make([][]float32, n)
	for i := range n {
		v := make([]float32, dim)
		if i%3 == 0 {
			for k := range dim {
				v[k] = float32(r.NormFloat64())
			}
		} else {
			c := centers[r.IntN(len(centers))]
			for k := range dim {
				v[k] = c[k] + float32(r.NormFloat64()*0.05)
			}
		}
		vectors[i] = v
	}
	return vectors
}

func TestEngine_Cluster_Invariants(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 7))

	for _, minSamples := range []int{2, 3, 5} {
		vectors := randomVectors(r, 120, 16)
		params := Params{Eps: 0.2, MinSamples: minSamples}

		res, err := NewEngine().Cluster(context.Background(), vectors, params)
		require.NoError(t, err)

		seen := make(map[int]bool)
		for label, members := range res.Clusters {
			assert.GreaterOrEqual(t, len(members), minSamples, "cluster %d too small", label)
			for _, idx := range members {
				assert.False(t, seen[idx], "index %d appears in more than one cluster", idx)
				seen[idx] = true
				assert.Equal(t, label, res.Labels[idx])
			}
		}
		for _, idx := range res.Noise {
			assert.False(t, seen[idx], "noise index %d also in a cluster", idx)
			assert.Equal(t, Noise, res.Labels[idx])
		}
		assert.Equal(t, len(vectors), len(seen)+len(res.Noise))

		for label := range len(res.Clusters) {
			assert.Contains(t, res.Clusters, label, "labels should be dense")
		}
	}
}

func TestEngine_Cluster_Deterministic(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	vectors := randomVectors(r, 80, 8)
	params := Params{Eps: 0.25, MinSamples: 3}

	first, err := NewEngine().Cluster(context.Background(), vectors, params)
	require.NoError(t, err)
	for range 5 {
		again, err := NewEngine().Cluster(context.Background(), vectors, params)
		require.NoError(t, err)
		assert.Equal(t, first.Labels, again.Labels)
	}
}

func TestEngine_Cluster_ApproximateMatchesExactOnSmallInput(t *testing.T) {
	engine := NewEngine(WithApproximateAbove(1))

	res, err := engine.Cluster(context.Background(), scenarioVectors(), DefaultParams())
	require.NoError(t, err)

	require.Len(t, res.Clusters, 1)
	assert.Equal(t, []int{0, 1, 2}, res.Clusters[0])
}

func TestDBSCAN_BorderPointGoesToLowestLabel(t *testing.T) {
	// Point 2 is a border point reachable from core 0 (cluster 0) and core 3 (cluster 1).
	neighbors := [][]int{
		{0, 1, 2},
		{0, 1},
		{0, 2},
		{2, 3, 4},
		{3, 4},
	}

	labels := DBSCAN(neighbors, 3)
	assert.Equal(t, []int{0, 0, 0, 1, 1}, labels)
}

func TestDBSCAN_AllNoise(t *testing.T) {
	neighbors := [][]int{{0}, {1}, {2}}
	assert.Equal(t, []int{Noise, Noise, Noise}, DBSCAN(neighbors, 2))
}

func TestBuildResult_FoldsUndersizedClusters(t *testing.T) {
	res := buildResult([]int{0, 0, 0, 1, 1, Noise}, 3)

	assert.Equal(t, map[int][]int{0: {0, 1, 2}}, res.Clusters)
	assert.Equal(t, []int{3, 4, 5}, res.Noise)
	assert.Equal(t, []int{0, 0, 0, Noise, Noise, Noise}, res.Labels)
}

func TestResult_SortedLabels(t *testing.T) {
	res := Result{Clusters: map[int][]int{2: {5, 6}, 0: {1, 2}, 1: {3, 4}}}
	assert.Equal(t, []int{0, 1, 2}, res.SortedLabels())
}
