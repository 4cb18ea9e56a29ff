package similar

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/kozaktomas/photo-groups/internal/cluster"
	"github.com/kozaktomas/photo-groups/internal/config"
	"github.com/kozaktomas/photo-groups/internal/database"
	"github.com/kozaktomas/photo-groups/internal/database/mock"
	"github.com/kozaktomas/photo-groups/internal/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

var testConfig = config.ClusterConfig{
	Eps:                    cluster.DefaultEps,
	MinSamples:             cluster.DefaultMinSamples,
	TimeoutPerMillionPairs: 10 * time.Second,
	MinTimeout:             5 * time.Second,
}

func newTestService(store *mock.MockStore) *Service {
	return NewService(store, store, cluster.NewEngine(), lock.NewLocalLocker(), testConfig)
}

// seedScenarioA stores five images for owner 1: the first three point the same way,
// the last two are far from everything.
func seedScenarioA(store *mock.MockStore) []int64 {
	images := []database.Image{
		{OwnerID: 1, Embedding: []float32{1, 0, 0}, QualityScore: ptr(0.3)},
		{OwnerID: 1, Embedding: []float32{1, 0.1, 0}, QualityScore: ptr(0.9)},
		{OwnerID: 1, Embedding: []float32{1, 0, 0.1}},
		{OwnerID: 1, Embedding: []float32{0, 1, 0}, QualityScore: ptr(0.5)},
		{OwnerID: 1, Embedding: []float32{0, 0, -1}, QualityScore: ptr(0.5)},
	}
	ids := make([]int64, len(images))
	for i, img := range images {
		ids[i] = store.AddImage(img)
	}
	return ids
}

type stubClusterer struct {
	delay  time.Duration
	result cluster.Result
}

func (s stubClusterer) Cluster(ctx context.Context, _ [][]float32, _ cluster.Params) (cluster.Result, error) {
	select {
	case <-time.After(s.delay):
		return s.result, nil
	case <-ctx.Done():
		return cluster.Result{}, ctx.Err()
	}
}

func TestCreateGroups_ScenarioA(t *testing.T) {
	store := mock.NewMockStore()
	ids := seedScenarioA(store)
	svc := newTestService(store)

	groups, err := svc.CreateGroups(context.Background(), 1, cluster.DefaultParams())
	require.NoError(t, err)
	require.Len(t, groups, 1)

	g := groups[0]
	assert.Equal(t, "Suggested Group 1", g.Name)
	assert.Equal(t, 3, g.ImageCount)
	require.NotNil(t, g.BestImageID)
	assert.Equal(t, ids[1], *g.BestImageID)
	assert.Equal(t, ids[1], store.Representative(g.ID))

	members, err := store.GetImagesForGroup(context.Background(), g.ID, 1)
	require.NoError(t, err)
	require.Len(t, members, 3)
	for i, img := range members {
		assert.Equal(t, ids[i], img.ID)
	}
}

func TestCreateGroups_TooFewImagesClearsSuggestions(t *testing.T) {
	store := mock.NewMockStore()
	ids := seedScenarioA(store)
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.CreateGroups(ctx, 1, cluster.DefaultParams())
	require.NoError(t, err)
	require.Equal(t, 1, store.GroupCount())

	_, err = store.SoftDeleteImages(ctx, 1, ids[1:])
	require.NoError(t, err)

	groups, err := svc.CreateGroups(ctx, 1, cluster.DefaultParams())
	require.NoError(t, err)
	assert.NotNil(t, groups)
	assert.Empty(t, groups)
	assert.Equal(t, 0, store.GroupCount())
}

func TestCreateGroups_InvalidParams(t *testing.T) {
	store := mock.NewMockStore()
	seedScenarioA(store)
	svc := newTestService(store)

	tests := []struct {
		name   string
		params cluster.Params
	}{
		{"zero eps", cluster.Params{Eps: 0, MinSamples: 2}},
		{"negative eps", cluster.Params{Eps: -0.1, MinSamples: 2}},
		{"min samples one", cluster.Params{Eps: 0.15, MinSamples: 1}},
		{"nan eps", cluster.Params{Eps: math.NaN(), MinSamples: 2}},
		{"infinite eps", cluster.Params{Eps: math.Inf(1), MinSamples: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateGroups(context.Background(), 1, tt.params)
			assert.ErrorIs(t, err, cluster.ErrInvalidParameter)
		})
	}
	assert.Equal(t, 0, store.ReplaceCalls, "nothing should be written for invalid params")
}

func TestCreateGroups_NaNEpsKeepsPreviousSuggestions(t *testing.T) {
	store := mock.NewMockStore()
	seedScenarioA(store)
	svc := newTestService(store)
	ctx := context.Background()

	first, err := svc.CreateGroups(ctx, 1, cluster.DefaultParams())
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, err = svc.CreateGroups(ctx, 1, cluster.Params{Eps: math.NaN(), MinSamples: 2})
	require.ErrorIs(t, err, cluster.ErrInvalidParameter)

	groups, err := svc.ListGroups(ctx, 1)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, first[0].ID, groups[0].ID)
}

func TestCreateGroups_RerunReplacesPrevious(t *testing.T) {
	store := mock.NewMockStore()
	seedScenarioA(store)
	svc := newTestService(store)
	ctx := context.Background()

	first, err := svc.CreateGroups(ctx, 1, cluster.DefaultParams())
	require.NoError(t, err)
	second, err := svc.CreateGroups(ctx, 1, cluster.DefaultParams())
	require.NoError(t, err)

	groups, err := svc.ListGroups(ctx, 1)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, second[0].ID, groups[0].ID)
	assert.NotEqual(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].Name, second[0].Name)
	assert.Equal(t, first[0].BestImageID, second[0].BestImageID)
}

func TestCreateGroups_FailedReplaceKeepsPrevious(t *testing.T) {
	store := mock.NewMockStore()
	seedScenarioA(store)
	svc := newTestService(store)
	ctx := context.Background()

	before, err := svc.CreateGroups(ctx, 1, cluster.DefaultParams())
	require.NoError(t, err)

	store.ReplaceError = errors.New("connection reset")
	_, err = svc.CreateGroups(ctx, 1, cluster.DefaultParams())
	require.ErrorIs(t, err, ErrPersistenceConflict)
	assert.Contains(t, err.Error(), "connection reset")

	groups, err := svc.ListGroups(ctx, 1)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, before[0].ID, groups[0].ID)
}

func TestCreateGroups_Timeout(t *testing.T) {
	store := mock.NewMockStore()
	seedScenarioA(store)
	cfg := testConfig
	cfg.MinTimeout = 20 * time.Millisecond
	svc := NewService(store, store, stubClusterer{delay: time.Second}, lock.NewLocalLocker(), cfg)

	_, err := svc.CreateGroups(context.Background(), 1, cluster.DefaultParams())
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, store.ReplaceCalls)
}

func TestCreateGroups_CallerCancelIsNotTimeout(t *testing.T) {
	store := mock.NewMockStore()
	seedScenarioA(store)
	svc := NewService(store, store, stubClusterer{delay: time.Second}, lock.NewLocalLocker(), testConfig)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := svc.CreateGroups(ctx, 1, cluster.DefaultParams())
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestCreateGroups_LockBusy(t *testing.T) {
	store := mock.NewMockStore()
	seedScenarioA(store)
	locker := lock.NewLocalLocker()
	cfg := testConfig
	cfg.MinTimeout = 20 * time.Millisecond
	svc := NewService(store, store, cluster.NewEngine(), locker, cfg)

	unlock, err := locker.Lock(context.Background(), 1)
	require.NoError(t, err)
	defer unlock()

	_, err = svc.CreateGroups(context.Background(), 1, cluster.DefaultParams())
	require.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, lock.ErrNotAcquired)
}

func TestCreateGroups_LoadError(t *testing.T) {
	store := mock.NewMockStore()
	store.FindImagesError = errors.New("db down")
	svc := newTestService(store)

	_, err := svc.CreateGroups(context.Background(), 1, cluster.DefaultParams())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPersistenceConflict)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestCreateGroups_OwnersAreIsolated(t *testing.T) {
	store := mock.NewMockStore()
	seedScenarioA(store)
	store.AddImage(database.Image{OwnerID: 2, Embedding: []float32{1, 0, 0}})
	store.AddImage(database.Image{OwnerID: 2, Embedding: []float32{1, 0.01, 0}})
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.CreateGroups(ctx, 2, cluster.DefaultParams())
	require.NoError(t, err)
	_, err = svc.CreateGroups(ctx, 1, cluster.DefaultParams())
	require.NoError(t, err)

	owner2, err := svc.ListGroups(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, owner2, 1, "owner 1's run must not replace owner 2's groups")
}

func TestBuildGroups_NoScoresPicksFirst(t *testing.T) {
	images := []database.Image{{ID: 10}, {ID: 11}, {ID: 12}}
	res := cluster.Result{Clusters: map[int][]int{0: {1, 2}}}

	groups := buildGroups(images, res)
	require.Len(t, groups, 1)
	require.NotNil(t, groups[0].BestImageID)
	assert.Equal(t, int64(11), *groups[0].BestImageID)
	assert.Equal(t, []int64{11, 12}, groups[0].ImageIDs)
}

func TestBuildGroups_TieGoesToFirst(t *testing.T) {
	images := []database.Image{
		{ID: 1, QualityScore: ptr(0.3)},
		{ID: 2},
		{ID: 3, QualityScore: ptr(0.9)},
		{ID: 4, QualityScore: ptr(0.9)},
	}
	res := cluster.Result{Clusters: map[int][]int{0: {0, 1, 2, 3}}}

	groups := buildGroups(images, res)
	require.Len(t, groups, 1)
	assert.Equal(t, int64(3), *groups[0].BestImageID)
}

func TestGetGroupImages(t *testing.T) {
	store := mock.NewMockStore()
	ids := seedScenarioA(store)
	svc := newTestService(store)
	ctx := context.Background()

	groups, err := svc.CreateGroups(ctx, 1, cluster.DefaultParams())
	require.NoError(t, err)

	images, err := svc.GetGroupImages(ctx, groups[0].ID, 1)
	require.NoError(t, err)
	assert.Len(t, images, 3)

	_, err = svc.GetGroupImages(ctx, groups[0].ID, 2)
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = store.SoftDeleteImages(ctx, 1, []int64{ids[0]})
	require.NoError(t, err)
	images, err = svc.GetGroupImages(ctx, groups[0].ID, 1)
	require.NoError(t, err)
	assert.Len(t, images, 2, "soft-deleted members are hidden")
}

func TestReject_IsIdempotent(t *testing.T) {
	store := mock.NewMockStore()
	ids := seedScenarioA(store)
	svc := newTestService(store)
	ctx := context.Background()

	groups, err := svc.CreateGroups(ctx, 1, cluster.DefaultParams())
	require.NoError(t, err)

	require.NoError(t, svc.Reject(ctx, groups[0].ID, 1))
	require.NoError(t, svc.Reject(ctx, groups[0].ID, 1))
	assert.Equal(t, 0, store.GroupCount())

	for _, id := range ids {
		_, err := store.GetImage(ctx, id, 1)
		assert.NoError(t, err, "reject must not delete images")
	}
}

func TestReject_ForeignGroupUntouched(t *testing.T) {
	store := mock.NewMockStore()
	seedScenarioA(store)
	svc := newTestService(store)
	ctx := context.Background()

	groups, err := svc.CreateGroups(ctx, 1, cluster.DefaultParams())
	require.NoError(t, err)

	require.NoError(t, svc.Reject(ctx, groups[0].ID, 2))
	assert.Equal(t, 1, store.GroupCount())
}

// seedGroup stores three images and one suggested group over them with the given best image.
func seedGroup(t *testing.T, store *mock.MockStore, bestIdx int) (int64, []int64) {
	t.Helper()
	ids := []int64{
		store.AddImage(database.Image{OwnerID: 1, Embedding: []float32{1, 0}}),
		store.AddImage(database.Image{OwnerID: 1, Embedding: []float32{1, 0}}),
		store.AddImage(database.Image{OwnerID: 1, Embedding: []float32{1, 0}}),
	}
	ng := database.NewGroup{Label: 0, ImageIDs: ids}
	if bestIdx >= 0 {
		ng.BestImageID = &ids[bestIdx]
	}
	created, err := store.ReplaceSuggestedGroups(context.Background(), 1, []database.NewGroup{ng})
	require.NoError(t, err)
	return created[0].ID, ids
}

func TestConfirmKeepBest_ScenarioB(t *testing.T) {
	store := mock.NewMockStore()
	groupID, ids := seedGroup(t, store, 1)
	svc := newTestService(store)
	ctx := context.Background()

	deleted, err := svc.ConfirmKeepBest(ctx, groupID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = store.GetImage(ctx, ids[1], 1)
	assert.NoError(t, err, "best image is kept")
	for _, id := range []int64{ids[0], ids[2]} {
		img, err := store.GetImageIncludingTrashed(ctx, id, 1)
		require.NoError(t, err)
		assert.True(t, img.IsTrashed())
	}
	_, err = store.GetGroup(ctx, groupID, 1)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestConfirmKeepBest_NoBestDeletesNothing(t *testing.T) {
	store := mock.NewMockStore()
	groupID, ids := seedGroup(t, store, -1)
	svc := newTestService(store)
	ctx := context.Background()

	deleted, err := svc.ConfirmKeepBest(ctx, groupID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
	assert.Equal(t, 0, store.GroupCount())
	for _, id := range ids {
		_, err := store.GetImage(ctx, id, 1)
		assert.NoError(t, err)
	}
}

func TestConfirmKeepBest_BestAlreadyTrashedDeletesNothing(t *testing.T) {
	store := mock.NewMockStore()
	groupID, ids := seedGroup(t, store, 1)
	svc := newTestService(store)
	ctx := context.Background()

	n, err := store.SoftDeleteImages(ctx, 1, []int64{ids[1]})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	deleted, err := svc.ConfirmKeepBest(ctx, groupID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
	assert.Equal(t, 0, store.GroupCount())

	for _, id := range []int64{ids[0], ids[2]} {
		_, err := store.GetImage(ctx, id, 1)
		assert.NoError(t, err, "remaining members must survive when the best image is gone")
	}
}

func TestConfirmKeepBest_StoreError(t *testing.T) {
	store := mock.NewMockStore()
	groupID, ids := seedGroup(t, store, 1)
	store.ConfirmError = errors.New("connection reset")
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.ConfirmKeepBest(ctx, groupID, 1)
	require.Error(t, err)

	for _, id := range ids {
		_, err := store.GetImage(ctx, id, 1)
		assert.NoError(t, err)
	}
}

func TestConfirmKeepBest_NotFound(t *testing.T) {
	store := mock.NewMockStore()
	groupID, _ := seedGroup(t, store, 0)
	svc := newTestService(store)

	_, err := svc.ConfirmKeepBest(context.Background(), groupID, 2)
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = svc.ConfirmKeepBest(context.Background(), 9999, 1)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestConfirmWithDeletions_ScenarioC(t *testing.T) {
	store := mock.NewMockStore()
	groupID, ids := seedGroup(t, store, 0)
	svc := newTestService(store)
	ctx := context.Background()

	deleted, err := svc.ConfirmWithDeletions(ctx, groupID, 1, []int64{ids[0], ids[2]})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = store.GetImage(ctx, ids[1], 1)
	assert.NoError(t, err)
	_, err = store.GetImage(ctx, ids[0], 1)
	assert.ErrorIs(t, err, database.ErrNotFound)
	_, err = store.GetImage(ctx, ids[2], 1)
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.Equal(t, 0, store.GroupCount())
}

func TestConfirmWithDeletions_SkipsForeignImages(t *testing.T) {
	store := mock.NewMockStore()
	groupID, ids := seedGroup(t, store, 0)
	foreign := store.AddImage(database.Image{OwnerID: 2})
	svc := newTestService(store)
	ctx := context.Background()

	deleted, err := svc.ConfirmWithDeletions(ctx, groupID, 1, []int64{ids[2], foreign, 424242})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = store.GetImage(ctx, foreign, 2)
	assert.NoError(t, err, "images of other owners are never touched")
	assert.Equal(t, 0, store.GroupCount())
}

func TestConfirmWithDeletions_MissingGroup(t *testing.T) {
	store := mock.NewMockStore()
	_, ids := seedGroup(t, store, 0)
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.ConfirmWithDeletions(ctx, 9999, 1, ids)
	require.ErrorIs(t, err, database.ErrNotFound)

	for _, id := range ids {
		_, err := store.GetImage(ctx, id, 1)
		assert.NoError(t, err, "nothing is deleted when the group is missing")
	}
}

func TestConfirmWithDeletions_StoreError(t *testing.T) {
	store := mock.NewMockStore()
	groupID, ids := seedGroup(t, store, 0)
	store.ConfirmError = errors.New("tx aborted")
	svc := newTestService(store)

	_, err := svc.ConfirmWithDeletions(context.Background(), groupID, 1, ids)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tx aborted")
	assert.Equal(t, 1, store.GroupCount())
}
