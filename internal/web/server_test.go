package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/kozaktomas/photo-groups/internal/cluster"
	"github.com/kozaktomas/photo-groups/internal/config"
	"github.com/kozaktomas/photo-groups/internal/database"
	"github.com/kozaktomas/photo-groups/internal/database/mock"
	"github.com/kozaktomas/photo-groups/internal/lock"
	"github.com/kozaktomas/photo-groups/internal/similar"
	"github.com/kozaktomas/photo-groups/internal/web/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSchema string

func (s staticSchema) SchemaVersion(ctx context.Context) (string, error) { return string(s), nil }

type testServer struct {
	*httptest.Server
	store  *mock.MockStore
	signer *middleware.TokenSigner
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		Web: config.WebConfig{Host: "127.0.0.1", CDNDomain: "cdn.example.com"},
		Cluster: config.ClusterConfig{
			Eps:                    cluster.DefaultEps,
			MinSamples:             cluster.DefaultMinSamples,
			TimeoutPerMillionPairs: 10 * time.Second,
			MinTimeout:             5 * time.Second,
		},
		Trash:     config.TrashConfig{Retention: 720 * time.Hour},
		Embedding: config.EmbeddingConfig{Dim: 4},
	}
	store := mock.NewMockStore()
	signer, err := middleware.NewTokenSigner("test-secret")
	require.NoError(t, err)

	service := similar.NewService(store, store, cluster.NewEngine(), lock.NewLocalLocker(), cfg.Cluster)
	srv := httptest.NewServer(NewServer(cfg, service, store, signer, staticSchema("001_images_and_groups.sql")).Router())
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, store: store, signer: signer}
}

func (ts *testServer) do(t *testing.T, method, path string, ownerID int64) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, nil)
	require.NoError(t, err)
	if ownerID != 0 {
		req.Header.Set("Authorization", "Bearer "+ts.signer.Issue(ownerID, time.Hour))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestServer_HealthIsPublic(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/v1/health", 0)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "001_images_and_groups.sql", body["schema_version"])
}

func TestServer_APIRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/v1/similar-groups", "/api/v1/images/trash", "/api/v1/config"} {
		resp := ts.do(t, http.MethodGet, path, 0)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestServer_KeepBestFlow(t *testing.T) {
	ts := newTestServer(t)
	f := func(v float64) *float64 { return &v }
	a := ts.store.AddImage(database.Image{OwnerID: 1, Path: "u1/a.jpg", Embedding: []float32{1, 0, 0, 0}, QualityScore: f(0.2)})
	b := ts.store.AddImage(database.Image{OwnerID: 1, Path: "u1/b.jpg", Embedding: []float32{1, 0.05, 0, 0}, QualityScore: f(0.8)})
	c := ts.store.AddImage(database.Image{OwnerID: 1, Path: "u1/c.jpg", Embedding: []float32{1, 0, 0.05, 0}})
	ts.store.AddImage(database.Image{OwnerID: 1, Path: "u1/d.jpg", Embedding: []float32{0, 0, 0, 1}})

	type group struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		ImageCount  int    `json:"image_count"`
		BestImageID *int64 `json:"best_image_id"`
	}

	resp := ts.do(t, http.MethodPost, "/api/v1/similar-groups", 1)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	groups := decode[[]group](t, resp)
	require.Len(t, groups, 1)
	assert.Equal(t, "Suggested Group 1", groups[0].Name)
	assert.Equal(t, 3, groups[0].ImageCount)
	require.NotNil(t, groups[0].BestImageID)
	assert.Equal(t, b, *groups[0].BestImageID)

	// Another owner sees nothing and cannot act on the group
	resp = ts.do(t, http.MethodGet, "/api/v1/similar-groups", 2)
	assert.Empty(t, decode[[]group](t, resp))
	id := strconv.FormatInt(groups[0].ID, 10)
	resp = ts.do(t, http.MethodPost, "/api/v1/similar-groups/"+id+"/confirm-best", 2)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/v1/similar-groups/"+id+"/confirm-best", 1)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/v1/similar-groups", 1)
	assert.Empty(t, decode[[]group](t, resp))

	type trashed struct {
		ID  int64  `json:"id"`
		URL string `json:"url"`
	}
	resp = ts.do(t, http.MethodGet, "/api/v1/images/trash", 1)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ids []int64
	for _, img := range decode[[]trashed](t, resp) {
		ids = append(ids, img.ID)
	}
	assert.ElementsMatch(t, []int64{a, c}, ids)

	resp = ts.do(t, http.MethodPost, "/api/v1/images/"+strconv.FormatInt(a, 10)+"/restore", 1)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/v1/images/trash", 1)
	assert.Len(t, decode[[]trashed](t, resp), 1)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/api/v1/health", 0)

	resp := ts.do(t, http.MethodGet, "/metrics", 0)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "photo_groups_http_requests_total")
}
