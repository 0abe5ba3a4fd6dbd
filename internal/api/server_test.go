// Package api provides the read-only HTTP report surface for painmap.
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gormdb "github.com/fraglens/painmap/internal/db/gorm"
	"github.com/fraglens/painmap/pkg/models"
)

type fakeClusterReader struct {
	clusters map[string]*models.Cluster
	listed   []*models.Cluster
	lastList int
}

func (f *fakeClusterReader) GetClusterByID(ctx context.Context, id string) (*models.Cluster, error) {
	c, ok := f.clusters[id]
	if !ok {
		return nil, gormdb.ErrClusterNotFound
	}
	return c, nil
}

func (f *fakeClusterReader) ListClusters(ctx context.Context, limit int) ([]*models.Cluster, error) {
	f.lastList = limit
	return f.listed, nil
}

func (f *fakeClusterReader) ClusterCount(ctx context.Context) (int64, error) {
	return int64(len(f.clusters)), nil
}

func (f *fakeClusterReader) AverageClusterSize(ctx context.Context) (float64, error) {
	return 2.5, nil
}

type fakeEventReader struct {
	results []*models.PainEvent
	lastQ   string
}

func (f *fakeEventReader) SearchEventsFTS(ctx context.Context, query string, limit int) ([]*models.PainEvent, error) {
	f.lastQ = query
	return f.results, nil
}

func (f *fakeEventReader) EventCount(ctx context.Context) (int64, error)       { return 12, nil }
func (f *fakeEventReader) UnclusteredCount(ctx context.Context) (int64, error) { return 5, nil }

func testServer() (*fakeClusterReader, *fakeEventReader, http.Handler) {
	invoice := &models.Cluster{
		ID:        "c-1",
		Name:      "invoice tracking",
		Size:      2,
		MemberIDs: []string{"ev-a", "ev-b"},
	}
	clusters := &fakeClusterReader{
		clusters: map[string]*models.Cluster{"c-1": invoice},
		listed:   []*models.Cluster{invoice},
	}
	events := &fakeEventReader{}
	return clusters, events, NewServer(clusters, events).Handler()
}

func TestServer_ListClusters(t *testing.T) {
	clusters, _, h := testServer()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/clusters?limit=5", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, 5, clusters.lastList)

	var body []models.Cluster
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "invoice tracking", body[0].Name)
}

func TestServer_ListClusters_DefaultLimit(t *testing.T) {
	clusters, _, h := testServer()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/clusters", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, clusters.lastList)
}

func TestServer_GetCluster(t *testing.T) {
	_, _, h := testServer()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/clusters/c-1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body models.Cluster
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "c-1", body.ID)
	assert.Equal(t, []string{"ev-a", "ev-b"}, body.MemberIDs)
}

func TestServer_GetCluster_NotFound(t *testing.T) {
	_, _, h := testServer()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/clusters/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_SearchEvents(t *testing.T) {
	_, events, h := testServer()
	events.results = []*models.PainEvent{{ID: "ev-a", Problem: "invoice tracking is painful"}}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events/search?q=invoice", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "invoice", events.lastQ)

	var body []models.PainEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "ev-a", body[0].ID)
}

func TestServer_SearchEvents_MissingQuery(t *testing.T) {
	_, _, h := testServer()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events/search", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SearchEvents_EmptyResultIsArray(t *testing.T) {
	_, _, h := testServer()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events/search?q=nothing", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestServer_Stats(t *testing.T) {
	_, _, h := testServer()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(12), body.Events)
	assert.Equal(t, int64(5), body.UnclusteredEvents)
	assert.Equal(t, int64(1), body.Clusters)
	assert.InDelta(t, 2.5, body.AverageClusterSize, 0.001)
}
