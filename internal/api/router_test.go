package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfeed/skyfeed/internal/cache"
	"github.com/skyfeed/skyfeed/internal/feed"
	"github.com/skyfeed/skyfeed/internal/models"
	"github.com/skyfeed/skyfeed/internal/query"
	"github.com/skyfeed/skyfeed/pkg/config"
)

type memStore map[string]models.CacheSnapshot

func (m memStore) Load(_ context.Context, identifier string) (*models.CacheSnapshot, error) {
	row, ok := m[identifier]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m memStore) Save(_ context.Context, snapshot *models.CacheSnapshot, _ bool) error {
	m[snapshot.Identifier] = *snapshot
	return nil
}

func (m memStore) Delete(_ context.Context, identifier string) error {
	delete(m, identifier)
	return nil
}

func (m memStore) Exists(_ context.Context, identifier string) (bool, error) {
	_, ok := m[identifier]
	return ok, nil
}

type staticIndex []models.Post

func (s staticIndex) Search(context.Context, string, []any) ([]models.Post, error) {
	return s, nil
}

type discardLog struct{}

func (discardLog) LogQuery(context.Context, *models.QueryLog) error { return nil }

type feedTable []models.Feed

func (f feedTable) Lookup(_ context.Context, did, slug string) (*models.Feed, error) {
	for i := range f {
		if f[i].DID == did && f[i].Slug == slug {
			return &f[i], nil
		}
	}
	return nil, nil
}

func (f feedTable) List(context.Context) ([]models.Feed, error) {
	return f, nil
}

type healthFunc func(ctx context.Context) error

func (h healthFunc) Health(ctx context.Context) error { return h(ctx) }

var serverConfig = config.ServerConfig{
	Hostname:     "feeds.example.com",
	ServiceDID:   "did:web:feeds.example.com",
	PublisherDID: "did:plc:pub",
}

func newTestEngine(t *testing.T) (*gin.Engine, *Router) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	feeds := feedTable{{Identifier: "did:plc:pub/cats", DID: "did:plc:pub", Slug: "cats", Definition: models.FilterDefinition{Hashtags: []string{"#cats"}}}}
	index := staticIndex{
		{URI: "at://did:plc:a/app.bsky.feed.post/1", Author: "did:plc:a", Text: "#cats", IndexedAt: "2024-05-01T12:00:00.000Z", CreatedAt: "2024-05-01T12:00:00.000Z"},
		{URI: "at://did:plc:a/app.bsky.feed.post/2", Author: "did:plc:a", Text: "#cats too", IndexedAt: "2024-05-01T12:01:00.000Z", CreatedAt: "2024-05-01T12:01:00.000Z"},
	}
	builder := query.NewBuilder(query.Config{DiggingDepth: 100, Table: "p.d.t", IntervalDays: 7, Limit: 100}, discardLog{})
	executor := feed.NewExecutor(cache.NewService(memStore{}, 10), index, nil, builder)

	router := NewRouter(serverConfig, feed.NewService(feeds, executor), feeds)
	engine := gin.New()
	router.SetupRoutes(engine, "skyfeed-test")
	return engine, router
}

func get(engine *gin.Engine, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestGetFeedSkeleton(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := get(engine, "/xrpc/app.bsky.feed.getFeedSkeleton?feed=at://did:plc:pub/app.bsky.feed.generator/cats&limit=1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	var skeleton models.Skeleton
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &skeleton))
	require.Len(t, skeleton.Feed, 1)
	assert.Equal(t, "at://did:plc:a/app.bsky.feed.post/2", skeleton.Feed[0].Post)
	require.NotNil(t, skeleton.Cursor)

	w = get(engine, "/xrpc/app.bsky.feed.getFeedSkeleton?feed=at://did:plc:pub/app.bsky.feed.generator/cats&cursor="+*skeleton.Cursor)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &skeleton))
	require.Len(t, skeleton.Feed, 1)
	assert.Equal(t, "at://did:plc:a/app.bsky.feed.post/1", skeleton.Feed[0].Post)
}

func TestGetFeedSkeletonErrors(t *testing.T) {
	engine, _ := newTestEngine(t)

	tests := []struct {
		name     string
		target   string
		wantCode int
		wantName string
	}{
		{name: "missing feed", target: "/xrpc/app.bsky.feed.getFeedSkeleton", wantCode: http.StatusBadRequest, wantName: ErrInvalidRequest},
		{name: "bad limit", target: "/xrpc/app.bsky.feed.getFeedSkeleton?feed=at://did:plc:pub/app.bsky.feed.generator/cats&limit=500", wantCode: http.StatusBadRequest, wantName: ErrInvalidRequest},
		{name: "bad cursor", target: "/xrpc/app.bsky.feed.getFeedSkeleton?feed=at://did:plc:pub/app.bsky.feed.generator/cats&cursor=abc", wantCode: http.StatusBadRequest, wantName: ErrInvalidRequest},
		{name: "unknown feed", target: "/xrpc/app.bsky.feed.getFeedSkeleton?feed=at://did:plc:pub/app.bsky.feed.generator/dogs", wantCode: http.StatusBadRequest, wantName: ErrUnknownFeed},
		{name: "unknown method", target: "/xrpc/app.bsky.feed.getLikes", wantCode: http.StatusNotImplemented, wantName: ErrMethodNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(engine, tt.target)
			assert.Equal(t, tt.wantCode, w.Code)

			var body Error
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantName, body.Name)
		})
	}
}

func TestDescribeFeedGenerator(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := get(engine, "/xrpc/app.bsky.feed.describeFeedGenerator")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		DID   string `json:"did"`
		Feeds []struct {
			URI string `json:"uri"`
		} `json:"feeds"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, serverConfig.ServiceDID, body.DID)
	require.Len(t, body.Feeds, 1)
	assert.Equal(t, "at://did:plc:pub/app.bsky.feed.generator/cats", body.Feeds[0].URI)
}

func TestDIDDocument(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := get(engine, "/.well-known/did.json")
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		ID      string `json:"id"`
		Service []struct {
			ID       string `json:"id"`
			Type     string `json:"type"`
			Endpoint string `json:"serviceEndpoint"`
		} `json:"service"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "did:web:feeds.example.com", doc.ID)
	require.Len(t, doc.Service, 1)
	assert.Equal(t, "#bsky_fg", doc.Service[0].ID)
	assert.Equal(t, "BskyFeedGenerator", doc.Service[0].Type)
	assert.Equal(t, "https://feeds.example.com", doc.Service[0].Endpoint)
}

func TestHealth(t *testing.T) {
	engine, router := newTestEngine(t)

	w := get(engine, "/health")
	assert.Equal(t, http.StatusOK, w.Code)

	router.AddHealthCheck("index", healthFunc(func(context.Context) error { return errors.New("index closed") }))
	w = get(engine, "/.well-known/healthcheck.json")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "index closed")
}
