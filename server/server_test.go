package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/dealscope/pkg/domain"
	"github.com/umputun/dealscope/pkg/pipeline"
	"github.com/umputun/dealscope/pkg/scheduler"
)

// fakeStore serves canned data for handler tests
type fakeStore struct {
	deals    []domain.Deal
	sources  []domain.Source
	articles []domain.Article
	queue    []domain.QueueItem
	stats    domain.QueueStats
	filter   domain.DealFilter // captured by ListDeals
}

func (f *fakeStore) ListDeals(_ context.Context, filter domain.DealFilter) ([]domain.Deal, error) {
	f.filter = filter
	return f.deals, nil
}

func (f *fakeStore) GetDeal(_ context.Context, id int64) (*domain.Deal, error) {
	for _, d := range f.deals {
		if d.ID == id {
			return &d, nil
		}
	}
	return nil, fmt.Errorf("deal not found")
}

func (f *fakeStore) GetSources(context.Context) ([]domain.Source, error)   { return f.sources, nil }
func (f *fakeStore) GetQueueStats(context.Context) (*domain.QueueStats, error) { return &f.stats, nil }
func (f *fakeStore) GetQueueItems(context.Context, int) ([]domain.QueueItem, error) {
	return f.queue, nil
}
func (f *fakeStore) GetArticles(context.Context, int, int) ([]domain.Article, error) {
	return f.articles, nil
}
func (f *fakeStore) CountDeals(context.Context) (int64, error) { return int64(len(f.deals)), nil }

// fakeScheduler records triggered operations
type fakeScheduler struct {
	fetches    int
	evals      int
	publishes  int
	publishErr error
}

func (f *fakeScheduler) TriggerFetch(context.Context) *pipeline.FetchResult {
	f.fetches++
	return &pipeline.FetchResult{NewDeals: 5}
}

func (f *fakeScheduler) TriggerEvaluate(context.Context) *pipeline.EvalResult {
	f.evals++
	return &pipeline.EvalResult{Evaluated: 3}
}

func (f *fakeScheduler) TriggerPublish(context.Context) (*pipeline.PublishResult, error) {
	f.publishes++
	return &pipeline.PublishResult{Published: 2}, f.publishErr
}

func (f *fakeScheduler) Runs() scheduler.LastRuns {
	return scheduler.LastRuns{Fetch: &pipeline.FetchResult{NewDeals: 5}}
}

type testConfig struct{}

func (testConfig) GetServerConfig() (string, time.Duration) { return ":0", 30 * time.Second }

func setupTestServer(store *fakeStore, sched *fakeScheduler) *Server {
	return New(testConfig{}, store, sched, "test", false)
}

func TestServer_Status(t *testing.T) {
	store := &fakeStore{
		deals: []domain.Deal{{ID: 1, Title: "one"}},
		stats: domain.QueueStats{Pending: 2, Completed: 1},
	}
	srv := setupTestServer(store, &fakeScheduler{})

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "test", resp["version"])
	assert.InDelta(t, 1.0, resp["deals"], 0.001)
}

func TestServer_ListDeals(t *testing.T) {
	store := &fakeStore{deals: []domain.Deal{{ID: 1, Title: "Paris Getaway"}}}
	srv := setupTestServer(store, &fakeScheduler{})

	t.Run("filters passed through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
			"/api/v1/deals?status=approved&source=3&destination=paris&min_score=70&limit=5", http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)

		assert.Equal(t, domain.DealStatusApproved, store.filter.Status)
		assert.Equal(t, int64(3), store.filter.SourceID)
		assert.Equal(t, "paris", store.filter.Destination)
		assert.InDelta(t, 70.0, store.filter.MinScore, 0.001)
		assert.Equal(t, 5, store.filter.Limit)
	})

	t.Run("invalid source id rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/deals?source=abc", http.NoBody))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid min_score rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/deals?min_score=high", http.NoBody))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_GetDeal(t *testing.T) {
	store := &fakeStore{deals: []domain.Deal{{ID: 7, Title: "Rome Weekend"}}}
	srv := setupTestServer(store, &fakeScheduler{})

	t.Run("found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/deals/7", http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)

		var deal domain.Deal
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deal))
		assert.Equal(t, "Rome Weekend", deal.Title)
	})

	t.Run("missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/deals/999", http.NoBody))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/deals/abc", http.NoBody))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_Queue(t *testing.T) {
	store := &fakeStore{
		stats: domain.QueueStats{Pending: 4, Failed: 1},
		queue: []domain.QueueItem{{ID: 1, DealID: 2, Status: domain.QueuePending}},
	}
	srv := setupTestServer(store, &fakeScheduler{})

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/queue", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Stats domain.QueueStats  `json:"stats"`
		Items []domain.QueueItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Stats.Pending)
	require.Len(t, resp.Items, 1)
}

func TestServer_Triggers(t *testing.T) {
	t.Run("fetch", func(t *testing.T) {
		sched := &fakeScheduler{}
		srv := setupTestServer(&fakeStore{}, sched)

		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/fetch", http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, sched.fetches)

		var result pipeline.FetchResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, 5, result.NewDeals)
	})

	t.Run("evaluate", func(t *testing.T) {
		sched := &fakeScheduler{}
		srv := setupTestServer(&fakeStore{}, sched)

		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, sched.evals)
	})

	t.Run("publish ok", func(t *testing.T) {
		sched := &fakeScheduler{}
		srv := setupTestServer(&fakeStore{}, sched)

		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/publish", http.NoBody))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, sched.publishes)
	})

	t.Run("publish below minimum is a conflict", func(t *testing.T) {
		sched := &fakeScheduler{publishErr: fmt.Errorf("%w: have 0, need 3", pipeline.ErrBatchBelowMinimum)}
		srv := setupTestServer(&fakeStore{}, sched)

		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/publish", http.NoBody))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("get on trigger route not allowed", func(t *testing.T) {
		srv := setupTestServer(&fakeStore{}, &fakeScheduler{})
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/fetch", http.NoBody))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestServer_LastRuns(t *testing.T) {
	srv := setupTestServer(&fakeStore{}, &fakeScheduler{})

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/last", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var runs scheduler.LastRuns
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.NotNil(t, runs.Fetch)
	assert.Equal(t, 5, runs.Fetch.NewDeals)
}

func TestServer_Ping(t *testing.T) {
	srv := setupTestServer(&fakeStore{}, &fakeScheduler{})

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}
