package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/fusion"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/hybrid"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/middleware"
)

type docs []index.SourceDocument

func (d docs) Documents(ctx context.Context) ([]index.SourceDocument, error) { return d, nil }

type semantic []fusion.Scored

func (s semantic) RankBySimilarity(ctx context.Context, query string, limit int) ([]fusion.Scored, error) {
	if limit < len(s) {
		return s[:limit], nil
	}
	return s, nil
}

func intPtr(v int) *int { return &v }

type fixture struct {
	server    *httptest.Server
	metrics   *metrics.Metrics
	aggregate *analytics.Aggregator
	collector *analytics.Collector
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	corpus := docs{
		{ID: intPtr(1), Title: "A bear", Description: "in the woods"},
		{ID: intPtr(2), Title: "A city", Description: "bear story"},
		{ID: intPtr(3), Title: "Space", Description: "adventure"},
	}
	engine := indexer.NewEngine(tokenizer.New(nil, tokenizer.IdentityStemmer{}), ranker.DefaultParams(),
		filepath.Join(t.TempDir(), "index.snap"))
	svc := hybrid.New(engine, corpus, semantic{{ID: 1, Score: 0.9}, {ID: 3, Score: 0.4}}, 0)
	require.NoError(t, svc.Open(context.Background()))

	cfg := config.Default()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	agg := analytics.NewAggregator()
	col := analytics.NewCollector(nil, agg, analytics.CollectorConfig{})
	col.Start(context.Background())

	mux := http.NewServeMux()
	opts = append([]Option{WithMetrics(m), WithCollector(col)}, opts...)
	New(svc, cfg.Search, cfg.Index, opts...).Register(mux)
	srv := httptest.NewServer(middleware.RequestID(mux))
	t.Cleanup(srv.Close)
	return &fixture{server: srv, metrics: m, aggregate: agg, collector: col}
}

func (f *fixture) do(t *testing.T, method, path string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type bm25Response struct {
	Mode    string      `json:"mode"`
	Limit   int         `json:"limit"`
	Results []index.Hit `json:"results"`
}

type fusedResponse struct {
	Mode    string          `json:"mode"`
	Results []hybrid.Result `json:"results"`
}

func TestBM25Search(t *testing.T) {
	f := newFixture(t)
	var resp bm25Response
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/search?q=bear&limit=10", &resp))
	assert.Equal(t, ModeBM25, resp.Mode)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, 2, resp.Results[0].DocID)
	assert.Equal(t, "A city", resp.Results[0].Document.Title)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SearchQueriesTotal.WithLabelValues(ModeBM25, "ok")))
}

func TestSearchDefaultsAndCaps(t *testing.T) {
	f := newFixture(t)
	var resp bm25Response
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/search?q=bear", &resp))
	assert.Equal(t, 5, resp.Limit)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/search?q=bear&limit=100000", &resp))
	assert.Equal(t, 100, resp.Limit)
}

func TestRRFSearch(t *testing.T) {
	f := newFixture(t)
	var resp fusedResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/search/rrf?q=bear&k=60&limit=2", &resp))
	assert.Equal(t, ModeRRF, resp.Mode)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 1, resp.Results[0].ID)
	assert.InDelta(t, 1.0/62+1.0/61, resp.Results[0].FusedScore, 1e-12)
	assert.Equal(t, "A bear", resp.Results[0].Document.Title)
}

func TestWeightedSearch(t *testing.T) {
	f := newFixture(t)
	var resp fusedResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/search/weighted?q=bear&alpha=1&limit=3", &resp))
	require.Len(t, resp.Results, 3)
	assert.Equal(t, 2, resp.Results[0].ID)

	var errResp map[string]string
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/search/weighted?q=bear&alpha=2", &errResp))
	assert.Contains(t, errResp["error"], "alpha")
	assert.Equal(t, "invalid_argument", errResp["code"])
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/search/weighted?q=bear&alpha=x", nil))
}

func TestSearchBadRequests(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/search", nil))
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/search?q=bear&limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/search/rrf?q=bear&k=-1", nil))
}

func TestTermMetrics(t *testing.T) {
	f := newFixture(t)
	var tf TermResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/terms/tf?term=bear&doc_id=2", &tf))
	assert.Equal(t, 1.0, tf.Value)
	require.NotNil(t, tf.DocID)
	assert.Equal(t, 2, *tf.DocID)

	var idf TermResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/terms/idf?term=bear", &idf))
	assert.Greater(t, idf.Value, 0.0)
	assert.Nil(t, idf.DocID)

	for _, metric := range []string{"tfidf", "bm25", "bm25tf"} {
		assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/terms/"+metric+"?term=bear&doc_id=1", nil), metric)
	}
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/terms/bm25idf?term=bear", nil))
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/terms/tf?term=two+words&doc_id=1", nil))
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/terms/tf?term=bear", nil))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/terms/okapi?term=bear&doc_id=1", nil))
}

func TestDocumentLookup(t *testing.T) {
	f := newFixture(t)
	var doc index.Document
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/documents/3", &doc))
	assert.Equal(t, "Space", doc.Title)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/documents/99", nil))
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/documents/abc", nil))
}

func TestIndexAdmin(t *testing.T) {
	f := newFixture(t)
	var stats hybrid.Stats
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/index/reload", &stats))
	assert.Equal(t, 3, stats.Documents)

	var build index.BuildStats
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/index/rebuild", &build))
	assert.Equal(t, 3, build.Indexed)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/index/stats", &stats))
	assert.Equal(t, 3, stats.Documents)
}

func TestSearchesAreTracked(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/api/v1/search?q=bear", nil)
	f.do(t, http.MethodGet, "/api/v1/search/rrf?q=bear", nil)
	f.collector.Close()

	stats := f.aggregate.Stats()
	assert.EqualValues(t, 2, stats.TotalSearches)
	assert.EqualValues(t, 1, stats.ByMode[ModeRRF])
}

func TestRequestIDEchoed(t *testing.T) {
	f := newFixture(t)
	req, _ := http.NewRequest(http.MethodGet, f.server.URL+"/api/v1/index/stats", nil)
	req.Header.Set(middleware.RequestIDHeader, "trace-me")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "trace-me", resp.Header.Get(middleware.RequestIDHeader))
}

type mapBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *mapBackend) GetBytes(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (m *mapBackend) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapBackend) FlushByPrefix(ctx context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func TestResultCacheServesRepeatsAndClearsOnReload(t *testing.T) {
	backend := &mapBackend{data: make(map[string][]byte)}
	rc := cache.New(backend, time.Minute)
	f := newFixture(t, WithResultCache(rc))

	var first, second struct {
		Results []hybrid.Result `json:"results"`
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/search/rrf?q=bear&limit=3", &first))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/search/rrf?q=BEAR&limit=3", &second))
	assert.Equal(t, first.Results, second.Results)

	hits, _ := rc.Stats()
	assert.EqualValues(t, 1, hits)
	assert.Len(t, backend.data, 1)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/index/reload", nil))
	assert.Empty(t, backend.data)
}

func TestAdminRoutesRequireKey(t *testing.T) {
	v := apikey.NewValidator(apikey.NewStaticStore([]string{"ops-key"}))
	f := newFixture(t, WithAdminAuth(apikey.Require(v)))

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/api/v1/index/reload", nil))

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/v1/index/reload", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "ops-key")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var hits bm25Response
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/search?q=bear", &hits))
}
