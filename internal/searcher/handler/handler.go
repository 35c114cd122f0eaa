// Package handler exposes the hybrid searcher over HTTP: ranked search in
// three modes, per-term scoring diagnostics, document lookup, and index
// reload.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/hybrid"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/tracing"
)

// Search modes, used as metric and analytics labels.
const (
	ModeBM25     = "bm25"
	ModeWeighted = "weighted"
	ModeRRF      = "rrf"
)

// Service is the part of hybrid.Searcher the handler serves.
type Service interface {
	BM25Search(ctx context.Context, query string, limit int) ([]index.Hit, error)
	WeightedSearch(ctx context.Context, query string, alpha float64, limit int) ([]hybrid.Result, error)
	RRFSearch(ctx context.Context, query string, k float64, limit int) ([]hybrid.Result, error)
	TermFrequency(docID int, term string) (int, error)
	InverseDocumentFrequency(term string) (float64, error)
	TFIDF(docID int, term string) (float64, error)
	BM25IDF(term string) (float64, error)
	BM25TF(docID int, term string, k1, b float64) (float64, error)
	BM25(docID int, term string) (float64, error)
	Document(docID int) (index.Document, bool)
	Stats() hybrid.Stats
	Reload(ctx context.Context) error
	Rebuild(ctx context.Context) (index.BuildStats, error)
}

// SearchResponse wraps every ranked list.
type SearchResponse struct {
	Query     string `json:"query"`
	Mode      string `json:"mode"`
	Limit     int    `json:"limit"`
	Results   any    `json:"results"`
	LatencyMs int64  `json:"latency_ms"`
}

// TermResponse reports one diagnostic score.
type TermResponse struct {
	Metric string  `json:"metric"`
	Term   string  `json:"term"`
	DocID  *int    `json:"doc_id,omitempty"`
	Value  float64 `json:"value"`
}

type Handler struct {
	service   Service
	collector *analytics.Collector
	results   *cache.ResultCache
	adminAuth func(http.Handler) http.Handler
	metrics   *metrics.Metrics
	search    config.SearchConfig
	params    config.IndexConfig
	sampler   *tracing.Sampler
	logger    *slog.Logger
}

// Option customises a Handler.
type Option func(*Handler)

// WithCollector tracks every search.
func WithCollector(c *analytics.Collector) Option {
	return func(h *Handler) { h.collector = c }
}

// WithResultCache serves repeated searches from c and empties it whenever
// the index is reloaded or rebuilt.
func WithResultCache(c *cache.ResultCache) Option {
	return func(h *Handler) { h.results = c }
}

// WithAdminAuth wraps the reload and rebuild routes in mw.
func WithAdminAuth(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) { h.adminAuth = mw }
}

// WithMetrics records query counters and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithTracing logs the span tree of a sampled fraction of searches.
func WithTracing(cfg config.TracingConfig) Option {
	return func(h *Handler) { h.sampler = tracing.NewSampler(cfg.Enabled, cfg.SampleRate) }
}

// New creates a handler. search supplies limits and fusion defaults;
// index supplies the default BM25 parameters for bm25tf.
func New(svc Service, search config.SearchConfig, idx config.IndexConfig, opts ...Option) *Handler {
	h := &Handler{
		service: svc,
		search:  search,
		params:  idx,
		logger:  slog.Default().With("component", "search-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/search/weighted", h.Weighted)
	mux.HandleFunc("GET /api/v1/search/rrf", h.RRF)
	mux.HandleFunc("GET /api/v1/terms/{metric}", h.Term)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.Document)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.Handle("POST /api/v1/index/reload", h.admin(h.Reload))
	mux.Handle("POST /api/v1/index/rebuild", h.admin(h.Rebuild))
}

func (h *Handler) admin(fn http.HandlerFunc) http.Handler {
	if h.adminAuth == nil {
		return fn
	}
	return h.adminAuth(fn)
}

// Search handles GET /api/v1/search?q=&limit= (BM25 only).
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	h.serveSearch(w, r, ModeBM25, func(ctx context.Context, query string, limit int) (any, int, error) {
		hits, err := cached(ctx, h.results, cache.Key(ModeBM25, query, limit), func() ([]index.Hit, error) {
			return h.service.BM25Search(ctx, query, limit)
		})
		return hits, len(hits), err
	})
}

// Weighted handles GET /api/v1/search/weighted?q=&alpha=&limit=.
func (h *Handler) Weighted(w http.ResponseWriter, r *http.Request) {
	alpha, err := floatParam(r, "alpha", h.search.DefaultAlpha)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.serveSearch(w, r, ModeWeighted, func(ctx context.Context, query string, limit int) (any, int, error) {
		results, err := cached(ctx, h.results, cache.Key(ModeWeighted, query, limit, alpha), func() ([]hybrid.Result, error) {
			return h.service.WeightedSearch(ctx, query, alpha, limit)
		})
		return results, len(results), err
	})
}

// RRF handles GET /api/v1/search/rrf?q=&k=&limit=.
func (h *Handler) RRF(w http.ResponseWriter, r *http.Request) {
	k, err := floatParam(r, "k", h.search.DefaultRRFK)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.serveSearch(w, r, ModeRRF, func(ctx context.Context, query string, limit int) (any, int, error) {
		results, err := cached(ctx, h.results, cache.Key(ModeRRF, query, limit, k), func() ([]hybrid.Result, error) {
			return h.service.RRFSearch(ctx, query, k, limit)
		})
		return results, len(results), err
	})
}

type searchFunc func(ctx context.Context, query string, limit int) (any, int, error)

func cached[T any](ctx context.Context, c *cache.ResultCache, key string, run func() (T, error)) (T, error) {
	if c == nil {
		return run()
	}
	v, _, err := cache.GetOrCompute(ctx, c, key, run)
	return v, err
}

func (h *Handler) serveSearch(w http.ResponseWriter, r *http.Request, mode string, run searchFunc) {
	start := time.Now()
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, r, apperrors.InvalidArgumentf("query parameter 'q' is required"))
		return
	}
	limit, err := h.limit(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	requestID := middleware.GetRequestID(r.Context())
	ctx, span := tracing.StartSpan(r.Context(), "search."+mode, requestID)
	span.SetAttr("query", query)
	span.SetAttr("limit", limit)
	results, n, err := run(ctx, query, limit)
	span.Fail(err)
	span.End()
	h.maybeLogSpan(span)

	latency := time.Since(start)
	h.observe(mode, query, n, latency, err, requestID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Info("search completed",
		"mode", mode,
		"query", query,
		"returned", n,
		"latency_ms", latency.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, SearchResponse{
		Query:     query,
		Mode:      mode,
		Limit:     limit,
		Results:   results,
		LatencyMs: latency.Milliseconds(),
	})
}

// Term handles GET /api/v1/terms/{metric}?term=&doc_id=[&k1=&b=].
func (h *Handler) Term(w http.ResponseWriter, r *http.Request) {
	metric := r.PathValue("metric")
	term := r.URL.Query().Get("term")
	if term == "" {
		h.writeError(w, r, apperrors.InvalidArgumentf("query parameter 'term' is required"))
		return
	}
	resp := TermResponse{Metric: metric, Term: term}

	needsDoc := metric != "idf" && metric != "bm25idf"
	var docID int
	if needsDoc {
		id, err := intParam(r, "doc_id")
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		docID = id
		resp.DocID = &docID
	}

	var err error
	switch metric {
	case "tf":
		var tf int
		tf, err = h.service.TermFrequency(docID, term)
		resp.Value = float64(tf)
	case "idf":
		resp.Value, err = h.service.InverseDocumentFrequency(term)
	case "tfidf":
		resp.Value, err = h.service.TFIDF(docID, term)
	case "bm25idf":
		resp.Value, err = h.service.BM25IDF(term)
	case "bm25tf":
		k1, kerr := floatParam(r, "k1", h.params.K1)
		b, berr := floatParam(r, "b", h.params.B)
		if err = errors.Join(kerr, berr); err == nil {
			resp.Value, err = h.service.BM25TF(docID, term, k1, b)
		}
	case "bm25":
		resp.Value, err = h.service.BM25(docID, term)
	default:
		err = apperrors.NotFoundf("unknown metric %q", metric)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Document handles GET /api/v1/documents/{id}.
func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, apperrors.InvalidArgumentf("document id must be an integer"))
		return
	}
	doc, ok := h.service.Document(id)
	if !ok {
		h.writeError(w, r, apperrors.NotFoundf("document %d not found", id))
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// IndexStats handles GET /api/v1/index/stats.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Stats())
}

// Reload handles POST /api/v1/index/reload.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reload(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidate(r.Context())
	h.writeJSON(w, http.StatusOK, h.service.Stats())
}

// Rebuild handles POST /api/v1/index/rebuild.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Rebuild(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.invalidate(r.Context())
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) invalidate(ctx context.Context) {
	if h.results == nil {
		return
	}
	if err := h.results.Invalidate(ctx); err != nil {
		h.logger.Warn("result cache not cleared after index change", "error", err)
	}
}

func (h *Handler) limit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return h.search.DefaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, apperrors.InvalidArgumentf("limit must be a positive integer")
	}
	if h.search.MaxResults > 0 && limit > h.search.MaxResults {
		limit = h.search.MaxResults
	}
	return limit, nil
}

func floatParam(r *http.Request, name string, def float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperrors.InvalidArgumentf("%s must be a number", name)
	}
	return v, nil
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, apperrors.InvalidArgumentf("query parameter '%s' is required", name)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.InvalidArgumentf("%s must be an integer", name)
	}
	return v, nil
}

func (h *Handler) observe(mode, query string, returned int, latency time.Duration, err error, requestID string) {
	if h.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		h.metrics.SearchQueriesTotal.WithLabelValues(mode, outcome).Inc()
		h.metrics.SearchLatency.WithLabelValues(mode).Observe(latency.Seconds())
		if err == nil {
			h.metrics.SearchResultsCount.WithLabelValues(mode).Observe(float64(returned))
		}
	}
	if h.collector != nil {
		h.collector.Track(analytics.SearchEvent{
			Mode:      mode,
			Query:     query,
			Returned:  returned,
			LatencyMs: latency.Milliseconds(),
			Failed:    err != nil,
			Timestamp: time.Now().UTC(),
			RequestID: requestID,
		})
	}
}

func (h *Handler) maybeLogSpan(span *tracing.Span) {
	if h.sampler.Sample() {
		span.Log(h.logger)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to its status. Internal failures are logged and
// reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		message = http.StatusText(status)
	}
	h.writeJSON(w, status, map[string]string{"error": message, "code": apperrors.Code(err)})
}
