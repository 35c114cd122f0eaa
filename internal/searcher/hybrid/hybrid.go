// Package hybrid is the query façade over one inverted index and one
// semantic ranker. It loads the index snapshot (or builds and saves it when
// none exists), runs BM25 and semantic ranking for every query, and fuses the
// two lists. Fused results are never cached.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/fusion"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/tracing"
)

// DefaultOverFetchFactor multiplies the requested limit when pulling
// candidates from each signal before fusion.
const DefaultOverFetchFactor = 500

// SemanticRanker ranks documents by similarity to a query. Results are
// sorted by descending score.
type SemanticRanker interface {
	RankBySimilarity(ctx context.Context, query string, limit int) ([]fusion.Scored, error)
}

// CorpusSyncer is implemented by semantic rankers that derive state from
// the indexed documents. The searcher calls Sync whenever the index changes.
type CorpusSyncer interface {
	Sync(ctx context.Context, docs []index.Document) error
}

// DocumentSource supplies the corpus when the index has to be built.
type DocumentSource interface {
	Documents(ctx context.Context) ([]index.SourceDocument, error)
}

// Result is a fused entry hydrated with its document.
type Result struct {
	fusion.Result
	Document index.Document `json:"document"`
}

// Stats summarises the loaded index.
type Stats struct {
	Documents    int     `json:"documents"`
	Terms        int     `json:"terms"`
	AvgDocLength float64 `json:"avg_doc_length"`
	Analyzer     string  `json:"analyzer"`
	Snapshot     string  `json:"snapshot"`
}

// Searcher is safe for concurrent use: Open, Reload and Rebuild take the
// write lock and every query takes the read lock.
type Searcher struct {
	mu        sync.RWMutex
	engine    *indexer.Engine
	source    DocumentSource
	semantic  SemanticRanker
	overFetch int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New wires a searcher. semantic may be nil, in which case only BM25
// queries are served. overFetchFactor ≤ 0 selects DefaultOverFetchFactor.
func New(engine *indexer.Engine, source DocumentSource, semantic SemanticRanker, overFetchFactor int) *Searcher {
	if overFetchFactor <= 0 {
		overFetchFactor = DefaultOverFetchFactor
	}
	return &Searcher{
		engine:    engine,
		source:    source,
		semantic:  semantic,
		overFetch: overFetchFactor,
		logger:    slog.Default().With("component", "hybrid-search"),
	}
}

// WithMetrics records build, load and query metrics into m.
func (s *Searcher) WithMetrics(m *metrics.Metrics) *Searcher {
	s.metrics = m
	return s
}

// Open loads the snapshot. When the snapshot is missing, or was written by a
// different analyzer, the index is built from the document source and saved.
// Any other load failure is returned.
func (s *Searcher) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.engine.Load()
	switch {
	case err == nil:
		s.observeLoad("ok")
		s.observeIndex(s.engine)
		return s.syncSemantic(ctx, s.engine)
	case errors.Is(err, apperrors.ErrNotFound):
		s.observeLoad("missing")
		s.logger.Info("no snapshot found, building index", "path", s.engine.SnapshotPath())
	case errors.Is(err, apperrors.ErrInvalidState):
		s.observeLoad("stale")
		s.logger.Warn("snapshot unusable, rebuilding index", "path", s.engine.SnapshotPath(), "error", err)
	default:
		s.observeLoad("error")
		return err
	}
	if _, err = s.buildInto(ctx, s.engine); err != nil {
		return err
	}
	return s.syncSemantic(ctx, s.engine)
}

// Rebuild rebuilds the index from the document source, saves the snapshot
// and swaps it in. Queries keep seeing the old index until the swap.
func (s *Searcher) Rebuild(ctx context.Context) (index.BuildStats, error) {
	s.mu.RLock()
	fresh := indexer.NewEngine(s.engine.Tokenizer(), s.engine.Params(), s.engine.SnapshotPath())
	s.mu.RUnlock()

	stats, err := s.buildInto(ctx, fresh)
	if err != nil {
		return stats, err
	}
	s.mu.Lock()
	s.engine = fresh
	s.mu.Unlock()
	return stats, s.syncSemantic(ctx, fresh)
}

// Reload re-reads the snapshot from disk and swaps it in. On failure the
// current index stays in place.
func (s *Searcher) Reload(ctx context.Context) error {
	s.mu.RLock()
	fresh := indexer.NewEngine(s.engine.Tokenizer(), s.engine.Params(), s.engine.SnapshotPath())
	s.mu.RUnlock()

	if _, err := fresh.Load(); err != nil {
		s.observeLoad("error")
		return err
	}
	s.observeLoad("ok")
	s.mu.Lock()
	s.engine = fresh
	s.mu.Unlock()
	s.observeIndex(fresh)
	s.logger.Info("index reloaded", "documents", fresh.DocCount(), "terms", fresh.TermCount())
	return s.syncSemantic(ctx, fresh)
}

// syncSemantic hands the documents of engine to a corpus-aware semantic
// ranker. engine must not be mutated concurrently.
func (s *Searcher) syncSemantic(ctx context.Context, engine *indexer.Engine) error {
	syncer, ok := s.semantic.(CorpusSyncer)
	if !ok {
		return nil
	}
	if err := syncer.Sync(ctx, engine.Documents()); err != nil {
		return fmt.Errorf("syncing semantic ranker: %w", err)
	}
	return nil
}

func (s *Searcher) buildInto(ctx context.Context, engine *indexer.Engine) (index.BuildStats, error) {
	if s.source == nil {
		return index.BuildStats{}, apperrors.InvalidStatef("no document source configured")
	}
	docs, err := s.source.Documents(ctx)
	if err != nil {
		s.observeBuild("error")
		return index.BuildStats{}, err
	}
	stats := engine.Build(docs)
	if _, err := engine.Save(); err != nil {
		s.observeBuild("error")
		return stats, err
	}
	s.observeBuild("ok")
	s.observeIndex(engine)
	return stats, nil
}

// BM25Search ranks the whole corpus lexically.
func (s *Searcher) BM25Search(ctx context.Context, query string, limit int) ([]index.Hit, error) {
	_, span := tracing.StartChildSpan(ctx, "bm25")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	hits, err := s.engine.BM25Search(query, limit)
	span.SetAttr("hits", len(hits))
	span.Fail(err)
	return hits, err
}

// WeightedSearch fuses normalised scores; alpha=1 is pure lexical.
func (s *Searcher) WeightedSearch(ctx context.Context, query string, alpha float64, limit int) ([]Result, error) {
	return s.Search(ctx, query, fusion.WeightedStrategy(alpha), limit)
}

// RRFSearch fuses by reciprocal rank with constant k.
func (s *Searcher) RRFSearch(ctx context.Context, query string, k float64, limit int) ([]Result, error) {
	return s.Search(ctx, query, fusion.RRFStrategy(k), limit)
}

// Search over-fetches limit × over-fetch factor candidates from both
// signals, fuses them with strategy and hydrates the top limit results.
func (s *Searcher) Search(ctx context.Context, query string, strategy fusion.Strategy, limit int) ([]Result, error) {
	if limit <= 0 {
		return nil, apperrors.InvalidArgumentf("limit must be positive, got %d", limit)
	}
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	if s.semantic == nil {
		return nil, apperrors.InvalidStatef("no semantic ranker configured")
	}
	start := time.Now()
	fetch := overFetchLimit(limit, s.overFetch)

	ctx, span := tracing.StartChildSpan(ctx, "hybrid."+strategy.Kind.String())
	defer span.End()

	_, semSpan := tracing.StartChildSpan(ctx, "semantic")
	semantic, err := s.semantic.RankBySimilarity(ctx, query, fetch)
	semSpan.SetAttr("candidates", len(semantic))
	semSpan.Fail(err)
	semSpan.End()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits, err := s.engine.BM25Search(query, fetch)
	if err != nil {
		return nil, err
	}
	lexical := make([]fusion.Scored, len(hits))
	for i, h := range hits {
		lexical[i] = fusion.Scored{ID: h.DocID, Score: h.Score}
	}
	semantic = s.knownOnly(semantic)

	_, fuseSpan := tracing.StartChildSpan(ctx, "fuse")
	fused, err := fusion.Fuse(strategy, lexical, semantic, limit)
	fuseSpan.End()
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(fused))
	for i, r := range fused {
		doc, _ := s.engine.Document(r.ID)
		results[i] = Result{Result: r, Document: doc}
	}
	span.SetAttr("results", len(results))
	s.logger.Debug("hybrid search",
		"query", query,
		"strategy", strategy.String(),
		"lexical", len(lexical),
		"semantic", len(semantic),
		"returned", len(results),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}

// knownOnly drops semantic candidates the index has no document for.
// overFetchLimit is limit × factor, saturating at math.MaxInt.
func overFetchLimit(limit, factor int) int {
	if factor > 0 && limit > math.MaxInt/factor {
		return math.MaxInt
	}
	return limit * factor
}

func (s *Searcher) knownOnly(list []fusion.Scored) []fusion.Scored {
	out := list[:0:0]
	for _, c := range list {
		if _, ok := s.engine.Document(c.ID); ok {
			out = append(out, c)
		}
	}
	if dropped := len(list) - len(out); dropped > 0 {
		s.logger.Warn("semantic ranker returned unknown documents", "dropped", dropped)
	}
	return out
}

func (s *Searcher) observeLoad(status string) {
	if s.metrics != nil {
		s.metrics.SnapshotLoadsTotal.WithLabelValues(status).Inc()
	}
}

func (s *Searcher) observeBuild(status string) {
	if s.metrics != nil {
		s.metrics.IndexBuildsTotal.WithLabelValues(status).Inc()
	}
}

func (s *Searcher) observeIndex(e *indexer.Engine) {
	if s.metrics != nil {
		s.metrics.IndexDocuments.Set(float64(e.DocCount()))
		s.metrics.IndexTerms.Set(float64(e.TermCount()))
	}
}
