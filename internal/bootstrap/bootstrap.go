// Package bootstrap assembles the search stack from configuration. The
// server, the indexer job and the CLI all start from the same Stack so
// that an index built by one is readable by the others.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/embed"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/hybrid"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/semantic"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/resilience"
)

const (
	memoryCacheEntries = 50000
	pingTimeout        = 2 * time.Second
)

// Stack is every long-lived component behind the search API. Postgres,
// Redis and Results are nil when the configuration does not use them.
type Stack struct {
	Config    *config.Config
	Metrics   *metrics.Metrics
	Tokenizer *tokenizer.Tokenizer
	Engine    *indexer.Engine
	Source    hybrid.DocumentSource
	Embedder  embed.Embedder
	Breaker   *resilience.CircuitBreaker
	Semantic  *semantic.ChunkedRanker
	Searcher  *hybrid.Searcher
	Results   *cache.ResultCache
	Postgres  *postgres.Client
	Redis     *pkgredis.Client

	closers []func() error
}

// New wires the stack without touching the index; call Searcher.Open to
// load or build it. m may be nil.
func New(cfg *config.Config, m *metrics.Metrics) (*Stack, error) {
	s := &Stack{Config: cfg, Metrics: m}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Stack) init() error {
	tok, err := NewTokenizer(s.Config.Index)
	if err != nil {
		return err
	}
	s.Tokenizer = tok
	params := ranker.Params{K1: s.Config.Index.K1, B: s.Config.Index.B}
	s.Engine = indexer.NewEngine(tok, params, s.Config.Index.SnapshotPath)

	if err := s.initSource(); err != nil {
		return err
	}
	if err := s.initEmbedder(); err != nil {
		return err
	}

	var sem hybrid.SemanticRanker
	if s.Config.Semantic.Enabled {
		s.Semantic, err = semantic.NewChunkedRanker(s.Embedder, semantic.Options{
			Mode:         s.Config.Semantic.ChunkMode,
			Size:         s.Config.Semantic.ChunkSize,
			Overlap:      s.Config.Semantic.ChunkOverlap,
			Concurrency:  s.Config.Semantic.Concurrency,
			SnapshotPath: s.Config.Semantic.SnapshotPath,
		})
		if err != nil {
			return fmt.Errorf("creating semantic ranker: %w", err)
		}
		sem = s.Semantic
	}
	s.Searcher = hybrid.New(s.Engine, s.Source, sem, s.Config.Search.OverFetchFactor)
	if s.Metrics != nil {
		s.Searcher.WithMetrics(s.Metrics)
	}
	s.initResultCache()
	return nil
}

// NewTokenizer builds the analyzer from the stop-word file and stemmer name.
func NewTokenizer(cfg config.IndexConfig) (*tokenizer.Tokenizer, error) {
	stopwords, err := corpus.LoadStopwords(cfg.StopwordsPath)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		slog.Warn("stopwords file missing, indexing without stopwords", "path", cfg.StopwordsPath)
	case err != nil:
		return nil, fmt.Errorf("loading stopwords: %w", err)
	}
	stemmer, err := tokenizer.NewStemmer(cfg.Stemmer)
	if err != nil {
		return nil, err
	}
	return tokenizer.New(stopwords, stemmer), nil
}

func (s *Stack) initSource() error {
	switch s.Config.Index.Source {
	case "postgres":
		client, err := s.ConnectPostgres()
		if err != nil {
			return err
		}
		s.Source = corpus.NewPostgresSource(client, client.DocumentsTable())
	default:
		s.Source = corpus.NewJSONSource(s.Config.Index.CorpusPath)
	}
	return nil
}

// ConnectPostgres opens the Postgres pool once and registers it for Close.
func (s *Stack) ConnectPostgres() (*postgres.Client, error) {
	if s.Postgres != nil {
		return s.Postgres, nil
	}
	client, err := postgres.New(s.Config.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	s.Postgres = client
	s.closers = append(s.closers, client.Close)
	return client, nil
}

// ConnectRedis opens the Redis client once and registers it for Close.
func (s *Stack) ConnectRedis() (*pkgredis.Client, error) {
	if s.Redis != nil {
		return s.Redis, nil
	}
	client, err := pkgredis.NewClient(s.Config.Redis)
	if err != nil {
		return nil, err
	}
	s.Redis = client
	s.closers = append(s.closers, client.Close)
	return client, nil
}

// KeyStore opens the Postgres-backed API key table.
func (s *Stack) KeyStore(ctx context.Context) (*apikey.PostgresStore, error) {
	client, err := s.ConnectPostgres()
	if err != nil {
		return nil, err
	}
	return apikey.NewPostgresStore(ctx, client)
}

// AdminAuth returns the middleware guarding index administration, or nil
// when auth is disabled.
func (s *Stack) AdminAuth(ctx context.Context) (func(http.Handler) http.Handler, error) {
	cfg := s.Config.Auth
	if !cfg.Enabled {
		return nil, nil
	}
	var store apikey.Store
	switch cfg.Store {
	case "postgres":
		pg, err := s.KeyStore(ctx)
		if err != nil {
			return nil, err
		}
		store = pg
	default:
		store = apikey.NewStaticStore(cfg.Keys)
	}
	slog.Info("index administration requires an api key", "store", cfg.Store)
	return apikey.Require(apikey.NewValidator(store)), nil
}

// initResultCache leaves Results nil when caching is off or Redis is down;
// searches then always hit the index.
func (s *Stack) initResultCache() {
	if !s.Config.Search.CacheResults {
		return
	}
	client, err := s.ConnectRedis()
	if err != nil {
		slog.Warn("redis unavailable, result cache disabled", "addr", s.Config.Redis.Addr, "error", err)
		return
	}
	s.Results = cache.New(client, s.Config.Search.ResultCacheTTL)
	if s.Metrics != nil {
		s.Results.WithMetrics(s.Metrics)
	}
	slog.Info("result cache enabled", "ttl", s.Config.Search.ResultCacheTTL)
}

// initEmbedder wraps the provider in a breaker reported as a gauge, and
// caches vectors in Redis when it is reachable, in memory otherwise.
func (s *Stack) initEmbedder() error {
	cfg := s.Config.Embeddings
	s.Breaker = resilience.NewCircuitBreaker("embeddings", resilience.CircuitBreakerConfig{
		FailureThreshold:    5,
		ResetTimeout:        30 * time.Second,
		HalfOpenMaxRequests: 1,
		OnStateChange: func(name string, to resilience.State) {
			if s.Metrics != nil {
				s.Metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	base, err := embed.NewProvider(cfg, embed.WithBreaker(s.Breaker))
	if err != nil {
		return err
	}
	if !cfg.Cache {
		s.Embedder = base
		return nil
	}

	var vectors embed.Cache
	client, err := s.ConnectRedis()
	if err != nil {
		slog.Warn("redis unavailable, caching embeddings in memory", "addr", s.Config.Redis.Addr, "error", err)
		vectors = embed.NewMemoryCache(memoryCacheEntries)
	} else {
		vectors = embed.NewRedisCache(client, s.Config.Redis.CacheTTL)
		slog.Info("embedding cache enabled", "addr", s.Config.Redis.Addr, "ttl", s.Config.Redis.CacheTTL)
	}
	var opts []embed.CachedOption
	if s.Metrics != nil {
		opts = append(opts, embed.WithCacheMetrics(s.Metrics))
	}
	s.Embedder = embed.NewCachedEmbedder(base, vectors, opts...)
	return nil
}

// RegisterHealth adds readiness checks for the index and every backing
// service in use. Only an empty index takes the service down.
func (s *Stack) RegisterHealth(checker *health.Checker) {
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		stats := s.Searcher.Stats()
		if stats.Documents == 0 {
			return health.ComponentHealth{Status: health.StatusDown, Message: "index is empty"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents, %d terms", stats.Documents, stats.Terms),
		}
	})
	checker.Register("embeddings", func(ctx context.Context) health.ComponentHealth {
		snap := s.Breaker.Snapshot()
		switch snap.State {
		case resilience.StateOpen:
			return health.ComponentHealth{
				Status:  health.StatusDegraded,
				Message: fmt.Sprintf("circuit open after %d failures, probe in %v", snap.ConsecutiveFailures, snap.RetryIn.Round(time.Second)),
			}
		case resilience.StateHalfOpen:
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit half-open, probing"}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if s.Postgres != nil {
		checker.Register("postgres", health.PingCheck(pinger("postgres", s.Postgres.Ping), health.StatusDegraded))
	}
	if s.Redis != nil {
		checker.Register("redis", health.PingCheck(pinger("redis", s.Redis.Ping), health.StatusDegraded))
	}
}

func pinger(name string, ping func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return resilience.WithTimeout(ctx, pingTimeout, name+" ping", ping)
	}
}

// Close releases connections in reverse order of acquisition.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
