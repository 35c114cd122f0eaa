// Package integration contains tests that run the corpus, analytics and
// embedding-cache layers against real PostgreSQL and Redis servers. Each
// test skips when its backend is unreachable.
//
// Run with:
//
//	go test -v ./test/integration/...
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/analytics/store"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/embed"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/hybrid"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/redis"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// skipIfNoPostgres skips the test when PostgreSQL is unavailable. The
// documents table is unique per test and dropped afterwards.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	cfg := config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "hybridsearch_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "hybridsearch"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		DocumentsTable:  fmt.Sprintf("documents_it_%d", time.Now().UnixNano()),
	}
	db, err := postgres.New(cfg)
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() {
		db.DB.Exec("DROP TABLE IF EXISTS " + pq.QuoteIdentifier(cfg.DocumentsTable))
		db.Close()
	})
	return db
}

func skipIfNoRedis(t *testing.T) *pkgredis.Client {
	t.Helper()
	client, err := pkgredis.NewClient(config.RedisConfig{
		Addr:     envOrDefault("TEST_REDIS_ADDR", "localhost:6379"),
		DB:       envOrDefaultInt("TEST_REDIS_DB", 15),
		PoolSize: 4,
	})
	if err != nil {
		t.Skipf("skipping integration test: redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func intPtr(v int) *int { return &v }

var movies = []index.SourceDocument{
	{ID: intPtr(1), Title: "Grizzly Man", Description: "A documentary about a man who lived among grizzly bears."},
	{ID: intPtr(2), Title: "Paddington", Description: "A polite bear from Peru moves to London."},
	{ID: nil, Title: "Broken", Description: "A record without an id."},
	{ID: intPtr(3), Title: "Jaws", Description: "A great white shark terrorises a beach town."},
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestPostgresCorpusBuildsIndex(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()

	n, err := corpus.Seed(ctx, db, db.DocumentsTable(), movies)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Seeding again upserts rather than duplicating.
	_, err = corpus.Seed(ctx, db, db.DocumentsTable(), movies[:1])
	require.NoError(t, err)

	source := corpus.NewPostgresSource(db, db.DocumentsTable())
	docs, err := source.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, 1, *docs[0].ID)

	engine := indexer.NewEngine(tokenizer.New(nil, tokenizer.SnowballStemmer{}), ranker.DefaultParams(),
		filepath.Join(t.TempDir(), "index.snap"))
	s := hybrid.New(engine, source, nil, 0)
	require.NoError(t, s.Open(ctx))
	assert.Equal(t, 3, s.Stats().Documents)

	hits, err := s.BM25Search(ctx, "bear", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 2, hits[0].DocID)
}

func TestStatsStoreRoundTrip(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()

	st, err := store.New(ctx, db)
	require.NoError(t, err)

	agg := analytics.NewAggregator()
	agg.Record(analytics.SearchEvent{Mode: "rrf", Query: "bear", Returned: 3, LatencyMs: 12, Timestamp: time.Now()})
	agg.Record(analytics.SearchEvent{Mode: "bm25", Query: "zzz", Returned: 0, LatencyMs: 4, Timestamp: time.Now()})
	stats := agg.Stats()
	require.NoError(t, st.SaveSnapshot(ctx, stats))

	latest, err := st.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, stats.TotalSearches, latest.TotalSearches)
	assert.Equal(t, stats.ZeroResultCount, latest.ZeroResultCount)

	history, err := st.History(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, stats.TotalSearches, history[0].TotalSearches)

	_, err = st.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
}

func TestPostgresAPIKeyLifecycle(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()

	keys, err := apikey.NewPostgresStore(ctx, db)
	require.NoError(t, err)
	v := apikey.NewValidator(keys)

	name := fmt.Sprintf("it-%d", time.Now().UnixNano())
	raw, err := keys.CreateKey(ctx, name, nil)
	require.NoError(t, err)

	info, err := v.Validate(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, name, info.Name)

	past := time.Now().Add(-time.Minute)
	expired, err := keys.CreateKey(ctx, name+"-old", &past)
	require.NoError(t, err)
	_, err = v.Validate(ctx, expired)
	assert.ErrorIs(t, err, apikey.ErrExpiredKey)

	require.NoError(t, keys.RevokeKey(ctx, raw))
	_, err = v.Validate(ctx, raw)
	assert.ErrorIs(t, err, apikey.ErrInvalidKey)
	assert.ErrorIs(t, keys.RevokeKey(ctx, raw), apikey.ErrInvalidKey)
	require.NoError(t, keys.RevokeKey(ctx, expired))
}

func TestRedisResultCache(t *testing.T) {
	client := skipIfNoRedis(t)
	ctx := context.Background()
	rc := cache.New(client, time.Minute)
	require.NoError(t, rc.Invalidate(ctx))

	key := cache.Key("bm25", "grizzly", 3)
	calls := 0
	compute := func() ([]index.Hit, error) {
		calls++
		return []index.Hit{{DocID: 1, Score: 2.5}}, nil
	}
	_, cached, err := cache.GetOrCompute(ctx, rc, key, compute)
	require.NoError(t, err)
	assert.False(t, cached)
	got, cached, err := cache.GetOrCompute(ctx, rc, key, compute)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 1, calls)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].DocID)

	require.NoError(t, rc.Invalidate(ctx))
	_, cached, err = cache.GetOrCompute(ctx, rc, key, compute)
	require.NoError(t, err)
	assert.False(t, cached)
}

func TestRedisEmbeddingCache(t *testing.T) {
	client := skipIfNoRedis(t)
	ctx := context.Background()

	cache := embed.NewRedisCache(client, time.Minute)
	t.Cleanup(func() { cache.Invalidate(context.Background()) })

	key := embed.CacheKey("static-hash", 3, "grizzly bear")
	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	vec := []float32{0.25, -0.5, 1}
	require.NoError(t, cache.Set(ctx, key, vec))
	got, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, vec, got)

	cached := embed.NewCachedEmbedder(embed.NewStaticEmbedder(32), cache)
	first, err := embed.EmbedOne(ctx, cached, "a polite bear")
	require.NoError(t, err)
	second, err := embed.EmbedOne(ctx, cached, "a polite bear")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	removed, err := cache.Invalidate(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, removed, int64(2))
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
