package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/redis"
)

const keyPrefix = "embed:"

// Cache stores vectors by key. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// BatchCache is a Cache that can look up and store many vectors in one
// round trip. CachedEmbedder prefers it when available.
type BatchCache interface {
	Cache
	GetMany(ctx context.Context, keys []string) ([][]float32, error)
	SetMany(ctx context.Context, vecs map[string][]float32) error
}

// CacheKey identifies text under model at the given vector size.
func CacheKey(model string, dims int, text string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + model + "\x00" + strconv.Itoa(dims)))
	return fmt.Sprintf("%s%x", keyPrefix, sum[:16])
}

// CachedEmbedder serves vectors from a cache and embeds only the misses.
// Concurrent requests for the same single text share one upstream call.
// Cache failures are logged and treated as misses.
type CachedEmbedder struct {
	base    Embedder
	cache   Cache
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// CachedOption customises a CachedEmbedder.
type CachedOption func(*CachedEmbedder)

// WithCacheMetrics counts hits and misses into m.
func WithCacheMetrics(m *metrics.Metrics) CachedOption {
	return func(c *CachedEmbedder) { c.metrics = m }
}

// NewCachedEmbedder wraps base with cache.
func NewCachedEmbedder(base Embedder, cache Cache, opts ...CachedOption) *CachedEmbedder {
	c := &CachedEmbedder{
		base:   base,
		cache:  cache,
		logger: slog.Default().With("component", "embedding-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedEmbedder) ModelName() string { return c.base.ModelName() }

func (c *CachedEmbedder) Dimensions() int { return c.base.Dimensions() }

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	missIdx := make(map[string][]int)
	var missTexts []string
	var missKeys []string

	for i, text := range texts {
		keys[i] = CacheKey(c.base.ModelName(), c.base.Dimensions(), text)
	}
	cached := c.lookup(ctx, keys)
	for i, text := range texts {
		key := keys[i]
		if cached[i] != nil {
			out[i] = cached[i]
			c.hit()
			continue
		}
		c.miss()
		if _, seen := missIdx[key]; !seen {
			missTexts = append(missTexts, text)
			missKeys = append(missKeys, key)
		}
		missIdx[key] = append(missIdx[key], i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	var fresh [][]float32
	if len(missTexts) == 1 {
		v, err, _ := c.group.Do(missKeys[0], func() (interface{}, error) {
			return c.base.Embed(ctx, missTexts)
		})
		if err != nil {
			return nil, err
		}
		fresh = v.([][]float32)
	} else {
		v, err := c.base.Embed(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		fresh = v
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("embedder %s returned %d vectors for %d inputs", c.base.ModelName(), len(fresh), len(missTexts))
	}

	store := make(map[string][]float32, len(missKeys))
	for j, key := range missKeys {
		for _, i := range missIdx[key] {
			out[i] = fresh[j]
		}
		store[key] = fresh[j]
	}
	c.store(ctx, store)
	return out, nil
}

// lookup returns one entry per key, nil for misses and failed reads.
func (c *CachedEmbedder) lookup(ctx context.Context, keys []string) [][]float32 {
	if bc, ok := c.cache.(BatchCache); ok && len(keys) > 1 {
		vecs, err := bc.GetMany(ctx, keys)
		if err == nil {
			return vecs
		}
		c.logger.Warn("batch cache get failed", "keys", len(keys), "error", err)
		return make([][]float32, len(keys))
	}
	out := make([][]float32, len(keys))
	for i, key := range keys {
		vec, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		if ok {
			out[i] = vec
		}
	}
	return out
}

func (c *CachedEmbedder) store(ctx context.Context, vecs map[string][]float32) {
	if bc, ok := c.cache.(BatchCache); ok && len(vecs) > 1 {
		if err := bc.SetMany(ctx, vecs); err != nil {
			c.logger.Warn("batch cache set failed", "keys", len(vecs), "error", err)
		}
		return
	}
	for key, vec := range vecs {
		if err := c.cache.Set(ctx, key, vec); err != nil {
			c.logger.Warn("cache set failed", "key", key, "error", err)
		}
	}
}

func (c *CachedEmbedder) hit() {
	if c.metrics != nil {
		c.metrics.EmbeddingCacheHits.Inc()
	}
}

func (c *CachedEmbedder) miss() {
	if c.metrics != nil {
		c.metrics.EmbeddingCacheMisses.Inc()
	}
}

// DefaultMemoryEntries bounds a MemoryCache created with maxEntries ≤ 0.
const DefaultMemoryEntries = 10000

// MemoryCache is an in-process Cache that evicts the least recently used
// vector once maxEntries is reached.
type MemoryCache struct {
	entries *lru.Cache[string, []float32]
}

func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryEntries
	}
	entries, _ := lru.New[string, []float32](maxEntries)
	return &MemoryCache{entries: entries}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	vec, ok := m.entries.Get(key)
	return vec, ok, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, vec []float32) error {
	m.entries.Add(key, vec)
	return nil
}

// Len returns the number of cached vectors.
func (m *MemoryCache) Len() int {
	return m.entries.Len()
}

// RedisCache stores vectors in Redis as little-endian float32 arrays.
type RedisCache struct {
	client *pkgredis.Client
	ttl    time.Duration
}

// NewRedisCache creates a cache whose entries expire after ttl.
func NewRedisCache(client *pkgredis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := r.client.GetBytes(ctx, key)
	if err != nil {
		if pkgredis.IsNilError(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	vec, err := decodeVector(data)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, vec []float32) error {
	return r.client.SetBytes(ctx, key, encodeVector(vec), r.ttl)
}

// GetMany reads all keys with one MGET. Entries that fail to decode are
// treated as misses.
func (r *RedisCache) GetMany(ctx context.Context, keys []string) ([][]float32, error) {
	raw, err := r.client.MGetBytes(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(keys))
	for i, data := range raw {
		if data == nil {
			continue
		}
		if vec, err := decodeVector(data); err == nil {
			out[i] = vec
		}
	}
	return out, nil
}

// SetMany pipelines the writes.
func (r *RedisCache) SetMany(ctx context.Context, vecs map[string][]float32) error {
	values := make(map[string][]byte, len(vecs))
	for k, v := range vecs {
		values[k] = encodeVector(v)
	}
	return r.client.SetManyBytes(ctx, values, r.ttl)
}

// Invalidate removes every cached vector.
func (r *RedisCache) Invalidate(ctx context.Context) (int64, error) {
	return r.client.FlushByPrefix(ctx, keyPrefix)
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("cached vector has %d bytes, not a multiple of 4", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vec, nil
}
