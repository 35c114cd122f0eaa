// Package cache stores ranked search results in Redis so that repeated
// queries skip scoring. Entries are keyed by mode, normalised query and every
// ranking parameter, and are dropped wholesale when the index changes.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/redis"
)

const keyPrefix = "results:"

// Backend is the byte store behind the cache. *redis.Client satisfies it.
type Backend interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPrefix(ctx context.Context, prefix string) (int64, error)
}

// ResultCache memoises ranked lists. Concurrent misses on one key share a
// single computation.
type ResultCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a ResultCache whose entries live for ttl.
func New(backend Backend, ttl time.Duration) *ResultCache {
	return &ResultCache{
		backend: backend,
		ttl:     ttl,
		logger:  slog.Default().With("component", "result-cache"),
	}
}

// WithMetrics counts hits and misses on m.
func (c *ResultCache) WithMetrics(m *metrics.Metrics) *ResultCache {
	c.metrics = m
	return c
}

// Key identifies one ranked list. Queries that differ only in case or
// whitespace share a key; word order is kept since embeddings depend on it.
func Key(mode, query string, limit int, params ...float64) string {
	var b strings.Builder
	b.WriteString(mode)
	b.WriteByte('|')
	b.WriteString(normalizeQuery(query))
	b.WriteString("|limit=")
	b.WriteString(strconv.Itoa(limit))
	for _, p := range params {
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(p, 'g', -1, 64))
	}
	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s%s:%x", keyPrefix, mode, hash[:16])
}

// GetOrCompute returns the cached value at key, or runs compute, stores its
// result and returns it. The bool reports a cache hit. Backend failures are
// logged and treated as misses; compute errors are returned and not cached.
func GetOrCompute[T any](ctx context.Context, c *ResultCache, key string, compute func() (T, error)) (T, bool, error) {
	if v, ok := get[T](ctx, c, key); ok {
		return v, true, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := get[T](ctx, c, key); ok {
			return v, nil
		}
		v, err := compute()
		if err != nil {
			return v, err
		}
		c.set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return val.(T), false, nil
}

// Invalidate drops every cached list.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushByPrefix(ctx, keyPrefix)
	if err != nil {
		return fmt.Errorf("invalidating result cache: %w", err)
	}
	c.logger.Info("result cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns hit and miss counts since creation.
func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func get[T any](ctx context.Context, c *ResultCache, key string) (T, bool) {
	var v T
	data, err := c.backend.GetBytes(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.record(false)
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.record(false)
		return v, false
	}
	c.record(true)
	return v, true
}

func (c *ResultCache) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.SetBytes(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *ResultCache) record(hit bool) {
	outcome := "miss"
	if hit {
		c.hits.Add(1)
		outcome = "hit"
	} else {
		c.misses.Add(1)
	}
	if c.metrics != nil {
		c.metrics.ResultCacheRequests.WithLabelValues(outcome).Inc()
	}
}

func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
