package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/metrics"
)

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	fail error
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *memBackend) GetBytes(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	v, ok := m.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (m *memBackend) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memBackend) FlushByPrefix(ctx context.Context, prefix string) (int64, error) {
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

type hit struct {
	DocID int     `json:"doc_id"`
	Score float64 `json:"score"`
}

func TestKey(t *testing.T) {
	base := Key("rrf", "Grizzly  Bear", 5, 60)
	assert.True(t, strings.HasPrefix(base, "results:rrf:"))
	assert.Equal(t, base, Key("rrf", "grizzly bear", 5, 60))
	assert.NotEqual(t, base, Key("rrf", "bear grizzly", 5, 60))
	assert.NotEqual(t, base, Key("rrf", "grizzly bear", 6, 60))
	assert.NotEqual(t, base, Key("rrf", "grizzly bear", 5, 61))
	assert.NotEqual(t, base, Key("weighted", "grizzly bear", 5, 60))
}

func TestGetOrCompute(t *testing.T) {
	backend := newMemBackend()
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	c := New(backend, time.Minute).WithMetrics(m)
	ctx := context.Background()
	key := Key("bm25", "bear", 2)

	calls := 0
	compute := func() ([]hit, error) {
		calls++
		return []hit{{DocID: 2, Score: 1.5}, {DocID: 1, Score: 0.7}}, nil
	}

	got, cached, err := GetOrCompute(ctx, c, key, compute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Len(t, got, 2)
	assert.Equal(t, time.Minute, backend.ttls[key])

	got, cached, err = GetOrCompute(ctx, c, key, compute)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, []hit{{DocID: 2, Score: 1.5}, {DocID: 1, Score: 0.7}}, got)
	assert.Equal(t, 1, calls)

	hits, _ := c.Stats()
	assert.EqualValues(t, 1, hits)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResultCacheRequests.WithLabelValues("hit")))
}

func TestComputeErrorNotCached(t *testing.T) {
	backend := newMemBackend()
	c := New(backend, time.Minute)
	key := Key("rrf", "bear", 5, 60)

	_, _, err := GetOrCompute(context.Background(), c, key, func() ([]hit, error) {
		return nil, errors.New("embedder down")
	})
	assert.EqualError(t, err, "embedder down")
	assert.Empty(t, backend.data)
}

func TestBackendFailureFallsThrough(t *testing.T) {
	backend := newMemBackend()
	backend.fail = errors.New("connection refused")
	c := New(backend, time.Minute)

	got, cached, err := GetOrCompute(context.Background(), c, Key("bm25", "bear", 1), func() ([]hit, error) {
		return []hit{{DocID: 9}}, nil
	})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, []hit{{DocID: 9}}, got)
}

func TestConcurrentMissesShareCompute(t *testing.T) {
	c := New(newMemBackend(), time.Minute)
	key := Key("weighted", "shark", 3, 0.5)

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() ([]hit, error) {
		calls.Add(1)
		<-release
		return []hit{{DocID: 3}}, nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, _, err := GetOrCompute(context.Background(), c, key, compute)
			assert.NoError(t, err)
			assert.Equal(t, []hit{{DocID: 3}}, got)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestInvalidate(t *testing.T) {
	backend := newMemBackend()
	backend.data["embed:other"] = []byte("keep")
	c := New(backend, time.Minute)
	ctx := context.Background()

	_, _, err := GetOrCompute(ctx, c, Key("bm25", "bear", 1), func() ([]hit, error) { return []hit{{DocID: 1}}, nil })
	require.NoError(t, err)
	require.Len(t, backend.data, 2)

	require.NoError(t, c.Invalidate(ctx))
	assert.Len(t, backend.data, 1)
	assert.Contains(t, backend.data, "embed:other")
}
