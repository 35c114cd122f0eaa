package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	single  []kafka.Event
}

func (f *fakePublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]kafka.Event(nil), events...))
	return nil
}

func (f *fakePublisher) Publish(ctx context.Context, event kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.single = append(f.single, event)
	return nil
}

func (f *fakePublisher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestCollectorBatchesAndAggregates(t *testing.T) {
	pub := &fakePublisher{}
	agg := NewAggregator()
	c := NewCollector(pub, agg, CollectorConfig{BufferSize: 16, BatchSize: 2, FlushInterval: time.Hour})
	c.Start(context.Background())

	c.Track(SearchEvent{Mode: "rrf", Query: "bear", Returned: 3, LatencyMs: 10})
	c.Track(SearchEvent{Mode: "rrf", Query: "bear", Returned: 2, LatencyMs: 20})
	c.Track(SearchEvent{Mode: "bm25", Query: "nothing", Returned: 0, LatencyMs: 5})
	c.Close()

	assert.Equal(t, 3, pub.total())
	require.NotEmpty(t, pub.batches)
	assert.Len(t, pub.batches[0], 2)
	assert.Equal(t, "rrf", pub.batches[0][0].Key)

	stats := agg.Stats()
	assert.EqualValues(t, 3, stats.TotalSearches)
	assert.EqualValues(t, 2, stats.ByMode["rrf"])
	assert.EqualValues(t, 1, stats.ZeroResultCount)
	require.NotEmpty(t, stats.TopQueries)
	assert.Equal(t, QueryCount{Query: "bear", Count: 2}, stats.TopQueries[0])
	assert.Equal(t, []QueryCount{{Query: "nothing", Count: 1}}, stats.ZeroResultQueries)
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(nil, nil, CollectorConfig{BufferSize: 1})
	c.Track(SearchEvent{Query: "a"})
	c.Track(SearchEvent{Query: "b"})
	assert.EqualValues(t, 1, c.Dropped())
}

func TestCollectorFlushesOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	c := NewCollector(pub, nil, CollectorConfig{BatchSize: 100, FlushInterval: time.Hour})
	c.Track(SearchEvent{Query: "queued before start"})
	c.Start(ctx)
	cancel()
	<-c.done
	assert.Equal(t, 1, pub.total())
}

func TestAggregatorLatencyAndFailures(t *testing.T) {
	agg := NewAggregator()
	base := time.Unix(0, 0)
	agg.startTime = base
	agg.now = func() time.Time { return base.Add(2 * time.Minute) }

	for i := 1; i <= 100; i++ {
		agg.Record(SearchEvent{Mode: "weighted", Query: "q", Returned: 1, LatencyMs: int64(i)})
	}
	agg.Record(SearchEvent{Mode: "weighted", Query: "q", Failed: true})

	stats := agg.Stats()
	assert.EqualValues(t, 101, stats.TotalSearches)
	assert.EqualValues(t, 1, stats.Failures)
	assert.InDelta(t, 50.5, stats.AvgLatencyMs, 1e-9)
	assert.EqualValues(t, 51, stats.P50LatencyMs)
	assert.EqualValues(t, 96, stats.P95LatencyMs)
	assert.EqualValues(t, 100, stats.P99LatencyMs)
	assert.InDelta(t, 50.5, stats.QueriesPerMinute, 1e-9)
}

func TestStatsHandler(t *testing.T) {
	agg := NewAggregator()
	agg.Record(SearchEvent{Mode: "bm25", Query: "x", Returned: 1})
	rec := httptest.NewRecorder()
	NewHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.TotalSearches)
}

type fakeReloader struct {
	calls int
	err   error
}

func (f *fakeReloader) Reload(ctx context.Context) error {
	f.calls++
	return f.err
}

func TestHandleSnapshotEvent(t *testing.T) {
	r := &fakeReloader{}
	h := HandleSnapshotEvent(r, "cache/index.snap")

	value, err := json.Marshal(SnapshotEvent{Path: "cache/index.snap", Documents: 3})
	require.NoError(t, err)
	require.NoError(t, h(context.Background(), nil, value))
	assert.Equal(t, 1, r.calls)

	other, _ := json.Marshal(SnapshotEvent{Path: "elsewhere.snap"})
	require.NoError(t, h(context.Background(), nil, other))
	assert.Equal(t, 1, r.calls)

	require.NoError(t, h(context.Background(), nil, []byte("garbage")))

	r.err = errors.New("disk gone")
	assert.EqualError(t, h(context.Background(), nil, value), "disk gone")
}

func TestAnnounceSnapshot(t *testing.T) {
	pub := &fakePublisher{}
	require.NoError(t, AnnounceSnapshot(context.Background(), pub, SnapshotEvent{Path: "p", Documents: 2}))
	require.Len(t, pub.single, 1)
	assert.Equal(t, "p", pub.single[0].Key)
	ev := pub.single[0].Value.(SnapshotEvent)
	assert.False(t, ev.BuiltAt.IsZero())
}

func TestHandleSearchEvent(t *testing.T) {
	agg := NewAggregator()
	h := HandleSearchEvent(agg)

	value, err := json.Marshal(SearchEvent{Mode: "rrf", Query: "bear", Returned: 2, LatencyMs: 7})
	require.NoError(t, err)
	require.NoError(t, h(context.Background(), []byte("bear"), value))
	require.NoError(t, h(context.Background(), nil, []byte("{not json")))

	stats := agg.Stats()
	assert.EqualValues(t, 1, stats.TotalSearches)
	require.NotEmpty(t, stats.TopQueries)
	assert.Equal(t, "bear", stats.TopQueries[0].Query)
}

func TestAggregatorNormalisesQueriesAndSplitsModes(t *testing.T) {
	agg := NewAggregator()
	agg.Record(SearchEvent{Mode: "bm25", Query: "Star  Wars", Returned: 4, LatencyMs: 2})
	agg.Record(SearchEvent{Mode: "rrf", Query: " star wars", Returned: 4, LatencyMs: 30})
	agg.Record(SearchEvent{Mode: "rrf", Query: "star wars", Returned: 4, LatencyMs: 50})
	agg.Record(SearchEvent{Mode: "rrf", Query: "x", Failed: true})

	stats := agg.Summary(1)
	assert.Equal(t, []QueryCount{{Query: "star wars", Count: 3}}, stats.TopQueries)
	assert.InDelta(t, 2.0, stats.AvgLatencyByMode["bm25"], 1e-9)
	assert.InDelta(t, 40.0, stats.AvgLatencyByMode["rrf"], 1e-9)
	assert.EqualValues(t, 3, stats.ByMode["rrf"])
}

func TestStatsHandlerTopParam(t *testing.T) {
	agg := NewAggregator()
	for _, q := range []string{"a", "b", "c"} {
		agg.Record(SearchEvent{Mode: "bm25", Query: q, Returned: 1})
	}
	h := NewHandler(agg)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Len(t, stats.TopQueries, 2)

	for _, bad := range []string{"0", "101", "many"} {
		rec = httptest.NewRecorder()
		h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

type fakeHistory struct {
	snaps []AggregatedStats
	err   error
	limit int
}

func (f *fakeHistory) History(ctx context.Context, limit int) ([]AggregatedStats, error) {
	f.limit = limit
	return f.snaps, f.err
}

func TestHistoryHandler(t *testing.T) {
	get := func(h *Handler, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.History(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusNotFound, get(NewHandler(NewAggregator()), "/api/v1/analytics/history").Code)

	src := &fakeHistory{snaps: []AggregatedStats{{TotalSearches: 9}, {TotalSearches: 4}}}
	h := NewHandler(NewAggregator()).WithHistory(src)
	rec := get(h, "/api/v1/analytics/history?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, src.limit)
	var body struct {
		Snapshots []AggregatedStats `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Snapshots, 2)
	assert.EqualValues(t, 9, body.Snapshots[0].TotalSearches)

	get(h, "/api/v1/analytics/history")
	assert.Equal(t, defaultHistoryLen, src.limit)
	assert.Equal(t, http.StatusBadRequest, get(h, "/api/v1/analytics/history?limit=0").Code)

	src.err = errors.New("relation does not exist")
	assert.Equal(t, http.StatusInternalServerError, get(h, "/api/v1/analytics/history").Code)
}
