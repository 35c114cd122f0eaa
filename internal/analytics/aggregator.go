package analytics

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	// maxLatencySamples bounds the ring used for percentiles.
	maxLatencySamples = 10000
	// maxTrackedQueries bounds each query counter; singletons are pruned
	// when it is exceeded.
	maxTrackedQueries = 50000
	// DefaultTopQueries is how many queries Stats lists.
	DefaultTopQueries = 10
)

// AggregatedStats is a point-in-time summary of served queries.
type AggregatedStats struct {
	TotalSearches     int64              `json:"total_searches"`
	Failures          int64              `json:"failures"`
	ByMode            map[string]int64   `json:"by_mode"`
	AvgLatencyByMode  map[string]float64 `json:"avg_latency_by_mode_ms,omitempty"`
	ZeroResultCount   int64              `json:"zero_result_count"`
	AvgLatencyMs      float64            `json:"avg_latency_ms"`
	P50LatencyMs      int64              `json:"p50_latency_ms"`
	P95LatencyMs      int64              `json:"p95_latency_ms"`
	P99LatencyMs      int64              `json:"p99_latency_ms"`
	TopQueries        []QueryCount       `json:"top_queries"`
	ZeroResultQueries []QueryCount       `json:"zero_result_queries"`
	QueriesPerMinute  float64            `json:"queries_per_minute"`
	CapturedAt        time.Time          `json:"captured_at"`
}

// QueryCount pairs a query with how often it was seen.
type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type modeTotals struct {
	searches  int64
	succeeded int64
	latencyMs int64
}

// Aggregator folds search events into running totals. Queries are counted
// case- and whitespace-insensitively, so "Star  Wars" and "star wars" share
// a row.
type Aggregator struct {
	mu          sync.Mutex
	total       int64
	failures    int64
	zeroResults int64
	modes       map[string]*modeTotals
	latencies   ring
	queries     map[string]int64
	zeroQueries map[string]int64
	startTime   time.Time
	now         func() time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		modes:       make(map[string]*modeTotals),
		latencies:   ring{buf: make([]int64, 0, 1024)},
		queries:     make(map[string]int64),
		zeroQueries: make(map[string]int64),
		startTime:   time.Now(),
		now:         time.Now,
	}
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// Record adds one event. Failed searches count toward totals and the mode
// mix only.
func (a *Aggregator) Record(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	mt := a.modes[event.Mode]
	if mt == nil {
		mt = &modeTotals{}
		a.modes[event.Mode] = mt
	}
	mt.searches++
	if event.Failed {
		a.failures++
		return
	}
	mt.succeeded++
	mt.latencyMs += event.LatencyMs
	a.latencies.add(event.LatencyMs)

	q := normalizeQuery(event.Query)
	bump(a.queries, q)
	if event.Returned == 0 {
		a.zeroResults++
		bump(a.zeroQueries, q)
	}
}

func bump(counts map[string]int64, q string) {
	counts[q]++
	if len(counts) <= maxTrackedQueries {
		return
	}
	for k, n := range counts {
		if n == 1 && k != q {
			delete(counts, k)
		}
	}
}

// Stats summarises with DefaultTopQueries rows per query list.
func (a *Aggregator) Stats() AggregatedStats {
	return a.Summary(DefaultTopQueries)
}

// Summary summarises with up to top rows per query list.
func (a *Aggregator) Summary(top int) AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	stats := AggregatedStats{
		TotalSearches:     a.total,
		Failures:          a.failures,
		ByMode:            make(map[string]int64, len(a.modes)),
		AvgLatencyByMode:  make(map[string]float64, len(a.modes)),
		ZeroResultCount:   a.zeroResults,
		TopQueries:        topN(a.queries, top),
		ZeroResultQueries: topN(a.zeroQueries, top),
		CapturedAt:        now.UTC(),
	}
	for mode, mt := range a.modes {
		stats.ByMode[mode] = mt.searches
		if mt.succeeded > 0 {
			stats.AvgLatencyByMode[mode] = float64(mt.latencyMs) / float64(mt.succeeded)
		}
	}
	if sorted := a.latencies.sorted(); len(sorted) > 0 {
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	if minutes := now.Sub(a.startTime).Minutes(); minutes > 0 {
		stats.QueriesPerMinute = float64(a.total) / minutes
	}
	return stats
}

// ring keeps the most recent maxLatencySamples values.
type ring struct {
	buf  []int64
	next int
}

func (r *ring) add(v int64) {
	if len(r.buf) < maxLatencySamples {
		r.buf = append(r.buf, v)
		return
	}
	r.buf[r.next] = v
	r.next = (r.next + 1) % maxLatencySamples
}

func (r *ring) sorted() []int64 {
	out := slices.Clone(r.buf)
	slices.Sort(out)
	return out
}

// percentile picks sorted[pct*n/100], clamped to the last element.
func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[min(pct*len(sorted)/100, len(sorted)-1)]
}

// topN orders by count descending, then query ascending.
func topN(counts map[string]int64, n int) []QueryCount {
	out := make([]QueryCount, 0, len(counts))
	for q, c := range counts {
		out = append(out, QueryCount{Query: q, Count: c})
	}
	slices.SortFunc(out, func(a, b QueryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Query, b.Query)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
