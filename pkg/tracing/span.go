// Package tracing times the stages of a search request. A root span is
// opened per request and each stage (BM25 scan, semantic ranking, fusion)
// hangs a child span off it through the context. Sampled trees are written
// to slog one line per span, with microsecond durations since most stages
// finish well under a millisecond.
package tracing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"
)

type contextKey string

const spanKey contextKey = "trace_span"

// Span is one timed stage. It is safe for concurrent use.
type Span struct {
	Name    string
	TraceID string
	Start   time.Time

	mu       sync.Mutex
	duration time.Duration
	ended    bool
	attrs    map[string]any
	err      error
	children []*Span
}

// Record is the flattened, loggable form of one span.
type Record struct {
	TraceID  string
	Path     string
	Depth    int
	Duration time.Duration
	Attrs    map[string]any
	Err      error
}

// StartSpan opens a root span and stores it in the returned context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := newSpan(name, traceID)
	return context.WithValue(ctx, spanKey, span), span
}

// StartChildSpan opens a span under the one in ctx. Without a parent the
// span is still usable but belongs to no tree.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	var traceID string
	if parent != nil {
		traceID = parent.TraceID
	}
	child := newSpan(name, traceID)
	if parent != nil {
		parent.mu.Lock()
		parent.children = append(parent.children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey, child), child
}

func newSpan(name, traceID string) *Span {
	return &Span{
		Name:    name,
		TraceID: traceID,
		Start:   time.Now(),
		attrs:   make(map[string]any),
	}
}

// SpanFromContext returns the innermost span in ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey).(*Span)
	return span
}

// End fixes the span's duration. Later calls are ignored.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.duration = time.Since(s.Start)
}

// Duration is zero until End is called.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// SetAttr attaches a key-value attribute.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs[key] = value
	s.mu.Unlock()
}

// Fail marks the span as failed with err; nil is ignored.
func (s *Span) Fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Records flattens the tree depth-first. Path joins span names with "/".
func (s *Span) Records() []Record {
	var out []Record
	s.collect(nil, 0, &out)
	return out
}

func (s *Span) collect(path []string, depth int, out *[]Record) {
	s.mu.Lock()
	path = append(path, s.Name)
	attrs := make(map[string]any, len(s.attrs))
	for k, v := range s.attrs {
		attrs[k] = v
	}
	rec := Record{
		TraceID:  s.TraceID,
		Path:     strings.Join(path, "/"),
		Depth:    depth,
		Duration: s.duration,
		Attrs:    attrs,
		Err:      s.err,
	}
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	*out = append(*out, rec)
	for _, c := range children {
		c.collect(path, depth+1, out)
	}
}

// Log writes one line per span to logger, or slog.Default when nil.
func (s *Span) Log(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, rec := range s.Records() {
		args := []any{
			"trace_id", rec.TraceID,
			"span", rec.Path,
			"depth", rec.Depth,
			"duration_us", rec.Duration.Microseconds(),
		}
		keys := make([]string, 0, len(rec.Attrs))
		for k := range rec.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			args = append(args, k, rec.Attrs[k])
		}
		if rec.Err != nil {
			args = append(args, "error", rec.Err)
		}
		logger.Info("span", args...)
	}
}

// Sampler picks which traces get logged.
type Sampler struct {
	rate  float64
	float func() float64
}

// NewSampler logs a rate fraction of traces; disabled samplers log none.
func NewSampler(enabled bool, rate float64) *Sampler {
	if !enabled {
		rate = 0
	}
	return &Sampler{rate: rate, float: rand.Float64}
}

// Sample reports whether the current trace should be logged. A nil
// Sampler never samples.
func (s *Sampler) Sample() bool {
	if s == nil || s.rate <= 0 {
		return false
	}
	return s.rate >= 1 || s.float() < s.rate
}
