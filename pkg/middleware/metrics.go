// Package middleware holds the HTTP wrappers shared by the searcher and
// analytics services: request IDs, Prometheus metrics, timeouts, CORS and
// per-client rate limiting.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/metrics"
)

// Metrics counts requests by method, route and status, observes their
// latency and tracks how many are in flight.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			route := routeLabel(r.URL.Path)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.code())).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		})
	}
}

// statusRecorder remembers the first status written; a handler that only
// calls Write answered 200.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

// parameterised routes, by prefix
var routeTemplates = []struct{ prefix, label string }{
	{"/api/v1/documents/", "/api/v1/documents/{id}"},
	{"/api/v1/terms/", "/api/v1/terms/{metric}"},
}

// routeLabel keeps the route label bounded: path parameters collapse to
// their template and paths outside /api and /health share one label.
func routeLabel(path string) string {
	for _, t := range routeTemplates {
		if strings.HasPrefix(path, t.prefix) {
			return t.label
		}
	}
	if strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/health/") {
		return path
	}
	return "other"
}
