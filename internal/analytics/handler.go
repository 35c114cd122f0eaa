package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

const (
	maxTopQueries     = 100
	defaultHistoryLen = 24
	maxHistoryLen     = 1000
)

// HistorySource lists persisted snapshots, newest first.
type HistorySource interface {
	History(ctx context.Context, limit int) ([]AggregatedStats, error)
}

// Handler serves the aggregated stats over HTTP.
type Handler struct {
	aggregator *Aggregator
	history    HistorySource
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// WithHistory enables the History endpoint.
func (h *Handler) WithHistory(src HistorySource) *Handler {
	h.history = src
	return h
}

// Stats handles GET /api/v1/analytics. The optional top parameter sets how
// many top and zero-result queries are listed, between 1 and 100.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	top := DefaultTopQueries
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTopQueries {
			h.write(w, http.StatusBadRequest, map[string]string{"error": "top must be an integer between 1 and 100"})
			return
		}
		top = n
	}
	h.write(w, http.StatusOK, h.aggregator.Summary(top))
}

// History handles GET /api/v1/analytics/history?limit=N, listing persisted
// snapshots newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.write(w, http.StatusNotFound, map[string]string{"error": "stats history is not persisted"})
		return
	}
	limit := defaultHistoryLen
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLen {
			h.write(w, http.StatusBadRequest, map[string]string{"error": "limit must be an integer between 1 and 1000"})
			return
		}
		limit = n
	}
	snapshots, err := h.history.History(r.Context(), limit)
	if err != nil {
		h.logger.Error("reading stats history failed", "error", err)
		h.write(w, http.StatusInternalServerError, map[string]string{"error": "stats history unavailable"})
		return
	}
	if snapshots == nil {
		snapshots = []AggregatedStats{}
	}
	h.write(w, http.StatusOK, map[string]any{"snapshots": snapshots})
}

func (h *Handler) write(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
