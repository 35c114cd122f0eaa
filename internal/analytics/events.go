package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/kafka"
)

// SearchEvent describes one served query.
type SearchEvent struct {
	Mode      string    `json:"mode"`
	Query     string    `json:"query"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	Failed    bool      `json:"failed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// SnapshotEvent announces that a fresh index snapshot is on disk.
type SnapshotEvent struct {
	Path      string    `json:"path"`
	Documents int       `json:"documents"`
	Terms     int       `json:"terms"`
	BuiltAt   time.Time `json:"built_at"`
}

// HandleSearchEvent feeds every decodable search event into agg. Malformed
// messages are logged and skipped.
func HandleSearchEvent(agg *Aggregator) kafka.MessageHandler {
	logger := slog.Default().With("component", "search-event-listener")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			logger.Warn("failed to decode search event", "key", string(key), "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}
