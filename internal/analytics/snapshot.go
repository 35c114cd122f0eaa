package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/kafka"
)

// Reloader swaps in the snapshot currently on disk.
type Reloader interface {
	Reload(ctx context.Context) error
}

// SnapshotPublisher sends one event.
type SnapshotPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// AnnounceSnapshot publishes event keyed by snapshot path.
func AnnounceSnapshot(ctx context.Context, p SnapshotPublisher, event SnapshotEvent) error {
	if event.BuiltAt.IsZero() {
		event.BuiltAt = time.Now().UTC()
	}
	return p.Publish(ctx, kafka.Event{Key: event.Path, Value: event})
}

// HandleSnapshotEvent reloads the index for every announcement whose path
// matches snapshotPath; other paths are ignored. Undecodable messages are
// logged and skipped so the consumer can commit past them.
func HandleSnapshotEvent(r Reloader, snapshotPath string) kafka.MessageHandler {
	logger := slog.Default().With("component", "snapshot-listener")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[SnapshotEvent](value)
		if err != nil {
			logger.Error("failed to decode snapshot event", "error", err)
			return nil
		}
		if event.Path != snapshotPath {
			logger.Debug("ignoring snapshot for another path", "path", event.Path)
			return nil
		}
		if err := r.Reload(ctx); err != nil {
			return err
		}
		logger.Info("reloaded index after snapshot announcement",
			"documents", event.Documents,
			"terms", event.Terms,
			"built_at", event.BuiltAt,
		)
		return nil
	}
}
