// Package store keeps a PostgreSQL history of aggregated query stats so
// totals survive restarts of the analytics service.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS search_stats_snapshots (
	id             BIGSERIAL PRIMARY KEY,
	total_searches BIGINT NOT NULL DEFAULT 0,
	data           JSONB NOT NULL,
	captured_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
ALTER TABLE search_stats_snapshots ADD COLUMN IF NOT EXISTS total_searches BIGINT NOT NULL DEFAULT 0;
CREATE INDEX IF NOT EXISTS search_stats_snapshots_captured_at
	ON search_stats_snapshots (captured_at DESC);`

// Store reads and writes stats snapshots.
type Store struct {
	db        *postgres.Client
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRetention makes Run delete snapshots older than d; 0 keeps all.
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// New creates the table and index when absent.
func New(ctx context.Context, db *postgres.Client, opts ...Option) (*Store, error) {
	if _, err := db.DB.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating search_stats_snapshots: %w", err)
	}
	s := &Store{
		db:     db,
		now:    time.Now,
		logger: slog.Default().With("component", "stats-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding stats snapshot: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO search_stats_snapshots (total_searches, data, captured_at) VALUES ($1, $2, $3)`,
		stats.TotalSearches, data, stats.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting stats snapshot: %w", err)
	}
	s.logger.Debug("stats snapshot saved", "total_searches", stats.TotalSearches)
	return nil
}

// Latest returns the newest snapshot, or nil when there is none.
func (s *Store) Latest(ctx context.Context) (*analytics.AggregatedStats, error) {
	history, err := s.History(ctx, 1)
	if err != nil || len(history) == 0 {
		return nil, err
	}
	return &history[0], nil
}

// History returns up to limit snapshots, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]analytics.AggregatedStats, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data FROM search_stats_snapshots ORDER BY captured_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying stats history: %w", err)
	}
	defer rows.Close()

	var out []analytics.AggregatedStats
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning stats snapshot: %w", err)
		}
		var stats analytics.AggregatedStats
		if err := json.Unmarshal(data, &stats); err != nil {
			return nil, fmt.Errorf("decoding stats snapshot: %w", err)
		}
		out = append(out, stats)
	}
	return out, rows.Err()
}

// Prune deletes snapshots captured before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.DB.ExecContext(ctx, `DELETE FROM search_stats_snapshots WHERE captured_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning stats snapshots: %w", err)
	}
	return res.RowsAffected()
}

// Run snapshots agg every interval until ctx ends, then writes a final
// one. Ticks with no new searches since the last write are skipped.
func (s *Store) Run(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info("periodic stats snapshots started", "interval", interval, "retention", s.retention)

	saved := int64(-1)
	save := func(ctx context.Context) {
		stats := agg.Stats()
		if stats.TotalSearches == saved {
			return
		}
		if err := s.SaveSnapshot(ctx, stats); err != nil {
			s.logger.Error("stats snapshot failed", "error", err)
			return
		}
		saved = stats.TotalSearches
	}

	for {
		select {
		case <-ticker.C:
			save(ctx)
			s.prune(ctx)
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			save(finalCtx)
			cancel()
			return
		}
	}
}

func (s *Store) prune(ctx context.Context) {
	if s.retention <= 0 {
		return
	}
	n, err := s.Prune(ctx, s.now().Add(-s.retention))
	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		s.logger.Warn("pruning stats snapshots failed", "error", err)
	case n > 0:
		s.logger.Info("pruned old stats snapshots", "deleted", n)
	}
}
