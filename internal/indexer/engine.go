// Package indexer ties the inverted index to its on-disk snapshot. The
// Engine builds, saves and loads the four index tables as one unit.
package indexer

import (
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/ranker"
)

// Engine is an inverted index bound to a snapshot path. It holds no locks;
// callers that share an Engine across goroutines synchronise externally.
type Engine struct {
	*index.InvertedIndex
	snapshotPath string
	logger       *slog.Logger
}

// NewEngine creates an empty engine whose snapshot lives at snapshotPath.
func NewEngine(tok *tokenizer.Tokenizer, params ranker.Params, snapshotPath string) *Engine {
	return &Engine{
		InvertedIndex: index.New(tok, params),
		snapshotPath:  snapshotPath,
		logger:        slog.Default().With("component", "indexer"),
	}
}

// Build replaces the index contents with docs.
func (e *Engine) Build(docs []index.SourceDocument) index.BuildStats {
	start := time.Now()
	stats := e.InvertedIndex.Build(docs)
	e.logger.Info("index built",
		"indexed", stats.Indexed,
		"skipped", stats.Skipped,
		"duplicates", stats.Duplicates,
		"terms", stats.Terms,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return stats
}

// Save writes all four tables to the snapshot path in one atomic commit.
func (e *Engine) Save() (segment.Header, error) {
	header, err := segment.Write(e.snapshotPath, e.Export())
	if err != nil {
		return segment.Header{}, err
	}
	e.logger.Info("snapshot saved",
		"path", e.snapshotPath,
		"documents", header.DocCount,
		"terms", header.EntryCount,
		"bytes", int(header.PayloadLen)+segment.HeaderSize,
	)
	return header, nil
}

// Load replaces the index contents with the snapshot. A missing snapshot
// yields ErrNotFound, an unreadable one ErrIO, and a snapshot produced by a
// different analyzer ErrInvalidState. On any error the index is unchanged.
func (e *Engine) Load() (segment.Header, error) {
	tables, header, err := segment.Read(e.snapshotPath)
	if err != nil {
		return segment.Header{}, err
	}
	if err := e.Import(tables); err != nil {
		return segment.Header{}, err
	}
	e.logger.Info("snapshot loaded",
		"path", e.snapshotPath,
		"documents", e.DocCount(),
		"terms", e.TermCount(),
		"created_at", time.Unix(header.CreatedAt, 0).UTC(),
	)
	return header, nil
}

// SnapshotExists reports whether a snapshot file is present.
func (e *Engine) SnapshotExists() bool {
	return segment.Exists(e.snapshotPath)
}

// SnapshotPath returns the configured snapshot location.
func (e *Engine) SnapshotPath() string {
	return e.snapshotPath
}
