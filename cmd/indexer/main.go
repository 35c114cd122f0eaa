package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/logger"
)

// The indexer is a one-shot job: it rebuilds the index and chunk vectors
// from the configured source, writes both snapshots and, when Kafka is
// enabled, tells running search services to reload.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	announce := flag.Bool("announce", true, "publish a snapshot-ready event when kafka is enabled")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer", "source", cfg.Index.Source, "snapshot", cfg.Index.SnapshotPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := bootstrap.New(cfg, nil)
	if err != nil {
		slog.Error("failed to initialise search stack", "error", err)
		os.Exit(1)
	}
	defer stack.Close()

	start := time.Now()
	stats, err := stack.Searcher.Rebuild(ctx)
	if err != nil {
		slog.Error("index build failed", "error", err)
		os.Exit(1)
	}
	slog.Info("index build complete",
		"indexed", stats.Indexed,
		"skipped", stats.Skipped,
		"duplicates", stats.Duplicates,
		"terms", stats.Terms,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if !*announce || !cfg.Kafka.Enabled {
		return
	}
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SnapshotReady)
	defer producer.Close()
	event := analytics.SnapshotEvent{
		Path:      cfg.Index.SnapshotPath,
		Documents: stats.Indexed,
		Terms:     stats.Terms,
	}
	if err := analytics.AnnounceSnapshot(ctx, producer, event); err != nil {
		slog.Error("failed to announce snapshot", "topic", cfg.Kafka.Topics.SnapshotReady, "error", err)
		os.Exit(1)
	}
	slog.Info("snapshot announced", "topic", cfg.Kafka.Topics.SnapshotReady)
}
