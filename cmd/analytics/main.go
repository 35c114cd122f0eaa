// Command analytics starts the standalone query-analytics service.
//
// It consumes the search events every searcher replica publishes to Kafka,
// folds them into one Aggregator (mode mix, latency percentiles, top and
// zero-result queries), optionally persists snapshots to PostgreSQL, and
// serves the totals at GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml] [-port 8082]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/analytics/store"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	port := flag.Int("port", 8082, "HTTP port for the analytics API")
	persist := flag.Bool("persist", true, "write periodic stats snapshots to PostgreSQL")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if !cfg.Kafka.Enabled {
		slog.Error("analytics service needs kafka.enabled=true")
		os.Exit(1)
	}
	slog.Info("starting analytics service", "port", *port, "topic", cfg.Kafka.Topics.SearchEvents)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	aggregator := analytics.NewAggregator()
	statsHandler := analytics.NewHandler(aggregator)
	checker := health.NewChecker()

	consumer := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.SearchEvents,
		analytics.HandleSearchEvent(aggregator),
		kafka.WithGroupID(cfg.Kafka.ConsumerGroup+"-analytics"),
	)
	defer consumer.Close()
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("search event consumer error", "error", err)
		}
	}()

	if *persist && cfg.Analytics.PersistInterval > 0 {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("analytics persistence disabled", "error", err)
		} else {
			defer db.Close()
			statsStore, err := store.New(ctx, db, store.WithRetention(cfg.Analytics.Retention))
			if err != nil {
				slog.Warn("analytics persistence disabled", "error", err)
			} else {
				statsHandler.WithHistory(statsStore)
				if latest, err := statsStore.Latest(ctx); err == nil && latest != nil {
					slog.Info("last persisted snapshot",
						"total_searches", latest.TotalSearches,
						"captured_at", latest.CapturedAt,
					)
				}
				go statsStore.Run(ctx, aggregator, cfg.Analytics.PersistInterval)
				checker.Register("postgres", health.PingCheck(func(ctx context.Context) error {
					return resilience.WithTimeout(ctx, 2*time.Second, "postgres ping", db.Ping)
				}, health.StatusDegraded))
			}
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", statsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/history", statsHandler.History)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.CORS(middleware.NewCORSConfig(cfg.Server.CORSOrigins))(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
