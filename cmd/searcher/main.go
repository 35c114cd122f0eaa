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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/analytics/store"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"source", cfg.Index.Source,
		"embeddings", cfg.Embeddings.Provider,
		"semantic", cfg.Semantic.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		metricsServer, err := metrics.Listen(fmt.Sprintf(":%d", cfg.Metrics.Port), prometheus.DefaultGatherer)
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer metricsServer.Shutdown(context.Background())
	}

	stack, err := bootstrap.New(cfg, m)
	if err != nil {
		slog.Error("failed to initialise search stack", "error", err)
		os.Exit(1)
	}
	defer stack.Close()

	openStart := time.Now()
	if err := stack.Searcher.Open(ctx); err != nil {
		slog.Error("failed to open index", "snapshot", cfg.Index.SnapshotPath, "error", err)
		os.Exit(1)
	}
	stats := stack.Searcher.Stats()
	slog.Info("index ready",
		"documents", stats.Documents,
		"terms", stats.Terms,
		"duration_ms", time.Since(openStart).Milliseconds(),
	)

	mux := http.NewServeMux()
	opts := []handler.Option{handler.WithMetrics(m), handler.WithTracing(cfg.Tracing)}
	if stack.Results != nil {
		opts = append(opts, handler.WithResultCache(stack.Results))
	}
	adminAuth, err := stack.AdminAuth(ctx)
	if err != nil {
		slog.Error("failed to initialise api key store", "error", err)
		os.Exit(1)
	}
	if adminAuth != nil {
		opts = append(opts, handler.WithAdminAuth(adminAuth))
	}

	if cfg.Analytics.Enabled {
		aggregator := analytics.NewAggregator()
		var publisher analytics.Publisher
		if cfg.Kafka.Enabled {
			producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
			defer producer.Close()
			publisher = producer
		}
		collector := analytics.NewCollector(publisher, aggregator, analytics.CollectorConfig{
			BufferSize:    cfg.Analytics.BufferSize,
			BatchSize:     cfg.Analytics.BatchSize,
			FlushInterval: cfg.Analytics.FlushInterval,
		})
		collector.Start(ctx)
		defer collector.Close()
		opts = append(opts, handler.WithCollector(collector))
		mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
		slog.Info("analytics collector started", "kafka", cfg.Kafka.Enabled)

		if cfg.Analytics.PersistInterval > 0 && cfg.Index.Source == "postgres" {
			statsStore, err := store.New(ctx, stack.Postgres, store.WithRetention(cfg.Analytics.Retention))
			if err != nil {
				slog.Warn("analytics persistence disabled", "error", err)
			} else {
				go statsStore.Run(ctx, aggregator, cfg.Analytics.PersistInterval)
			}
		}
	}

	if cfg.Kafka.Enabled {
		snapshotConsumer := kafka.NewConsumer(
			cfg.Kafka,
			cfg.Kafka.Topics.SnapshotReady,
			analytics.HandleSnapshotEvent(reloader(stack), cfg.Index.SnapshotPath),
			kafka.WithGroupID(instanceGroup(cfg.Kafka.ConsumerGroup)),
		)
		defer snapshotConsumer.Close()
		go func() {
			if err := snapshotConsumer.Start(ctx); err != nil {
				slog.Error("snapshot consumer error", "error", err)
			}
		}()
		slog.Info("listening for snapshot announcements", "topic", cfg.Kafka.Topics.SnapshotReady)
	}

	checker := health.NewChecker()
	stack.RegisterHealth(checker)

	h := handler.New(stack.Searcher, cfg.Search, cfg.Index, opts...)
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		go sweepLimiter(ctx, limiter)
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.CORS(middleware.NewCORSConfig(cfg.Server.CORSOrigins))(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
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

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}

func sweepLimiter(ctx context.Context, limiter *middleware.Limiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Sweep(); n > 0 {
				slog.Debug("rate limiter swept idle clients", "removed", n)
			}
		}
	}
}

// instanceGroup derives a consumer group unique to this process so that every
// replica receives every snapshot announcement.
func instanceGroup(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return fmt.Sprintf("%s-snapshots-%s-%d", base, host, os.Getpid())
}

type reloadFunc func(ctx context.Context) error

func (f reloadFunc) Reload(ctx context.Context) error { return f(ctx) }

// reloader swaps in the announced snapshot and drops cached result lists
// computed against the previous one.
func reloader(stack *bootstrap.Stack) analytics.Reloader {
	return reloadFunc(func(ctx context.Context) error {
		if err := stack.Searcher.Reload(ctx); err != nil {
			return err
		}
		if stack.Results != nil {
			if err := stack.Results.Invalidate(ctx); err != nil {
				slog.Warn("result cache not cleared after snapshot reload", "error", err)
			}
		}
		return nil
	})
}
