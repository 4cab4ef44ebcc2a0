// Command analytics runs the analytics aggregation service.
//
// It consumes search and index-build events from Kafka, aggregates them in
// memory (query volume, latency percentiles, cache hit rate, false positive
// totals, top queries, last build) and serves GET /api/v1/analytics. With
// Postgres enabled the aggregate is restored from the latest snapshot on start
// and saved periodically.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/postgres"
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
	if err := run(cfg); err != nil {
		slog.Error("analytics service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}

func run(cfg *config.Config) error {
	if !cfg.Kafka.Enabled {
		return errors.New("kafka must be enabled for the analytics service")
	}
	slog.Info("starting analytics service", "port", cfg.Analytics.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator(cfg.Analytics.TopN)
	checker := health.NewChecker()

	var workers lifecycle
	defer workers.Shutdown(stop)

	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, snapshots disabled", "error", err)
		} else {
			workers.OnClose(db.Close)
			store := aggregator.NewStore(db)
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}
			latest, err := store.LatestSnapshot(ctx)
			switch {
			case err != nil:
				slog.Warn("loading analytics snapshot failed", "error", err)
			case latest != nil:
				agg.Restore(*latest)
				slog.Info("analytics restored from snapshot", "total_queries", latest.TotalSearches)
			}
			workers.Go(func() {
				store.RunPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
			})
			checker.Register("postgres", health.Optional(db.Ping))
		}
	}

	for _, topic := range []string{cfg.Kafka.Topics.SearchEvents, cfg.Kafka.Topics.BuildEvents} {
		consumer := kafka.NewConsumer(cfg.Kafka, topic, agg.HandleMessage)
		workers.Go(func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("consumer stopped", "topic", topic, "error", err)
			}
		})
		slog.Info("consuming analytics events", "topic", topic, "group", cfg.Kafka.ConsumerGroup)
	}

	m := metrics.New()

	h := analytics.NewHandler(agg)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	// The searcher owns the dedicated metrics port; this service serves
	// its own registry inline.
	mux.Handle("GET /metrics", metrics.Handler())

	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Logging,
		middleware.CORS(middleware.DefaultCORSConfig()),
		middleware.Metrics(m, "/api/v1/analytics", "/health/live", "/health/ready"),
		middleware.Timeout(cfg.Server.WriteTimeout),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Analytics.Port),
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
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
