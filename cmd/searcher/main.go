// Command searcher serves substring search over HTTP. It loads the persisted
// index (building it when absent), answers GET /api/v1/search?q=, and exposes
// index, cache and health endpoints plus Prometheus metrics.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
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
	"time"

	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/indexer/buildlog"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/resilience"
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
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config) error {
	slog.Info("starting search service", "port", cfg.Server.Port, "root", cfg.Indexer.Root)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	checker := health.NewChecker()
	engineOpts := []indexer.Option{indexer.WithMetrics(m)}
	handlerOpts := []handler.Option{handler.WithMetrics(m)}

	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, build log disabled", "error", err)
		} else {
			defer db.Close()
			store := buildlog.NewStore(db)
			if err := store.EnsureSchema(ctx); err != nil {
				slog.Warn("build log schema unavailable", "error", err)
			}
			engineOpts = append(engineOpts, indexer.WithObserver(store))
			handlerOpts = append(handlerOpts, handler.WithBuildHistory(store))
			checker.Register("postgres", health.Optional(db.Ping))
		}
	}

	var tracker handler.SearchTracker
	if cfg.Kafka.Enabled {
		searches := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
		defer searches.Close()
		builds := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.BuildEvents)
		defer builds.Close()
		collector := analytics.NewCollector(searches, builds,
			analytics.WithBufferSize(cfg.Analytics.BufferSize),
			analytics.WithBatching(cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval),
		)
		collector.Start(context.Background())
		defer collector.Close()
		engineOpts = append(engineOpts, indexer.WithObserver(collector))
		tracker = collector
	}

	engine, err := indexer.NewEngine(cfg.Indexer, engineOpts...)
	if err != nil {
		return err
	}
	if err := engine.Open(ctx); err != nil {
		return err
	}
	checker.Register("index", health.Required(func(context.Context) error {
		if !engine.Ready() {
			return apperrors.ErrIndexUnavailable
		}
		return nil
	}))

	if tracker != nil {
		handlerOpts = append(handlerOpts, handler.WithTracker(tracker))
	}
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			breaker := resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
				IsFailure:        cache.BreakerFailure,
			})
			handlerOpts = append(handlerOpts, handler.WithCache(cache.New(redisClient, cfg.Redis.CacheTTL, m, cache.WithBreaker(breaker))))
			checker.Register("redis", health.Optional(redisClient.Ping))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	exec := executor.New(engine, executor.WithMaxQueryLength(cfg.Search.MaxQueryLength))
	h := handler.New(exec, engine, handlerOpts...)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	limiter.StartSweeper(ctx, time.Minute)

	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Logging,
		middleware.CORS(middleware.DefaultCORSConfig()),
		middleware.Metrics(m, handler.Routes...),
		middleware.RateLimit(limiter),
		middleware.Timeout(cfg.Server.WriteTimeout),
	)

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
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
