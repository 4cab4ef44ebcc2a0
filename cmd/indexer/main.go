// Command indexer walks the configured corpus, builds the bigram index and
// saves it to the configured path.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/development.yaml] [-root DIR] [-index FILE]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/indexer/buildlog"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	root := flag.String("root", "", "corpus root (overrides indexer.root)")
	indexPath := flag.String("index", "", "index document path (overrides indexer.indexPath)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *root != "" {
		cfg.Indexer.Root = *root
	}
	if *indexPath != "" {
		cfg.Indexer.IndexPath = *indexPath
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg); err != nil {
		slog.Error("index build failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	slog.Info("starting index build", "root", cfg.Indexer.Root, "index_path", cfg.Indexer.IndexPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []indexer.Option{indexer.WithMetrics(metrics.New())}

	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, build log disabled", "error", err)
		} else {
			defer db.Close()
			store := buildlog.NewStore(db)
			if err := store.EnsureSchema(ctx); err != nil {
				slog.Warn("build log schema unavailable", "error", err)
			} else {
				opts = append(opts, indexer.WithObserver(store))
			}
		}
	}

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.BuildEvents)
		defer producer.Close()
		collector := analytics.NewCollector(nil, producer)
		collector.Start(context.Background())
		defer collector.Close()
		opts = append(opts, indexer.WithObserver(collector))
	}

	engine, err := indexer.NewEngine(cfg.Indexer, opts...)
	if err != nil {
		return err
	}
	report, err := engine.Rebuild(ctx)
	if err != nil {
		return err
	}
	slog.Info("index build finished",
		"files_indexed", report.FilesIndexed,
		"files_skipped", report.FilesSkipped,
		"bigrams", report.Bigrams,
		"entries", report.Entries,
		"duration", report.Duration,
	)
	if !report.Saved {
		return fmt.Errorf("index built but not saved to %s", report.IndexPath)
	}
	return nil
}
