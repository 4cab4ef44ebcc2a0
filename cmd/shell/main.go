// Command shell opens an interactive prompt over the index: each line typed is
// a query and the matching file paths are printed.
//
// Usage:
//
//	go run ./cmd/shell [-config configs/development.yaml] [-root DIR]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/shell"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	root := flag.String("root", "", "corpus root (overrides indexer.root)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *root != "" {
		cfg.Indexer.Root = *root
	}

	// Logs go to stderr so they never interleave with results on stdout.
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg); err != nil {
		slog.Error("shell failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	engine, err := indexer.NewEngine(cfg.Indexer)
	if err != nil {
		return err
	}
	if err := engine.Open(ctx); err != nil {
		return err
	}
	exec := executor.New(engine, executor.WithMaxQueryLength(cfg.Search.MaxQueryLength))

	sh := shell.New(cfg.Shell, exec, engine, os.Stdout)
	defer sh.Close()
	return sh.Run(ctx)
}
