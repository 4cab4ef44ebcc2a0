// Package shell is the interactive query prompt: one line in, one query
// answered, until the user quits.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/config"
)

const helpText = `Type text to list the files containing it. Commands:
  :stats     index statistics
  :rebuild   rebuild the index from the corpus
  :help      this message
  :quit      leave (also Ctrl-D or Ctrl-C)
Start a query with "::" to search for text beginning with ":".
`

type Searcher interface {
	Execute(ctx context.Context, query string) (*executor.SearchResult, error)
}

type Index interface {
	Stats() indexer.Stats
	Rebuild(ctx context.Context) (*indexer.BuildReport, error)
}

type Shell struct {
	reader LineReader
	search Searcher
	index  Index
	out    io.Writer
	prompt string
	logger *slog.Logger
}

// New opens the terminal. The caller owns the returned Shell and must Close
// it to restore the terminal and persist history.
func New(cfg config.ShellConfig, search Searcher, index Index, out io.Writer) *Shell {
	return NewWithReader(openTerminal(cfg.HistoryFile), cfg.Prompt, search, index, out)
}

// NewWithReader builds a Shell over an arbitrary line source.
func NewWithReader(reader LineReader, prompt string, search Searcher, index Index, out io.Writer) *Shell {
	return &Shell{
		reader: reader,
		search: search,
		index:  index,
		out:    out,
		prompt: prompt,
		logger: slog.Default().With("component", "shell"),
	}
}

// Run reads and answers lines until the user quits, input ends or ctx is
// cancelled. Query failures are printed and the loop continues.
func (s *Shell) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := s.reader.Prompt(s.prompt)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(s.out)
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}
		if line == "" {
			continue
		}
		if quit := s.handle(ctx, line); quit {
			return nil
		}
	}
}

// Close releases the terminal.
func (s *Shell) Close() error {
	return s.reader.Close()
}

func (s *Shell) handle(ctx context.Context, line string) (quit bool) {
	if strings.HasPrefix(line, "::") {
		s.query(ctx, line[1:])
		return false
	}
	if !strings.HasPrefix(line, ":") {
		s.query(ctx, line)
		return false
	}
	switch strings.TrimSpace(line) {
	case ":q", ":quit", ":exit":
		return true
	case ":stats":
		s.stats()
	case ":rebuild":
		s.rebuild(ctx)
	case ":help", ":h", ":?":
		fmt.Fprint(s.out, helpText)
	default:
		fmt.Fprintf(s.out, "unknown command %q, try :help\n", strings.TrimSpace(line))
	}
	return false
}

func (s *Shell) query(ctx context.Context, q string) {
	start := time.Now()
	result, err := s.search.Execute(ctx, q)
	if err != nil {
		s.logger.Error("query failed", "query", q, "error", err)
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	for _, path := range result.Matches {
		fmt.Fprintln(s.out, path)
	}
	fmt.Fprintf(s.out, "%d %s (%d candidates, %d false positives) in %s\n",
		result.TotalHits, plural(result.TotalHits, "match", "matches"),
		result.Candidates, result.FalsePositives,
		time.Since(start).Round(time.Microsecond),
	)
}

func (s *Shell) stats() {
	st := s.index.Stats()
	fmt.Fprintf(s.out, "root:       %s\n", st.Root)
	fmt.Fprintf(s.out, "index:      %s (%s, generation %d)\n", st.IndexPath, st.Source, st.Generation)
	fmt.Fprintf(s.out, "files:      %d\n", st.Files)
	fmt.Fprintf(s.out, "bigrams:    %d\n", st.Bigrams)
	fmt.Fprintf(s.out, "entries:    %d\n", st.Entries)
	if st.LastBuild != nil {
		fmt.Fprintf(s.out, "last build: %s, %d files skipped\n",
			st.LastBuild.Duration.Round(time.Millisecond), st.LastBuild.FilesSkipped)
	}
}

func (s *Shell) rebuild(ctx context.Context) {
	report, err := s.index.Rebuild(ctx)
	if err != nil {
		fmt.Fprintf(s.out, "rebuild failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "indexed %d files (%d skipped), %d bigrams in %s\n",
		report.FilesIndexed, report.FilesSkipped, report.Bigrams,
		report.Duration.Round(time.Millisecond))
	if !report.Saved {
		fmt.Fprintln(s.out, "warning: index could not be saved, see log")
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
