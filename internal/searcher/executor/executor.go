// Package executor runs the two-stage substring query: bigram candidates from
// the index, then an exact check against the current file contents.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/tracing"
)

// CandidateSource yields the paths that may contain a query, in ascending file
// id order, and the generation of the index that produced them.
type CandidateSource interface {
	Candidates(query string) ([]string, uint64, error)
}

type SearchResult struct {
	Query          string   `json:"query"`
	Matches        []string `json:"matches"`
	TotalHits      int      `json:"total_hits"`
	Candidates     int      `json:"candidates"`
	FalsePositives int      `json:"false_positives"`
	Unreadable     int      `json:"unreadable"`
	Generation     uint64   `json:"generation"`
}

// ReadFileFunc loads a candidate file for verification.
type ReadFileFunc func(path string) ([]byte, error)

type Option func(*Executor)

// WithMaxQueryLength rejects queries longer than n bytes. Zero disables the check.
func WithMaxQueryLength(n int) Option {
	return func(e *Executor) { e.maxQueryLength = n }
}

// WithReadFile replaces os.ReadFile for verification reads.
func WithReadFile(fn ReadFileFunc) Option {
	return func(e *Executor) { e.readFile = fn }
}

type Executor struct {
	source         CandidateSource
	readFile       ReadFileFunc
	maxQueryLength int
	logger         *slog.Logger
}

func New(source CandidateSource, opts ...Option) *Executor {
	e := &Executor{
		source:   source,
		readFile: os.ReadFile,
		logger:   slog.Default().With("component", "query-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute returns the files whose contents contain query. Queries shorter
// than two characters have no bigram and return an empty result.
func (e *Executor) Execute(ctx context.Context, query string) (*SearchResult, error) {
	if e.maxQueryLength > 0 && len(query) > e.maxQueryLength {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"query is %d bytes, limit is %d", len(query), e.maxQueryLength)
	}
	result := &SearchResult{
		Query:   query,
		Matches: []string{},
	}
	if utf8.RuneCountInString(query) < 2 {
		return result, nil
	}

	_, span := tracing.StartChild(ctx, "candidates")
	paths, gen, err := e.source.Candidates(query)
	span.Set("count", len(paths))
	span.End()
	if err != nil {
		return nil, fmt.Errorf("collecting candidates: %w", err)
	}
	result.Generation = gen
	result.Candidates = len(paths)

	_, span = tracing.StartChild(ctx, "verify")
	defer span.End()
	needle := []byte(query)
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: verifying candidates: %w", apperrors.ErrTimeout, err)
		}
		content, err := e.readFile(path)
		if err != nil {
			result.Unreadable++
			e.logger.Debug("candidate unreadable", "path", path, "error", err)
			continue
		}
		if !bytes.Contains(content, needle) {
			result.FalsePositives++
			continue
		}
		result.Matches = append(result.Matches, path)
	}
	result.TotalHits = len(result.Matches)
	span.Set("false_positives", result.FalsePositives)

	e.logger.Debug("query executed",
		"query", query,
		"generation", gen,
		"candidates", result.Candidates,
		"matches", result.TotalHits,
		"false_positives", result.FalsePositives,
		"unreadable", result.Unreadable,
	)
	return result, nil
}
