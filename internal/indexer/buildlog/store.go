// Package buildlog records every index build in PostgreSQL so operators can
// see when the corpus was last indexed and how large the index was.
package buildlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/resilience"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS index_builds (
		id             BIGSERIAL PRIMARY KEY,
		root           TEXT        NOT NULL,
		index_path     TEXT        NOT NULL,
		files_indexed  INTEGER     NOT NULL,
		files_skipped  INTEGER     NOT NULL,
		dirs_skipped   INTEGER     NOT NULL,
		bigrams        INTEGER     NOT NULL,
		entries        BIGINT      NOT NULL,
		saved          BOOLEAN     NOT NULL,
		started_at     TIMESTAMPTZ NOT NULL,
		duration_ms    BIGINT      NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS index_builds_started_at_idx ON index_builds (started_at DESC)`,
}

// Build is one row of the build log.
type Build struct {
	ID int64 `json:"id"`
	indexer.BuildReport
}

type Store struct {
	db           *postgres.Client
	writeTimeout time.Duration
	retry        resilience.RetryConfig
	logger       *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:           db,
		writeTimeout: 5 * time.Second,
		retry:        resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond},
		logger:       slog.Default().With("component", "build-log"),
	}
}

// EnsureSchema creates the index_builds table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("creating build log schema: %w", err)
			}
		}
		return nil
	})
}

// Record inserts one build report and returns its row id.
func (s *Store) Record(ctx context.Context, r indexer.BuildReport) (int64, error) {
	var id int64
	err := s.db.DB.QueryRowContext(ctx,
		`INSERT INTO index_builds
			(root, index_path, files_indexed, files_skipped, dirs_skipped, bigrams, entries, saved, started_at, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		r.Root, r.IndexPath, r.FilesIndexed, r.FilesSkipped, r.DirsSkipped,
		r.Bigrams, r.Entries, r.Saved, r.StartedAt, r.Duration.Milliseconds(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("recording build: %w", err)
	}
	return id, nil
}

// Recent returns the last limit builds, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Build, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, root, index_path, files_indexed, files_skipped, dirs_skipped, bigrams, entries, saved, started_at, duration_ms
		 FROM index_builds ORDER BY started_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing builds: %w", err)
	}
	defer rows.Close()

	var builds []Build
	for rows.Next() {
		var b Build
		var durationMs int64
		if err := rows.Scan(&b.ID, &b.Root, &b.IndexPath, &b.FilesIndexed, &b.FilesSkipped,
			&b.DirsSkipped, &b.Bigrams, &b.Entries, &b.Saved, &b.StartedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("scanning build row: %w", err)
		}
		b.Duration = time.Duration(durationMs) * time.Millisecond
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

// BuildCompleted records r, retrying transient failures. Errors are logged
// only; the build log never fails a build.
func (s *Store) BuildCompleted(ctx context.Context, r indexer.BuildReport) {
	err := resilience.Retry(ctx, "record-build", s.retry, func() error {
		return resilience.WithTimeout(ctx, s.writeTimeout, "record-build", func(ctx context.Context) error {
			id, err := s.Record(ctx, r)
			if err != nil {
				return classify(err)
			}
			s.logger.Debug("build recorded", "id", id, "root", r.Root)
			return nil
		})
	})
	if err != nil {
		s.logger.Error("build log write failed", "root", r.Root, "error", err)
	}
}

// classify marks errors a retry cannot fix: bad data and missing schema.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22", "23", "42":
			return resilience.Permanent(err)
		}
	}
	return err
}
