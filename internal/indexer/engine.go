package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/indexer/walker"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/metrics"
)

// Index sources reported in Stats and metrics.
const (
	SourceLoaded  = "loaded"
	SourceBuilt   = "built"
	SourceRebuilt = "rebuilt"
	SourceFailed  = "failed"
)

// BuildReport summarises one indexing pass.
type BuildReport struct {
	Root         string        `json:"root"`
	IndexPath    string        `json:"index_path"`
	FilesIndexed int           `json:"files_indexed"`
	FilesSkipped int           `json:"files_skipped"`
	DirsSkipped  int           `json:"dirs_skipped"`
	Bigrams      int           `json:"bigrams"`
	Entries      int64         `json:"entries"`
	Saved        bool          `json:"saved"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
}

// BuildObserver is notified after every completed build.
type BuildObserver interface {
	BuildCompleted(ctx context.Context, report BuildReport)
}

// Stats describes the index currently being served.
type Stats struct {
	index.Stats
	Generation uint64       `json:"generation"`
	Source     string       `json:"source"`
	Root       string       `json:"root"`
	IndexPath  string       `json:"index_path"`
	LastBuild  *BuildReport `json:"last_build,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records build and size metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithObserver adds a build observer.
func WithObserver(o BuildObserver) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// Engine owns the serving bigram index. Builds run sequentially, one file at
// a time, on a fresh index that is swapped in when complete; readers keep
// using the previous index until then.
type Engine struct {
	cfg       config.IndexerConfig
	filter    walker.Filter
	metrics   *metrics.Metrics
	observers []BuildObserver
	logger    *slog.Logger
	indexAbs  string

	buildMu    sync.Mutex
	mu         sync.RWMutex
	current    *index.BigramIndex
	generation uint64
	source     string
	lastBuild  *BuildReport
}

// NewEngine validates cfg. The engine serves nothing until Open or Rebuild.
func NewEngine(cfg config.IndexerConfig, opts ...Option) (*Engine, error) {
	filter, err := cfg.Filter()
	if err != nil {
		return nil, fmt.Errorf("building path filter: %w", err)
	}
	indexAbs, err := filepath.Abs(cfg.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("resolving index path: %w", err)
	}
	e := &Engine{
		cfg:      cfg,
		filter:   filter,
		indexAbs: indexAbs,
		logger:   slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Open makes an index available: it keeps one already in memory, otherwise
// loads the persisted document if it was built under the configured root,
// otherwise builds from the filesystem and saves. Only a failed build is an
// error, wrapping ErrIndexUnavailable.
func (e *Engine) Open(ctx context.Context) error {
	if e.Ready() {
		return nil
	}
	start := time.Now()
	doc, err := snapshot.Load(e.cfg.IndexPath)
	if err == nil {
		if path, foreign := foreignPath(e.cfg.Root, doc); foreign {
			err = fmt.Errorf("%w: %s lies outside root %s", apperrors.ErrIndexLoad, path, e.cfg.Root)
		}
	}
	if err == nil {
		x := doc.Restore()
		e.swap(x, SourceLoaded, nil)
		e.metrics.ObserveIndex(SourceLoaded, 0, x.Keys(), x.Entries(), x.Files())
		e.logger.Info("index loaded",
			"path", e.cfg.IndexPath,
			"files", x.Files(),
			"bigrams", x.Keys(),
			"entries", x.Entries(),
			"duration", time.Since(start),
		)
		return nil
	}
	if errors.Is(err, os.ErrNotExist) {
		e.logger.Info("no persisted index, building", "path", e.cfg.IndexPath)
	} else {
		e.logger.Warn("persisted index unusable, rebuilding", "path", e.cfg.IndexPath, "error", err)
	}
	if _, err := e.Rebuild(ctx); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrIndexUnavailable, err)
	}
	return nil
}

// foreignPath reports the first indexed path that is not under root. Such a
// document was built for another corpus and must not be served.
func foreignPath(root string, doc *snapshot.Document) (string, bool) {
	for _, entry := range doc.FileIDMap {
		rel, err := filepath.Rel(root, entry.Path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return entry.Path, true
		}
	}
	return "", false
}

// Rebuild indexes the corpus from scratch, swaps the result in and persists
// it. A failed save is logged and reported; the new index is still served.
func (e *Engine) Rebuild(ctx context.Context) (*BuildReport, error) {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	x, report, err := e.build(ctx)
	if err != nil {
		e.metrics.ObserveBuildFailure()
		return nil, err
	}

	if err := snapshot.Save(e.cfg.IndexPath, snapshot.FromIndex(x)); err != nil {
		e.logger.Error("saving index failed", "path", e.cfg.IndexPath, "error", err)
	} else {
		report.Saved = true
	}

	source := SourceBuilt
	if e.Ready() {
		source = SourceRebuilt
	}
	e.swap(x, source, report)
	e.metrics.ObserveIndex(source, report.Duration, report.Bigrams, report.Entries, report.FilesIndexed)
	e.logger.Info("index built",
		"root", report.Root,
		"files_indexed", report.FilesIndexed,
		"files_skipped", report.FilesSkipped,
		"dirs_skipped", report.DirsSkipped,
		"bigrams", report.Bigrams,
		"entries", report.Entries,
		"saved", report.Saved,
		"duration", report.Duration,
	)
	for _, o := range e.observers {
		o.BuildCompleted(ctx, *report)
	}
	return report, nil
}

// build walks the root and scans every selected file into a new index. An
// unreadable file is skipped; an unusable root aborts the build.
func (e *Engine) build(ctx context.Context) (*index.BigramIndex, *BuildReport, error) {
	report := &BuildReport{
		Root:      e.cfg.Root,
		IndexPath: e.cfg.IndexPath,
		StartedAt: time.Now().UTC(),
	}
	x := index.NewBigramIndex()
	w := walker.New(e.cfg.Root, e.filter)
	for {
		path, ok := w.Next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("indexing cancelled: %w", err)
		}
		if e.isIndexDocument(path) {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			report.FilesSkipped++
			e.metrics.ObserveFile(true)
			e.logger.Warn("skipping unreadable file", "path", path, "error", err)
			continue
		}
		x.AddFile(path, content)
		report.FilesIndexed++
		e.metrics.ObserveFile(false)
		e.logger.Debug("file indexed", "path", path, "size", len(content))
	}
	if err := w.Err(); err != nil {
		return nil, nil, fmt.Errorf("walking corpus: %w", err)
	}
	report.DirsSkipped = w.Skipped()
	report.Bigrams = x.Keys()
	report.Entries = x.Entries()
	report.Duration = time.Since(report.StartedAt)
	return x, report, nil
}

// isIndexDocument reports whether path is the persisted index or its
// temporary sibling, which live inside the corpus when IndexPath is under
// Root.
func (e *Engine) isIndexDocument(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return abs == e.indexAbs || abs == e.indexAbs+".tmp"
}

// Save persists the serving index to the configured path.
func (e *Engine) Save() error {
	x := e.currentIndex()
	if x == nil {
		return apperrors.ErrIndexUnavailable
	}
	return snapshot.Save(e.cfg.IndexPath, snapshot.FromIndex(x))
}

// Candidates returns the paths surviving bigram intersection for query along
// with the generation of the index that produced them.
func (e *Engine) Candidates(query string) ([]string, uint64, error) {
	e.mu.RLock()
	x, gen := e.current, e.generation
	e.mu.RUnlock()
	if x == nil {
		return nil, 0, apperrors.ErrIndexUnavailable
	}
	ids := x.Candidates(query)
	paths := make([]string, 0, len(ids))
	for _, id := range ids {
		path, ok := x.IDs().Key(id)
		if !ok {
			e.logger.Error("postings reference unallocated file id", "file_id", id)
			continue
		}
		paths = append(paths, path)
	}
	return paths, gen, nil
}

// Ready reports whether an index is being served.
func (e *Engine) Ready() bool {
	return e.currentIndex() != nil
}

// Generation increases every time a new index is swapped in.
func (e *Engine) Generation() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.generation
}

// Stats returns the counters of the serving index.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := Stats{
		Generation: e.generation,
		Source:     e.source,
		Root:       e.cfg.Root,
		IndexPath:  e.cfg.IndexPath,
	}
	if e.current != nil {
		s.Stats = e.current.Stats()
	}
	if e.lastBuild != nil {
		r := *e.lastBuild
		s.LastBuild = &r
	}
	return s
}

func (e *Engine) currentIndex() *index.BigramIndex {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

func (e *Engine) swap(x *index.BigramIndex, source string, report *BuildReport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = x
	e.generation++
	e.source = source
	if report != nil {
		e.lastBuild = report
	}
}
