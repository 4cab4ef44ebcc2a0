// Package handler exposes search, index administration and cache endpoints
// over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/indexer/buildlog"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/tracing"
)

// Routes lists the paths registered by Register, for metrics labelling.
var Routes = []string{
	"/api/v1/search",
	"/api/v1/index/stats",
	"/api/v1/index/rebuild",
	"/api/v1/index/builds",
	"/api/v1/cache/stats",
	"/api/v1/cache/invalidate",
}

type SearchExecutor interface {
	Execute(ctx context.Context, query string) (*executor.SearchResult, error)
}

type IndexService interface {
	Generation() uint64
	Stats() indexer.Stats
	Rebuild(ctx context.Context) (*indexer.BuildReport, error)
}

type SearchTracker interface {
	TrackSearch(e analytics.SearchEvent)
}

// BuildHistory lists recorded index builds, newest first.
type BuildHistory interface {
	Recent(ctx context.Context, limit int) ([]buildlog.Build, error)
}

const (
	defaultBuildsLimit = 20
	maxBuildsLimit     = 100
)

type Handler struct {
	executor SearchExecutor
	index    IndexService
	cache    *cache.QueryCache
	tracker  SearchTracker
	builds   BuildHistory
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Handler)

func WithCache(c *cache.QueryCache) Option {
	return func(h *Handler) { h.cache = c }
}

func WithTracker(t SearchTracker) Option {
	return func(h *Handler) { h.tracker = t }
}

func WithBuildHistory(b BuildHistory) Option {
	return func(h *Handler) { h.builds = b }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func New(exec SearchExecutor, index IndexService, opts ...Option) *Handler {
	h := &Handler{
		executor: exec,
		index:    index,
		logger:   slog.Default().With("component", "search-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts every endpoint on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("POST /api/v1/index/rebuild", h.Rebuild)
	mux.HandleFunc("GET /api/v1/index/builds", h.Builds)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type searchResponse struct {
	*executor.SearchResult
	CacheHit  bool  `json:"cache_hit"`
	LatencyMs int64 `json:"latency_ms"`
}

// Search serves GET /api/v1/search?q=. The query is used verbatim, including
// surrounding whitespace.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := tracing.Start(r.Context(), "search", logger.RequestID(r.Context()))
	log := logger.FromContext(ctx)
	defer func() {
		span.End()
		span.Log(log)
	}()

	if !r.URL.Query().Has("q") {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required"))
		return
	}
	query := r.URL.Query().Get("q")

	var (
		result   *executor.SearchResult
		err      error
		cacheHit bool
	)
	cacheStatus := "disabled"
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, h.index.Generation(), query, func() (*executor.SearchResult, error) {
			return h.executor.Execute(ctx, query)
		})
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
		span.Set("cache_status", cacheStatus)
	} else {
		result, err = h.executor.Execute(ctx, query)
	}
	if err != nil {
		log.Error("search execution failed", "query", query, "error", err)
		h.writeError(w, err)
		return
	}

	latency := time.Since(start)
	resultType := "hit"
	if result.TotalHits == 0 {
		resultType = "zero"
	}
	h.metrics.ObserveSearch(resultType, cacheStatus, latency, result.Candidates, result.TotalHits, result.FalsePositives)
	log.Info("search completed",
		"query", query,
		"total_hits", result.TotalHits,
		"candidates", result.Candidates,
		"false_positives", result.FalsePositives,
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	if h.tracker != nil {
		h.tracker.TrackSearch(analytics.SearchEvent{
			Query:          query,
			TotalHits:      result.TotalHits,
			Candidates:     result.Candidates,
			FalsePositives: result.FalsePositives,
			LatencyMs:      latency.Milliseconds(),
			CacheHit:       cacheHit,
			Generation:     result.Generation,
			Timestamp:      time.Now().UTC(),
			RequestID:      logger.RequestID(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, searchResponse{
		SearchResult: result,
		CacheHit:     cacheHit,
		LatencyMs:    latency.Milliseconds(),
	})
}

// IndexStats serves GET /api/v1/index/stats.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.index.Stats())
}

// Rebuild serves POST /api/v1/index/rebuild. The build is detached from the
// request deadline so a slow client cannot abandon it half way.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	report, err := h.index.Rebuild(context.WithoutCancel(r.Context()))
	if err != nil {
		log.Error("index rebuild failed", "error", err)
		h.writeError(w, fmt.Errorf("%w: %w", apperrors.ErrIndexUnavailable, err))
		return
	}
	if h.cache != nil {
		if _, err := h.cache.Invalidate(r.Context()); err != nil {
			log.Warn("cache invalidation after rebuild failed", "error", err)
		}
	}
	h.writeJSON(w, http.StatusOK, report)
}

// Builds serves GET /api/v1/index/builds?limit=N from the build log.
func (h *Handler) Builds(w http.ResponseWriter, r *http.Request) {
	if h.builds == nil {
		h.writeError(w, apperrors.ErrBuildLogDisabled)
		return
	}
	limit := defaultBuildsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxBuildsLimit)
	}
	builds, err := h.builds.Recent(r.Context(), limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("listing builds failed", "error", err)
		h.writeError(w, err)
		return
	}
	if builds == nil {
		builds = []buildlog.Build{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"builds": builds, "count": len(builds)})
}

// CacheStats serves GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	stats := h.cache.Stats()
	total := stats.Hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate serves POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, apperrors.ErrCacheDisabled)
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to a status code. Only classified errors expose their
// message; anything else is reported as an internal error.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := "internal error"
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		message = appErr.Message
	case status != http.StatusInternalServerError:
		message = err.Error()
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
