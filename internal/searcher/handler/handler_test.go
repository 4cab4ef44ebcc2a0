package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/indexer/buildlog"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/config"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = string(value.([]byte))
	return nil
}

func (s *memoryStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if strings.HasPrefix(k, strings.TrimSuffix(pattern, "*")) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

type recordingTracker struct {
	events []analytics.SearchEvent
}

func (r *recordingTracker) TrackSearch(e analytics.SearchEvent) {
	r.events = append(r.events, e)
}

type fixture struct {
	root    string
	engine  *indexer.Engine
	store   *memoryStore
	tracker *recordingTracker
	mux     *http.ServeMux
}

func newFixture(t *testing.T, open bool, withCache bool) *fixture {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello world"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("goodbye world"), 0o644))

	engine, err := indexer.NewEngine(config.IndexerConfig{
		Root:      root,
		IndexPath: filepath.Join(t.TempDir(), config.DefaultIndexFile),
	})
	require.NoError(t, err)
	if open {
		require.NoError(t, engine.Open(context.Background()))
	}

	f := &fixture{
		root:    root,
		engine:  engine,
		store:   &memoryStore{data: make(map[string]string)},
		tracker: &recordingTracker{},
		mux:     http.NewServeMux(),
	}
	opts := []Option{WithTracker(f.tracker)}
	if withCache {
		opts = append(opts, WithCache(cache.New(f.store, time.Minute, nil)))
	}
	New(executor.New(engine, executor.WithMaxQueryLength(16)), engine, opts...).Register(f.mux)
	return f
}

func (f *fixture) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

type searchBody struct {
	Query          string   `json:"query"`
	Matches        []string `json:"matches"`
	TotalHits      int      `json:"total_hits"`
	Candidates     int      `json:"candidates"`
	FalsePositives int      `json:"false_positives"`
	Generation     uint64   `json:"generation"`
	CacheHit       bool     `json:"cache_hit"`
}

func (f *fixture) search(t *testing.T, q string) searchBody {
	t.Helper()
	rec := f.do(t, http.MethodGet, "/api/v1/search?q="+url.QueryEscape(q))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body searchBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestSearch(t *testing.T) {
	f := newFixture(t, true, false)
	a, b := filepath.Join(f.root, "a.txt"), filepath.Join(f.root, "b.txt")

	body := f.search(t, "world")
	assert.Equal(t, []string{a, b}, body.Matches)
	assert.Equal(t, 2, body.TotalHits)
	assert.Equal(t, uint64(1), body.Generation)

	assert.Equal(t, []string{a}, f.search(t, "hello").Matches)
	assert.Empty(t, f.search(t, "xyz").Matches)
	assert.Empty(t, f.search(t, "h").Matches)
	assert.Equal(t, []string{b}, f.search(t, "e w").Matches)

	require.Len(t, f.tracker.events, 5)
	assert.Equal(t, "world", f.tracker.events[0].Query)
	assert.Equal(t, 2, f.tracker.events[0].TotalHits)
	assert.False(t, f.tracker.events[0].CacheHit)
}

func TestSearchKeepsWhitespace(t *testing.T) {
	f := newFixture(t, true, false)
	body := f.search(t, "o w")
	assert.Equal(t, "o w", body.Query)
	assert.Equal(t, []string{filepath.Join(f.root, "a.txt")}, body.Matches)
}

func TestSearchBadRequests(t *testing.T) {
	f := newFixture(t, true, false)

	rec := f.do(t, http.MethodGet, "/api/v1/search")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "required")

	rec = f.do(t, http.MethodGet, "/api/v1/search?q="+strings.Repeat("a", 17))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/search?q=ab")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSearchIndexUnavailable(t *testing.T) {
	f := newFixture(t, false, false)
	rec := f.do(t, http.MethodGet, "/api/v1/search?q=world")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSearchCachedUntilRebuild(t *testing.T) {
	f := newFixture(t, true, true)

	first := f.search(t, "world")
	assert.False(t, first.CacheHit)
	second := f.search(t, "world")
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Matches, second.Matches)

	require.NoError(t, os.WriteFile(filepath.Join(f.root, "c.txt"), []byte("new world"), 0o644))
	rec := f.do(t, http.MethodPost, "/api/v1/index/rebuild")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report indexer.BuildReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, 3, report.FilesIndexed)
	assert.Empty(t, f.store.data, "rebuild flushes the cache")

	third := f.search(t, "world")
	assert.False(t, third.CacheHit)
	assert.Equal(t, uint64(2), third.Generation)
	assert.Len(t, third.Matches, 3)
}

func TestIndexStats(t *testing.T) {
	f := newFixture(t, true, false)
	rec := f.do(t, http.MethodGet, "/api/v1/index/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats indexer.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, indexer.SourceBuilt, stats.Source)
	assert.Equal(t, f.root, stats.Root)
}

func TestRebuildFailure(t *testing.T) {
	f := newFixture(t, true, false)
	require.NoError(t, os.RemoveAll(f.root))
	rec := f.do(t, http.MethodPost, "/api/v1/index/rebuild")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// The previous index keeps serving.
	assert.Equal(t, uint64(1), f.engine.Generation())
}

func TestCacheEndpoints(t *testing.T) {
	disabled := newFixture(t, true, false)
	rec := disabled.do(t, http.MethodGet, "/api/v1/cache/stats")
	assert.JSONEq(t, `{"status":"disabled"}`, rec.Body.String())
	rec = disabled.do(t, http.MethodPost, "/api/v1/cache/invalidate")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	enabled := newFixture(t, true, true)
	enabled.search(t, "world")
	enabled.search(t, "world")
	rec = enabled.do(t, http.MethodGet, "/api/v1/cache/stats")
	assert.JSONEq(t, `{"hits":1,"misses":1,"total":2,"hit_rate":"50.0%"}`, rec.Body.String())

	rec = enabled.do(t, http.MethodPost, "/api/v1/cache/invalidate")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"invalidated","keys_deleted":1}`, rec.Body.String())
}

type stubHistory struct {
	builds []buildlog.Build
	limits []int
}

func (s *stubHistory) Recent(_ context.Context, limit int) ([]buildlog.Build, error) {
	s.limits = append(s.limits, limit)
	if len(s.builds) > limit {
		return s.builds[:limit], nil
	}
	return s.builds, nil
}

func TestBuildsEndpoint(t *testing.T) {
	f := newFixture(t, true, false)
	rec := f.do(t, http.MethodGet, "/api/v1/index/builds")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	history := &stubHistory{builds: []buildlog.Build{
		{ID: 2, BuildReport: indexer.BuildReport{Root: f.root, FilesIndexed: 2, Saved: true}},
		{ID: 1, BuildReport: indexer.BuildReport{Root: f.root, FilesIndexed: 1}},
	}}
	mux := http.NewServeMux()
	New(executor.New(f.engine), f.engine, WithBuildHistory(history)).Register(mux)
	get := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	rec = get("/api/v1/index/builds")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Builds []buildlog.Build `json:"builds"`
		Count  int              `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, int64(2), body.Builds[0].ID)
	assert.Equal(t, 2, body.Builds[0].FilesIndexed)

	rec = get("/api/v1/index/builds?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = get("/api/v1/index/builds?limit=5000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{20, 1, 100}, history.limits)

	assert.Equal(t, http.StatusBadRequest, get("/api/v1/index/builds?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, get("/api/v1/index/builds?limit=x").Code)
}

func TestCachedResultIsServedUntilInvalidated(t *testing.T) {
	f := newFixture(t, true, true)
	first := f.search(t, "hello")
	require.Len(t, first.Matches, 1)

	require.NoError(t, os.WriteFile(filepath.Join(f.root, "a.txt"), []byte("edited"), 0o644))
	cached := f.search(t, "hello")
	assert.True(t, cached.CacheHit)
	assert.Equal(t, first.Matches, cached.Matches)

	rec := f.do(t, http.MethodPost, "/api/v1/cache/invalidate")
	require.Equal(t, http.StatusOK, rec.Code)
	fresh := f.search(t, "hello")
	assert.False(t, fresh.CacheHit)
	assert.Empty(t, fresh.Matches)
	assert.Equal(t, 1, fresh.FalsePositives)
}
