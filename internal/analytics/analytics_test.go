package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	fail    int
}

func (p *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail > 0 {
		p.fail--
		return errors.New("broker unavailable")
	}
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return nil
}

func (p *fakePublisher) events() []kafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var all []kafka.Event
	for _, b := range p.batches {
		all = append(all, b...)
	}
	return all
}

func TestCollectorRoutesEvents(t *testing.T) {
	searches, builds := &fakePublisher{}, &fakePublisher{}
	c := NewCollector(searches, builds, WithBatching(10, time.Hour))
	c.Start(context.Background())

	c.TrackSearch(SearchEvent{Query: "world", TotalHits: 2})
	c.TrackSearch(SearchEvent{Query: "xyz"})
	c.BuildCompleted(context.Background(), indexer.BuildReport{Root: "/corpus", FilesIndexed: 3, Duration: 1500 * time.Millisecond})
	c.Close()

	got := searches.events()
	require.Len(t, got, 2)
	assert.Equal(t, "world", got[0].Key)
	assert.Equal(t, EventSearch, got[0].Value.(SearchEvent).Type)

	b := builds.events()
	require.Len(t, b, 1)
	be := b[0].Value.(BuildEvent)
	assert.Equal(t, EventBuild, be.Type)
	assert.Equal(t, 3, be.FilesIndexed)
	assert.Equal(t, int64(1500), be.DurationMs)

	c.TrackSearch(SearchEvent{Query: "after close"})
	assert.Len(t, searches.events(), 2)
}

func TestCollectorFlushesOnBatchSize(t *testing.T) {
	searches := &fakePublisher{}
	c := NewCollector(searches, nil, WithBatching(2, time.Hour))
	c.Start(context.Background())
	defer c.Close()

	c.TrackSearch(SearchEvent{Query: "a"})
	c.TrackSearch(SearchEvent{Query: "b"})
	assert.Eventually(t, func() bool { return len(searches.events()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestCollectorRetainsFailedBatch(t *testing.T) {
	searches := &fakePublisher{fail: 1}
	c := NewCollector(searches, nil, WithBatching(1, time.Hour))
	c.Start(context.Background())

	c.TrackSearch(SearchEvent{Query: "first"})
	c.TrackSearch(SearchEvent{Query: "second"})
	c.Close()

	var queries []string
	for _, e := range searches.events() {
		queries = append(queries, e.Key)
	}
	assert.Equal(t, []string{"first", "second"}, queries)
}

func TestCollectorStopsOnContext(t *testing.T) {
	searches := &fakePublisher{}
	c := NewCollector(searches, nil, WithBatching(100, time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	c.TrackSearch(SearchEvent{Query: "q"})
	cancel()
	c.Close()
	assert.Len(t, searches.events(), 1)
}

func TestDecode(t *testing.T) {
	raw, err := json.Marshal(SearchEvent{Type: EventSearch, Query: "hello", TotalHits: 1})
	require.NoError(t, err)
	ev, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "hello", ev.(SearchEvent).Query)

	raw, err = json.Marshal(BuildEvent{Type: EventBuild, Root: "/r"})
	require.NoError(t, err)
	ev, err = Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "/r", ev.(BuildEvent).Root)

	_, err = Decode([]byte(`{"type":"other"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestAggregator(t *testing.T) {
	a := NewAggregator(2)
	start := a.startTime
	a.now = func() time.Time { return start.Add(2 * time.Minute) }

	a.Record(SearchEvent{Query: "world", TotalHits: 2, Candidates: 3, FalsePositives: 1, LatencyMs: 10})
	a.Record(SearchEvent{Query: "world", TotalHits: 2, Candidates: 3, FalsePositives: 1, LatencyMs: 30, CacheHit: true})
	a.Record(SearchEvent{Query: "xyz", LatencyMs: 20})
	a.Record(SearchEvent{Query: "abc", LatencyMs: 40})
	a.Record(BuildEvent{Root: "/corpus", FilesIndexed: 5})

	s := a.Stats()
	assert.Equal(t, int64(4), s.TotalSearches)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(3), s.CacheMisses)
	assert.Equal(t, int64(2), s.ZeroResultCount)
	assert.Equal(t, int64(2), s.FalsePositives)
	assert.Equal(t, int64(6), s.Candidates)
	assert.Equal(t, 25.0, s.AvgLatencyMs)
	assert.Equal(t, int64(30), s.P50LatencyMs)
	assert.Equal(t, int64(40), s.P99LatencyMs)
	assert.Equal(t, []QueryCount{{"world", 2}, {"abc", 1}}, s.TopQueries)
	assert.Equal(t, []QueryCount{{"abc", 1}, {"xyz", 1}}, s.ZeroResultQueries)
	assert.Equal(t, 2.0, s.QueriesPerMinute)
	assert.Equal(t, int64(1), s.Builds)
	require.NotNil(t, s.LastBuild)
	assert.Equal(t, 5, s.LastBuild.FilesIndexed)
}

func TestAggregatorHandleMessage(t *testing.T) {
	a := NewAggregator(10)
	raw, err := json.Marshal(SearchEvent{Type: EventSearch, Query: "q"})
	require.NoError(t, err)
	require.NoError(t, a.HandleMessage(context.Background(), nil, raw))
	require.NoError(t, a.HandleMessage(context.Background(), nil, []byte("garbage")))
	assert.Equal(t, int64(1), a.Stats().TotalSearches)
}

func TestAggregatorRestore(t *testing.T) {
	a := NewAggregator(10)
	since := a.startTime.Add(-10 * time.Minute)
	a.now = func() time.Time { return since.Add(10 * time.Minute) }
	a.Restore(AggregatedStats{
		TotalSearches: 7,
		Builds:        2,
		TopQueries:    []QueryCount{{"world", 5}},
		Since:         since,
	})
	a.Record(SearchEvent{Query: "world", TotalHits: 1})
	s := a.Stats()
	assert.Equal(t, int64(8), s.TotalSearches)
	assert.Equal(t, int64(2), s.Builds)
	assert.Equal(t, []QueryCount{{"world", 6}}, s.TopQueries)
	assert.True(t, s.Since.Equal(since))
	assert.InDelta(t, 0.8, s.QueriesPerMinute, 1e-9)
}

func TestAggregatorRestoreWithoutSinceRatesOnlyNewSearches(t *testing.T) {
	a := NewAggregator(10)
	start := a.startTime
	a.now = func() time.Time { return start.Add(2 * time.Minute) }
	a.Restore(AggregatedStats{TotalSearches: 100000})
	assert.Zero(t, a.Stats().QueriesPerMinute)

	a.Record(SearchEvent{Query: "q"})
	a.Record(SearchEvent{Query: "q"})
	s := a.Stats()
	assert.Equal(t, int64(100002), s.TotalSearches)
	assert.InDelta(t, 1.0, s.QueriesPerMinute, 1e-9)
}

func TestHandlerStats(t *testing.T) {
	a := NewAggregator(10)
	a.Record(SearchEvent{Query: "q", TotalHits: 1})
	rec := httptest.NewRecorder()
	NewHandler(a).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var s AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&s))
	assert.Equal(t, int64(1), s.TotalSearches)
}

func TestHandlerStatsTop(t *testing.T) {
	a := NewAggregator(10)
	for _, q := range []string{"a", "b", "b", "c", "c", "c"} {
		a.Record(SearchEvent{Query: q})
	}
	h := NewHandler(a)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var s AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&s))
	assert.Equal(t, []QueryCount{{Query: "c", Count: 3}, {Query: "b", Count: 2}}, s.TopQueries)
	assert.Len(t, s.ZeroResultQueries, 2)

	rec = httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
