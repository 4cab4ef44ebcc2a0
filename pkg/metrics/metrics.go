// Package metrics defines the Prometheus collectors used by the indexer and
// the search service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchCandidates     prometheus.Histogram
	SearchResultsCount   prometheus.Histogram
	FalsePositivesTotal  prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	FilesIndexedTotal    prometheus.Counter
	FilesSkippedTotal    prometheus.Counter
	IndexBuildsTotal     *prometheus.CounterVec
	IndexBuildDuration   prometheus.Histogram
	IndexBigrams         prometheus.Gauge
	IndexEntries         prometheus.Gauge
	IndexFiles           prometheus.Gauge
}

// New creates all collectors and registers them on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (match, zero_result, short_query, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
			},
			[]string{"cache_status"},
		),
		SearchCandidates: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_candidates_count",
				Help:    "Candidate files surviving bigram intersection per query.",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
			},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Verified matches returned per query.",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
			},
		),
		FalsePositivesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_false_positives_total",
				Help: "Candidates eliminated by exact verification.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		FilesIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "files_indexed_total",
				Help: "Total files scanned into the index.",
			},
		),
		FilesSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "files_skipped_total",
				Help: "Total files or directories skipped because they could not be read.",
			},
		),
		IndexBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_builds_total",
				Help: "Index acquisitions by source (loaded, built, rebuilt, failed).",
			},
			[]string{"source"},
		),
		IndexBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_build_duration_seconds",
				Help:    "Wall time of full index builds.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
		),
		IndexBigrams: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_bigrams",
				Help: "Distinct bigram keys in the serving index.",
			},
		),
		IndexEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_entries",
				Help: "Total (bigram, file) memberships in the serving index.",
			},
		),
		IndexFiles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_files",
				Help: "Files known to the serving index.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchCandidates,
		m.SearchResultsCount,
		m.FalsePositivesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.FilesIndexedTotal,
		m.FilesSkippedTotal,
		m.IndexBuildsTotal,
		m.IndexBuildDuration,
		m.IndexBigrams,
		m.IndexEntries,
		m.IndexFiles,
	)

	return m
}

// ObserveSearch records one executed query.
func (m *Metrics) ObserveSearch(resultType, cacheStatus string, latency time.Duration, candidates, matches, falsePositives int) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	m.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	m.SearchCandidates.Observe(float64(candidates))
	m.SearchResultsCount.Observe(float64(matches))
	m.FalsePositivesTotal.Add(float64(falsePositives))
}

// ObserveCache records a cache lookup outcome.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
}

// ObserveFile records one file handled by the indexing pass.
func (m *Metrics) ObserveFile(skipped bool) {
	if m == nil {
		return
	}
	if skipped {
		m.FilesSkippedTotal.Inc()
	} else {
		m.FilesIndexedTotal.Inc()
	}
}

// ObserveIndex records how the serving index was obtained and its size.
func (m *Metrics) ObserveIndex(source string, buildTime time.Duration, bigrams int, entries int64, files int) {
	if m == nil {
		return
	}
	m.IndexBuildsTotal.WithLabelValues(source).Inc()
	if buildTime > 0 {
		m.IndexBuildDuration.Observe(buildTime.Seconds())
	}
	m.IndexBigrams.Set(float64(bigrams))
	m.IndexEntries.Set(float64(entries))
	m.IndexFiles.Set(float64(files))
}

// ObserveBuildFailure counts a build that produced no index.
func (m *Metrics) ObserveBuildFailure() {
	if m == nil {
		return
	}
	m.IndexBuildsTotal.WithLabelValues("failed").Inc()
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
