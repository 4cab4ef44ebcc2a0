// Package cache stores search results in Redis keyed by index generation, so
// a rebuild implicitly retires every earlier entry.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/resilience"
)

const keyPrefix = "search:"

// Store is the subset of the Redis client used by the cache.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

type Option func(*QueryCache)

// WithBreaker routes store calls through cb so an unreachable Redis is
// skipped instead of delaying every search.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *QueryCache) { c.breaker = cb }
}

type QueryCache struct {
	store   Store
	breaker *resilience.CircuitBreaker
	ttl     time.Duration
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(store Store, ttl time.Duration, m *metrics.Metrics, opts ...Option) *QueryCache {
	c := &QueryCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BreakerFailure counts every store error except a missing key.
func BreakerFailure(err error) bool {
	return err != nil && !pkgredis.IsNilError(err)
}

func (c *QueryCache) guard(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Execute(fn)
}

// Get looks up query for the given index generation. Store failures count
// as misses.
func (c *QueryCache) Get(ctx context.Context, generation uint64, query string) (*executor.SearchResult, bool) {
	key := Key(generation, query)
	var data string
	err := c.guard(func() error {
		var err error
		data, err = c.store.Get(ctx, key)
		return err
	})
	if err != nil {
		switch {
		case pkgredis.IsNilError(err):
		case errors.Is(err, resilience.ErrCircuitOpen):
			c.logger.Debug("cache bypassed", "key", key, "error", err)
		default:
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.ObserveCache(true)
	c.logger.Debug("cache hit", "query", query, "key", key)
	return &result, true
}

// Set stores result under the generation that produced it.
func (c *QueryCache) Set(ctx context.Context, result *executor.SearchResult) {
	key := Key(result.Generation, result.Query)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.guard(func() error { return c.store.Set(ctx, key, data, c.ttl) }); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or runs computeFn once for all
// concurrent callers asking the same question. The bool reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	generation uint64,
	query string,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, generation, query); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(Key(generation, query), func() (any, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate removes every cached search result.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	c.metrics.ObserveCache(false)
}

// Key derives the Redis key for a query against one index generation. The
// query is hashed verbatim: matching is case- and whitespace-sensitive.
func Key(generation uint64, query string) string {
	h := sha256.New()
	h.Write([]byte(strconv.FormatUint(generation, 10)))
	h.Write([]byte{0})
	h.Write([]byte(query))
	return fmt.Sprintf("%s%x", keyPrefix, h.Sum(nil)[:16])
}
