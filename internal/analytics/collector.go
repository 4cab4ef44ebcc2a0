package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/kafka"
)

// Publisher writes a batch of events to one topic.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type CollectorOption func(*Collector)

// WithBatching sets the flush thresholds.
func WithBatching(size int, interval time.Duration) CollectorOption {
	return func(c *Collector) {
		if size > 0 {
			c.batchSize = size
		}
		if interval > 0 {
			c.flushInterval = interval
		}
	}
}

// WithBufferSize bounds the number of events queued for the flush loop.
func WithBufferSize(n int) CollectorOption {
	return func(c *Collector) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// Collector queues search and build events without blocking the caller and
// publishes them in batches. Events are dropped when the queue is full.
type Collector struct {
	searches      Publisher
	builds        Publisher
	bufferSize    int
	batchSize     int
	flushInterval time.Duration

	mu      sync.RWMutex
	closed  bool
	eventCh chan any
	done    chan struct{}
	logger  *slog.Logger
}

func NewCollector(searches, builds Publisher, opts ...CollectorOption) *Collector {
	c := &Collector{
		searches:      searches,
		builds:        builds,
		bufferSize:    10000,
		batchSize:     100,
		flushInterval: 5 * time.Second,
		done:          make(chan struct{}),
		logger:        slog.Default().With("component", "analytics-collector"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.eventCh = make(chan any, c.bufferSize)
	return c
}

// Start launches the flush loop. It stops when ctx is cancelled or Close is
// called, flushing whatever is buffered.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", c.bufferSize,
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// TrackSearch queues a search event.
func (c *Collector) TrackSearch(e SearchEvent) {
	e.Type = EventSearch
	c.track(e)
}

// BuildCompleted queues a build event for every finished index build.
func (c *Collector) BuildCompleted(_ context.Context, r indexer.BuildReport) {
	c.track(NewBuildEvent(r))
}

// Close stops accepting events and waits for the final flush.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) track(event any) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	var searches, builds []kafka.Event
	flush := func(ctx context.Context) {
		searches = c.publish(ctx, c.searches, searches)
		builds = c.publish(ctx, c.builds, builds)
	}
	final := func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		flush(flushCtx)
	}

	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				final()
				return
			}
			searches, builds = enqueue(event, searches, builds)
			if len(searches) >= c.batchSize || len(builds) >= c.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			c.drain(&searches, &builds)
			final()
			return
		}
	}
}

func (c *Collector) drain(searches, builds *[]kafka.Event) {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			*searches, *builds = enqueue(event, *searches, *builds)
		default:
			return
		}
	}
}

func enqueue(event any, searches, builds []kafka.Event) ([]kafka.Event, []kafka.Event) {
	switch e := event.(type) {
	case SearchEvent:
		searches = append(searches, kafka.Event{Key: e.Query, Value: e})
	case BuildEvent:
		builds = append(builds, kafka.Event{Key: e.Root, Value: e})
	}
	return searches, builds
}

// publish sends batch and returns what remains buffered. A failed batch is
// kept for the next flush, capped at three batches.
func (c *Collector) publish(ctx context.Context, p Publisher, batch []kafka.Event) []kafka.Event {
	if len(batch) == 0 {
		return batch
	}
	if p == nil {
		return nil
	}
	if err := p.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("analytics flush failed", "batch_size", len(batch), "error", err)
		if limit := c.batchSize * 3; len(batch) > limit {
			c.logger.Warn("analytics buffer overflow, events dropped", "dropped", len(batch)-limit)
			batch = batch[len(batch)-limit:]
		}
		return batch
	}
	c.logger.Debug("analytics batch published", "events", len(batch))
	return nil
}
