package analytics

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bigram-search/internal/indexer"
)

type EventType string

const (
	EventSearch EventType = "search"
	EventBuild  EventType = "index_build"
)

// SearchEvent describes one answered query.
type SearchEvent struct {
	Type           EventType `json:"type"`
	Query          string    `json:"query"`
	TotalHits      int       `json:"total_hits"`
	Candidates     int       `json:"candidates"`
	FalsePositives int       `json:"false_positives"`
	LatencyMs      int64     `json:"latency_ms"`
	CacheHit       bool      `json:"cache_hit"`
	Generation     uint64    `json:"generation"`
	Timestamp      time.Time `json:"timestamp"`
	RequestID      string    `json:"request_id"`
}

// BuildEvent describes one completed index build.
type BuildEvent struct {
	Type         EventType `json:"type"`
	Root         string    `json:"root"`
	FilesIndexed int       `json:"files_indexed"`
	FilesSkipped int       `json:"files_skipped"`
	Bigrams      int       `json:"bigrams"`
	Entries      int64     `json:"entries"`
	Saved        bool      `json:"saved"`
	DurationMs   int64     `json:"duration_ms"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewBuildEvent converts an engine build report.
func NewBuildEvent(r indexer.BuildReport) BuildEvent {
	return BuildEvent{
		Type:         EventBuild,
		Root:         r.Root,
		FilesIndexed: r.FilesIndexed,
		FilesSkipped: r.FilesSkipped,
		Bigrams:      r.Bigrams,
		Entries:      r.Entries,
		Saved:        r.Saved,
		DurationMs:   r.Duration.Milliseconds(),
		Timestamp:    r.StartedAt.Add(r.Duration),
	}
}

// Decode reads the type discriminator and returns a SearchEvent or BuildEvent.
func Decode(value []byte) (any, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(value, &head); err != nil {
		return nil, fmt.Errorf("decoding event type: %w", err)
	}
	switch head.Type {
	case EventSearch:
		var e SearchEvent
		if err := json.Unmarshal(value, &e); err != nil {
			return nil, fmt.Errorf("decoding search event: %w", err)
		}
		return e, nil
	case EventBuild:
		var e BuildEvent
		if err := json.Unmarshal(value, &e); err != nil {
			return nil, fmt.Errorf("decoding build event: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", head.Type)
	}
}
