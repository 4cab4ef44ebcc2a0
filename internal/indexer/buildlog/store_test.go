package buildlog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/bigram-search/pkg/resilience"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"undefined table", &pq.Error{Code: "42P01"}, true},
		{"not null violation", fmt.Errorf("recording build: %w", &pq.Error{Code: "23502"}), true},
		{"numeric out of range", &pq.Error{Code: "22003"}, true},
		{"connection failure", &pq.Error{Code: "08006"}, false},
		{"plain error", errors.New("dial tcp: connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.ErrorIs(t, got, tt.err)
			if tt.permanent {
				assert.NotEqual(t, tt.err, got)
			} else {
				assert.Equal(t, tt.err, got)
			}
		})
	}
}

func TestClassifiedErrorsStopRetry(t *testing.T) {
	calls := 0
	err := resilience.Retry(context.Background(), "record-build", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		calls++
		return classify(&pq.Error{Code: "42P01"})
	})
	var pqErr *pq.Error
	assert.ErrorAs(t, err, &pqErr)
	assert.Equal(t, 1, calls)
}
