package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", fmt.Errorf("parsing: %w", ErrInvalidInput), http.StatusBadRequest},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"index unavailable", fmt.Errorf("open: %w", ErrIndexUnavailable), http.StatusServiceUnavailable},
		{"cache disabled", ErrCacheDisabled, http.StatusServiceUnavailable},
		{"build log disabled", ErrBuildLogDisabled, http.StatusServiceUnavailable},
		{"timeout", ErrTimeout, http.StatusGatewayTimeout},
		{"unknown", context.Canceled, http.StatusInternalServerError},
		{"app error", Newf(ErrInternal, http.StatusTeapot, "brewing %d", 1), http.StatusTeapot},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatusCode(tc.err))
		})
	}
}

func TestAppErrorUnwraps(t *testing.T) {
	err := New(ErrInvalidInput, http.StatusBadRequest, "query too long")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "invalid input: query too long", err.Error())
}
