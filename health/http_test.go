package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterLiveAndReadyReportHealthy(t *testing.T) {
	agg := NewAggregator(&AggregatorConfig{Timeout: time.Second, ParallelChecks: false})
	ctx := context.Background()
	require.NoError(t, agg.RegisterCheck(ctx, NewBasicChecker("ok", "", func(context.Context) error { return nil })))
	_, err := agg.CheckAll(ctx)
	require.NoError(t, err)

	router := NewRouter(agg)

	for _, path := range []string{"/healthz/live", "/healthz/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRouterReadyReflectsCriticalCheck(t *testing.T) {
	agg := NewAggregator(&AggregatorConfig{Timeout: time.Second, ParallelChecks: false})
	ctx := context.Background()
	require.NoError(t, agg.RegisterCheck(ctx, NewBasicChecker("bad", "", func(context.Context) error {
		return errors.New("boom")
	})))
	_, err := agg.CheckAll(ctx)
	require.NoError(t, err)

	router := NewRouter(agg)

	req := httptest.NewRequest(http.MethodGet, "/healthz/ready", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouterFullStatusReturnsJSON(t *testing.T) {
	agg := NewAggregator(&AggregatorConfig{Timeout: time.Second, ParallelChecks: false})
	ctx := context.Background()
	require.NoError(t, agg.RegisterCheck(ctx, NewBasicChecker("ok", "", func(context.Context) error { return nil })))

	router := NewRouter(agg)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "overall_status")
}
