package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAllAggregatesWorstState(t *testing.T) {
	agg := NewAggregator(&AggregatorConfig{Timeout: time.Second, ParallelChecks: false})
	ctx := context.Background()

	require.NoError(t, agg.RegisterCheck(ctx, NewBasicChecker("ok", "", func(context.Context) error { return nil })))
	require.NoError(t, agg.RegisterCheck(ctx, NewBasicChecker("bad", "", func(context.Context) error { return errors.New("boom") })))

	status, err := agg.CheckAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCritical, status.OverallStatus)
	assert.Equal(t, 1, status.Summary.PassingChecks)
	assert.Equal(t, 1, status.Summary.CriticalChecks)
}

func TestReadinessExcludesLivenessOnlyChecks(t *testing.T) {
	agg := NewAggregator(&AggregatorConfig{Timeout: time.Second})
	ctx := context.Background()

	require.NoError(t, agg.RegisterCheck(ctx, NewTypedChecker("queue", "", CheckTypeLiveness, func(context.Context) error {
		return errors.New("overloaded")
	})))

	status, err := agg.CheckAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCritical, status.OverallStatus)
	assert.Equal(t, StatusHealthy, status.ReadinessStatus, "a liveness-only failure must not block readiness")
	assert.Equal(t, StatusCritical, status.LivenessStatus)
}

func TestConsecutiveFailureTrendAccumulates(t *testing.T) {
	agg := NewAggregator(&AggregatorConfig{Timeout: time.Second})
	ctx := context.Background()

	calls := 0
	require.NoError(t, agg.RegisterCheck(ctx, NewBasicChecker("flaky", "", func(context.Context) error {
		calls++
		return errors.New("still down")
	})))

	_, err := agg.CheckOne(ctx, "flaky")
	require.NoError(t, err)
	result, err := agg.CheckOne(ctx, "flaky")
	require.NoError(t, err)
	assert.Equal(t, 2, result.ConsecutiveFailures)
}

func TestUnregisterUnknownCheckFails(t *testing.T) {
	agg := NewAggregator(nil)
	err := agg.UnregisterCheck(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrHealthCheckNotFound)
}

func TestIsReadyReflectsAggregatedState(t *testing.T) {
	agg := NewAggregator(&AggregatorConfig{Timeout: time.Second})
	ctx := context.Background()
	require.NoError(t, agg.RegisterCheck(ctx, NewBasicChecker("ok", "", func(context.Context) error { return nil })))

	_, err := agg.CheckAll(ctx)
	require.NoError(t, err)

	ready, err := agg.IsReady(ctx)
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestMonitorStartStopIsIdempotentlySafe(t *testing.T) {
	agg := NewAggregator(nil)
	mon := NewMonitor(agg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, mon.StartMonitoring(ctx, 10*time.Millisecond))
	require.ErrorIs(t, mon.StartMonitoring(ctx, 10*time.Millisecond), ErrMonitoringAlreadyRunning)
	assert.True(t, mon.IsMonitoring())

	require.NoError(t, mon.StopMonitoring(context.Background()))
	assert.False(t, mon.IsMonitoring())
}

func TestMonitorRecordsHistory(t *testing.T) {
	agg := NewAggregator(&AggregatorConfig{Timeout: time.Second, HistorySize: 10})
	ctx := context.Background()
	require.NoError(t, agg.RegisterCheck(ctx, NewBasicChecker("ok", "", func(context.Context) error { return nil })))

	mon := NewMonitor(agg)
	runCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, mon.StartMonitoring(runCtx, 5*time.Millisecond))

	require.Eventually(t, func() bool {
		history, _ := mon.GetHistory(context.Background(), "ok", time.Now().Add(-time.Minute))
		return len(history) > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, mon.StopMonitoring(context.Background()))
}
