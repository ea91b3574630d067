package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronScheduleRejectsInvalidExpression(t *testing.T) {
	agg := NewAggregator(&AggregatorConfig{Timeout: time.Second})
	sched := NewCronSchedule(agg)

	err := sched.AddJob("deep", "not a cron expression")
	require.ErrorIs(t, err, ErrInvalidCronExpression)
}

func TestCronScheduleRunsRegisteredCheckOnSchedule(t *testing.T) {
	agg := NewAggregator(&AggregatorConfig{Timeout: time.Second})
	ctx := context.Background()

	var calls int
	var mu sync.Mutex
	require.NoError(t, agg.RegisterCheck(ctx, NewTypedChecker("deep", "", CheckTypeDeepHealth, func(context.Context) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})))

	sched := NewCronSchedule(agg)
	results := make(chan string, 4)
	sched.SetResultCallback(func(name string, result *CheckResult) {
		results <- name
	})

	require.NoError(t, sched.AddJob("deep", "@every 10ms"))
	sched.Start()
	defer func() { _ = sched.Stop(context.Background()) }()

	select {
	case name := <-results:
		assert.Equal(t, "deep", name)
	case <-time.After(2 * time.Second):
		t.Fatal("expected cron schedule to invoke the registered check")
	}
}

func TestCronScheduleRemoveJobStopsFutureRuns(t *testing.T) {
	agg := NewAggregator(&AggregatorConfig{Timeout: time.Second})
	ctx := context.Background()
	require.NoError(t, agg.RegisterCheck(ctx, NewTypedChecker("deep", "", CheckTypeDeepHealth, func(context.Context) error { return nil })))

	sched := NewCronSchedule(agg)
	require.NoError(t, sched.AddJob("deep", "@every 10ms"))
	sched.RemoveJob("deep")

	results := make(chan string, 4)
	sched.SetResultCallback(func(name string, result *CheckResult) { results <- name })
	sched.Start()
	defer func() { _ = sched.Stop(context.Background()) }()

	select {
	case <-results:
		t.Fatal("expected no runs after RemoveJob")
	case <-time.After(50 * time.Millisecond):
	}
}
