package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchBeforeStartFails(t *testing.T) {
	d := NewDispatcher(nil)
	err := d.Dispatch(context.Background(), &Event{Type: EventTypeModuleComposed, Source: "x"})
	require.ErrorIs(t, err, ErrDispatcherNotRunning)
}

func TestDispatchNilEventFails(t *testing.T) {
	d := NewDispatcher(nil)
	require.NoError(t, d.Start(context.Background()))
	defer d.Stop(context.Background())

	err := d.Dispatch(context.Background(), nil)
	require.ErrorIs(t, err, ErrEventCannotBeNil)
}

func TestDispatchDeliversToMatchingObserversOnly(t *testing.T) {
	d := NewDispatcher(nil)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	defer d.Stop(ctx)

	var mu sync.Mutex
	var gotComposed, gotDeleted int

	composed := NewBasicObserver("composed", []EventType{EventTypeModuleComposed}, 0, func(_ context.Context, e *Event) error {
		mu.Lock()
		gotComposed++
		mu.Unlock()
		return nil
	})
	deleted := NewBasicObserver("deleted", []EventType{EventTypeModuleDeleted}, 0, func(_ context.Context, e *Event) error {
		mu.Lock()
		gotDeleted++
		mu.Unlock()
		return nil
	})
	require.NoError(t, d.RegisterObserver(ctx, composed))
	require.NoError(t, d.RegisterObserver(ctx, deleted))

	require.NoError(t, d.Dispatch(ctx, &Event{Type: EventTypeModuleComposed, Source: "a"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotComposed == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 0, gotDeleted)
	mu.Unlock()
}

func TestDispatchDeliversInPriorityOrder(t *testing.T) {
	d := NewDispatcher(nil)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	defer d.Stop(ctx)

	var mu sync.Mutex
	var order []string

	low := NewBasicObserver("low", nil, 0, func(_ context.Context, e *Event) error {
		mu.Lock()
		order = append(order, "low")
		mu.Unlock()
		return nil
	})
	high := NewBasicObserver("high", nil, 10, func(_ context.Context, e *Event) error {
		mu.Lock()
		order = append(order, "high")
		mu.Unlock()
		return nil
	})
	require.NoError(t, d.RegisterObserver(ctx, low))
	require.NoError(t, d.RegisterObserver(ctx, high))

	require.NoError(t, d.Dispatch(ctx, &Event{Type: EventTypeModuleComposed, Source: "a"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"high", "low"}, order)
	mu.Unlock()
}

func TestUnregisterObserverStopsDelivery(t *testing.T) {
	d := NewDispatcher(nil)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	defer d.Stop(ctx)

	var mu sync.Mutex
	count := 0
	observer := NewBasicObserver("obs", nil, 0, func(_ context.Context, e *Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	require.NoError(t, d.RegisterObserver(ctx, observer))
	require.NoError(t, d.UnregisterObserver(ctx, "obs"))

	require.NoError(t, d.Dispatch(ctx, &Event{Type: EventTypeModuleComposed, Source: "a"}))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 0, count)
	mu.Unlock()
}

func TestStoreAndQueryByTimeRange(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	early := &Event{ID: "e1", Source: "physics", Timestamp: time.Now().Add(-time.Hour)}
	late := &Event{ID: "e2", Source: "physics", Timestamp: time.Now()}
	require.NoError(t, store.Store(ctx, early))
	require.NoError(t, store.Store(ctx, late))

	since := time.Now().Add(-time.Minute)
	history, err := store.GetEventHistory(ctx, "physics", since)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "e2", history[0].ID)
}

func TestSinkAdapterTranslatesTransition(t *testing.T) {
	d := NewDispatcher(nil)
	ctx := context.Background()
	require.NoError(t, d.Start(ctx))
	defer d.Stop(ctx)

	var mu sync.Mutex
	var got *Event
	observer := NewBasicObserver("obs", nil, 0, func(_ context.Context, e *Event) error {
		mu.Lock()
		got = e
		mu.Unlock()
		return nil
	})
	require.NoError(t, d.RegisterObserver(ctx, observer))

	adapter := NewSinkAdapter(d)
	adapter.Dispatch(ctx, "physics", "composing", "failed", "missing dependency")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "physics", got.Source)
	assert.Equal(t, LifecyclePhase("composing"), got.Phase)
	assert.Equal(t, EventStatusFailed, got.Status)
	assert.Equal(t, "missing dependency", got.Message)
}
