package thread

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgekernel/kernel/kernel"
)

// attachTestModule is a minimal kernel.Instance used only to exercise
// AttachAcrossThreads/DetachAcrossThreads; it declares no message surface.
type attachTestModule struct {
	*kernel.Base
}

func newAttachTestModule(name string, threadID ThreadID, classRank int) *attachTestModule {
	m := &attachTestModule{}
	m.Base = kernel.NewBase(m, kernel.BaseConfig{
		ClassID:   kernel.TypeIDOf[attachTestModule](),
		ClassRank: classRank,
		Name:      name,
		ThreadID:  threadID,
	})
	return m
}

// spawnDrainingHost starts a Host whose entry loop repeatedly drains its
// queue until ctx is cancelled, standing in for a real cooperative Update
// loop so pushed async attach tasks actually execute.
func spawnDrainingHost(ctx context.Context, name string) *Host {
	return Spawn(ctx, HostConfig{Name: name}, func(ctx context.Context, h *Host) {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, fn := range h.queue.Drain() {
					fn(ctx)
				}
			}
		}
	})
}

// TestAttachAcrossThreadsRoundTrips: a parent P lives on thread A, a child
// C lives on thread B. Issuing the attach from thread B's perspective
// (sourceID = B) with wait=true must round-trip through thread A's queue
// and leave both edges of the parent/child relationship in place before
// returning.
func TestAttachAcrossThreadsRoundTrips(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hostA := spawnDrainingHost(ctx, "A")
	hostB := spawnDrainingHost(ctx, "B")

	parent := newAttachTestModule("parent", hostA.ID(), 100)
	child := newAttachTestModule("child", hostB.ID(), 10)

	var attachErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		attachErr = AttachAcrossThreads(ctx, hostA.ID(), hostB.ID(), "child", parent.Base, child.Base, true)
	}()
	wg.Wait()

	require.NoError(t, attachErr)
	assert.Same(t, child.Base, parent.FindModuleByID(child.ID()))
	parents := child.Parents()
	require.Len(t, parents, 1)
	assert.Equal(t, parent.ID(), parents[0].ID())

	cancel()
	require.NoError(t, hostA.Join(context.Background()))
	require.NoError(t, hostB.Join(context.Background()))
}

// TestAttachAcrossThreadsNoWaitReturnsImmediately exercises the
// fire-and-forget path: the call returns as soon as the task is enqueued,
// before the attach has necessarily run.
func TestAttachAcrossThreadsNoWaitReturnsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hostA := spawnDrainingHost(ctx, "A")
	defer func() { cancel(); _ = hostA.Join(context.Background()) }()

	parent := newAttachTestModule("parent", hostA.ID(), 100)
	child := newAttachTestModule("child", ThreadID(999), 10)

	err := AttachAcrossThreads(ctx, hostA.ID(), 0, "child", parent.Base, child.Base, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return parent.FindModuleByID(child.ID()) != nil
	}, time.Second, time.Millisecond)
}

// TestDetachAcrossThreadsRoundTrips exercises the cross-thread detach
// counterpart.
func TestDetachAcrossThreadsRoundTrips(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hostA := spawnDrainingHost(ctx, "A")
	defer func() { cancel(); _ = hostA.Join(context.Background()) }()

	parent := newAttachTestModule("parent", hostA.ID(), 100)
	child := newAttachTestModule("child", hostA.ID(), 10)
	require.NoError(t, parent.Attach(ctx, "child", child.Base))

	err := DetachAcrossThreads(ctx, hostA.ID(), 0, parent.Base, child.Base, true)
	require.NoError(t, err)
	assert.Nil(t, parent.FindModuleByID(child.ID()))
	assert.Empty(t, child.Parents())
}

func TestAttachAcrossThreadsEnqueueFailsOnUnknownThread(t *testing.T) {
	parent := newAttachTestModule("parent", ThreadID(1), 100)
	child := newAttachTestModule("child", ThreadID(2), 10)

	err := AttachAcrossThreads(context.Background(), ThreadID(999999), 0, "child", parent.Base, child.Base, true)
	require.ErrorIs(t, err, ErrHostClosed)
}
