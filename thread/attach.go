package thread

import (
	"context"
	"fmt"

	"github.com/forgekernel/kernel/kernel"
)

// AttachAcrossThreads is the cross-thread path named in kernel.Base's
// AttachManager doc comment: a manager-bearing module whose manager lives
// on another thread — or, more generally, any parent/child pair living on
// different Hosts — must route the attach through an async message to the
// thread that owns parent, since Attach mutates parent's children list.
//
// The mutation itself (parent.Attach) always runs on parentThread,
// regardless of which goroutine calls AttachAcrossThreads. If wait is
// true, the call blocks (bounded by DefaultTaskJoinTimeout) until the
// attach has actually executed and returns its result; the initiator gets
// back an event-driven handle rather than polling. If wait is false,
// AttachAcrossThreads returns as soon as the task is enqueued — a nil
// error there means "enqueued", not "succeeded".
func AttachAcrossThreads(ctx context.Context, parentThread, sourceID ThreadID, name string, parent, child kernel.Instance, wait bool) error {
	done := NewSyncEvent()
	var attachErr error

	if _, err := PushAsyncTo(parentThread, sourceID, func(taskCtx context.Context) {
		attachErr = parent.Attach(taskCtx, name, child)
		done.Signal()
	}); err != nil {
		return fmt.Errorf("thread: cross-thread attach enqueue failed: %w", err)
	}
	if !wait {
		return nil
	}

	if err := done.WaitTimeout(DefaultTaskJoinTimeout); err != nil {
		return fmt.Errorf("thread: cross-thread attach task join: %w", err)
	}
	return attachErr
}

// DetachAcrossThreads is Detach's counterpart to AttachAcrossThreads:
// detaching a child in another thread is legal, scheduled via an async
// message to the child's manager thread. parentThread here is whichever
// Host owns the module the detach must run on — typically the child's
// manager's thread.
func DetachAcrossThreads(ctx context.Context, parentThread, sourceID ThreadID, parent, child kernel.Instance, wait bool) error {
	done := NewSyncEvent()
	var detachErr error

	if _, err := PushAsyncTo(parentThread, sourceID, func(taskCtx context.Context) {
		detachErr = parent.Detach(taskCtx, child)
		done.Signal()
	}); err != nil {
		return fmt.Errorf("thread: cross-thread detach enqueue failed: %w", err)
	}
	if !wait {
		return nil
	}

	if err := done.WaitTimeout(DefaultTaskJoinTimeout); err != nil {
		return fmt.Errorf("thread: cross-thread detach task join: %w", err)
	}
	return detachErr
}
