package thread

import "errors"

var (
	// ErrHostClosed is returned by PushAsync once a Host has begun shutting
	// down, and by PushAsyncTo when no Host is registered for the target;
	// no further enqueue succeeds after Close.
	ErrHostClosed = errors.New("thread: host is closed")

	// ErrQueueOverflow is returned when a forced drain still leaves the
	// pending ring over its hard ceiling — a back-pressure signal to the
	// caller, not a dropped message; the message itself is never lost.
	ErrQueueOverflow = errors.New("thread: queue exceeded hard ceiling after forced drain")

	// ErrWaitTimeout is returned by SyncEvent.WaitTimeout and WaitContext
	// when the deadline elapses before the event is signalled.
	ErrWaitTimeout = errors.New("thread: wait exceeded timeout")

	// ErrAlreadySignalled is not returned by SyncEvent: Signal on an
	// already-signalled event is a no-op.
	ErrAlreadySignalled = errors.New("thread: sync event already signalled")
)
