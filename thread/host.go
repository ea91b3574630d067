package thread

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/forgekernel/kernel/kernel"
)

// ThreadID re-exports kernel.ThreadID so package thread does not force
// callers to import kernel just to name a thread.
type ThreadID = kernel.ThreadID

var hostSeq uint64

// directory is the process-wide map from ThreadID to the Host that owns
// it, used to route PushAsync calls by target thread. It is the thread
// package's half of the platform thread spawn/join external interface.
var (
	directoryMu sync.RWMutex
	directory   = make(map[ThreadID]*Host)
)

// Host is the per-OS-thread cooperative scheduler: a goroutine-pinned
// update loop owning a Queue and a root kernel.Instance
// whose subtree lives entirely on this thread. Every module attached
// under Root must have been created with ThreadID() == Host.ID().
type Host struct {
	id     ThreadID
	name   string
	clock  Clock
	queue  *Queue
	logger kernel.Logger

	root   kernel.Instance
	rootMu sync.Mutex

	done     chan struct{}
	closing  atomic.Bool
	joinOnce sync.Once
}

// HostConfig configures a new Host.
type HostConfig struct {
	Name               string
	HighWaterMark      int
	Clock              Clock
	Logger             kernel.Logger
	ForcedFlushWarning func(name string, depth int)
}

// Spawn starts a new Host on its own goroutine running entry, and
// registers it in the routing directory so PushAsync(host.ID(), ...) from
// any other goroutine reaches it. entry receives ctx unchanged; the Host
// never cancels it, and Join only waits for entry to return.
func Spawn(ctx context.Context, cfg HostConfig, entry func(ctx context.Context, h *Host)) *Host {
	logger := cfg.Logger
	if logger == nil {
		logger = kernel.NopLogger{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = NewSystemClock()
	}

	h := &Host{
		id:     ThreadID(atomic.AddUint64(&hostSeq, 1)),
		name:   cfg.Name,
		clock:  clock,
		queue:  NewQueue(cfg.HighWaterMark),
		logger: logger,
		done:   make(chan struct{}),
	}
	if cfg.ForcedFlushWarning != nil {
		h.queue.SetForcedFlushHook(func(depth int) { cfg.ForcedFlushWarning(h.name, depth) })
	} else {
		h.queue.SetForcedFlushHook(func(depth int) {
			logger.Warn("thread: forced queue flush", "host", h.name, "depth", depth)
		})
	}

	directoryMu.Lock()
	directory[h.id] = h
	directoryMu.Unlock()

	go func() {
		defer func() {
			directoryMu.Lock()
			delete(directory, h.id)
			directoryMu.Unlock()
			close(h.done)
		}()
		entry(ctx, h)
	}()

	return h
}

// ID returns the thread identity assigned to this Host.
func (h *Host) ID() ThreadID { return h.id }

// Name returns the Host's debug name.
func (h *Host) Name() string { return h.name }

// Clock returns the Host's monotonic clock.
func (h *Host) Clock() Clock { return h.clock }

// SetRoot attaches the module subtree this Host drives with Tick. Modules
// under root must have been constructed with ThreadID == h.ID().
func (h *Host) SetRoot(root kernel.Instance) {
	h.rootMu.Lock()
	defer h.rootMu.Unlock()
	h.root = root
}

// Root returns the Host's root module, or nil if none has been set.
func (h *Host) Root() kernel.Instance {
	h.rootMu.Lock()
	defer h.rootMu.Unlock()
	return h.root
}

// PushAsync is the only legal cross-thread communication path: it may be
// called from any goroutine and never blocks. It returns the pending-ring
// depth observed at enqueue time. sourceID identifies the calling thread
// for FIFO-ordering purposes; pass 0 if the caller is not itself a Host.
func (h *Host) PushAsync(sourceID ThreadID, fn func(ctx context.Context)) (depth int, err error) {
	depth, _, err = h.queue.Push(sourceID, fn)
	return depth, err
}

// PushAsyncTo looks up the Host registered for target and calls
// PushAsync on it, failing with ErrHostClosed if no such Host is
// currently registered (it already exited or was never spawned).
func PushAsyncTo(target ThreadID, sourceID ThreadID, fn func(ctx context.Context)) (depth int, err error) {
	directoryMu.RLock()
	h, ok := directory[target]
	directoryMu.RUnlock()
	if !ok {
		return 0, ErrHostClosed
	}
	return h.PushAsync(sourceID, fn)
}

// CurrentID is unused directly by Go code (goroutines have no stable OS
// thread identity); callers instead thread a Host reference through their
// call stack. CurrentID is kept to complete the external-interface shape
// for any platform package that later binds it to a real OS thread ID.
func CurrentID(h *Host) ThreadID { return h.ID() }

// Tick runs one cooperative update step on the calling goroutine, which
// must be the goroutine running this Host's entry function: (a) drain the
// async queue, invoking each closure; (b) broadcast Update to the root
// module's subtree, if one is set.
func (h *Host) Tick(ctx context.Context, deltaTime float64) error {
	for _, fn := range h.queue.Drain() {
		fn(ctx)
	}

	root := h.Root()
	if root == nil {
		return nil
	}
	return root.Update(ctx, deltaTime)
}

// QueueDepth reports the current pending-ring length; used by package
// health to feed the liveness/readiness view.
func (h *Host) QueueDepth() int { return h.queue.Depth() }

// Close begins an orderly shutdown of the Host: it first prevents further
// enqueues, drains whatever remains in the queue exactly once, then
// transitions the root subtree to Deleting. It does not stop the
// goroutine that called Spawn's entry function — entry is expected to
// observe ctx.Done() or call Close itself and return.
func (h *Host) Close(ctx context.Context) error {
	if !h.closing.CompareAndSwap(false, true) {
		return nil
	}
	h.queue.Close()
	for _, fn := range h.queue.Drain() {
		fn(ctx)
	}

	root := h.Root()
	if root == nil {
		return nil
	}
	return root.Delete(ctx)
}

// Join blocks until the Host's entry function returns, or ctx is done.
func (h *Host) Join(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
