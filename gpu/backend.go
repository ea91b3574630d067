package gpu

import (
	"context"
	"time"

	"github.com/forgekernel/kernel/kernel"
)

// Fence, Semaphore and CommandBuffer are opaque handles owned by the
// backend; cmdbuffer never inspects their contents, only passes them back
// to the backend that minted them.
type (
	Fence         uint64
	Semaphore     uint64
	CommandBuffer uint64
	Framebuffer   uint64
)

// PipelineStageMask tags the pipeline stage(s) a wait-semaphore blocks,
// per the SubmitCommands contract.
type PipelineStageMask uint32

// SemaphoreWait pairs a semaphore with the stage mask it gates.
type SemaphoreWait struct {
	Semaphore Semaphore
	StageMask PipelineStageMask
}

// DeviceCreated is the backend lifecycle event fired after a GPU device
// is (re-)initialized. The command-buffer manager's parent re-composes it
// in response; the manager itself performs no device-lifetime logic.
type DeviceCreated struct{}

// DeviceBeforeDestroy is the backend lifecycle event fired before a GPU
// device is torn down. The command-buffer manager must wait on every
// outstanding fence and invoke all pending callbacks before this returns.
type DeviceBeforeDestroy struct{}

// Backend is the GPU backend surface: the core does not prescribe a wire
// protocol, only this set of message contracts.
// Concrete backends are always out of scope; tests substitute a fake.
type Backend interface {
	// Events is the dispatcher on which DeviceCreated and
	// DeviceBeforeDestroy are published; cmdbuffer subscribes to it.
	Events() *kernel.Dispatcher

	CmdBegin(ctx context.Context, buf CommandBuffer) error
	CmdEnd(ctx context.Context, buf CommandBuffer) error
	CmdBeginRenderPass(ctx context.Context, buf CommandBuffer) error
	CmdEndRenderPass(ctx context.Context, buf CommandBuffer) error

	// SubmitCommands issues an ordered list of recorded buffers with the
	// given waits/signals and the fence to raise on completion.
	SubmitCommands(ctx context.Context, buffers []CommandBuffer, waits []SemaphoreWait, signals []Semaphore, fence Fence) error

	CreateFence(ctx context.Context) (Fence, error)
	DestroyFence(ctx context.Context, f Fence) error
	// ClientWaitFence blocks the calling (GPU) thread until f is signalled
	// or the timeout elapses, returning ErrFenceWaitTimeout on expiry.
	ClientWaitFence(ctx context.Context, f Fence, timeout time.Duration) error

	CreateSemaphore(ctx context.Context) (Semaphore, error)
	DestroySemaphore(ctx context.Context, s Semaphore) error

	// ThreadBeginFrame opens a frame and returns its framebuffer and the
	// backend's own frame counter.
	ThreadBeginFrame(ctx context.Context) (Framebuffer, uint64, error)
	// ThreadEndFrame submits the frame's aggregated command buffers.
	ThreadEndFrame(ctx context.Context, fence Fence, buffers []CommandBuffer, fb Framebuffer, waits []SemaphoreWait, signals []Semaphore) error

	// AcquireCommandBuffer returns a command buffer ready for CmdBegin,
	// reusing one from the backend's free list where possible.
	AcquireCommandBuffer(ctx context.Context) (CommandBuffer, error)
}

// VRBackend is the optional capability interface a Backend may also
// implement to support BeginVRFrame/EndVRFrame; cmdbuffer type-asserts
// for it rather than requiring every backend to implement it.
type VRBackend interface {
	ThreadBeginVRFrame(ctx context.Context) (Framebuffer, uint64, error)
	ThreadEndVRFrame(ctx context.Context, fence Fence, buffers []CommandBuffer, fb Framebuffer, waits []SemaphoreWait, signals []Semaphore) error
}
