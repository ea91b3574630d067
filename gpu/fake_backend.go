package gpu

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/forgekernel/kernel/kernel"
)

// FakeBackend is a minimal in-memory Backend used by cmdbuffer's tests. It
// never actually submits anything to a GPU; SubmitCommands signals the
// given fence synchronously and records the call for assertions, which is
// sufficient to exercise the manager's ring/scope bookkeeping without a
// real backend.
type FakeBackend struct {
	mu sync.Mutex

	events *kernel.Dispatcher

	fenceSeq       uint64
	semSeq         uint64
	cmdSeq         uint64
	fbSeq          uint64
	signalled      map[Fence]bool
	submissions    []FakeSubmission
	failNextSubmit bool
}

// FakeSubmission records one SubmitCommands/ThreadEndFrame call.
type FakeSubmission struct {
	Buffers []CommandBuffer
	Waits   []SemaphoreWait
	Signals []Semaphore
	Fence   Fence
}

// NewFakeBackend returns an empty FakeBackend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		events:    kernel.NewDispatcher(),
		signalled: make(map[Fence]bool),
	}
}

var fakeBackendSurface = kernel.TypeListOf(
	kernel.TypeIDOf[DeviceCreated](),
	kernel.TypeIDOf[DeviceBeforeDestroy](),
)

func (b *FakeBackend) Events() *kernel.Dispatcher { return b.events }

// EmitDeviceCreated and EmitDeviceBeforeDestroy let tests drive the
// backend's lifecycle events directly.
func (b *FakeBackend) EmitDeviceCreated()       { _, _ = kernel.Send(b.events, DeviceCreated{}) }
func (b *FakeBackend) EmitDeviceBeforeDestroy() { _, _ = kernel.Send(b.events, DeviceBeforeDestroy{}) }

func (b *FakeBackend) CmdBegin(ctx context.Context, buf CommandBuffer) error           { return nil }
func (b *FakeBackend) CmdEnd(ctx context.Context, buf CommandBuffer) error             { return nil }
func (b *FakeBackend) CmdBeginRenderPass(ctx context.Context, buf CommandBuffer) error { return nil }
func (b *FakeBackend) CmdEndRenderPass(ctx context.Context, buf CommandBuffer) error   { return nil }

func (b *FakeBackend) SubmitCommands(ctx context.Context, buffers []CommandBuffer, waits []SemaphoreWait, signals []Semaphore, fence Fence) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNextSubmit {
		b.failNextSubmit = false
		return errSubmitRejected
	}
	b.submissions = append(b.submissions, FakeSubmission{Buffers: buffers, Waits: waits, Signals: signals, Fence: fence})
	b.signalled[fence] = true
	return nil
}

// FailNextSubmit makes the next SubmitCommands/ThreadEndFrame call fail,
// exercising the manager's FrameSubmissionFailed path.
func (b *FakeBackend) FailNextSubmit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNextSubmit = true
}

func (b *FakeBackend) CreateFence(ctx context.Context) (Fence, error) {
	return Fence(atomic.AddUint64(&b.fenceSeq, 1)), nil
}

func (b *FakeBackend) DestroyFence(ctx context.Context, f Fence) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.signalled, f)
	return nil
}

func (b *FakeBackend) ClientWaitFence(ctx context.Context, f Fence, timeout time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.signalled[f] {
		return ErrFenceWaitTimeout
	}
	return nil
}

func (b *FakeBackend) CreateSemaphore(ctx context.Context) (Semaphore, error) {
	return Semaphore(atomic.AddUint64(&b.semSeq, 1)), nil
}

func (b *FakeBackend) DestroySemaphore(ctx context.Context, s Semaphore) error { return nil }

func (b *FakeBackend) ThreadBeginFrame(ctx context.Context) (Framebuffer, uint64, error) {
	return Framebuffer(atomic.AddUint64(&b.fbSeq, 1)), atomic.LoadUint64(&b.fbSeq), nil
}

func (b *FakeBackend) ThreadEndFrame(ctx context.Context, fence Fence, buffers []CommandBuffer, fb Framebuffer, waits []SemaphoreWait, signals []Semaphore) error {
	return b.SubmitCommands(ctx, buffers, waits, signals, fence)
}

func (b *FakeBackend) AcquireCommandBuffer(ctx context.Context) (CommandBuffer, error) {
	return CommandBuffer(atomic.AddUint64(&b.cmdSeq, 1)), nil
}

// Submissions returns a snapshot of every successful SubmitCommands call,
// in call order — used to assert submission order equals recording order.
func (b *FakeBackend) Submissions() []FakeSubmission {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]FakeSubmission, len(b.submissions))
	copy(out, b.submissions)
	return out
}

var errSubmitRejected = &submitRejectedError{}

type submitRejectedError struct{}

func (*submitRejectedError) Error() string { return "gpu: fake backend rejected submission" }

// FakeVRBackend embeds FakeBackend and additionally implements VRBackend,
// for tests exercising BeginVRFrame/EndVRFrame. Plain FakeBackend
// deliberately omits VR support so cmdbuffer's ErrVRNotSupported path has
// a backend to assert against.
type FakeVRBackend struct {
	*FakeBackend

	vrFbSeq uint64
}

// NewFakeVRBackend returns an empty FakeVRBackend.
func NewFakeVRBackend() *FakeVRBackend {
	return &FakeVRBackend{FakeBackend: NewFakeBackend()}
}

func (b *FakeVRBackend) ThreadBeginVRFrame(ctx context.Context) (Framebuffer, uint64, error) {
	return Framebuffer(atomic.AddUint64(&b.vrFbSeq, 1)), atomic.LoadUint64(&b.vrFbSeq), nil
}

func (b *FakeVRBackend) ThreadEndVRFrame(ctx context.Context, fence Fence, buffers []CommandBuffer, fb Framebuffer, waits []SemaphoreWait, signals []Semaphore) error {
	return b.SubmitCommands(ctx, buffers, waits, signals, fence)
}
