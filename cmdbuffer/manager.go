package cmdbuffer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/forgekernel/kernel/gpu"
	"github.com/forgekernel/kernel/kernel"
)

var eventSurface = kernel.TypeListOf(kernel.TypeIDOf[kernel.FrameSubmissionFailedEvent]())

// ManagerConfig configures a new Manager.
type ManagerConfig struct {
	Name       string
	ClassRank  int
	ThreadID   kernel.ThreadID
	RingLength int
	Backend    gpu.Backend
	Logger     kernel.Logger

	// FenceWaitTimeout bounds every client-side fence wait issued during
	// frame reclamation; zero selects DefaultFenceWaitTimeout.
	FenceWaitTimeout time.Duration
}

// DefaultFenceWaitTimeout bounds client-side fence waits when the
// configuration leaves FenceWaitTimeout unset.
const DefaultFenceWaitTimeout = 5 * time.Second

// Manager is the command-buffer manager: a kernel module owning a ring of
// N frame records and the begin/end scope machine, submitting one
// aggregated command-buffer batch per frame to a gpu.Backend.
type Manager struct {
	*kernel.Base

	mu sync.Mutex

	backend    gpu.Backend
	logger     kernel.Logger
	ringLength int
	fenceWait  time.Duration

	ringIndex  int
	frameIndex uint64
	scope      Scope
	vrFrame    bool

	records []frameRecord

	freeCmdBufs []gpu.CommandBuffer
	currentCmd  gpu.CommandBuffer
	currentFB   gpu.Framebuffer
}

// NewManager constructs a Manager with an N-slot ring (N = cfg.RingLength,
// must be >= 2). The manager subscribes to the backend's DeviceCreated and
// DeviceBeforeDestroy events during OnLink.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.RingLength < 2 {
		return nil, ErrRingLengthTooSmall
	}
	logger := cfg.Logger
	if logger == nil {
		logger = kernel.NopLogger{}
	}

	fenceWait := cfg.FenceWaitTimeout
	if fenceWait <= 0 {
		fenceWait = DefaultFenceWaitTimeout
	}

	m := &Manager{
		backend:    cfg.Backend,
		logger:     logger,
		ringLength: cfg.RingLength,
		fenceWait:  fenceWait,
		ringIndex:  -1,
		records:    make([]frameRecord, cfg.RingLength),
	}
	m.Base = kernel.NewBase(m, kernel.BaseConfig{
		ClassID:      kernel.TypeIDOf[Manager](),
		ClassRank:    cfg.ClassRank,
		Name:         cfg.Name,
		ThreadID:     cfg.ThreadID,
		EventSurface: eventSurface,
	})
	return m, nil
}

// OnLink subscribes the manager to its backend's device lifecycle events,
// satisfying kernel.Linkable.
func (m *Manager) OnLink(ctx context.Context) error {
	if m.backend == nil {
		return ErrNoBackend
	}
	surface := kernel.TypeListOf(
		kernel.TypeIDOf[gpu.DeviceCreated](),
		kernel.TypeIDOf[gpu.DeviceBeforeDestroy](),
	)
	if err := kernel.Subscribe(m.backend.Events(), surface, m.Base, func(gpu.DeviceCreated) error {
		return m.onDeviceCreated(ctx)
	}, nil); err != nil {
		return err
	}
	return kernel.Subscribe(m.backend.Events(), surface, m.Base, func(gpu.DeviceBeforeDestroy) error {
		return m.onDeviceBeforeDestroy(ctx)
	}, nil)
}

// onDeviceCreated implements the "no-op, parent recomposes" recovery path.
func (m *Manager) onDeviceCreated(ctx context.Context) error {
	m.logger.Info("cmdbuffer: device created, awaiting recompose", "module", m.Name())
	return nil
}

// onDeviceBeforeDestroy waits on every outstanding fence, invokes all
// pending callbacks in slot order, clears all rings, and deletes the
// manager.
func (m *Manager) onDeviceBeforeDestroy(ctx context.Context) error {
	m.mu.Lock()
	callbacks := make([][]func(), len(m.records))
	fences := make([]gpu.Fence, 0, len(m.records))
	for i := range m.records {
		if m.records[i].fence != 0 {
			fences = append(fences, m.records[i].fence)
		}
		fences = append(fences, m.records[i].waitFences...)
		callbacks[i] = m.records[i].callbacks
	}
	m.mu.Unlock()

	for _, f := range fences {
		_ = m.backend.ClientWaitFence(ctx, f, m.fenceWait)
	}

	m.mu.Lock()
	for i := range m.records {
		for _, cb := range callbacks[i] {
			cb()
		}
		m.records[i].reset()
	}
	m.scope = ScopeNone
	m.mu.Unlock()

	return m.Delete(ctx)
}

// GetCurrentState returns the manager's last-opened framebuffer, the
// absolute frame index, the current ring slot, and the recording scope.
func (m *Manager) GetCurrentState() (gpu.Framebuffer, uint64, int, Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentFB, m.frameIndex, m.ringIndex, m.scope
}

// RingLength returns the number of slots in the manager's frame ring,
// for health/debug introspection.
func (m *Manager) RingLength() int {
	return m.ringLength
}

// BeginFrame advances the ring, reclaims the slot's completed resources,
// fires its due completion callbacks, and opens a new frame through the
// backend. Preconditions: composed and Scope == None.
func (m *Manager) BeginFrame(ctx context.Context) (gpu.Framebuffer, uint64, int, error) {
	if !m.State().IsComposed() {
		return 0, 0, 0, ErrNotComposed
	}

	m.mu.Lock()
	if m.scope != ScopeNone {
		m.mu.Unlock()
		return 0, 0, 0, fmt.Errorf("%w: BeginFrame requires Scope=None, have %s", ErrInvalidScope, m.scope)
	}
	m.ringIndex = (m.ringIndex + 1) % m.ringLength
	m.frameIndex++
	r := m.ringIndex
	rec := &m.records[r]

	waitFences := append([]gpu.Fence(nil), rec.waitFences...)
	if rec.fence != 0 {
		waitFences = append(waitFences, rec.fence)
	}
	owned := rec.owned
	callbacks := rec.callbacks
	m.mu.Unlock()

	for _, f := range waitFences {
		if err := m.backend.ClientWaitFence(ctx, f, m.fenceWait); err != nil {
			return 0, 0, 0, err
		}
	}

	m.mu.Lock()
	m.freeCmdBufs = append(m.freeCmdBufs, owned...)
	rec.reset()
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}

	fb, frameIdx, err := m.backend.ThreadBeginFrame(ctx)
	if err != nil {
		return 0, 0, 0, err
	}

	m.mu.Lock()
	m.currentFB = fb
	m.scope = ScopeFrame
	m.vrFrame = false
	m.mu.Unlock()

	return fb, frameIdx, r, nil
}

// BeginVRFrame is BeginFrame's VR-capable parallel: same
// ring-advance, fence-wait and completion-callback bookkeeping as
// BeginFrame, but opens the frame through the backend's VR entry point.
// Returns ErrVRNotSupported if the configured backend does not implement
// gpu.VRBackend.
func (m *Manager) BeginVRFrame(ctx context.Context) (gpu.Framebuffer, uint64, int, error) {
	vrBackend, ok := m.backend.(gpu.VRBackend)
	if !ok {
		return 0, 0, 0, ErrVRNotSupported
	}
	if !m.State().IsComposed() {
		return 0, 0, 0, ErrNotComposed
	}

	m.mu.Lock()
	if m.scope != ScopeNone {
		m.mu.Unlock()
		return 0, 0, 0, fmt.Errorf("%w: BeginVRFrame requires Scope=None, have %s", ErrInvalidScope, m.scope)
	}
	m.ringIndex = (m.ringIndex + 1) % m.ringLength
	m.frameIndex++
	r := m.ringIndex
	rec := &m.records[r]

	waitFences := append([]gpu.Fence(nil), rec.waitFences...)
	if rec.fence != 0 {
		waitFences = append(waitFences, rec.fence)
	}
	owned := rec.owned
	callbacks := rec.callbacks
	m.mu.Unlock()

	for _, f := range waitFences {
		if err := m.backend.ClientWaitFence(ctx, f, m.fenceWait); err != nil {
			return 0, 0, 0, err
		}
	}

	m.mu.Lock()
	m.freeCmdBufs = append(m.freeCmdBufs, owned...)
	rec.reset()
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}

	fb, frameIdx, err := vrBackend.ThreadBeginVRFrame(ctx)
	if err != nil {
		return 0, 0, 0, err
	}

	m.mu.Lock()
	m.currentFB = fb
	m.scope = ScopeFrame
	m.vrFrame = true
	m.mu.Unlock()

	return fb, frameIdx, r, nil
}

// EndFrame aggregates the current slot's owned and externally appended
// buffers and submits them through the backend. Preconditions: Scope ==
// Frame and this is not a VR frame.
func (m *Manager) EndFrame(ctx context.Context, fb gpu.Framebuffer) error {
	m.mu.Lock()
	if m.scope != ScopeFrame || m.vrFrame {
		m.mu.Unlock()
		return fmt.Errorf("%w: EndFrame requires Scope=Frame on a non-VR frame, have %s", ErrInvalidScope, m.scope)
	}
	r := m.ringIndex
	rec := &m.records[r]

	if rec.fence == 0 {
		m.mu.Unlock()
		fence, err := m.backend.CreateFence(ctx)
		if err != nil {
			return err
		}
		m.mu.Lock()
		rec.fence = fence
	}

	buffers := append(append([]gpu.CommandBuffer(nil), rec.owned...), rec.external...)
	waits := append([]gpu.SemaphoreWait(nil), rec.waitSemaphores...)
	signals := append([]gpu.Semaphore(nil), rec.signalSemaphores...)
	fence := rec.fence
	ringIdx := r
	frameIdx := m.frameIndex
	m.mu.Unlock()

	if err := m.backend.ThreadEndFrame(ctx, fence, buffers, fb, waits, signals); err != nil {
		m.handleSubmissionFailure(ctx, ringIdx, frameIdx, fence, err)
		m.setScope(ScopeNone)
		return err
	}

	m.mu.Lock()
	rec.waitSemaphores = nil
	m.scope = ScopeNone
	m.mu.Unlock()
	return nil
}

// EndVRFrame is EndFrame's VR-capable parallel, submitting through the
// backend's VR entry point. Preconditions: Scope == Frame and this frame
// was opened by BeginVRFrame. Returns ErrVRNotSupported if the configured
// backend does not implement gpu.VRBackend.
func (m *Manager) EndVRFrame(ctx context.Context, fb gpu.Framebuffer) error {
	vrBackend, ok := m.backend.(gpu.VRBackend)
	if !ok {
		return ErrVRNotSupported
	}

	m.mu.Lock()
	if m.scope != ScopeFrame || !m.vrFrame {
		m.mu.Unlock()
		return fmt.Errorf("%w: EndVRFrame requires Scope=Frame on a VR frame, have %s", ErrInvalidScope, m.scope)
	}
	r := m.ringIndex
	rec := &m.records[r]

	if rec.fence == 0 {
		m.mu.Unlock()
		fence, err := m.backend.CreateFence(ctx)
		if err != nil {
			return err
		}
		m.mu.Lock()
		rec.fence = fence
	}

	buffers := append(append([]gpu.CommandBuffer(nil), rec.owned...), rec.external...)
	waits := append([]gpu.SemaphoreWait(nil), rec.waitSemaphores...)
	signals := append([]gpu.Semaphore(nil), rec.signalSemaphores...)
	fence := rec.fence
	ringIdx := r
	frameIdx := m.frameIndex
	m.mu.Unlock()

	if err := vrBackend.ThreadEndVRFrame(ctx, fence, buffers, fb, waits, signals); err != nil {
		m.handleSubmissionFailure(ctx, ringIdx, frameIdx, fence, err)
		m.setScope(ScopeNone)
		m.setVRFrame(false)
		return err
	}

	m.mu.Lock()
	rec.waitSemaphores = nil
	m.scope = ScopeNone
	m.vrFrame = false
	m.mu.Unlock()
	return nil
}

// handleSubmissionFailure marks the slot free without invoking its
// callbacks and emits FrameSubmissionFailedEvent. The fence passed in was
// never signalled since the submission that would have
// signalled it never landed, so it is destroyed here rather than left in
// the slot for the next rotation's wait-fence step to hang on.
func (m *Manager) handleSubmissionFailure(ctx context.Context, ringIndex int, frameIndex uint64, fence gpu.Fence, cause error) {
	m.mu.Lock()
	m.records[ringIndex].reset()
	m.records[ringIndex].fence = 0
	m.mu.Unlock()

	if fence != 0 {
		_ = m.backend.DestroyFence(ctx, fence)
	}

	_, _ = kernel.Send(m.Events(), kernel.FrameSubmissionFailedEvent{
		RingIndex:  ringIndex,
		FrameIndex: frameIndex,
		Cause:      cause,
	})
	m.logger.Warn("cmdbuffer: frame submission failed", "module", m.Name(), "ring_index", ringIndex, "cause", cause)
}

func (m *Manager) setScope(s Scope) {
	m.mu.Lock()
	m.scope = s
	m.mu.Unlock()
}

func (m *Manager) setVRFrame(v bool) {
	m.mu.Lock()
	m.vrFrame = v
	m.mu.Unlock()
}

// Begin acquires a command buffer (from the free list, or a fresh one
// from the backend) and opens it for recording. Valid only in Scope ==
// Frame.
func (m *Manager) Begin(ctx context.Context) (gpu.CommandBuffer, error) {
	m.mu.Lock()
	if m.scope != ScopeFrame {
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: Begin requires Scope=Frame, have %s", ErrInvalidScope, m.scope)
	}
	m.mu.Unlock()

	buf, err := m.acquireCommandBuffer(ctx)
	if err != nil {
		return 0, err
	}
	if err := m.backend.CmdBegin(ctx, buf); err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.currentCmd = buf
	m.scope = ScopeCommand
	m.records[m.ringIndex].owned = append(m.records[m.ringIndex].owned, buf)
	m.mu.Unlock()
	return buf, nil
}

// End closes the buffer opened by Begin. Valid only in Scope == Command.
func (m *Manager) End(ctx context.Context) error {
	m.mu.Lock()
	if m.scope != ScopeCommand {
		m.mu.Unlock()
		return fmt.Errorf("%w: End requires Scope=Command, have %s", ErrInvalidScope, m.scope)
	}
	buf := m.currentCmd
	m.mu.Unlock()

	if err := m.backend.CmdEnd(ctx, buf); err != nil {
		return err
	}
	m.setScope(ScopeFrame)
	return nil
}

// BeginRenderPass transitions Command -> RenderPass.
func (m *Manager) BeginRenderPass(ctx context.Context) error {
	m.mu.Lock()
	if m.scope != ScopeCommand {
		m.mu.Unlock()
		return fmt.Errorf("%w: BeginRenderPass requires Scope=Command, have %s", ErrInvalidScope, m.scope)
	}
	buf := m.currentCmd
	m.mu.Unlock()

	if err := m.backend.CmdBeginRenderPass(ctx, buf); err != nil {
		return err
	}
	m.setScope(ScopeRenderPass)
	return nil
}

// EndRenderPass transitions RenderPass -> Command.
func (m *Manager) EndRenderPass(ctx context.Context) error {
	m.mu.Lock()
	if m.scope != ScopeRenderPass {
		m.mu.Unlock()
		return fmt.Errorf("%w: EndRenderPass requires Scope=RenderPass, have %s", ErrInvalidScope, m.scope)
	}
	buf := m.currentCmd
	m.mu.Unlock()

	if err := m.backend.CmdEndRenderPass(ctx, buf); err != nil {
		return err
	}
	m.setScope(ScopeCommand)
	return nil
}

// Append records externally-created command buffers for submission at
// EndFrame, with lifetime tied to the current slot. Valid only in Scope
// == Frame.
func (m *Manager) Append(buffers ...gpu.CommandBuffer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scope != ScopeFrame {
		return fmt.Errorf("%w: Append requires Scope=Frame, have %s", ErrInvalidScope, m.scope)
	}
	m.records[m.ringIndex].external = append(m.records[m.ringIndex].external, buffers...)
	return nil
}

// AddFrameDependency enqueues GPU synchronization to apply to the next
// frame — slot (ringIndex+1) mod N.
func (m *Manager) AddFrameDependency(waitFences []gpu.Fence, waitSemaphores []gpu.SemaphoreWait, signalSemaphores []gpu.Semaphore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := (m.ringIndex + 1) % m.ringLength
	rec := &m.records[next]
	rec.waitFences = append(rec.waitFences, waitFences...)
	rec.waitSemaphores = append(rec.waitSemaphores, waitSemaphores...)
	rec.signalSemaphores = append(rec.signalSemaphores, signalSemaphores...)
}

// SubscribeOnFrameCompleted registers a one-shot callback on the current
// slot, fired during the BeginFrame of the next rotation that reaches
// this slot — i.e. frame k+N for a call made during frame k.
func (m *Manager) SubscribeOnFrameCompleted(cb func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[m.ringIndex].callbacks = append(m.records[m.ringIndex].callbacks, cb)
}

func (m *Manager) acquireCommandBuffer(ctx context.Context) (gpu.CommandBuffer, error) {
	m.mu.Lock()
	if n := len(m.freeCmdBufs); n > 0 {
		buf := m.freeCmdBufs[n-1]
		m.freeCmdBufs = m.freeCmdBufs[:n-1]
		m.mu.Unlock()
		return buf, nil
	}
	m.mu.Unlock()
	return m.backend.AcquireCommandBuffer(ctx)
}
