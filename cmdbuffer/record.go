package cmdbuffer

import "github.com/forgekernel/kernel/gpu"

// frameRecord is the per-ring-slot "frame record" state: a fence, the
// command buffers owned and externally appended this slot,
// the GPU sync objects to wait on and signal, and completion callbacks.
// Ownership is local to the owning Manager instance.
type frameRecord struct {
	fence gpu.Fence

	owned    []gpu.CommandBuffer
	external []gpu.CommandBuffer

	waitFences       []gpu.Fence
	waitSemaphores   []gpu.SemaphoreWait
	signalSemaphores []gpu.Semaphore

	callbacks []func()
}

func (r *frameRecord) reset() {
	r.owned = nil
	r.external = nil
	r.waitFences = nil
	r.waitSemaphores = nil
	r.signalSemaphores = nil
	r.callbacks = nil
}
