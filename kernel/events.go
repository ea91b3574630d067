package kernel

// Event payload types emitted by Base itself. Concrete modules declare
// these TypeIDs in their EventSurface so subscribers can register for
// them; Base emits them directly rather than requiring the concrete module
// to re-implement attach/detach bookkeeping.

// ModuleAttachedEvent is delivered to two distinct audiences whenever
// Attach succeeds: every attached child's inbox (the new child included),
// and the parent's event subscribers. A child observes it by subscribing
// its own inbox; Attach does not auto-subscribe anyone.
type ModuleAttachedEvent struct {
	Parent Instance
	Child  Instance
	Name   *string
}

// ModuleDetachedEvent is delivered once per removed copy of a child, to
// the same two audiences as ModuleAttachedEvent: every still-attached
// child's inbox and the parent's event subscribers. IsLast is true only
// for the final removal of a multi-attached child.
type ModuleDetachedEvent struct {
	Parent Instance
	Child  Instance
	Name   *string
	IsLast bool
}

// FrameSubmissionFailedEvent is emitted by the command-buffer manager
// when the GPU backend rejects a frame submission; declared here so it
// shares TypeID plumbing with the rest of the kernel's event surface.
type FrameSubmissionFailedEvent struct {
	RingIndex  int
	FrameIndex uint64
	Cause      error
}

// emitAttached sends ModuleAttachedEvent to every attached child's inbox,
// then to b's event dispatcher.
func (b *Base) emitAttached(parent, child Instance, name *string) {
	evt := ModuleAttachedEvent{Parent: parent, Child: child, Name: name}
	for _, edge := range b.childrenSnapshot() {
		_, _ = Send(edge.child.KernelBase().inbox, evt)
	}
	_, _ = Send(b.events, evt)
}

// emitDetached sends ModuleDetachedEvent to every still-attached child's
// inbox, then to b's event dispatcher.
func (b *Base) emitDetached(parent, child Instance, name *string, isLast bool) {
	evt := ModuleDetachedEvent{Parent: parent, Child: child, Name: name, IsLast: isLast}
	for _, edge := range b.childrenSnapshot() {
		_, _ = Send(edge.child.KernelBase().inbox, evt)
	}
	_, _ = Send(b.events, evt)
}

func (b *Base) childrenSnapshot() []childEdge {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotChildrenLocked()
}
