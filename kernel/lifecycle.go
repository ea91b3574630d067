package kernel

import (
	"context"
	"fmt"
)

// Link drives Initial → Linked. It is idempotent: if the module has
// already reached Linked or either composed state, it returns success
// without doing any work. Otherwise it invokes the concrete module's
// OnLink hook (if implemented), propagates Link to children depth-first,
// and on success advances to Linked; on failure it advances to
// LinkingFailed and returns the wrapped error.
func (b *Base) Link(ctx context.Context) error {
	b.mu.Lock()
	switch b.state {
	case StateLinked, StateComposedMutable, StateComposedImmutable:
		b.mu.Unlock()
		return nil
	case StateDeleting:
		b.mu.Unlock()
		return ErrModuleDeleting
	}
	children := b.snapshotChildrenLocked()
	b.mu.Unlock()

	if linkable, ok := b.self.(Linkable); ok {
		if err := linkable.OnLink(ctx); err != nil {
			b.setState(StateLinkingFailed)
			b.reportTransition(ctx, "linking", "failed", err.Error())
			b.warnf("link failed", "cause", err.Error())
			return fmt.Errorf("%w: %w", ErrMissingDependency, err)
		}
	}

	for _, edge := range children {
		if err := edge.child.Link(ctx); err != nil {
			b.setState(StateLinkingFailed)
			b.reportTransition(ctx, "linking", "failed", err.Error())
			return err
		}
	}

	b.setState(StateLinked)
	b.reportTransition(ctx, "linking", "completed", "")
	return nil
}

// Compose drives Linked → ComposedMutable or ComposedImmutable. Idempotent
// if the module already sits in the state the call would produce;
// returns ErrInvalidState if the module has never been linked. Compose
// invokes the concrete module's OnCompose hook before propagating
// depth-first to children, mirroring Link's ordering.
func (b *Base) Compose(ctx context.Context, immutable bool) error {
	b.mu.Lock()
	target := StateComposedMutable
	if immutable {
		target = StateComposedImmutable
	}
	switch b.state {
	case target:
		b.mu.Unlock()
		return nil
	case StateComposedMutable, StateComposedImmutable:
		// Already composed, but in the other mutability — this is not the
		// idempotent case; a fresh Compose cannot silently change
		// mutability underfoot.
		b.mu.Unlock()
		return fmt.Errorf("%w: already composed as %s", ErrInvalidState, b.state)
	case StateDeleting:
		b.mu.Unlock()
		return ErrModuleDeleting
	case StateLinked:
		// proceed
	default:
		b.mu.Unlock()
		return fmt.Errorf("%w: Compose requires Linked, have %s", ErrInvalidState, b.state)
	}
	children := b.snapshotChildrenLocked()
	b.mu.Unlock()

	if composable, ok := b.self.(Composable); ok {
		if err := composable.OnCompose(ctx, immutable); err != nil {
			b.setState(StateComposingFailed)
			b.reportTransition(ctx, "composing", "failed", err.Error())
			b.warnf("compose failed", "cause", err.Error())
			return fmt.Errorf("%w: %w", ErrComposeFailed, err)
		}
	}

	for _, edge := range children {
		if err := edge.child.Compose(ctx, immutable); err != nil {
			b.setState(StateComposingFailed)
			b.reportTransition(ctx, "composing", "failed", err.Error())
			return err
		}
	}

	b.setState(target)
	b.reportTransition(ctx, "composing", "completed", "")

	b.mu.Lock()
	directory := b.directory
	name, classID, classRank := b.name, b.classID, b.classRank
	b.mu.Unlock()
	if directory != nil {
		if err := directory.Register(name, classID, classRank, b.self); err != nil {
			return fmt.Errorf("%w: %w", ErrComposeFailed, err)
		}
	}
	return nil
}

// Delete drives any state → Deleting. It detaches every child (each
// triggering OnModuleDetached before the strong edge is dropped) and,
// because children are exclusively owned, deletes any child left with no
// remaining parent; then it detaches self from all parents and the
// manager, invokes the concrete module's OnDelete hook, clears both
// dispatchers, and transitions to Deleting. Delete is the only
// transition legal from ComposedImmutable and is terminal.
func (b *Base) Delete(ctx context.Context) error {
	b.mu.Lock()
	if b.state == StateDeleting {
		b.mu.Unlock()
		return nil
	}
	children := b.snapshotChildrenLocked()
	parents := append([]Instance(nil), b.parents...)
	b.mu.Unlock()

	for _, edge := range children {
		_ = b.Detach(ctx, edge.child)
		if len(edge.child.KernelBase().Parents()) == 0 {
			_ = edge.child.Delete(ctx)
		}
	}

	for _, p := range parents {
		_ = p.Detach(ctx, b.self)
	}

	if mgr := b.Manager(); mgr != nil {
		b.setManager(ctx, nil)
	}

	if deletable, ok := b.self.(Deletable); ok {
		if err := deletable.OnDelete(ctx); err != nil {
			b.reportTransition(ctx, "deleting", "failed", err.Error())
			return err
		}
	}

	b.inbox.Clear()
	b.events.Clear()

	b.mu.Lock()
	directory := b.directory
	name := b.name
	b.parents = nil
	b.children = nil
	b.state = StateDeleting
	b.mu.Unlock()

	if directory != nil {
		_ = directory.Unregister(name)
	}

	b.reportTransition(ctx, "deleting", "completed", "")
	return nil
}

// Update propagates a delta-time tick to children after invoking the
// concrete module's OnUpdate hook. Valid only in a composed state;
// returns ErrInvalidState otherwise.
func (b *Base) Update(ctx context.Context, deltaTime float64) error {
	b.mu.Lock()
	if !b.state.IsComposed() {
		b.mu.Unlock()
		return fmt.Errorf("%w: Update requires a composed state, have %s", ErrInvalidState, b.state)
	}
	children := b.snapshotChildrenLocked()
	b.mu.Unlock()

	if updatable, ok := b.self.(Updatable); ok {
		if err := updatable.OnUpdate(ctx, deltaTime); err != nil {
			return err
		}
	}

	for _, edge := range children {
		if err := edge.child.Update(ctx, deltaTime); err != nil {
			return err
		}
	}
	return nil
}

// Reset drives Initial, Linked or ComposedMutable back to Initial. It is
// used when a critical child is reattached and the module must re-run
// Link/Compose from scratch.
func (b *Base) Reset(ctx context.Context) error {
	b.mu.Lock()
	if !canReset(b.state) {
		b.mu.Unlock()
		return fmt.Errorf("%w: cannot reset from %s", ErrInvalidState, b.state)
	}
	b.state = StateInitial
	b.mu.Unlock()
	b.reportTransition(ctx, "reset", "completed", "")
	return nil
}

func (b *Base) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

func (b *Base) snapshotChildrenLocked() []childEdge {
	out := make([]childEdge, len(b.children))
	copy(out, b.children)
	return out
}
