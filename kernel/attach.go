package kernel

import (
	"context"
	"fmt"
)

// Attach appends a child edge to b, failing with ErrInvalidState if b is
// ComposedImmutable and with ErrModuleDeleting if b is Deleting. name is optional ("" means unnamed); a
// non-empty name must be unique among b's current children. Attaching the
// same child a second time fails with ErrMultiAttachmentNotAllowed unless
// b.multiAttachment is true and the child's class is not GloballyUnique.
// On success, Attach delivers ModuleAttachedEvent to every attached
// child's inbox (the new child included) and to every subscriber
// registered on b's event dispatcher. Attach does not auto-subscribe
// anyone: a child that wants the notification subscribes its own inbox,
// typically from its OnLink hook.
func (b *Base) Attach(ctx context.Context, name string, child Instance) error {
	childBase := child.KernelBase()

	b.mu.Lock()
	if b.state == StateComposedImmutable {
		b.mu.Unlock()
		b.warnf("attach rejected", "child", child.Name(), "cause", "composed immutable")
		return fmt.Errorf("%w: cannot attach to a composed-immutable module", ErrInvalidState)
	}
	if b.state == StateDeleting {
		b.mu.Unlock()
		return ErrModuleDeleting
	}

	var namePtr *string
	if name != "" {
		for _, edge := range b.children {
			if edge.name != nil && *edge.name == name {
				b.mu.Unlock()
				return fmt.Errorf("%w: %q", ErrDuplicateChildName, name)
			}
		}
		namePtr = &name
	}

	alreadyAttached := false
	for _, edge := range b.children {
		if edge.child.ID() == child.ID() {
			alreadyAttached = true
			break
		}
	}
	if alreadyAttached {
		childBase.mu.Lock()
		globallyUnique := childBase.globallyUnique
		childBase.mu.Unlock()
		if !b.multiAttachment || globallyUnique {
			b.mu.Unlock()
			b.warnf("attach rejected", "child", child.Name(), "cause", "already attached and multi-attachment disallowed")
			return ErrMultiAttachmentNotAllowed
		}
	}

	b.children = append(b.children, childEdge{name: namePtr, child: child})
	self := b.self
	b.mu.Unlock()

	childBase.mu.Lock()
	if len(childBase.parents) >= childBase.maxParents {
		childBase.mu.Unlock()
		b.mu.Lock()
		b.children = b.children[:len(b.children)-1]
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTooManyParents, child.Name())
	}
	childBase.parents = append(childBase.parents, self)
	childBase.mu.Unlock()

	b.emitAttached(self, child, namePtr)
	return nil
}

// Detach removes child from b. If b.multiAttachment is true and child
// appears more than once, Detach removes every copy, delivering
// ModuleDetachedEvent once per copy — to the still-attached children's
// inboxes and to b's event subscribers — with IsLast true only for the
// final removal. The re-scan after each erase absorbs re-entrant detaches
// issued from inside an earlier detach's own handlers.
func (b *Base) Detach(ctx context.Context, child Instance) error {
	childBase := child.KernelBase()
	self := b.KernelBaseSelf()

	b.mu.Lock()
	present := false
	for _, edge := range b.children {
		if edge.child.ID() == child.ID() {
			present = true
			break
		}
	}
	b.mu.Unlock()
	if !present {
		return ErrChildNotFound
	}

	for {
		b.mu.Lock()
		idx := -1
		for i, edge := range b.children {
			if edge.child.ID() == child.ID() {
				idx = i
				break
			}
		}
		if idx == -1 {
			b.mu.Unlock()
			return nil
		}
		edge := b.children[idx]
		b.children = append(b.children[:idx], b.children[idx+1:]...)
		isLast := true
		for _, remaining := range b.children {
			if remaining.child.ID() == child.ID() {
				isLast = false
				break
			}
		}
		b.mu.Unlock()

		// Broadcast before the strong edge is gone so handlers can still
		// observe the child.
		b.emitDetached(self, child, edge.name, isLast)

		childBase.mu.Lock()
		for i, p := range childBase.parents {
			if p.ID() == self.ID() {
				childBase.parents = append(childBase.parents[:i], childBase.parents[i+1:]...)
				break
			}
		}
		childBase.mu.Unlock()

		if isLast {
			return nil
		}
	}
}

// KernelBaseSelf returns the concrete Instance that owns this Base, used
// internally wherever a method needs to hand "self" to another module
// (e.g. as the Parent field of an emitted event).
func (b *Base) KernelBaseSelf() Instance { return b.self }

// FindModule returns the first child attached under the given name, or nil
// if no such child exists. It does not search grandchildren.
func (b *Base) FindModule(name string) Instance {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, edge := range b.children {
		if edge.name != nil && *edge.name == name {
			return edge.child
		}
	}
	return nil
}

// FindModuleByID returns the first child with the given instance ID, or
// nil if not found among direct children.
func (b *Base) FindModuleByID(id uint64) Instance {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, edge := range b.children {
		if edge.child.ID() == id {
			return edge.child
		}
	}
	return nil
}

// ModulesDeepSearch walks the subtree rooted at b (including b) in
// pre-order, calling visit for every module for which predicate returns
// true. It stops descending into a subtree if visit returns false.
func (b *Base) ModulesDeepSearch(predicate func(Instance) bool, visit func(Instance) bool) {
	b.deepSearch(b.self, predicate, visit)
}

func (b *Base) deepSearch(m Instance, predicate func(Instance) bool, visit func(Instance) bool) bool {
	if predicate(m) {
		if !visit(m) {
			return false
		}
	}
	base := m.KernelBase()
	base.mu.Lock()
	children := base.snapshotChildrenLocked()
	base.mu.Unlock()
	for _, edge := range children {
		if !b.deepSearch(edge.child, predicate, visit) {
			return false
		}
	}
	return true
}
