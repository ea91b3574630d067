package kernel

import (
	"context"
	"fmt"
)

// AttachManager sets manager as b's scheduler/container module, enforcing
// that manager's class must strictly outrank b's class in the engine's
// documented total order. A module has at most one
// manager at a time; attaching a new manager first notifies the module of
// the change via OnManagerChanged (if implemented), so it can drop
// subscriptions registered against the old manager.
//
// This is the same-thread path, and package thread has no cross-thread
// variant of it: thread.AttachAcrossThreads routes a parent/child Attach,
// not AttachManager, through an async message and an optional completion
// wait.
func (b *Base) AttachManager(ctx context.Context, manager Instance) error {
	if manager.ClassRank() <= b.classRank {
		b.warnf("manager rejected", "manager", manager.Name(), "cause", "class rank does not outrank module")
		return fmt.Errorf("%w: manager rank %d does not outrank module rank %d",
			ErrManagerNotHigherClass, manager.ClassRank(), b.classRank)
	}

	b.mu.Lock()
	if b.state == StateDeleting {
		b.mu.Unlock()
		return ErrModuleDeleting
	}
	directory := b.directory
	classID := b.classID
	b.mu.Unlock()

	// The pairwise check above only sees this module and the candidate
	// manager; a shared Directory additionally enforces the total order
	// across every other module already registered under this class,
	// catching a manager that outranks b but was itself attached under an
	// inconsistent rank elsewhere in the process.
	if directory != nil {
		if err := directory.CheckManagerRank(manager.ClassRank(), classID); err != nil {
			return err
		}
	}

	b.mu.Lock()
	if b.state == StateDeleting {
		b.mu.Unlock()
		return ErrModuleDeleting
	}
	old := b.manager // re-read: state may have changed while the directory check ran unlocked
	if old != nil && old.ID() == manager.ID() {
		b.mu.Unlock()
		return nil
	}
	b.manager = manager
	b.mu.Unlock()

	if aware, ok := b.self.(ManagerAware); ok {
		if err := aware.OnManagerChanged(ctx, old, manager); err != nil {
			return err
		}
	}
	return nil
}

// setManager is the internal path used by Delete to clear the manager
// reference without re-running the class-rank check (the module is going
// away, not acquiring a new manager).
func (b *Base) setManager(ctx context.Context, manager Instance) {
	b.mu.Lock()
	old := b.manager
	b.manager = manager
	b.mu.Unlock()

	if aware, ok := b.self.(ManagerAware); ok {
		_ = aware.OnManagerChanged(ctx, old, manager)
	}
}
