package kernel

import "context"

// Linkable is implemented by a module that needs to resolve inter-module
// dependencies when it receives Link. Returning an error fails the link
// check and moves the module to LinkingFailed (ErrMissingDependency should
// be wrapped in the returned error).
type Linkable interface {
	OnLink(ctx context.Context) error
}

// Composable is implemented by a module that performs work when it
// receives Compose. Returning an error fails the compose check and moves
// the module to ComposingFailed.
type Composable interface {
	OnCompose(ctx context.Context, immutable bool) error
}

// Deletable is implemented by a module that needs to release resources
// before reaching Deleting.
type Deletable interface {
	OnDelete(ctx context.Context) error
}

// Updatable is implemented by a module with per-frame work to perform. It
// is only invoked while the module is in a composed state.
type Updatable interface {
	OnUpdate(ctx context.Context, deltaTime float64) error
}

// ManagerAware is implemented by a module that must react to its manager
// changing, typically by dropping subscriptions registered against the old
// manager.
type ManagerAware interface {
	OnManagerChanged(ctx context.Context, old, new Instance) error
}

// LifecycleSink receives a structured notification for every state
// transition a Base makes. It is satisfied structurally by an adapter over
// package lifecycle's EventDispatcher; kernel does not import that package
// so the two stay decoupled.
type LifecycleSink interface {
	Dispatch(ctx context.Context, source, phase, status, message string)
}

// SetLifecycleSink wires an observer of every state transition this module
// makes. Passing nil disables reporting.
func (b *Base) SetLifecycleSink(sink LifecycleSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lifecycleSink = sink
}

func (b *Base) reportTransition(ctx context.Context, phase, status, message string) {
	b.mu.Lock()
	sink := b.lifecycleSink
	name := b.name
	b.mu.Unlock()
	if sink != nil {
		sink.Dispatch(ctx, name, phase, status, message)
	}
}
