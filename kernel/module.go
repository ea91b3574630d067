package kernel

import (
	"context"
	"sync"
	"sync/atomic"
)

// ThreadID identifies the cooperative thread a module is affine to. It has
// no kernel-level structure; package thread assigns and interprets these.
type ThreadID uint64

// instanceSeq hands out process-unique instance identities independent of
// a module's ClassID, which is shared by every instance of a module class.
var instanceSeq uint64

// Instance is the contract every concrete module satisfies. Modules embed
// *Base, which supplies default implementations of every method below;
// a module overrides lifecycle behavior by implementing the optional hook
// interfaces in lifecycle.go, not by shadowing these methods.
type Instance interface {
	ModuleRef
	Name() string
	ClassID() TypeID
	ClassRank() int
	State() State
	ThreadAffinity() ThreadID

	Link(ctx context.Context) error
	Compose(ctx context.Context, immutable bool) error
	Delete(ctx context.Context) error
	Update(ctx context.Context, deltaTime float64) error
	Attach(ctx context.Context, name string, child Instance) error
	Detach(ctx context.Context, child Instance) error

	// KernelBase exposes the embedded Base so kernel-internal operations
	// (Attach/Detach/AttachManager) can reach across module packages.
	KernelBase() *Base
}

// Base implements the mechanics shared by every module: identity, the
// lifecycle state machine, parent/child/manager relationships, and the two
// per-module dispatchers (inbound messages and outbound events). Concrete
// module types embed *Base and are constructed through NewBase, which
// records a `self` reference so Base can invoke a concrete type's optional
// lifecycle hooks without virtual dispatch.
type Base struct {
	mu sync.Mutex

	self Instance

	classID    TypeID
	classRank  int
	name       string
	instanceID uint64
	threadID   ThreadID

	state State

	maxParents      int
	multiAttachment bool
	globallyUnique  bool
	messageSurface  TypeIdList
	eventSurface    TypeIdList
	inbox           *Dispatcher
	events          *Dispatcher
	children        []childEdge
	parents         []Instance
	manager         Instance
	cancelRequested atomic.Bool
	lifecycleSink   LifecycleSink
	directory       Directory
	logger          Logger
}

type childEdge struct {
	name  *string
	child Instance
}

// BaseConfig configures a new Base at construction time.
type BaseConfig struct {
	ClassID         TypeID
	ClassRank       int
	Name            string
	ThreadID        ThreadID
	MaxParents      int
	MultiAttachment bool
	GloballyUnique  bool
	MessageSurface  TypeIdList
	EventSurface    TypeIdList
	Logger          Logger
}

// NewBase constructs a Base embedded by a concrete module. self must be the
// outer struct that embeds the returned Base, so that optional lifecycle
// hooks implemented on the concrete type are reachable from Base's methods.
func NewBase(self Instance, cfg BaseConfig) *Base {
	maxParents := cfg.MaxParents
	if maxParents <= 0 {
		maxParents = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = NopLogger{}
	}
	return &Base{
		self:            self,
		classID:         cfg.ClassID,
		classRank:       cfg.ClassRank,
		name:            cfg.Name,
		instanceID:      atomic.AddUint64(&instanceSeq, 1),
		threadID:        cfg.ThreadID,
		state:           StateInitial,
		maxParents:      maxParents,
		multiAttachment: cfg.MultiAttachment,
		globallyUnique:  cfg.GloballyUnique,
		messageSurface:  cfg.MessageSurface,
		eventSurface:    cfg.EventSurface,
		inbox:           NewDispatcher(),
		events:          NewDispatcher(),
		logger:          logger,
	}
}

// SetLogger replaces the module's logging sink. Passing nil restores the
// discarding default.
func (b *Base) SetLogger(logger Logger) {
	if logger == nil {
		logger = NopLogger{}
	}
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

// warnf emits a Warning line carrying the module debug-name plus a short
// cause; only the failure paths listed on Logger call it.
func (b *Base) warnf(msg string, args ...any) {
	b.mu.Lock()
	logger := b.logger
	b.mu.Unlock()
	logger.Warn(msg, append([]any{"module", b.name}, args...)...)
}

// ID implements ModuleRef; it is the process-unique instance identity, not
// the class tag returned by ClassID.
func (b *Base) ID() uint64 {
	return b.instanceID
}

// Alive implements ModuleRef: a module is alive until it reaches Deleting.
func (b *Base) Alive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state != StateDeleting
}

// Name returns the module's debug name.
func (b *Base) Name() string { return b.name }

// ClassID returns the stable module-ID class tag shared by every instance
// of this module's concrete type.
func (b *Base) ClassID() TypeID { return b.classID }

// ClassRank returns this module class's position in the manager total
// order: a module may only manage another module whose ClassRank is
// strictly lower than its own.
func (b *Base) ClassRank() int { return b.classRank }

// State returns the module's current lifecycle state.
func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ThreadAffinity returns the thread this module was created on. Almost all
// operations on the module must execute on this thread; see package thread.
func (b *Base) ThreadAffinity() ThreadID { return b.threadID }

// Inbox returns the dispatcher used to deliver messages sent to this
// module (subscribe/send target this dispatcher).
func (b *Base) Inbox() *Dispatcher { return b.inbox }

// Events returns the dispatcher external observers subscribe to in order
// to receive events this module emits.
func (b *Base) Events() *Dispatcher { return b.events }

// MessageSurface returns the static TypeIdList advertising which messages
// this module class accepts.
func (b *Base) MessageSurface() TypeIdList { return b.messageSurface }

// EventSurface returns the static TypeIdList advertising which events this
// module class may emit.
func (b *Base) EventSurface() TypeIdList { return b.eventSurface }

// RequestCancel sets the cooperative cancellation flag an Update loop is
// expected to observe; the kernel never forces termination.
func (b *Base) RequestCancel() { b.cancelRequested.Store(true) }

// CancelRequested reports whether RequestCancel has been called.
func (b *Base) CancelRequested() bool { return b.cancelRequested.Load() }

// Manager returns the current manager, or nil if none is set or the
// manager has since been deleted.
func (b *Base) Manager() Instance {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.manager != nil && !b.manager.Alive() {
		return nil
	}
	return b.manager
}

// Parents returns a snapshot of the module's current parents, skipping any
// that are no longer alive.
func (b *Base) Parents() []Instance {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Instance, 0, len(b.parents))
	for _, p := range b.parents {
		if p.Alive() {
			out = append(out, p)
		}
	}
	return out
}

// ChildCount returns the number of attached child edges, counting repeated
// attachments of the same module separately.
func (b *Base) ChildCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.children)
}

// KernelBase returns b itself, satisfying Instance for concrete module
// types that embed *Base.
func (b *Base) KernelBase() *Base { return b }

// GloballyUnique reports whether this module's class may be attached to a
// given parent at most once, regardless of that parent's MultiAttachment
// setting.
func (b *Base) GloballyUnique() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.globallyUnique
}
