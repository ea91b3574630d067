package kernel

import "errors"

// Error kinds propagated through fail-returning handlers. The kernel never
// terminates the process or panics on these conditions; callers decide to
// retry, escalate, or continue.
var (
	// ErrUnsupportedMessage is returned when a subscription or send targets
	// a TypeID outside a module's declared message or event surface.
	ErrUnsupportedMessage = errors.New("unsupported message type")

	// ErrInvalidState is returned when an operation is illegal for the
	// module's current lifecycle state (e.g. Attach on ComposedImmutable).
	ErrInvalidState = errors.New("invalid module state for operation")

	// ErrAttachmentCycle is returned when an attach or manager assignment
	// would create a manager cycle or violate a uniqueness constraint.
	ErrAttachmentCycle = errors.New("attachment would create a manager cycle")

	// ErrMissingDependency is returned when link-time dependency resolution
	// fails; the module transitions to LinkingFailed.
	ErrMissingDependency = errors.New("link-time dependency resolution failed")

	// ErrIncompleteAttachment is returned when a required attachment is
	// missing at link or compose time.
	ErrIncompleteAttachment = errors.New("required attachment missing")

	// ErrComposeFailed is returned when a backend or child fails to compose.
	ErrComposeFailed = errors.New("composition failed")

	// ErrSubscriptionNotFound is returned by CopySubscriptions when a
	// requested TypeID is absent from the source dispatcher.
	ErrSubscriptionNotFound = errors.New("subscription not found for type")

	// ErrChildNotFound is returned when Detach is called with a child that
	// is not currently attached.
	ErrChildNotFound = errors.New("child not attached to this module")

	// ErrDuplicateChildName is returned when Attach would create a second
	// child with the same name under a parent that forbids it.
	ErrDuplicateChildName = errors.New("a child with this name is already attached")

	// ErrMultiAttachmentNotAllowed is returned when Attach would attach the
	// same child more than once and the parent does not permit it.
	ErrMultiAttachmentNotAllowed = errors.New("child already attached and multi-attachment is disabled")

	// ErrManagerNotHigherClass is returned when AttachManager is given a
	// module whose class does not strictly outrank the managed module's
	// class in the declared total order.
	ErrManagerNotHigherClass = errors.New("manager module class must strictly outrank managed module class")

	// ErrModuleDeleting is returned by any mutating operation attempted on
	// a module that has already reached the terminal Deleting state.
	ErrModuleDeleting = errors.New("module is deleting")

	// ErrTooManyParents is returned when Attach would give a child more
	// parents than its configured MaxParents allows.
	ErrTooManyParents = errors.New("child already has its maximum number of parents")
)
