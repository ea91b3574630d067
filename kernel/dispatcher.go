package kernel

import (
	"fmt"
	"reflect"
	"sync"
)

// ModuleRef is a weak reference to a module, used anywhere a component must
// observe a module without extending its lifetime. Alive reports whether
// the referenced module has not yet reached the Deleting state.
type ModuleRef interface {
	ID() uint64
	Alive() bool
}

// subscriptionKey identifies a subscription for replace-on-duplicate and
// removal purposes: the same (TypeID, subscriber, handler address) triple
// always replaces the previous entry rather than appending a second one.
type subscriptionKey struct {
	typeID      TypeID
	subscriber  uint64
	handlerAddr uintptr
}

type subscriptionEntry struct {
	key      subscriptionKey
	sub      ModuleRef
	handler  func(payload any) error
	userData any
}

// Dispatcher is the per-module subscription table and send entry point.
// It maps a TypeID to an insertion-ordered list of subscriptions. All
// mutation happens under a short critical section; `send` snapshots the
// matching list, releases the lock, and only then invokes handlers, so a
// handler may safely subscribe, unsubscribe or re-send without deadlocking
// the dispatcher.
type Dispatcher struct {
	mu   sync.Mutex
	subs map[TypeID][]*subscriptionEntry
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{subs: make(map[TypeID][]*subscriptionEntry)}
}

// subscribe registers a subscription for typeID, failing with
// ErrUnsupportedMessage if typeID is not a member of validTypes. A second
// subscribe call with the same (typeID, subscriber, handler) replaces the
// first in place, preserving its position in the insertion order.
func (d *Dispatcher) subscribe(validTypes TypeIdList, typeID TypeID, subscriber ModuleRef, handler func(payload any) error, handlerAddr uintptr, userData any) error {
	if !validTypes.Contains(typeID) {
		return fmt.Errorf("%w: %s is not in the declared surface", ErrUnsupportedMessage, TypeName(typeID))
	}

	key := subscriptionKey{typeID: typeID, subscriber: subscriber.ID(), handlerAddr: handlerAddr}
	entry := &subscriptionEntry{key: key, sub: subscriber, handler: handler, userData: userData}

	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.subs[typeID]
	for i, existing := range list {
		if existing.key == key {
			list[i] = entry
			return nil
		}
	}
	d.subs[typeID] = append(list, entry)
	return nil
}

// Subscribe registers a typed handler for payload type T. The caller's
// validTypes must declare T for the subscription to succeed.
func Subscribe[T any](d *Dispatcher, validTypes TypeIdList, subscriber ModuleRef, handler func(payload T) error, userData any) error {
	typeID := TypeIDOf[T]()
	handlerAddr := reflect.ValueOf(handler).Pointer()
	wrapped := func(payload any) error {
		typed, ok := payload.(T)
		if !ok {
			return fmt.Errorf("dispatcher: payload type mismatch for %s", TypeName(typeID))
		}
		return handler(typed)
	}
	return d.subscribe(validTypes, typeID, subscriber, wrapped, handlerAddr, userData)
}

// UnsubscribeAll removes every subscription whose subscriber matches, and is
// a no-op if the subscriber holds no subscriptions. The kernel does not call
// it on detach or delete; Delete clears the module's own dispatchers instead.
func (d *Dispatcher) UnsubscribeAll(subscriber ModuleRef) {
	id := subscriber.ID()
	d.mu.Lock()
	defer d.mu.Unlock()
	for typeID, list := range d.subs {
		filtered := list[:0:0]
		for _, entry := range list {
			if entry.key.subscriber != id {
				filtered = append(filtered, entry)
			}
		}
		if len(filtered) == 0 {
			delete(d.subs, typeID)
		} else {
			d.subs[typeID] = filtered
		}
	}
}

// CopySubscriptions copies, for subscriber, every subscription in d whose
// TypeID is in ids into other, validated against other's surface. It fails
// with ErrSubscriptionNotFound if any requested id has no matching
// subscription for subscriber in d, and with ErrUnsupportedMessage if other
// does not declare one of the ids. This is a bulk add, not a delegating
// indirection: the copied entries are independent of the originals.
func (d *Dispatcher) CopySubscriptions(validTypes TypeIdList, subscriber ModuleRef, other *Dispatcher, ids []TypeID) error {
	d.mu.Lock()
	var toCopy []*subscriptionEntry
	for _, id := range ids {
		found := false
		for _, entry := range d.subs[id] {
			if entry.key.subscriber == subscriber.ID() {
				toCopy = append(toCopy, entry)
				found = true
			}
		}
		if !found {
			d.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, TypeName(id))
		}
	}
	d.mu.Unlock()

	for _, entry := range toCopy {
		if err := other.subscribe(validTypes, entry.key.typeID, entry.sub, entry.handler, entry.key.handlerAddr, entry.userData); err != nil {
			return err
		}
	}
	return nil
}

// Send looks up the subscriptions registered for payload's TypeID, snapshots
// the matching list under lock, releases the lock, then invokes each
// handler in insertion order on the calling thread. Every handler in the
// snapshot runs even if an earlier one fails; the first failure is
// returned to the sender after the loop completes. It returns true iff at
// least one handler ran. A handler may issue further Send calls on this or
// any other dispatcher; such calls are processed depth-first, not queued.
func Send[T any](d *Dispatcher, payload T) (bool, error) {
	typeID := TypeIDOf[T]()

	d.mu.Lock()
	list := d.subs[typeID]
	snapshot := make([]*subscriptionEntry, len(list))
	copy(snapshot, list)
	d.mu.Unlock()

	if len(snapshot) == 0 {
		return false, nil
	}

	var firstErr error
	ran := false
	for _, entry := range snapshot {
		if !entry.sub.Alive() {
			continue
		}
		ran = true
		if err := entry.handler(payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return ran, firstErr
}

// Clear removes every subscription. Called during module deletion.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = make(map[TypeID][]*subscriptionEntry)
}

// Len returns the total number of subscription entries across all TypeIDs,
// including entries whose subscriber is no longer alive; used by tests asserting dispatch isolation and
// attach/detach producing a bit-identical subscription map.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, list := range d.subs {
		n += len(list)
	}
	return n
}
