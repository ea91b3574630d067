package kernel

import (
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
)

// TypeID identifies a concrete message/event payload type for the lifetime
// of the process. Equality, ordering and hashing are total: the zero value
// is never assigned to a real type, so a zero TypeID reliably means "none".
type TypeID uint64

var (
	typeIDSeq uint64

	typeIDMu  sync.RWMutex
	typeIDOf  = make(map[reflect.Type]TypeID)
	typeNames = make(map[TypeID]string)
)

// TypeIDOf returns the stable TypeID for T, assigning one on first use.
// The same T always yields the same ID within a process; distinct T yield
// distinct IDs. Pointer and value instantiations (TypeIDOf[Foo] vs.
// TypeIDOf[*Foo]) are distinct types and therefore distinct IDs. Go has no
// const/volatile qualifiers to strip, so none are applied.
func TypeIDOf[T any]() TypeID {
	rt := reflectTypeOf[T]()

	typeIDMu.RLock()
	id, ok := typeIDOf[rt]
	typeIDMu.RUnlock()
	if ok {
		return id
	}

	typeIDMu.Lock()
	defer typeIDMu.Unlock()
	if id, ok := typeIDOf[rt]; ok {
		return id
	}
	id = TypeID(atomic.AddUint64(&typeIDSeq, 1))
	typeIDOf[rt] = id
	typeNames[id] = rt.String()
	return id
}

// TypeName returns the registered reflect.Type name for id, or "" if id was
// never produced by TypeIDOf. Used for diagnostics and error messages.
func TypeName(id TypeID) string {
	typeIDMu.RLock()
	defer typeIDMu.RUnlock()
	return typeNames[id]
}

func reflectTypeOf[T any]() reflect.Type {
	var zero T
	rt := reflect.TypeOf(zero)
	if rt != nil {
		return rt
	}
	// T is an interface type and zero is a nil interface value; reflect.TypeOf
	// loses the static type in that case, so recover it through *T instead.
	return reflect.TypeOf((*T)(nil)).Elem()
}

// TypeIdList is an ordered, duplicate-free set of TypeIDs built once at
// module-class initialization time from a compile-time type list. Lookups
// are O(log n) via binary search over the sorted backing slice.
type TypeIdList struct {
	ids []TypeID
}

// NewTypeIdList builds a TypeIdList from the given IDs, deduplicating and
// sorting them so Contains can binary-search.
func NewTypeIdList(ids ...TypeID) TypeIdList {
	seen := make(map[TypeID]struct{}, len(ids))
	out := make([]TypeID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return TypeIdList{ids: out}
}

// TypeListOf is a convenience wrapper that builds a TypeIdList from the
// TypeIDs of T... in one call, e.g.:
//
//	var surface = kernel.TypeListOf(
//		kernel.TypeIDOf[AttachMsg](),
//		kernel.TypeIDOf[DetachMsg](),
//	)
func TypeListOf(ids ...TypeID) TypeIdList {
	return NewTypeIdList(ids...)
}

// Contains reports whether id is a member of the list.
func (l TypeIdList) Contains(id TypeID) bool {
	i := sort.Search(len(l.ids), func(i int) bool { return l.ids[i] >= id })
	return i < len(l.ids) && l.ids[i] == id
}

// ContainsAll reports whether every member of other is also a member of l.
// Runs in O(|other| * log|l|).
func (l TypeIdList) ContainsAll(other TypeIdList) bool {
	for _, id := range other.ids {
		if !l.Contains(id) {
			return false
		}
	}
	return true
}

// Len returns the number of distinct TypeIDs in the list.
func (l TypeIdList) Len() int { return len(l.ids) }

// Each calls fn once per member, in ascending TypeID order.
func (l TypeIdList) Each(fn func(TypeID)) {
	for _, id := range l.ids {
		fn(id)
	}
}

// Slice returns a copy of the backing, sorted slice of TypeIDs.
func (l TypeIdList) Slice() []TypeID {
	out := make([]TypeID, len(l.ids))
	copy(out, l.ids)
	return out
}
