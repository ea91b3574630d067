// Package registry provides a process-wide directory of live kernel modules,
// used for debug lookup by class and to support cross-tree invariant checks
// that ModulesDeepSearch, scoped to a single subtree, cannot perform.
package registry

import "github.com/forgekernel/kernel/kernel"

// Entry is a single directory row: a live module instance plus the metadata
// the directory indexes on.
type Entry struct {
	Name      string
	ClassID   kernel.TypeID
	ClassRank int
	Module    kernel.Instance
}

// Directory indexes live modules by name and by class for debug lookup and
// invariant checking. It is independent of any particular module tree: a
// process may run several disjoint module trees sharing one Directory.
type Directory interface {
	// Register adds module to the directory under name. Returns
	// ErrDuplicateName if name is already registered.
	Register(name string, classID kernel.TypeID, classRank int, module kernel.Instance) error

	// Unregister removes name from the directory. Returns ErrNotRegistered
	// if name was never registered.
	Unregister(name string) error

	// ByName looks up a single entry by its registered name.
	ByName(name string) (Entry, bool)

	// ByClass returns every entry registered under classID, in registration
	// order.
	ByClass(classID kernel.TypeID) []Entry

	// All returns every entry currently registered, in no particular order.
	All() []Entry

	// CheckManagerRank verifies that manager's ClassRank is strictly
	// greater than every currently registered entry's rank for the classes
	// listed in subordinateClasses, enforcing the total-order invariant
	// ("a module's manager class must be strictly 'above' the module's
	// class") across the whole directory rather than one subtree.
	CheckManagerRank(managerRank int, subordinateClasses ...kernel.TypeID) error
}
