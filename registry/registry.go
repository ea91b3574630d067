package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/forgekernel/kernel/kernel"
)

var (
	// ErrDuplicateName is returned by Register when name is already taken.
	ErrDuplicateName = errors.New("registry: name already registered")

	// ErrNotRegistered is returned by Unregister when name is unknown.
	ErrNotRegistered = errors.New("registry: name not registered")

	// ErrManagerRankTooLow is returned by CheckManagerRank when an existing
	// entry's class rank is not strictly below the candidate manager's.
	ErrManagerRankTooLow = errors.New("registry: candidate manager rank is not strictly above a subordinate class")
)

// directory is the default map-based Directory implementation.
type directory struct {
	mu      sync.RWMutex
	byName  map[string]Entry
	byClass map[kernel.TypeID][]Entry
}

// NewDirectory creates an empty Directory.
func NewDirectory() Directory {
	return &directory{
		byName:  make(map[string]Entry),
		byClass: make(map[kernel.TypeID][]Entry),
	}
}

func (d *directory) Register(name string, classID kernel.TypeID, classRank int, module kernel.Instance) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byName[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}

	entry := Entry{Name: name, ClassID: classID, ClassRank: classRank, Module: module}
	d.byName[name] = entry
	d.byClass[classID] = append(d.byClass[classID], entry)
	return nil
}

func (d *directory) Unregister(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, exists := d.byName[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	delete(d.byName, name)

	entries := d.byClass[entry.ClassID]
	for i, e := range entries {
		if e.Name == name {
			d.byClass[entry.ClassID] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(d.byClass[entry.ClassID]) == 0 {
		delete(d.byClass, entry.ClassID)
	}
	return nil
}

func (d *directory) ByName(name string) (Entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.byName[name]
	return entry, ok
}

func (d *directory) ByClass(classID kernel.TypeID) []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entries := d.byClass[classID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

func (d *directory) All() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Entry, 0, len(d.byName))
	for _, entry := range d.byName {
		out = append(out, entry)
	}
	return out
}

func (d *directory) CheckManagerRank(managerRank int, subordinateClasses ...kernel.TypeID) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, classID := range subordinateClasses {
		for _, entry := range d.byClass[classID] {
			if entry.ClassRank >= managerRank {
				return fmt.Errorf("%w: %s (rank %d) >= candidate manager rank %d", ErrManagerRankTooLow, entry.Name, entry.ClassRank, managerRank)
			}
		}
	}
	return nil
}
