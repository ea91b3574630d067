package kernel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDirectory is a minimal in-test stand-in for registry.Directory,
// avoiding an import of package registry (which itself imports kernel).
type fakeDirectory struct {
	entries       map[string]Instance
	rejectManager bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{entries: make(map[string]Instance)}
}

var errFakeRankTooLow = errors.New("fakeDirectory: rank too low")

func (d *fakeDirectory) Register(name string, classID TypeID, classRank int, module Instance) error {
	d.entries[name] = module
	return nil
}

func (d *fakeDirectory) Unregister(name string) error {
	delete(d.entries, name)
	return nil
}

func (d *fakeDirectory) CheckManagerRank(managerRank int, subordinateClasses ...TypeID) error {
	if d.rejectManager {
		return errFakeRankTooLow
	}
	return nil
}

func TestAttachManagerConsultsDirectory(t *testing.T) {
	dir := newFakeDirectory()
	dir.rejectManager = true

	child := newTestModule("child", 1)
	mgr := newTestModule("mgr", 5)
	child.SetDirectory(dir)

	err := child.AttachManager(context.Background(), mgr)
	require.ErrorIs(t, err, errFakeRankTooLow, "a rejecting Directory must block AttachManager even though the pairwise rank check alone would pass")
}

func TestAttachManagerAllowsWhenDirectoryApproves(t *testing.T) {
	dir := newFakeDirectory()

	child := newTestModule("child", 1)
	mgr := newTestModule("mgr", 5)
	child.SetDirectory(dir)

	require.NoError(t, child.AttachManager(context.Background(), mgr))
	assert.Equal(t, mgr, child.Manager())
}

func TestComposeRegistersWithDirectory(t *testing.T) {
	dir := newFakeDirectory()
	mod := newTestModule("physics", 2)
	mod.SetDirectory(dir)

	require.NoError(t, mod.Link(context.Background()))
	require.NoError(t, mod.Compose(context.Background(), false))

	_, ok := dir.entries["physics"]
	assert.True(t, ok, "Compose must register the module under its name")
}

func TestDeleteUnregistersFromDirectory(t *testing.T) {
	dir := newFakeDirectory()
	mod := newTestModule("physics", 2)
	mod.SetDirectory(dir)

	require.NoError(t, mod.Link(context.Background()))
	require.NoError(t, mod.Compose(context.Background(), false))
	require.NoError(t, mod.Delete(context.Background()))

	_, ok := dir.entries["physics"]
	assert.False(t, ok, "Delete must unregister the module from the directory")
}

func TestAttachManagerWithoutDirectoryUsesPairwiseCheckOnly(t *testing.T) {
	child := newTestModule("child", 1)
	mgr := newTestModule("mgr", 5)

	require.NoError(t, child.AttachManager(context.Background(), mgr))
}
