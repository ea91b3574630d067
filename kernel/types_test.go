package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fooMsg struct{ A int }
type barMsg struct{ B string }

func TestTypeIDOfIsStableAndDistinct(t *testing.T) {
	a1 := TypeIDOf[fooMsg]()
	a2 := TypeIDOf[fooMsg]()
	b1 := TypeIDOf[barMsg]()

	assert.Equal(t, a1, a2, "repeated calls for the same type must yield the same TypeID")
	assert.NotEqual(t, a1, b1, "distinct payload types must yield distinct TypeIDs")
}

func TestTypeIDOfDistinguishesPointerFromValue(t *testing.T) {
	value := TypeIDOf[fooMsg]()
	pointer := TypeIDOf[*fooMsg]()
	assert.NotEqual(t, value, pointer, "pointer and value types must be distinct")
}

func TestTypeIdListContains(t *testing.T) {
	a, b, c := TypeIDOf[fooMsg](), TypeIDOf[barMsg](), TypeIDOf[struct{ C bool }]()

	list := NewTypeIdList(a, b, a, b) // duplicates
	require.Equal(t, 2, list.Len())
	assert.True(t, list.Contains(a))
	assert.True(t, list.Contains(b))
	assert.False(t, list.Contains(c))
}

func TestTypeIdListContainsAll(t *testing.T) {
	a, b, c := TypeIDOf[fooMsg](), TypeIDOf[barMsg](), TypeIDOf[struct{ C bool }]()

	full := NewTypeIdList(a, b, c)
	subset := NewTypeIdList(a, b)
	disjoint := NewTypeIdList(c, TypeIDOf[struct{ D int }]())

	assert.True(t, full.ContainsAll(subset))
	assert.False(t, subset.ContainsAll(full))
	assert.False(t, full.ContainsAll(disjoint))
}

func TestTypeName(t *testing.T) {
	id := TypeIDOf[fooMsg]()
	assert.Contains(t, TypeName(id), "fooMsg")
	assert.Equal(t, "", TypeName(TypeID(0)))
}
