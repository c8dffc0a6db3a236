package tagging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTagInternerIdempotent(t *testing.T) {
	ti := NewTagInterner()
	id1 := ti.AllocOrGet("enemy")
	id2 := ti.AllocOrGet("enemy")
	require.Equal(t, id1, id2)
	require.NotEqual(t, InvalidTagID, id1)
}

func TestTagInternerDeallocMayReuseDifferentID(t *testing.T) {
	ti := NewTagInterner()
	id1 := ti.AllocOrGet("a")
	ti.Dealloc(id1)
	id2 := ti.AllocOrGet("b")

	// The freed slot is eligible for reuse, but reuse is not guaranteed for
	// the *same* name — only that AllocOrGet(name) after Dealloc(id) is not
	// bound to return id for a previously different name.
	_, stillThere := ti.Lookup("a")
	require.False(t, stillThere)
	require.NotEqual(t, TagID(0), id2)
}

func TestTagInternerRemovedNameNoLongerResolves(t *testing.T) {
	ti := NewTagInterner()
	id := ti.AllocOrGet("x")
	ti.Dealloc(id)
	_, ok := ti.Name(id)
	require.False(t, ok)
}

func TestIDAllocatorMonotonic(t *testing.T) {
	a := NewIDAllocator()
	first := a.Next()
	second := a.Next()
	require.Equal(t, uint64(1), first)
	require.Equal(t, uint64(2), second)
}

func TestContextAllocatorsAreIndependent(t *testing.T) {
	ctx := NewContext()
	r1 := ctx.ResourceID.Next()
	o1 := ctx.ObjectID.Next()
	require.Equal(t, uint64(1), r1)
	require.Equal(t, uint64(1), o1)
}
