package material

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/kadds/gstudy-sub000/streambuf"
	"github.com/stretchr/testify/require"
)

func newTestMerger(t *testing.T) *StaticMeshMerger {
	t.Helper()
	alloc := &fakeAllocator{}
	q := &fakeQueue{}
	posMain, err := streambuf.NewGpuMainBuffer(alloc, wgpu.BufferUsageVertex, "test.positions")
	require.NoError(t, err)
	propsMain, err := streambuf.NewGpuMainBuffer(alloc, wgpu.BufferUsageVertex, "test.properties")
	require.NoError(t, err)
	idxMain, err := streambuf.NewGpuMainBuffer(alloc, wgpu.BufferUsageIndex, "test.indices")
	require.NoError(t, err)
	return NewStaticMeshMerger(
		streambuf.NewGpuInputMainBuffer(idxMain, q, 0),
		streambuf.NewGpuInputMainBuffer(posMain, q, 0),
		streambuf.NewGpuInputMainBuffer(propsMain, q, 0),
	)
}

func TestStaticMeshMergerStreamsOnFirstSight(t *testing.T) {
	merger := newTestMerger(t)
	m := testTriangle(t)

	entry, err := merger.Ensure(ObjectID(1), 0, m)
	require.NoError(t, err)
	require.Equal(t, 3, entry.indexCount)
	require.Equal(t, wgpu.IndexFormatUint16, entry.indexFormat)
}

func TestStaticMeshMergerReusesSameVersion(t *testing.T) {
	merger := newTestMerger(t)
	m := testTriangle(t)

	first, err := merger.Ensure(ObjectID(1), 0, m)
	require.NoError(t, err)
	second, err := merger.Ensure(ObjectID(1), 0, m)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestStaticMeshMergerReStreamsOnVersionBump(t *testing.T) {
	merger := newTestMerger(t)
	m := testTriangle(t)

	first, err := merger.Ensure(ObjectID(1), 0, m)
	require.NoError(t, err)
	second, err := merger.Ensure(ObjectID(1), 1, m)
	require.NoError(t, err)
	require.NotEqual(t, first.positionOffset, second.positionOffset)
}

func TestStaticMeshMergerForgetEvictsEntry(t *testing.T) {
	merger := newTestMerger(t)
	m := testTriangle(t)

	_, err := merger.Ensure(ObjectID(1), 0, m)
	require.NoError(t, err)
	merger.Forget(ObjectID(1))
	require.NotContains(t, merger.entries, ObjectID(1))
}
