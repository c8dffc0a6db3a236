package streambuf

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/require"
)

// fakeAllocator counts how many wgpu buffers would have been created and
// hands back nil *wgpu.Buffer values (GpuMainBuffer never dereferences the
// buffer itself, only passes it through to Queue.WriteBuffer).
type fakeAllocator struct {
	creates int
	sizes   []uint64
}

func (f *fakeAllocator) CreateGPUBuffer(size uint64, usage wgpu.BufferUsage, label string) (*wgpu.Buffer, error) {
	f.creates++
	f.sizes = append(f.sizes, size)
	return nil, nil
}

type fakeQueue struct {
	writes []struct {
		offset uint64
		data   []byte
	}
}

func (f *fakeQueue) WriteBuffer(buffer *wgpu.Buffer, offset uint64, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	f.writes = append(f.writes, struct {
		offset uint64
		data   []byte
	}{offset, cp})
}

func TestGpuMainBufferStartsAtInitialSize(t *testing.T) {
	alloc := &fakeAllocator{}
	b, err := NewGpuMainBuffer(alloc, wgpu.BufferUsageVertex, "test")
	require.NoError(t, err)
	require.Equal(t, uint64(initialBufferSize), b.Capacity())
	require.Equal(t, 1, alloc.creates)
}

func TestGpuMainBufferGrowsToFitRequest(t *testing.T) {
	alloc := &fakeAllocator{}
	b, err := NewGpuMainBuffer(alloc, wgpu.BufferUsageVertex, "test")
	require.NoError(t, err)

	grew, err := b.Prepare(initialBufferSize*3 + 17)
	require.NoError(t, err)
	require.True(t, grew)
	// spec.md §4.3 point 1: reallocate to exactly the requested size, not a
	// rounded-up power of two.
	require.Equal(t, uint64(initialBufferSize*3+17), b.Capacity())
}

func TestGpuMainBufferShrinksUnderSustainedLowUse(t *testing.T) {
	alloc := &fakeAllocator{}
	b, err := NewGpuMainBuffer(alloc, wgpu.BufferUsageVertex, "test")
	require.NoError(t, err)

	_, err = b.Prepare(initialBufferSize * 4)
	require.NoError(t, err)
	grownCap := b.Capacity()

	var lastGrew bool
	for i := 0; i < shrinkCheckInterval; i++ {
		lastGrew, err = b.Prepare(64)
		require.NoError(t, err)
	}
	_ = lastGrew

	require.Less(t, b.Capacity(), grownCap)
	require.GreaterOrEqual(t, b.Capacity(), uint64(initialBufferSize))
}

func TestGpuInputMainBufferCopyStageAligns(t *testing.T) {
	alloc := &fakeAllocator{}
	main, err := NewGpuMainBuffer(alloc, wgpu.BufferUsageVertex, "test")
	require.NoError(t, err)
	q := &fakeQueue{}
	in := NewGpuInputMainBuffer(main, q, 16)

	off1, err := in.CopyStage([]byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, uint64(0), off1)

	off2, err := in.CopyStage([]byte{4, 5})
	require.NoError(t, err)
	require.Equal(t, uint64(16), off2) // aligned up from cursor=3

	require.Len(t, q.writes, 2)
}

func TestGpuInputMainBufferRecallResetsCursor(t *testing.T) {
	alloc := &fakeAllocator{}
	main, err := NewGpuMainBuffer(alloc, wgpu.BufferUsageVertex, "test")
	require.NoError(t, err)
	q := &fakeQueue{}
	in := NewGpuInputMainBuffer(main, q, 4)

	_, err = in.CopyStage([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.Equal(t, uint64(4), in.Cursor())

	in.Recall()
	require.Equal(t, uint64(0), in.Cursor())
}

func newFakeInputBuffer(t *testing.T) (*GpuInputMainBuffer, *fakeQueue) {
	t.Helper()
	alloc := &fakeAllocator{}
	main, err := NewGpuMainBuffer(alloc, wgpu.BufferUsageVertex, "test")
	require.NoError(t, err)
	q := &fakeQueue{}
	return NewGpuInputMainBuffer(main, q, 4), q
}

func TestGpuInputMainBuffersAggregate(t *testing.T) {
	index, _ := newFakeInputBuffer(t)
	vertex, _ := newFakeInputBuffer(t)
	agg := NewGpuInputMainBuffers(index, vertex)

	iOff, vOff, err := agg.CopyStage([]byte{1, 2}, []byte{3, 4, 5, 6})
	require.NoError(t, err)
	require.Equal(t, uint64(0), iOff)
	require.Equal(t, uint64(0), vOff)

	iBytes, vBytes, err := agg.Finish()
	require.NoError(t, err)
	require.Equal(t, uint64(2), iBytes)
	require.Equal(t, uint64(4), vBytes)

	agg.Recall()
	require.Equal(t, uint64(0), index.Cursor())
	require.Equal(t, uint64(0), vertex.Cursor())
}

func TestGpuInputMainBuffersWithPropsAggregate(t *testing.T) {
	index, _ := newFakeInputBuffer(t)
	vertex, _ := newFakeInputBuffer(t)
	props, _ := newFakeInputBuffer(t)
	agg := NewGpuInputMainBuffersWithProps(index, vertex, props)

	iOff, vOff, pOff, err := agg.CopyStage([]byte{1, 2}, []byte{3, 4, 5, 6}, []byte{7, 8, 9, 10})
	require.NoError(t, err)
	require.Equal(t, uint64(0), iOff)
	require.Equal(t, uint64(0), vOff)
	require.Equal(t, uint64(0), pOff)

	iBytes, vBytes, pBytes, err := agg.Finish()
	require.NoError(t, err)
	require.Equal(t, uint64(2), iBytes)
	require.Equal(t, uint64(4), vBytes)
	require.Equal(t, uint64(4), pBytes)

	agg.Recall()
	require.Equal(t, uint64(0), index.Cursor())
	require.Equal(t, uint64(0), vertex.Cursor())
	require.Equal(t, uint64(0), props.Cursor())
}
