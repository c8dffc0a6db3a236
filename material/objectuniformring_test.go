package material

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/require"
)

type fakeAllocator struct {
	creates int
}

func (f *fakeAllocator) CreateGPUBuffer(size uint64, usage wgpu.BufferUsage, label string) (*wgpu.Buffer, error) {
	f.creates++
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

func TestObjectUniformRingWriteAdvancesSlots(t *testing.T) {
	alloc := &fakeAllocator{}
	q := &fakeQueue{}
	ring, err := NewObjectUniformRing(alloc, q, 256, "test.object")
	require.NoError(t, err)

	off0, err := ring.Write(make([]byte, 64))
	require.NoError(t, err)
	require.Equal(t, uint64(0), off0)

	off1, err := ring.Write(make([]byte, 64))
	require.NoError(t, err)
	require.Equal(t, uint64(256), off1)
	require.Equal(t, 2, ring.Used())
}

func TestObjectUniformRingResetRestartsSlotZero(t *testing.T) {
	alloc := &fakeAllocator{}
	q := &fakeQueue{}
	ring, err := NewObjectUniformRing(alloc, q, 256, "test.object")
	require.NoError(t, err)

	_, err = ring.Write(make([]byte, 64))
	require.NoError(t, err)
	ring.Reset()
	require.Equal(t, 0, ring.Used())

	off, err := ring.Write(make([]byte, 64))
	require.NoError(t, err)
	require.Equal(t, uint64(0), off)
}

func TestObjectUniformRingRejectsOversizedWrite(t *testing.T) {
	alloc := &fakeAllocator{}
	q := &fakeQueue{}
	ring, err := NewObjectUniformRing(alloc, q, 32, "test.object")
	require.NoError(t, err)

	_, err = ring.Write(make([]byte, 64))
	require.Error(t, err)
}

func TestObjectUniformRingReserveGrowsCapacityUpfront(t *testing.T) {
	alloc := &fakeAllocator{}
	q := &fakeQueue{}
	ring, err := NewObjectUniformRing(alloc, q, 256, "test.object")
	require.NoError(t, err)

	require.NoError(t, ring.Reserve(64))
	before := alloc.creates

	for i := 0; i < 64; i++ {
		_, err := ring.Write(make([]byte, 64))
		require.NoError(t, err)
	}
	require.Equal(t, before, alloc.creates, "writing within the reserved slot count should not trigger a resize")
}
