package mesh

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildBasicFrame(t *testing.T, rows int) *PropertiesFrame[PropertyKey] {
	t.Helper()
	b := NewPropertiesBuilder[PropertyKey]()
	b.AddProperty(PropertyNormal, 12, 4)
	b.AddProperty(PropertyUV, 8, 4)

	normals := make([][3]float32, rows)
	uvs := make([][2]float32, rows)
	for i := range normals {
		normals[i] = [3]float32{0, 1, 0}
		uvs[i] = [2]float32{float32(i), 0}
	}
	AddPropertyData(b, PropertyNormal, normals)
	AddPropertyData(b, PropertyUV, uvs)
	return b.Build()
}

func TestPropertiesFrameInvariants(t *testing.T) {
	frame := buildBasicFrame(t, 4)

	require.Equal(t, 20, frame.RowStride()) // 12 + 8, packed
	require.Equal(t, 4, frame.Count())
	require.Len(t, frame.Data(), frame.RowStride()*frame.Count())

	for _, key := range frame.Keys() {
		off, ok := frame.Offset(key)
		require.True(t, ok)
		require.LessOrEqual(t, off.Offset+off.Length, frame.RowStride())
	}
}

func TestPropertiesBuilderPanicsOnSizeMismatch(t *testing.T) {
	b := NewPropertiesBuilder[PropertyKey]()
	b.AddProperty(PropertyNormal, 12, 4)

	require.Panics(t, func() {
		// float32 is 4 bytes per element * 2 = 8, but registered length is 12
		AddPropertyData(b, PropertyNormal, [][2]float32{{0, 0}})
	})
}

func TestPropertiesBuilderWarnsOnMismatchedCountsButStillBuilds(t *testing.T) {
	b := NewPropertiesBuilder[PropertyKey]()
	b.AddProperty(PropertyNormal, 12, 4)
	b.AddProperty(PropertyUV, 8, 4)

	AddPropertyData(b, PropertyNormal, make([][3]float32, 3))
	AddPropertyData(b, PropertyUV, make([][2]float32, 2))

	frame := b.Build()
	require.Equal(t, 3, frame.Count()) // rows accumulated from the first key
}

func TestPropertiesUpdaterOutOfRange(t *testing.T) {
	frame := buildBasicFrame(t, 2)
	u := NewPropertiesUpdater(frame)

	err := u.Update(PropertyUV, 1, 5, make([]byte, 5*8))
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestPropertiesUpdaterInPlace(t *testing.T) {
	frame := buildBasicFrame(t, 2)
	u := NewPropertiesUpdater(frame)

	newUV := [2]float32{9, 9}
	b := NewPropertiesBuilder[PropertyKey]()
	b.AddProperty(PropertyUV, 8, 4)
	AddPropertyData(b, PropertyUV, [][2]float32{newUV})
	data := b.Build().Data()

	err := u.Update(PropertyUV, 0, 1, data)
	require.NoError(t, err)

	got, ok := frame.PropertyBytes(PropertyUV, 0)
	require.True(t, ok)
	require.Equal(t, data, got)
}

func TestMeshBuilderShapeMismatch(t *testing.T) {
	frame := buildBasicFrame(t, 4)

	mb := NewMeshBuilder()
	mb.SetPositions(Positions{Kind: PositionF3, F3: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}})
	mb.SetIndices(Indices{Kind: IndexNone})
	mb.SetProperties(frame)

	_, err := mb.Build()
	require.ErrorIs(t, err, ErrMeshShape)
}

func TestMeshBuilderRoundTrip(t *testing.T) {
	positions := [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	indicesU32 := []uint32{0, 1, 2}

	frame := buildBasicFrame(t, len(positions))

	mb := NewMeshBuilder()
	mb.SetPositions(Positions{Kind: PositionF3, F3: positions})
	mb.SetIndices(Indices{Kind: IndexU32, U32: indicesU32})
	mb.SetProperties(frame)

	m, err := mb.Build()
	require.NoError(t, err)
	require.Equal(t, len(positions), m.VertexCount())
	require.Equal(t, indicesU32, m.Indices().U32)
	require.Equal(t, positions, m.Positions().F3)
}
