package material

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/kadds/gstudy-sub000/mesh"
	"github.com/stretchr/testify/require"
)

func TestGeometryBytesSplitsPositionFromProperties(t *testing.T) {
	m := testTriangle(t)

	posBytes, propsBytes, indexBytes, indexCount, format, err := geometryBytes(m)
	require.NoError(t, err)
	require.Equal(t, 3, indexCount)
	require.Equal(t, wgpu.IndexFormatUint16, format)
	require.Len(t, indexBytes, 6)

	// 3 positions * vec3<f32> = 36 bytes, entirely separate from the
	// properties frame's bytes.
	require.Len(t, posBytes, 36)
	require.NotEmpty(t, propsBytes)

	require.Equal(t, float32(1), decodeF32(t, posBytes, 12))
	require.Equal(t, float32(0), decodeF32(t, posBytes, 16))
}

func TestGeometryBytesNilPropertiesWhenMeshHasNone(t *testing.T) {
	mb := mesh.NewMeshBuilder()
	mb.SetPositions(mesh.Positions{Kind: mesh.PositionF3, F3: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}})
	mb.SetIndices(mesh.Indices{Kind: mesh.IndexU16, U16: []uint16{0, 1, 2}})
	m, err := mb.Build()
	require.NoError(t, err)

	posBytes, propsBytes, _, _, _, err := geometryBytes(m)
	require.NoError(t, err)
	require.Nil(t, propsBytes)
	require.Len(t, posBytes, 36)
}

func TestPositionStreamBytesEncodesEachVariant(t *testing.T) {
	f2, err := positionStreamBytes(mesh.Positions{Kind: mesh.PositionF2, F2: [][2]float32{{1, 2}}})
	require.NoError(t, err)
	require.Len(t, f2, 8)
	require.Equal(t, math.Float32bits(1), binary.LittleEndian.Uint32(f2[0:4]))
	require.Equal(t, math.Float32bits(2), binary.LittleEndian.Uint32(f2[4:8]))

	f4, err := positionStreamBytes(mesh.Positions{Kind: mesh.PositionF4, F4: [][4]float32{{1, 2, 3, 4}}})
	require.NoError(t, err)
	require.Len(t, f4, 16)
	require.Equal(t, math.Float32bits(4), binary.LittleEndian.Uint32(f4[12:16]))

	_, err = positionStreamBytes(mesh.Positions{Kind: mesh.PositionNone})
	require.Error(t, err)
}
