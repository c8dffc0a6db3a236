package material

import (
	"testing"

	"github.com/kadds/gstudy-sub000/mesh"
	"github.com/stretchr/testify/require"
)

// testTriangle builds a minimal triangle mesh for streaming tests: no
// interleaved properties beyond a single normal, 3 positions, u16 indices.
func testTriangle(t *testing.T) *mesh.Mesh {
	t.Helper()
	b := mesh.NewPropertiesBuilder[mesh.PropertyKey]()
	b.AddProperty(mesh.PropertyNormal, 12, 4)
	mesh.AddPropertyData(b, mesh.PropertyNormal, [][3]float32{{0, 1, 0}, {0, 1, 0}, {0, 1, 0}})
	frame := b.Build()

	mb := mesh.NewMeshBuilder()
	mb.SetPositions(mesh.Positions{Kind: mesh.PositionF3, F3: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}})
	mb.SetIndices(mesh.Indices{Kind: mesh.IndexU16, U16: []uint16{0, 1, 2}})
	mb.SetProperties(frame)

	m, err := mb.Build()
	require.NoError(t, err)
	return m
}
