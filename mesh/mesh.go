package mesh

import "fmt"

// PositionKind tags which variant of vertex-position storage a Mesh uses.
type PositionKind int

const (
	// PositionNone means the mesh carries no explicit position stream
	// (e.g. fullscreen-triangle passes that compute positions in-shader).
	PositionNone PositionKind = iota
	// PositionF2 stores 2-component float positions.
	PositionF2
	// PositionF3 stores 3-component float positions.
	PositionF3
	// PositionF4 stores 4-component float (homogeneous) positions.
	PositionF4
)

// Positions is the tagged-variant position stream described in spec.md §3.
type Positions struct {
	Kind PositionKind
	F2   [][2]float32
	F3   [][3]float32
	F4   [][4]float32
}

// Count returns the number of position rows for whichever variant is set.
func (p Positions) Count() int {
	switch p.Kind {
	case PositionF2:
		return len(p.F2)
	case PositionF3:
		return len(p.F3)
	case PositionF4:
		return len(p.F4)
	default:
		return 0
	}
}

// IndexKind tags which variant of index storage a Mesh uses.
type IndexKind int

const (
	// IndexNone means the mesh is unindexed.
	IndexNone IndexKind = iota
	// IndexU16 stores 16-bit indices.
	IndexU16
	// IndexU32 stores 32-bit indices.
	IndexU32
)

// Indices is the tagged-variant index stream described in spec.md §3.
type Indices struct {
	Kind IndexKind
	U16  []uint16
	U32  []uint32
}

// Count returns the number of indices for whichever variant is set.
func (ix Indices) Count() int {
	switch ix.Kind {
	case IndexU16:
		return len(ix.U16)
	case IndexU32:
		return len(ix.U32)
	default:
		return 0
	}
}

// ClipRect is the optional UI scissor rectangle attached to a Mesh.
type ClipRect struct {
	X, Y, Width, Height float32
}

// PropertyKey identifies a per-vertex property slot recognized by this
// engine's built-in material kinds. Application code may define additional
// keys past PropertyKeyUserStart for custom vertex pulling.
type PropertyKey int

const (
	PropertyNormal PropertyKey = iota
	PropertyUV
	PropertyColor
	PropertyTangent
	PropertyKeyUserStart PropertyKey = 1000
)

// Mesh is the immutable-after-build interleaved geometry container described
// in spec.md §3: tagged position/index variants plus an interleaved
// PropertiesFrame of per-vertex attributes.
type Mesh struct {
	positions  Positions
	indices    Indices
	properties *PropertiesFrame[PropertyKey]
	vertexCount int
	clip       *ClipRect
}

// Positions returns the mesh's position stream.
func (m *Mesh) Positions() Positions { return m.positions }

// Indices returns the mesh's index stream.
func (m *Mesh) Indices() Indices { return m.indices }

// Properties returns the interleaved per-vertex property frame.
func (m *Mesh) Properties() *PropertiesFrame[PropertyKey] { return m.properties }

// VertexCount returns the number of vertex rows in the mesh.
func (m *Mesh) VertexCount() int { return m.vertexCount }

// Clip returns the optional scissor rectangle (UI meshes only), or nil.
func (m *Mesh) Clip() *ClipRect { return m.clip }

// ErrMeshShape is returned by Build when the position count and the
// properties frame's row count disagree, per spec.md §4.2.
var ErrMeshShape = fmt.Errorf("mesh: MeshShape: position count and properties row count disagree")

// MeshBuilder assembles a Mesh from positions, indices, and a properties
// frame, enforcing the invariants in spec.md §4.2.
type MeshBuilder struct {
	positions     Positions
	positionsSet  bool
	indices       Indices
	indicesSet    bool
	properties    *PropertiesFrame[PropertyKey]
	clip          *ClipRect
}

// NewMeshBuilder creates an empty mesh builder.
func NewMeshBuilder() *MeshBuilder {
	return &MeshBuilder{}
}

// SetPositions sets the position stream. Pass Positions{Kind: PositionNone}
// to explicitly declare "no positions" (still required before Build).
func (b *MeshBuilder) SetPositions(p Positions) *MeshBuilder {
	b.positions = p
	b.positionsSet = true
	return b
}

// SetIndices sets the index stream. Pass Indices{Kind: IndexNone} to
// explicitly declare "unindexed" (still required before Build).
func (b *MeshBuilder) SetIndices(ix Indices) *MeshBuilder {
	b.indices = ix
	b.indicesSet = true
	return b
}

// SetProperties attaches the interleaved per-vertex property frame.
func (b *MeshBuilder) SetProperties(f *PropertiesFrame[PropertyKey]) *MeshBuilder {
	b.properties = f
	return b
}

// SetClip attaches an optional UI scissor rectangle.
func (b *MeshBuilder) SetClip(c ClipRect) *MeshBuilder {
	b.clip = &c
	return b
}

// Build validates and constructs the immutable Mesh. Fails ErrMeshShape if
// positions are a finite list, properties are set with count > 0, and the
// two counts differ — per spec.md §4.2's MeshBuilder contract.
func (b *MeshBuilder) Build() (*Mesh, error) {
	if !b.positionsSet {
		return nil, fmt.Errorf("mesh: MeshBuilder.Build: positions must be set (or explicitly PositionNone)")
	}
	if !b.indicesSet {
		return nil, fmt.Errorf("mesh: MeshBuilder.Build: indices must be set (or explicitly IndexNone)")
	}

	vertexCount := b.positions.Count()
	if b.properties != nil && b.properties.Count() > 0 {
		if b.positions.Kind != PositionNone && b.positions.Count() != b.properties.Count() {
			return nil, ErrMeshShape
		}
		if b.positions.Kind == PositionNone {
			vertexCount = b.properties.Count()
		}
	}

	return &Mesh{
		positions:   b.positions,
		indices:     b.indices,
		properties:  b.properties,
		vertexCount: vertexCount,
		clip:        b.clip,
	}, nil
}
