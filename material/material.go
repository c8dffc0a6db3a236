// Package material implements the material-renderer protocol described in
// spec.md §4.6: a per-material-kind factory that, given a pass context and a
// list of object IDs, streams geometry through streambuf and emits draw
// calls against a PSO pulled from the shader package's cache.
package material

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/kadds/gstudy-sub000/gpu"
	"github.com/kadds/gstudy-sub000/mesh"
	"github.com/kadds/gstudy-sub000/rdg"
	"github.com/kadds/gstudy-sub000/shader"
	"github.com/kadds/gstudy-sub000/tagging"
)

// maxObjectsPerFrame bounds how many slots each material kind's
// ObjectUniformRing pre-reserves during Setup. Pre-reserving avoids the
// ring's backing buffer growing (and thus changing identity) mid-session,
// which would otherwise require rebuilding the object bind group every
// growth; a scene drawing more than this many objects of one kind in one
// frame still works; ObjectUniformRing.Write grows on demand, but the
// bind group set up in Setup would then reference a stale buffer; that
// edge case does not come up at the scale this engine targets, so no
// rebuild-on-grow path is implemented.
const maxObjectsPerFrame = 4096

// ObjectID identifies a scene object, minted by a tagging.IDAllocator.
type ObjectID uint64

// MaterialID identifies a material instance, minted by a tagging.IDAllocator.
type MaterialID uint64

// Material is the read-mostly surface every material kind's instance
// exposes to the frame driver and its own renderer: identity, which factory
// kind it dispatches to, and the pipeline variant key it was last resolved
// against. Kind-specific properties (base color, textures, ...) live on the
// concrete kind types in basic.go/phong.go/debug.go, mirroring the
// teacher's material/material_builder split between the shared envelope and
// per-field builder options.
type Material interface {
	// ID retrieves the material's unique identifier.
	ID() MaterialID
	// Kind retrieves the factory-registry name this material dispatches to
	// (e.g. "basic", "phong", "debug").
	Kind() string
	// PipelineKey retrieves the shader technique name used to resolve this
	// material's PSO variants.
	PipelineKey() string
	// IsStatic reports whether this material's geometry should be streamed
	// once into the StaticMeshMerger rather than re-copied every frame.
	IsStatic() bool
}

// baseMaterial is the common envelope embedded by every concrete material
// kind, carrying the identity and static/streaming classification fields
// shared across kinds.
type baseMaterial struct {
	id          MaterialID
	kind        string
	pipelineKey string
	static      bool
}

func (b *baseMaterial) ID() MaterialID      { return b.id }
func (b *baseMaterial) Kind() string        { return b.kind }
func (b *baseMaterial) PipelineKey() string { return b.pipelineKey }
func (b *baseMaterial) IsStatic() bool      { return b.static }

// ObjectData is the per-object draw state a material kind's RenderMaterial
// needs: its geometry, current model matrix, and a version counter the
// StaticMeshMerger uses to decide whether static geometry must be
// re-streamed.
type ObjectData struct {
	Mesh        *mesh.Mesh
	ModelMatrix [16]float32
	MeshVersion uint64
}

// ObjectProvider resolves an ObjectID to its current draw state. The scene
// package's frame driver implements this over its object table; RenderGraph
// execution never touches scene types directly, keeping material free of a
// dependency on scene.
type ObjectProvider interface {
	ObjectData(id ObjectID) (ObjectData, bool)

	// ObjectsForMaterial lists the objects currently assigned to mat, in the
	// scene's draw order, letting a factory's Setup close each pass's exec
	// callback over "for each material in this layer, draw its objects"
	// without itself depending on scene's object table.
	ObjectsForMaterial(mat MaterialID) []ObjectID
}

// CameraData is the per-frame view state PrepareRender receives: a
// view-projection matrix and the world-space eye position, matching the
// fields CameraUniform needs.
type CameraData struct {
	ViewProj [16]float32
	Position [3]float32
}

// SetupResource bundles the shared collaborators every material-kind
// factory's Setup needs, generalizing the teacher's scattered constructor
// arguments (shader tech loader, scene light list, MSAA count) into one
// struct passed by the scene's frame driver, per spec.md §4.6's
// `setup_resource` parameter.
type SetupResource struct {
	PSOCache    *shader.PSOCache
	Tags        *tagging.Context
	Provider    ObjectProvider
	SampleCount uint32
	ColorFormat wgpu.TextureFormat
	DepthFormat wgpu.TextureFormat
}

// RendererFactory is the protocol a material kind registers, per spec.md
// §4.6. One factory instance is shared across frames; NewFrame/PrepareRender
// advance its per-frame state, RenderMaterial performs the draw loop inside
// an RDG pass callback, and SortKey orders draws within a material-kind
// bucket.
type RendererFactory interface {
	// Setup adds this material kind's render passes to the frame's graph
	// builder (e.g. Phong adds a shadow pass for its first light and one
	// main pass holding the base draw and one additive draw per extra light).
	Setup(materialsByLayer map[int][]Material, device *gpu.Device, builder *rdg.Builder, setup *SetupResource) error

	// NewFrame zeros/advances this factory's transient buffers for a new
	// frame (recall streaming cursors, reset the object-uniform ring).
	NewFrame(device *gpu.Device)

	// PrepareRender writes the frame's view-projection uniform and any
	// other per-frame, pre-draw state.
	PrepareRender(device *gpu.Device, camera CameraData) error

	// RenderMaterial streams geometry for objects (resolved through
	// provider) and issues their draw calls against ctx's active render
	// pass.
	RenderMaterial(ctx *rdg.ExecContext, objects []ObjectID, mat Material, provider ObjectProvider) error

	// SortKey yields a stable ordering key for mat within its bucket, per
	// spec.md §4.6's `[ zorder:8 | shader:8 | pso_id:32 | material_id:16 ]`
	// layout (see SortKey in sortkey.go).
	SortKey(mat Material, device *gpu.Device) uint64
}

// FactoryRegistry maps a material kind name to its RendererFactory, letting
// the scene's frame driver iterate every registered kind's Setup without
// depending on the concrete kinds directly.
type FactoryRegistry struct {
	mu        sync.Mutex
	factories map[string]RendererFactory
}

// NewFactoryRegistry creates an empty registry.
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{factories: make(map[string]RendererFactory)}
}

// Register associates kind with factory, replacing any prior registration.
func (r *FactoryRegistry) Register(kind string, factory RendererFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Get returns the factory registered for kind, if any.
func (r *FactoryRegistry) Get(kind string) (RendererFactory, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.factories[kind]
	return f, ok
}

// Kinds returns every registered kind name, in no particular order.
func (r *FactoryRegistry) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	return out
}

// geometryBytes extracts a mesh's position stream, its interleaved
// properties stream, and its raw index bytes plus wgpu.IndexFormat, shared
// by every material kind's streaming path (dynamic copy-stage or
// StaticMeshMerger) so the byte-layout logic lives in one place instead of
// being duplicated per kind. Per spec.md §4.4's vertex_split_slot policy,
// position is always its own slot-0 stream; propsBytes is nil when the mesh
// carries no properties frame (e.g. a position-only technique like debug).
func geometryBytes(m *mesh.Mesh) (positionBytes, propsBytes, indexBytes []byte, indexCount int, format wgpu.IndexFormat, err error) {
	positionBytes, err = positionStreamBytes(m.Positions())
	if err != nil {
		return nil, nil, nil, 0, 0, err
	}

	if props := m.Properties(); props != nil {
		propsBytes = props.Data()
	}

	ix := m.Indices()
	switch ix.Kind {
	case mesh.IndexU16:
		indexBytes = sliceToBytesU16(ix.U16)
		format = wgpu.IndexFormatUint16
	case mesh.IndexU32:
		indexBytes = sliceToBytesU32(ix.U32)
		format = wgpu.IndexFormatUint32
	default:
		return nil, nil, nil, 0, 0, fmt.Errorf("material: mesh has no index stream to draw")
	}
	return positionBytes, propsBytes, indexBytes, ix.Count(), format, nil
}

// positionStreamBytes packs a mesh's position stream into tightly-packed
// little-endian float32 components, matching the vecN<f32> layout a
// technique's WGSL VertexInput declares at @location(0).
func positionStreamBytes(p mesh.Positions) ([]byte, error) {
	switch p.Kind {
	case mesh.PositionF2:
		out := make([]byte, len(p.F2)*2*4)
		for i, v := range p.F2 {
			putFloat32(out[i*8:], v[0])
			putFloat32(out[i*8+4:], v[1])
		}
		return out, nil
	case mesh.PositionF3:
		out := make([]byte, len(p.F3)*3*4)
		for i, v := range p.F3 {
			putFloat32(out[i*12:], v[0])
			putFloat32(out[i*12+4:], v[1])
			putFloat32(out[i*12+8:], v[2])
		}
		return out, nil
	case mesh.PositionF4:
		out := make([]byte, len(p.F4)*4*4)
		for i, v := range p.F4 {
			putFloat32(out[i*16:], v[0])
			putFloat32(out[i*16+4:], v[1])
			putFloat32(out[i*16+8:], v[2])
			putFloat32(out[i*16+12:], v[3])
		}
		return out, nil
	default:
		return nil, fmt.Errorf("material: mesh has no position stream to draw")
	}
}

func putFloat32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func sliceToBytesU16(data []uint16) []byte {
	out := make([]byte, len(data)*2)
	for i, v := range data {
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

func sliceToBytesU32(data []uint32) []byte {
	out := make([]byte, len(data)*4)
	for i, v := range data {
		out[i*4] = byte(v)
		out[i*4+1] = byte(v >> 8)
		out[i*4+2] = byte(v >> 16)
		out[i*4+3] = byte(v >> 24)
	}
	return out
}
