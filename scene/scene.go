// Package scene implements the scene object table and the per-frame phase
// driver described in spec.md §4.7: pre-update/post-update bookkeeping,
// material-kind bucketing, render graph build/compile/execute, and
// post-render notification, generalized from the teacher's
// engine/scene/scene.go animator-pool model to the material-factory-bucket
// model the rest of this module implements.
package scene

import (
	"fmt"
	"runtime"
	"sort"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/kadds/gstudy-sub000/engine/profiler"
	"github.com/kadds/gstudy-sub000/gpu"
	"github.com/kadds/gstudy-sub000/internal/workerpool"
	"github.com/kadds/gstudy-sub000/material"
	"github.com/kadds/gstudy-sub000/mesh"
	"github.com/kadds/gstudy-sub000/rdg"
	"github.com/kadds/gstudy-sub000/shader"
	"github.com/kadds/gstudy-sub000/tagging"
)

// DepthFormat is the render target depth-buffer format every registered
// material kind's pipelines are resolved against, per spec.md §6.
const DepthFormat = wgpu.TextureFormatDepth32Float

// lightReceiver is implemented by material kinds that consume the scene's
// light list (currently only *material.PhongRendererFactory). Scene
// type-asserts against this instead of depending on the concrete phong
// type, keeping scene decoupled from individual material kinds the way
// material is kept decoupled from scene via ObjectProvider.
type lightReceiver interface {
	SetLights(ambient [3]float32, lights []material.Light)
}

// Scene owns the object table, the registered material instances, the
// camera, and the lighting state, and drives the seven per-frame phases
// spec.md §4.7 names. A fresh rdg.Builder is created every frame, per
// spec.md §9.2/§4.7 step 4.
type Scene struct {
	tags     *tagging.Context
	registry *material.FactoryRegistry
	psoCache *shader.PSOCache
	pool     *workerpool.Pool

	objects map[material.ObjectID]*object
	pending []*object
	removed []material.ObjectID

	buckets map[material.MaterialID][]material.ObjectID

	materials map[material.MaterialID]material.Material

	Camera *Camera

	ambient [3]float32
	lights  []material.Light

	SampleCount uint32
	ColorFormat wgpu.TextureFormat

	// Profiler, if non-nil, is ticked once per Render call. Disabled by
	// default; enable it with Scene.EnableProfiling.
	Profiler *profiler.Profiler
}

// EnableProfiling attaches a frame-rate/heap profiler that logs a summary
// once per second of sustained rendering, per spec.md §9's "ambient
// diagnostics, not a full metrics pipeline" scoping.
func (s *Scene) EnableProfiling() {
	s.Profiler = profiler.NewProfiler()
}

// Ensure Scene implements material.ObjectProvider.
var _ material.ObjectProvider = (*Scene)(nil)

// New creates an empty Scene. tags must be the same tagging.Context used to
// mint the object/material IDs that will be passed to AddObject/AddMaterial
// — a Scene never allocates its own IDs, per spec.md §9's "no package-level
// globals" decision.
func New(tags *tagging.Context, registry *material.FactoryRegistry, colorFormat wgpu.TextureFormat, cam *Camera) *Scene {
	return &Scene{
		tags:        tags,
		registry:    registry,
		psoCache:    shader.NewPSOCache(),
		pool:        workerpool.New(max(runtime.NumCPU()-1, 1)),
		objects:     make(map[material.ObjectID]*object),
		buckets:     make(map[material.MaterialID][]material.ObjectID),
		materials:   make(map[material.MaterialID]material.Material),
		Camera:      cam,
		SampleCount: 1,
		ColorFormat: colorFormat,
	}
}

// AddMaterial registers mat so its kind's factory will draw any object
// assigned to mat.ID() on the next frame.
func (s *Scene) AddMaterial(mat material.Material) {
	s.materials[mat.ID()] = mat
}

// RemoveMaterial unregisters a material instance. Objects still assigned to
// it become undrawable (absent from every bucket) until reassigned.
func (s *Scene) RemoveMaterial(id material.MaterialID) {
	delete(s.materials, id)
	delete(s.buckets, id)
}

// SetAmbient sets the scene's ambient light color, forwarded to light-aware
// material kinds (currently Phong) during BuildFrame.
func (s *Scene) SetAmbient(r, g, b float32) {
	s.ambient = [3]float32{r, g, b}
}

// SetLights replaces the scene's active light list, forwarded to
// light-aware material kinds during BuildFrame. Index 0 is treated as the
// primary, potentially shadow-casting light by material/phong.go.
func (s *Scene) SetLights(lights []material.Light) {
	s.lights = lights
}

// AddObject stages a new object for addition, returning its allocated ID
// immediately. The object does not appear in ObjectData/ObjectsForMaterial,
// or any draw, until PostUpdate commits it — spec.md §4.7 step 2,
// "materialize any deferred additions".
func (s *Scene) AddObject(m *mesh.Mesh, matID material.MaterialID, tagNames ...string) material.ObjectID {
	id := material.ObjectID(s.tags.ObjectID.Next())
	tags := make([]tagging.TagID, len(tagNames))
	for i, name := range tagNames {
		tags[i] = s.tags.Tags.AllocOrGet(name)
	}
	s.pending = append(s.pending, newObject(id, m, matID, tags))
	return id
}

// RemoveObject stages id for removal, committed on the next PostUpdate.
func (s *Scene) RemoveObject(id material.ObjectID) {
	s.removed = append(s.removed, id)
}

// RemoveByTag stages every object carrying tagName for removal.
func (s *Scene) RemoveByTag(tagName string) {
	tagID, ok := s.tags.Tags.Lookup(tagName)
	if !ok {
		return
	}
	for id, o := range s.objects {
		if o.hasTag(tagID) {
			s.removed = append(s.removed, id)
		}
	}
}

// SetTransform updates an already-committed object's position, Euler
// rotation (radians), and scale, marking it dirty for matrix rebuild on the
// next Render.
func (s *Scene) SetTransform(id material.ObjectID, pos, rot, scale [3]float32) {
	o, ok := s.objects[id]
	if !ok {
		return
	}
	o.pos, o.rot, o.scale = pos, rot, scale
	o.dirty = true
}

// SetMesh replaces an object's geometry and bumps its mesh version, so the
// owning material kind's StaticMeshMerger (if any) re-streams it instead of
// reusing the stale cached copy.
func (s *Scene) SetMesh(id material.ObjectID, m *mesh.Mesh) {
	o, ok := s.objects[id]
	if !ok {
		return
	}
	o.mesh = m
	o.meshVersion++
}

// PostUpdate commits every AddObject/RemoveObject/RemoveByTag call staged
// since the last PostUpdate. Call once per frame, after external
// collaborators have finished their pre-update mutations (spec.md §4.7
// steps 1-2).
func (s *Scene) PostUpdate() {
	for _, id := range s.removed {
		delete(s.objects, id)
	}
	s.removed = s.removed[:0]

	for _, o := range s.pending {
		s.objects[o.id] = o
	}
	s.pending = s.pending[:0]
}

// prepareTransforms rebuilds the model matrix of every dirty object,
// fanning the work out across the worker pool — the direct generalization
// of the teacher's per-animator parallel CPU prep phase (engine/scene/
// scene.go's PrepareCompute) to this engine's per-object transform model.
func (s *Scene) prepareTransforms() error {
	var jobs []func() error
	for _, o := range s.objects {
		if !o.dirty {
			continue
		}
		obj := o
		jobs = append(jobs, func() error {
			obj.rebuildModel()
			return nil
		})
	}
	if len(jobs) == 0 {
		return nil
	}
	return s.pool.Run(jobs)
}

// buildBuckets groups every registered material by kind and, within each
// kind, by its factory's SortKey, and separately groups object IDs by
// material. Returns per-kind, per-layer material lists ready for
// RendererFactory.Setup's materialsByLayer parameter.
func (s *Scene) buildBuckets(device *gpu.Device) (map[string][]material.Material, error) {
	byKind := make(map[string][]material.Material)
	for _, mat := range s.materials {
		byKind[mat.Kind()] = append(byKind[mat.Kind()], mat)
	}

	for kind, mats := range byKind {
		factory, ok := s.registry.Get(kind)
		if !ok {
			return nil, fmt.Errorf("scene: material kind %q has no registered factory", kind)
		}
		sort.Slice(mats, func(i, j int) bool {
			return factory.SortKey(mats[i], device) < factory.SortKey(mats[j], device)
		})
		byKind[kind] = mats
	}

	buckets := make(map[material.MaterialID][]material.ObjectID, len(s.buckets))
	ids := make([]material.ObjectID, 0, len(s.objects))
	for id := range s.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		o := s.objects[id]
		if _, ok := s.materials[o.materialID]; !ok {
			continue
		}
		buckets[o.materialID] = append(buckets[o.materialID], id)
	}
	s.buckets = buckets

	return byKind, nil
}

// ObjectData implements material.ObjectProvider.
func (s *Scene) ObjectData(id material.ObjectID) (material.ObjectData, bool) {
	o, ok := s.objects[id]
	if !ok {
		return material.ObjectData{}, false
	}
	return material.ObjectData{Mesh: o.mesh, ModelMatrix: o.model, MeshVersion: o.meshVersion}, true
}

// ObjectsForMaterial implements material.ObjectProvider.
func (s *Scene) ObjectsForMaterial(matID material.MaterialID) []material.ObjectID {
	return s.buckets[matID]
}

// Render drives spec.md §4.7 steps 2-7 for one frame: commits deferred
// scene mutations, rebuilds dirty transforms, buckets and sorts materials,
// builds a fresh render graph, compiles it, executes it against the
// acquired swapchain image, and presents. postRender (if non-nil) is
// invoked last, e.g. to notify an async loader's mailbox per spec.md §5.
func (s *Scene) Render(device *gpu.Device, width, height uint32, clear *wgpu.Color, postRender func()) error {
	s.PostUpdate()

	if err := s.prepareTransforms(); err != nil {
		return fmt.Errorf("scene: preparing transforms: %w", err)
	}

	byKind, err := s.buildBuckets(device)
	if err != nil {
		return fmt.Errorf("scene: building material buckets: %w", err)
	}

	builder := rdg.NewBuilder("frame")
	builder.SetPresentTarget(width, height, device.SurfaceFormat(), clear)

	setupResource := &material.SetupResource{
		PSOCache:    s.psoCache,
		Tags:        s.tags,
		Provider:    s,
		SampleCount: s.SampleCount,
		ColorFormat: s.ColorFormat,
		DepthFormat: DepthFormat,
	}

	cameraData := material.CameraData{}
	if s.Camera != nil {
		cameraData = s.Camera.Data()
	}

	for _, kind := range s.registry.Kinds() {
		mats := byKind[kind]
		if len(mats) == 0 {
			continue
		}
		factory, ok := s.registry.Get(kind)
		if !ok {
			continue
		}
		if lr, ok := factory.(lightReceiver); ok {
			lr.SetLights(s.ambient, s.lights)
		}
		factory.NewFrame(device)
		if err := factory.PrepareRender(device, cameraData); err != nil {
			return fmt.Errorf("scene: preparing render for kind %q: %w", kind, err)
		}
		if err := factory.Setup(map[int][]material.Material{0: mats}, device, builder, setupResource); err != nil {
			return fmt.Errorf("scene: setting up graph for kind %q: %w", kind, err)
		}
	}

	graph, err := builder.Compile()
	if err != nil {
		return fmt.Errorf("scene: compiling render graph: %w", err)
	}

	surface, err := device.AcquireSurfaceTexture()
	if err != nil {
		return fmt.Errorf("scene: acquiring surface texture: %w", err)
	}

	if err := graph.Execute(device, rdg.Injected{rdg.RTColor: surface}); err != nil {
		surface.Release()
		return fmt.Errorf("scene: executing render graph: %w", err)
	}
	surface.Release()

	if s.Profiler != nil {
		s.Profiler.NoteFrame(graph.PassCount())
		s.Profiler.Tick()
	}

	if postRender != nil {
		postRender()
	}
	return nil
}
