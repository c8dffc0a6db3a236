package material

import (
	_ "embed"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/kadds/gstudy-sub000/gpu"
	"github.com/kadds/gstudy-sub000/rdg"
	"github.com/kadds/gstudy-sub000/shader"
	"github.com/kadds/gstudy-sub000/streambuf"
)

//go:embed assets/debug.wgsl
var debugWGSL string

// DebugMaterial is the flat-color "debug" material kind. The caller registers
// it like any other kind; no code path switches a material to it when a
// technique's reflection fails.
type DebugMaterial struct {
	baseMaterial
	BaseColor [4]float32
}

// NewDebugMaterial builds a debug material drawing every object flat-shaded
// in baseColor.
func NewDebugMaterial(id MaterialID, baseColor [4]float32, static bool) *DebugMaterial {
	return &DebugMaterial{
		baseMaterial: baseMaterial{id: id, kind: "debug", pipelineKey: "debug", static: static},
		BaseColor:    baseColor,
	}
}

// DebugRendererFactory implements RendererFactory for the "debug" kind: one
// untextured forward pass, no lights, no shadows. Static objects stream
// through a StaticMeshMerger exactly once per mesh version; dynamic objects
// restream into a per-frame scratch buffer every frame.
type DebugRendererFactory struct {
	pipeline *pipelineHandles

	cameraBuf   *wgpu.Buffer
	cameraGroup *wgpu.BindGroup
	cameraIdx   int

	objRing  *ObjectUniformRing
	objGroup *wgpu.BindGroup
	objIdx   int

	materialIdx int
	materialBuf map[MaterialID]*wgpu.Buffer
	materialGrp map[MaterialID]*wgpu.BindGroup

	static  *StaticMeshMerger
	dynamic *streambuf.GpuInputMainBuffers

	materials []Material

	configured bool
}

// NewDebugRendererFactory constructs an unconfigured factory; Setup performs
// the actual pipeline/bind-group wiring once a device and SetupResource are
// available.
func NewDebugRendererFactory() *DebugRendererFactory {
	return &DebugRendererFactory{
		materialBuf: make(map[MaterialID]*wgpu.Buffer),
		materialGrp: make(map[MaterialID]*wgpu.BindGroup),
	}
}

// Setup resolves the debug pipeline (once) and adds the one forward pass
// that draws every debug material in materialsByLayer. Setup runs once per
// frame (a fresh rdg.Builder is built every frame, per spec.md §9.2), so
// the one-time pipeline/bind-group/streaming-buffer wiring lives behind the
// configured guard in configure; only newly-seen materials get a bind group
// created here.
func (f *DebugRendererFactory) Setup(materialsByLayer map[int][]Material, device *gpu.Device, builder *rdg.Builder, setup *SetupResource) error {
	if !f.configured {
		if err := f.configure(device, setup); err != nil {
			return err
		}
		f.configured = true
	}

	materials := materialsByLayer[0]
	f.materials = materials
	for _, mat := range materials {
		dm, ok := mat.(*DebugMaterial)
		if !ok {
			continue
		}
		if _, exists := f.materialBuf[dm.ID()]; exists {
			continue
		}
		if err := f.bindMaterial(device, dm); err != nil {
			return err
		}
	}

	builder.AddRenderPass(rdg.NewRenderPass("debug.forward", func(ctx *rdg.ExecContext) {
		for _, mat := range f.materials {
			objects := setup.Provider.ObjectsForMaterial(mat.ID())
			if len(objects) == 0 {
				continue
			}
			_ = f.RenderMaterial(ctx, objects, mat, setup.Provider)
		}
	}, rdg.WithColorTarget(rdg.RTColor), rdg.WithDepthTarget(rdg.RTDepth)))

	return nil
}

// configure performs the one-time pipeline resolution, camera/object
// bind-group wiring, and static/dynamic streaming buffer creation. Called
// once, guarded by f.configured in Setup.
func (f *DebugRendererFactory) configure(device *gpu.Device, setup *SetupResource) error {
	objStride := uint64(new(ObjectUniform).Size())

	key := shader.NewVariantKey("debug", 0, nil)
	ph, err := resolvePipeline(device, setup.PSOCache, key, func(shader.VariantKey) (shader.PipelineDesc, error) {
		return shader.NewPipelineDesc("debug", debugWGSL, debugWGSL,
			shader.WithColorFormat(setup.ColorFormat),
			shader.WithSampleCount(setup.SampleCount),
		), nil
	}, objStride)
	if err != nil {
		return fmt.Errorf("material: debug: %w", err)
	}
	f.pipeline = ph

	rawDevice, queue, _, _ := device.Raw()

	cameraBuf, err := device.CreateGPUBuffer(uint64(new(CameraUniform).Size()), wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, "debug.camera")
	if err != nil {
		return fmt.Errorf("material: debug: creating camera buffer: %w", err)
	}
	f.cameraBuf = cameraBuf
	f.cameraIdx = findGroup(ph.kinds, shader.PurposeGroupCamera)
	if f.cameraIdx >= 0 {
		f.cameraGroup, err = rawDevice.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   "debug.camera.group",
			Layout:  ph.layouts[f.cameraIdx],
			Entries: []wgpu.BindGroupEntry{{Binding: 0, Buffer: cameraBuf, Offset: 0, Size: wgpu.WholeSize}},
		})
		if err != nil {
			return fmt.Errorf("material: debug: creating camera bind group: %w", err)
		}
	}

	objRing, err := NewObjectUniformRing(device, queue, objStride, "debug.object")
	if err != nil {
		return fmt.Errorf("material: debug: creating object ring: %w", err)
	}
	f.objRing = objRing
	if err := objRing.Reserve(maxObjectsPerFrame); err != nil {
		return fmt.Errorf("material: debug: reserving object ring: %w", err)
	}
	f.objIdx = findGroup(ph.kinds, shader.PurposeGroupObject)
	if f.objIdx >= 0 {
		f.objGroup, err = rawDevice.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   "debug.object.group",
			Layout:  ph.layouts[f.objIdx],
			Entries: []wgpu.BindGroupEntry{{Binding: 0, Buffer: objRing.Buffer(), Offset: 0, Size: objStride}},
		})
		if err != nil {
			return fmt.Errorf("material: debug: creating object bind group: %w", err)
		}
	}

	f.materialIdx = findGroup(ph.kinds, shader.PurposeGroupMaterial)

	// debug.wgsl's VertexInput carries position alone (no properties field),
	// so this kind never allocates a properties buffer at all.
	staticPos, err := streambuf.NewGpuMainBuffer(device, wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst, "debug.static.positions")
	if err != nil {
		return fmt.Errorf("material: debug: %w", err)
	}
	staticIdx, err := streambuf.NewGpuMainBuffer(device, wgpu.BufferUsageIndex|wgpu.BufferUsageCopyDst, "debug.static.indices")
	if err != nil {
		return fmt.Errorf("material: debug: %w", err)
	}
	f.static = NewStaticMeshMerger(
		streambuf.NewGpuInputMainBuffer(staticIdx, queue, 0),
		streambuf.NewGpuInputMainBuffer(staticPos, queue, 0),
		nil,
	)

	dynPos, err := streambuf.NewGpuMainBuffer(device, wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst, "debug.dynamic.positions")
	if err != nil {
		return fmt.Errorf("material: debug: %w", err)
	}
	dynIdx, err := streambuf.NewGpuMainBuffer(device, wgpu.BufferUsageIndex|wgpu.BufferUsageCopyDst, "debug.dynamic.indices")
	if err != nil {
		return fmt.Errorf("material: debug: %w", err)
	}
	f.dynamic = streambuf.NewGpuInputMainBuffers(
		streambuf.NewGpuInputMainBuffer(dynIdx, queue, 0),
		streambuf.NewGpuInputMainBuffer(dynPos, queue, 0),
	)

	return nil
}

// bindMaterial creates the per-material uniform buffer and bind group for a
// newly-seen DebugMaterial and writes its initial uniform data. Called once
// per material instance, from Setup, guarded by the f.materialBuf presence
// check so a material already bound on an earlier frame is left alone.
func (f *DebugRendererFactory) bindMaterial(device *gpu.Device, dm *DebugMaterial) error {
	rawDevice, queue, _, _ := device.Raw()

	buf, err := device.CreateGPUBuffer(uint64(new(MaterialUniform).Size()), wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, "debug.material")
	if err != nil {
		return fmt.Errorf("material: debug: creating material buffer for %d: %w", dm.ID(), err)
	}
	f.materialBuf[dm.ID()] = buf
	if f.materialIdx >= 0 {
		grp, err := rawDevice.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   "debug.material.group",
			Layout:  f.pipeline.layouts[f.materialIdx],
			Entries: []wgpu.BindGroupEntry{{Binding: 0, Buffer: buf, Offset: 0, Size: wgpu.WholeSize}},
		})
		if err != nil {
			return fmt.Errorf("material: debug: creating material bind group for %d: %w", dm.ID(), err)
		}
		f.materialGrp[dm.ID()] = grp
	}
	mu := MaterialUniform{BaseColor: dm.BaseColor}
	queue.WriteBuffer(buf, 0, mu.Marshal())
	return nil
}

// NewFrame resets the per-frame object-uniform ring and dynamic-mesh
// streaming cursor.
func (f *DebugRendererFactory) NewFrame(device *gpu.Device) {
	f.objRing.Reset()
	f.dynamic.Recall()
}

// PrepareRender writes the frame's camera uniform.
func (f *DebugRendererFactory) PrepareRender(device *gpu.Device, camera CameraData) error {
	_, queue, _, _ := device.Raw()
	cu := CameraUniform{ViewProj: camera.ViewProj, CameraPos: camera.Position}
	queue.WriteBuffer(f.cameraBuf, 0, cu.Marshal())
	return nil
}

// RenderMaterial streams each object's geometry and issues one indexed draw
// per object, per spec.md §4.6's draw-loop contract: ensure the PSO is
// bound, stream vertex/index bytes (once for static meshes, every frame for
// dynamic ones), write the object's model matrix into the uniform ring, set
// bind groups, and draw.
func (f *DebugRendererFactory) RenderMaterial(ctx *rdg.ExecContext, objects []ObjectID, mat Material, provider ObjectProvider) error {
	pass := ctx.Pass
	pass.SetPipeline(f.pipeline.pipeline)
	if f.cameraGroup != nil {
		pass.SetBindGroup(uint32(f.cameraIdx), f.cameraGroup, nil)
	}
	dm, ok := mat.(*DebugMaterial)
	if !ok {
		return fmt.Errorf("material: debug: RenderMaterial called with non-debug material %T", mat)
	}
	if grp, ok := f.materialGrp[dm.ID()]; ok {
		pass.SetBindGroup(uint32(f.materialIdx), grp, nil)
	}

	for _, id := range objects {
		data, ok := provider.ObjectData(id)
		if !ok || data.Mesh == nil {
			continue
		}

		var posBuf, indexBuf *wgpu.Buffer
		var posOff, iOff, posSize, iSize uint64
		var indexCount int
		var format wgpu.IndexFormat

		if dm.IsStatic() {
			entry, err := f.static.Ensure(id, data.MeshVersion, data.Mesh)
			if err != nil {
				return fmt.Errorf("material: debug: streaming static mesh %d: %w", id, err)
			}
			posBuf, indexBuf = f.static.PositionBuffer(), f.static.IndexBuffer()
			posOff, posSize = entry.positionOffset, entry.positionSize
			iOff, iSize = entry.indexOffset, entry.indexSize
			indexCount, format = entry.indexCount, entry.indexFormat
		} else {
			positionBytes, _, indexBytes, count, idxFormat, err := geometryBytes(data.Mesh)
			if err != nil {
				return fmt.Errorf("material: debug: streaming dynamic mesh %d: %w", id, err)
			}
			iOff, posOff, err = f.dynamic.CopyStage(indexBytes, positionBytes)
			if err != nil {
				return fmt.Errorf("material: debug: staging dynamic mesh %d: %w", id, err)
			}
			posBuf, indexBuf = f.dynamic.Vertex.Buffer(), f.dynamic.Index.Buffer()
			posSize, iSize = uint64(len(positionBytes)), uint64(len(indexBytes))
			indexCount, format = count, idxFormat
		}

		ou := ObjectUniform{Model: data.ModelMatrix}
		offset, err := f.objRing.Write(ou.Marshal())
		if err != nil {
			return fmt.Errorf("material: debug: writing object uniform %d: %w", id, err)
		}
		if f.objGroup != nil {
			pass.SetBindGroup(uint32(f.objIdx), f.objGroup, []uint32{uint32(offset)})
		}

		pass.SetVertexBuffer(0, posBuf, posOff, posSize)
		pass.SetIndexBuffer(indexBuf, format, iOff, iSize)
		pass.DrawIndexed(uint32(indexCount), 1, 0, 0, 0)
	}
	return nil
}

// SortKey orders debug materials by a fixed shader ID (0) and this kind's
// material ID, per spec.md §4.6's packing.
func (f *DebugRendererFactory) SortKey(mat Material, device *gpu.Device) uint64 {
	return SortKey(0, 0, 0, mat.ID())
}
