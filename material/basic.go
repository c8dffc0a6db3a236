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

//go:embed assets/basic.wgsl
var basicWGSL string

// BasicMaterial is the unlit, optionally-textured material kind, grounded
// on the Rust original's BasicMaterialHardwareRenderer (core/src/render/
// material/basic.rs). A nil Texture/Sampler draws with the factory's
// default 1x1 white texture, i.e. BaseColor alone.
type BasicMaterial struct {
	baseMaterial
	BaseColor [4]float32
	Metallic  float32
	Roughness float32
	Texture   gpu.Resource
	Sampler   gpu.Resource
	hasTex    bool
}

// NewBasicMaterial builds an untextured basic material (flat BaseColor).
func NewBasicMaterial(id MaterialID, baseColor [4]float32, static bool) *BasicMaterial {
	return &BasicMaterial{
		baseMaterial: baseMaterial{id: id, kind: "basic", pipelineKey: "basic", static: static},
		BaseColor:    baseColor,
		Metallic:     0,
		Roughness:    1,
	}
}

// WithTexture attaches a diffuse texture+sampler, multiplied against
// BaseColor in the fragment shader.
func (m *BasicMaterial) WithTexture(tex, sampler gpu.Resource) *BasicMaterial {
	m.Texture = tex
	m.Sampler = sampler
	m.hasTex = true
	return m
}

// BasicRendererFactory implements RendererFactory for the "basic" kind.
type BasicRendererFactory struct {
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
	dynamic *streambuf.GpuInputMainBuffersWithProps

	defaultTexture gpu.Resource
	defaultSampler gpu.Resource

	materials []Material

	configured bool
}

// NewBasicRendererFactory constructs an unconfigured factory.
func NewBasicRendererFactory() *BasicRendererFactory {
	return &BasicRendererFactory{
		materialBuf: make(map[MaterialID]*wgpu.Buffer),
		materialGrp: make(map[MaterialID]*wgpu.BindGroup),
	}
}

// Setup resolves the basic pipeline (once) and adds the one forward pass
// that draws every basic material in materialsByLayer. Setup runs once per
// frame (a fresh rdg.Builder is built every frame, per spec.md §9.2), so the
// one-time pipeline/bind-group/streaming-buffer wiring lives behind the
// configured guard in configure; only newly-seen materials get a bind group
// created here.
func (f *BasicRendererFactory) Setup(materialsByLayer map[int][]Material, device *gpu.Device, builder *rdg.Builder, setup *SetupResource) error {
	if !f.configured {
		if err := f.configure(device, setup); err != nil {
			return err
		}
		f.configured = true
	}

	materials := materialsByLayer[0]
	f.materials = materials
	for _, mat := range materials {
		bm, ok := mat.(*BasicMaterial)
		if !ok {
			continue
		}
		if _, exists := f.materialBuf[bm.ID()]; exists {
			continue
		}
		if err := f.bindMaterial(device, bm); err != nil {
			return err
		}
	}

	builder.AddRenderPass(rdg.NewRenderPass("basic.forward", func(ctx *rdg.ExecContext) {
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

// configure performs the one-time pipeline resolution, default texture/
// sampler creation, camera/object bind-group wiring, and static/dynamic
// streaming buffer creation. Called once, guarded by f.configured in Setup.
func (f *BasicRendererFactory) configure(device *gpu.Device, setup *SetupResource) error {
	objStride := uint64(new(ObjectUniform).Size())

	key := shader.NewVariantKey("basic", 0, nil)
	ph, err := resolvePipeline(device, setup.PSOCache, key, func(shader.VariantKey) (shader.PipelineDesc, error) {
		return shader.NewPipelineDesc("basic", basicWGSL, basicWGSL,
			shader.WithColorFormat(setup.ColorFormat),
			shader.WithSampleCount(setup.SampleCount),
		), nil
	}, objStride)
	if err != nil {
		return fmt.Errorf("material: basic: %w", err)
	}
	f.pipeline = ph

	rawDevice, queue, _, _ := device.Raw()

	defaultTex, err := device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "basic.default.texture",
		Size:          wgpu.Extent3D{Width: 1, Height: 1, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("material: basic: creating default texture: %w", err)
	}
	f.defaultTexture = defaultTex
	queue.WriteTexture(
		&wgpu.ImageCopyTexture{Texture: defaultTex.Texture()},
		[]byte{0xFF, 0xFF, 0xFF, 0xFF},
		&wgpu.TextureDataLayout{BytesPerRow: 4, RowsPerImage: 1},
		&wgpu.Extent3D{Width: 1, Height: 1, DepthOrArrayLayers: 1},
	)
	defaultSampler, err := device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:        "basic.default.sampler",
		AddressModeU: wgpu.AddressModeClampToEdge,
		AddressModeV: wgpu.AddressModeClampToEdge,
		MagFilter:    wgpu.FilterModeLinear,
		MinFilter:    wgpu.FilterModeLinear,
	})
	if err != nil {
		return fmt.Errorf("material: basic: creating default sampler: %w", err)
	}
	f.defaultSampler = defaultSampler

	cameraBuf, err := device.CreateGPUBuffer(uint64(new(CameraUniform).Size()), wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, "basic.camera")
	if err != nil {
		return fmt.Errorf("material: basic: creating camera buffer: %w", err)
	}
	f.cameraBuf = cameraBuf
	f.cameraIdx = findGroup(ph.kinds, shader.PurposeGroupCamera)
	if f.cameraIdx >= 0 {
		f.cameraGroup, err = rawDevice.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   "basic.camera.group",
			Layout:  ph.layouts[f.cameraIdx],
			Entries: []wgpu.BindGroupEntry{{Binding: 0, Buffer: cameraBuf, Offset: 0, Size: wgpu.WholeSize}},
		})
		if err != nil {
			return fmt.Errorf("material: basic: creating camera bind group: %w", err)
		}
	}

	objRing, err := NewObjectUniformRing(device, queue, objStride, "basic.object")
	if err != nil {
		return fmt.Errorf("material: basic: creating object ring: %w", err)
	}
	f.objRing = objRing
	if err := objRing.Reserve(maxObjectsPerFrame); err != nil {
		return fmt.Errorf("material: basic: reserving object ring: %w", err)
	}
	f.objIdx = findGroup(ph.kinds, shader.PurposeGroupObject)
	if f.objIdx >= 0 {
		f.objGroup, err = rawDevice.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   "basic.object.group",
			Layout:  ph.layouts[f.objIdx],
			Entries: []wgpu.BindGroupEntry{{Binding: 0, Buffer: objRing.Buffer(), Offset: 0, Size: objStride}},
		})
		if err != nil {
			return fmt.Errorf("material: basic: creating object bind group: %w", err)
		}
	}

	f.materialIdx = findGroup(ph.kinds, shader.PurposeGroupMaterial)

	staticPos, err := streambuf.NewGpuMainBuffer(device, wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst, "basic.static.positions")
	if err != nil {
		return fmt.Errorf("material: basic: %w", err)
	}
	staticProps, err := streambuf.NewGpuMainBuffer(device, wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst, "basic.static.properties")
	if err != nil {
		return fmt.Errorf("material: basic: %w", err)
	}
	staticIdx, err := streambuf.NewGpuMainBuffer(device, wgpu.BufferUsageIndex|wgpu.BufferUsageCopyDst, "basic.static.indices")
	if err != nil {
		return fmt.Errorf("material: basic: %w", err)
	}
	f.static = NewStaticMeshMerger(
		streambuf.NewGpuInputMainBuffer(staticIdx, queue, 0),
		streambuf.NewGpuInputMainBuffer(staticPos, queue, 0),
		streambuf.NewGpuInputMainBuffer(staticProps, queue, 0),
	)

	dynPos, err := streambuf.NewGpuMainBuffer(device, wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst, "basic.dynamic.positions")
	if err != nil {
		return fmt.Errorf("material: basic: %w", err)
	}
	dynProps, err := streambuf.NewGpuMainBuffer(device, wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst, "basic.dynamic.properties")
	if err != nil {
		return fmt.Errorf("material: basic: %w", err)
	}
	dynIdx, err := streambuf.NewGpuMainBuffer(device, wgpu.BufferUsageIndex|wgpu.BufferUsageCopyDst, "basic.dynamic.indices")
	if err != nil {
		return fmt.Errorf("material: basic: %w", err)
	}
	f.dynamic = streambuf.NewGpuInputMainBuffersWithProps(
		streambuf.NewGpuInputMainBuffer(dynIdx, queue, 0),
		streambuf.NewGpuInputMainBuffer(dynPos, queue, 0),
		streambuf.NewGpuInputMainBuffer(dynProps, queue, 0),
	)

	return nil
}

// bindMaterial creates the per-material uniform buffer and bind group for a
// newly-seen BasicMaterial and writes its initial uniform data. Called once
// per material instance, from Setup, guarded by the f.materialBuf presence
// check so a material already bound on an earlier frame is left alone.
func (f *BasicRendererFactory) bindMaterial(device *gpu.Device, bm *BasicMaterial) error {
	rawDevice, queue, _, _ := device.Raw()

	buf, err := device.CreateGPUBuffer(uint64(new(MaterialUniform).Size()), wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, "basic.material")
	if err != nil {
		return fmt.Errorf("material: basic: creating material buffer for %d: %w", bm.ID(), err)
	}
	f.materialBuf[bm.ID()] = buf

	tex, samp := f.defaultTexture, f.defaultSampler
	if bm.hasTex {
		tex, samp = bm.Texture, bm.Sampler
	}
	if f.materialIdx >= 0 {
		grp, err := rawDevice.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  "basic.material.group",
			Layout: f.pipeline.layouts[f.materialIdx],
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, Buffer: buf, Offset: 0, Size: wgpu.WholeSize},
				{Binding: 1, Sampler: samp.Sampler()},
				{Binding: 2, TextureView: tex.View()},
			},
		})
		if err != nil {
			return fmt.Errorf("material: basic: creating material bind group for %d: %w", bm.ID(), err)
		}
		f.materialGrp[bm.ID()] = grp
	}
	mu := MaterialUniform{BaseColor: bm.BaseColor, Metallic: bm.Metallic, Roughness: bm.Roughness}
	queue.WriteBuffer(buf, 0, mu.Marshal())
	return nil
}

// NewFrame resets the per-frame object-uniform ring and dynamic-mesh
// streaming cursors.
func (f *BasicRendererFactory) NewFrame(device *gpu.Device) {
	f.objRing.Reset()
	f.dynamic.Recall()
}

// PrepareRender writes the frame's camera uniform.
func (f *BasicRendererFactory) PrepareRender(device *gpu.Device, camera CameraData) error {
	_, queue, _, _ := device.Raw()
	cu := CameraUniform{ViewProj: camera.ViewProj, CameraPos: camera.Position}
	queue.WriteBuffer(f.cameraBuf, 0, cu.Marshal())
	return nil
}

// RenderMaterial streams each object's geometry and issues one indexed draw
// per object, per spec.md §4.6's draw-loop contract.
func (f *BasicRendererFactory) RenderMaterial(ctx *rdg.ExecContext, objects []ObjectID, mat Material, provider ObjectProvider) error {
	pass := ctx.Pass
	pass.SetPipeline(f.pipeline.pipeline)
	if f.cameraGroup != nil {
		pass.SetBindGroup(uint32(f.cameraIdx), f.cameraGroup, nil)
	}
	bm, ok := mat.(*BasicMaterial)
	if !ok {
		return fmt.Errorf("material: basic: RenderMaterial called with non-basic material %T", mat)
	}
	if grp, ok := f.materialGrp[bm.ID()]; ok {
		pass.SetBindGroup(uint32(f.materialIdx), grp, nil)
	}

	for _, id := range objects {
		data, ok := provider.ObjectData(id)
		if !ok || data.Mesh == nil {
			continue
		}

		var posBuf, propsBuf, indexBuf *wgpu.Buffer
		var posOff, propsOff, iOff, posSize, propsSize, iSize uint64
		var indexCount int
		var format wgpu.IndexFormat

		if bm.IsStatic() {
			entry, err := f.static.Ensure(id, data.MeshVersion, data.Mesh)
			if err != nil {
				return fmt.Errorf("material: basic: streaming static mesh %d: %w", id, err)
			}
			posBuf, propsBuf, indexBuf = f.static.PositionBuffer(), f.static.PropsBuffer(), f.static.IndexBuffer()
			posOff, posSize = entry.positionOffset, entry.positionSize
			propsOff, propsSize = entry.propsOffset, entry.propsSize
			iOff, iSize = entry.indexOffset, entry.indexSize
			indexCount, format = entry.indexCount, entry.indexFormat
		} else {
			positionBytes, propsBytes, indexBytes, count, idxFormat, err := geometryBytes(data.Mesh)
			if err != nil {
				return fmt.Errorf("material: basic: streaming dynamic mesh %d: %w", id, err)
			}
			iOff, posOff, propsOff, err = f.dynamic.CopyStage(indexBytes, positionBytes, propsBytes)
			if err != nil {
				return fmt.Errorf("material: basic: staging dynamic mesh %d: %w", id, err)
			}
			posBuf, propsBuf, indexBuf = f.dynamic.Vertex.Buffer(), f.dynamic.VertexProps.Buffer(), f.dynamic.Index.Buffer()
			posSize, propsSize, iSize = uint64(len(positionBytes)), uint64(len(propsBytes)), uint64(len(indexBytes))
			indexCount, format = count, idxFormat
		}

		ou := ObjectUniform{Model: data.ModelMatrix}
		offset, err := f.objRing.Write(ou.Marshal())
		if err != nil {
			return fmt.Errorf("material: basic: writing object uniform %d: %w", id, err)
		}
		if f.objGroup != nil {
			pass.SetBindGroup(uint32(f.objIdx), f.objGroup, []uint32{uint32(offset)})
		}

		pass.SetVertexBuffer(0, posBuf, posOff, posSize)
		pass.SetVertexBuffer(1, propsBuf, propsOff, propsSize)
		pass.SetIndexBuffer(indexBuf, format, iOff, iSize)
		pass.DrawIndexed(uint32(indexCount), 1, 0, 0, 0)
	}
	return nil
}

// SortKey orders basic materials by a fixed shader ID (1) and this kind's
// material ID, per spec.md §4.6's packing.
func (f *BasicRendererFactory) SortKey(mat Material, device *gpu.Device) uint64 {
	return SortKey(0, 1, 0, mat.ID())
}
