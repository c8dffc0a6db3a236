package material

import (
	_ "embed"
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/kadds/gstudy-sub000/common"
	"github.com/kadds/gstudy-sub000/gpu"
	"github.com/kadds/gstudy-sub000/rdg"
	"github.com/kadds/gstudy-sub000/shader"
	"github.com/kadds/gstudy-sub000/streambuf"
)

//go:embed assets/phong_shadow.wgsl
var phongShadowWGSL string

//go:embed assets/phong_base.wgsl
var phongBaseWGSL string

//go:embed assets/phong_additive.wgsl
var phongAdditiveWGSL string

// shadowMapSize is the resolution (width=height) of the directional
// shadow map allocated for the scene's primary shadow-casting light.
const shadowMapSize = 2048

// maxPhongAdditiveLights bounds how many extra lights beyond the scene's
// primary light get their own additive draw (inside the single phong.main
// pass), per-light buffers/bind groups
// being pre-created for this many slots at Setup time, mirroring
// maxObjectsPerFrame's pre-reservation rationale: a scene with more active
// lights than this still renders, the extras are just not lit (their
// contribution silently dropped), matching the teacher's light-priority
// budget in engine/light (MaxGPULights) applied one level down.
const maxPhongAdditiveLights = 4

// phongShadowHalfExtent/Near/Far bound the directional shadow frustum
// centered on the camera each frame, per ComputeDirectionalLightVP
// (engine/light/gpu_types.go) adapted below for this package's Light type.
const (
	phongShadowHalfExtent = 30.0
	phongShadowNear       = 0.1
	phongShadowFar        = 150.0
)

// PhongMaterial is the ambient+diffuse-lit material kind, grounded on the
// Rust original's phong-render/src/material_render.rs. Unlike Basic, it has
// no texture: diffuse color modulation is left to future work (tracked as
// an Open Question in DESIGN.md).
type PhongMaterial struct {
	baseMaterial
	BaseColor [4]float32
	Metallic  float32
	Roughness float32
}

// NewPhongMaterial builds a Phong material with the given flat base color.
func NewPhongMaterial(id MaterialID, baseColor [4]float32, static bool) *PhongMaterial {
	return &PhongMaterial{
		baseMaterial: baseMaterial{id: id, kind: "phong", pipelineKey: "phong", static: static},
		BaseColor:    baseColor,
		Metallic:     0,
		Roughness:    1,
	}
}

// PhongRendererFactory implements RendererFactory for the "phong" kind with
// two passes: a shadow pass for the scene's primary (first) light only, so
// no other light casts a shadow, and one "phong.main" pass that draws the
// base lighting (scene ambient plus that first light) and then one additive
// draw per extra light (up to maxPhongAdditiveLights), adapted from
// PhongMaterialRendererFactory::setup/add_shadow_pass_for_light.
type PhongRendererFactory struct {
	configured bool

	shadowPipeline    *pipelineHandles
	basePipeline      *pipelineHandles
	additivePipeline  *pipelineHandles

	objStride uint64
	objRing   *ObjectUniformRing

	cameraBuf     *wgpu.Buffer
	cameraGroupB  *wgpu.BindGroup // base pass's camera group
	cameraGroupA  *wgpu.BindGroup // additive pass's camera group
	cameraIdxB    int
	cameraIdxA    int

	objGroupS *wgpu.BindGroup // shadow pass's object group
	objGroupB *wgpu.BindGroup // base pass's object group
	objGroupA *wgpu.BindGroup // additive pass's object group
	objIdxS   int
	objIdxB   int
	objIdxA   int

	materialIdxB int
	materialIdxA int
	materialBuf  map[MaterialID]*wgpu.Buffer
	materialGrpB map[MaterialID]*wgpu.BindGroup
	materialGrpA map[MaterialID]*wgpu.BindGroup

	lightBuf    *wgpu.Buffer
	lightIdxB   int
	lightIdxA   int
	lightGroupB *wgpu.BindGroup

	additiveBuf   [maxPhongAdditiveLights]*wgpu.Buffer
	additiveGroup [maxPhongAdditiveLights]*wgpu.BindGroup

	shadowBuf      *wgpu.Buffer
	shadowIdxS     int // shadow pass's own group (uniform only)
	shadowGroupS   *wgpu.BindGroup
	shadowIdxB     int // base pass's shadow group (uniform+texture+sampler)
	shadowSampler  gpu.Resource

	static  *StaticMeshMerger
	dynamic *streambuf.GpuInputMainBuffersWithProps

	materials []Material

	ambient [3]float32
	lights  []Light
}

// NewPhongRendererFactory constructs an unconfigured factory.
func NewPhongRendererFactory() *PhongRendererFactory {
	return &PhongRendererFactory{
		materialBuf:  make(map[MaterialID]*wgpu.Buffer),
		materialGrpB: make(map[MaterialID]*wgpu.BindGroup),
		materialGrpA: make(map[MaterialID]*wgpu.BindGroup),
	}
}

// SetLights registers the scene's current ambient color and light list.
// Only lights[0] may cast a shadow; lights[1:maxPhongAdditiveLights+1] each
// get an additive draw within the phong.main pass. The scene's frame driver calls this whenever
// the active light set changes, normally before the frame's Setup.
func (f *PhongRendererFactory) SetLights(ambient [3]float32, lights []Light) {
	f.ambient = ambient
	f.lights = lights
}

// Setup resolves the three Phong pipelines on first call, then (every call,
// since a fresh rdg.Builder is expected every frame) adds two passes to the
// builder: the shadow pass and the "phong.main" pass, which runs the base
// draw and then maxPhongAdditiveLights additive draws. Additive slots beyond
// the scene's current light count skip their draw loop at execute time, so
// the pass count stays at two across frames with a varying light count.
func (f *PhongRendererFactory) Setup(materialsByLayer map[int][]Material, device *gpu.Device, builder *rdg.Builder, setup *SetupResource) error {
	if !f.configured {
		if err := f.configure(device, setup); err != nil {
			return err
		}
		f.configured = true
	}

	f.materials = materialsByLayer[0]
	for _, mat := range f.materials {
		pm, ok := mat.(*PhongMaterial)
		if !ok {
			continue
		}
		if _, ok := f.materialBuf[pm.ID()]; ok {
			continue
		}
		if err := f.bindMaterial(device, pm); err != nil {
			return err
		}
	}

	rawDevice, _, _, _ := device.Raw()

	shadowMapID := builder.AllocateTexture("phong.shadow_map", rdg.TextureInfo{
		Width: shadowMapSize, Height: shadowMapSize, DepthOrArrayLayers: 1,
		Format: wgpu.TextureFormatDepth32Float,
		Usage:  wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding,
		Clear:  &rdg.ClearValue{Depth: floatPtr(1)},
	})
	// PSOCache always pairs a fragment color target with the depth-stencil
	// state (shader/pso.go's build); the shadow technique's fragment stage
	// writes nothing anyone reads, so this 1x1 target is pure overhead to
	// satisfy that requirement, per phong_shadow.wgsl's comment.
	shadowColorID := builder.AllocateTexture("phong.shadow_color_dummy", rdg.TextureInfo{
		Width: 1, Height: 1, DepthOrArrayLayers: 1,
		Format: wgpu.TextureFormatRGBA8Unorm,
		Usage:  wgpu.TextureUsageRenderAttachment,
		Clear:  &rdg.ClearValue{Color: &wgpu.Color{}},
	})

	builder.AddRenderPass(rdg.NewRenderPass("phong.shadow", func(ctx *rdg.ExecContext) {
		f.renderShadowPass(ctx, setup.Provider)
	}, rdg.WithColorTarget(shadowColorID), rdg.WithDepthTarget(shadowMapID)))

	// Base and additive draws share one rdg pass: a graph allows only one
	// pass to declare the swapchain (RTColor) as its target, so lighting a
	// scene with a base light plus several extra lights means switching
	// pipeline and bind groups several times within a single BeginRenderPass
	// rather than adding a pass per light.
	builder.AddRenderPass(rdg.NewRenderPass("phong.main", func(ctx *rdg.ExecContext) {
		f.renderBasePass(ctx, setup.Provider, rawDevice, shadowMapID)
		for i := 0; i < maxPhongAdditiveLights; i++ {
			f.renderAdditivePass(ctx, setup.Provider, i)
		}
	}, rdg.WithTextureInput(shadowMapID, rdg.UsageTextureRead),
		rdg.WithColorTarget(rdg.RTColor), rdg.WithDepthTarget(rdg.RTDepth)))

	return nil
}

// configure performs the one-time pipeline, buffer, and bind-group
// creation shared across every frame's Setup call.
func (f *PhongRendererFactory) configure(device *gpu.Device, setup *SetupResource) error {
	f.objStride = uint64(new(ObjectUniform).Size())
	rawDevice, queue, _, _ := device.Raw()

	shadowPH, err := resolvePipeline(device, setup.PSOCache, shader.NewVariantKey("phong_shadow", 0, nil),
		func(shader.VariantKey) (shader.PipelineDesc, error) {
			return shader.NewPipelineDesc("phong_shadow", phongShadowWGSL, phongShadowWGSL,
				shader.WithDepthFormat(wgpu.TextureFormatDepth32Float),
				shader.WithDepthCompare(wgpu.CompareFunctionLess),
				shader.WithDepthBias(2, 2.0),
				shader.WithColorFormat(wgpu.TextureFormatRGBA8Unorm),
				shader.WithNoBlend(),
			), nil
		}, f.objStride)
	if err != nil {
		return fmt.Errorf("material: phong: resolving shadow pipeline: %w", err)
	}
	f.shadowPipeline = shadowPH

	basePH, err := resolvePipeline(device, setup.PSOCache, shader.NewVariantKey("phong_base", 0, nil),
		func(shader.VariantKey) (shader.PipelineDesc, error) {
			return shader.NewPipelineDesc("phong_base", phongBaseWGSL, phongBaseWGSL,
				shader.WithColorFormat(setup.ColorFormat),
				shader.WithDepthFormat(setup.DepthFormat),
				shader.WithSampleCount(setup.SampleCount),
				shader.WithNoBlend(),
			), nil
		}, f.objStride)
	if err != nil {
		return fmt.Errorf("material: phong: resolving base pipeline: %w", err)
	}
	f.basePipeline = basePH

	addPH, err := resolvePipeline(device, setup.PSOCache, shader.NewVariantKey("phong_additive", 0, nil),
		func(shader.VariantKey) (shader.PipelineDesc, error) {
			return shader.NewPipelineDesc("phong_additive", phongAdditiveWGSL, phongAdditiveWGSL,
				shader.WithColorFormat(setup.ColorFormat),
				shader.WithDepthFormat(setup.DepthFormat),
				shader.WithSampleCount(setup.SampleCount),
				shader.WithDepthCompare(wgpu.CompareFunctionEqual),
				shader.WithDepthWriteEnabled(false),
				shader.WithAdditiveBlend(),
			), nil
		}, f.objStride)
	if err != nil {
		return fmt.Errorf("material: phong: resolving additive pipeline: %w", err)
	}
	f.additivePipeline = addPH

	// Camera (group 0): base and additive passes each bind their own group
	// instance against the same buffer, since their pipeline layouts are
	// distinct wgpu.BindGroupLayout objects even though shaped identically.
	cameraBuf, err := device.CreateGPUBuffer(uint64(new(CameraUniform).Size()), wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, "phong.camera")
	if err != nil {
		return fmt.Errorf("material: phong: creating camera buffer: %w", err)
	}
	f.cameraBuf = cameraBuf
	f.cameraIdxB = findGroup(basePH.kinds, shader.PurposeGroupCamera)
	if f.cameraIdxB >= 0 {
		f.cameraGroupB, err = rawDevice.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   "phong.base.camera.group",
			Layout:  basePH.layouts[f.cameraIdxB],
			Entries: []wgpu.BindGroupEntry{{Binding: 0, Buffer: cameraBuf, Offset: 0, Size: wgpu.WholeSize}},
		})
		if err != nil {
			return fmt.Errorf("material: phong: creating base camera bind group: %w", err)
		}
	}
	f.cameraIdxA = findGroup(addPH.kinds, shader.PurposeGroupCamera)
	if f.cameraIdxA >= 0 {
		f.cameraGroupA, err = rawDevice.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   "phong.additive.camera.group",
			Layout:  addPH.layouts[f.cameraIdxA],
			Entries: []wgpu.BindGroupEntry{{Binding: 0, Buffer: cameraBuf, Offset: 0, Size: wgpu.WholeSize}},
		})
		if err != nil {
			return fmt.Errorf("material: phong: creating additive camera bind group: %w", err)
		}
	}

	// Object uniform ring (group 2), shared buffer across all three
	// techniques; each gets its own bind group against its own layout.
	objRing, err := NewObjectUniformRing(device, queue, f.objStride, "phong.object")
	if err != nil {
		return fmt.Errorf("material: phong: creating object ring: %w", err)
	}
	f.objRing = objRing
	if err := objRing.Reserve(maxObjectsPerFrame); err != nil {
		return fmt.Errorf("material: phong: reserving object ring: %w", err)
	}
	f.objIdxS = findGroup(shadowPH.kinds, shader.PurposeGroupObject)
	f.objGroupS, err = bindObjectGroup(rawDevice, shadowPH, f.objIdxS, objRing, f.objStride, "phong.shadow.object.group")
	if err != nil {
		return err
	}
	f.objIdxB = findGroup(basePH.kinds, shader.PurposeGroupObject)
	f.objGroupB, err = bindObjectGroup(rawDevice, basePH, f.objIdxB, objRing, f.objStride, "phong.base.object.group")
	if err != nil {
		return err
	}
	f.objIdxA = findGroup(addPH.kinds, shader.PurposeGroupObject)
	f.objGroupA, err = bindObjectGroup(rawDevice, addPH, f.objIdxA, objRing, f.objStride, "phong.additive.object.group")
	if err != nil {
		return err
	}

	f.materialIdxB = findGroup(basePH.kinds, shader.PurposeGroupMaterial)
	f.materialIdxA = findGroup(addPH.kinds, shader.PurposeGroupMaterial)

	// Light storage buffer (group 4, binding 0), sized for the budget this
	// package caps marshaling at (MaxGPULights), shared read-only by the
	// base pass and every additive pass.
	lightBuf, err := device.CreateGPUBuffer(uint64(new(LightHeader).Size()+MaxGPULights*64), wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst, "phong.lights")
	if err != nil {
		return fmt.Errorf("material: phong: creating light buffer: %w", err)
	}
	f.lightBuf = lightBuf
	f.lightIdxB = findGroup(basePH.kinds, shader.PurposeGroupLight)
	if f.lightIdxB >= 0 {
		f.lightGroupB, err = rawDevice.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   "phong.base.light.group",
			Layout:  basePH.layouts[f.lightIdxB],
			Entries: []wgpu.BindGroupEntry{{Binding: 0, Buffer: lightBuf, Offset: 0, Size: wgpu.WholeSize}},
		})
		if err != nil {
			return fmt.Errorf("material: phong: creating base light bind group: %w", err)
		}
	}
	f.lightIdxA = findGroup(addPH.kinds, shader.PurposeGroupLight)

	// Additive-per-light uniform (group 4, binding 1): one fixed buffer per
	// additive pass slot, written once here (not per frame). Rewriting a
	// single shared buffer to each pass's light index would race: every
	// queue.WriteBuffer call made while walking the graph's passes during
	// one Execute happens before that Execute's single command-buffer
	// Submit, so only the last write would be visible to every pass's GPU
	// reads. A dedicated buffer per slot sidesteps that entirely.
	for i := 0; i < maxPhongAdditiveLights; i++ {
		buf, err := device.CreateGPUBuffer(uint64(new(AdditiveLightUniform).Size()), wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, fmt.Sprintf("phong.additive.%d.index", i))
		if err != nil {
			return fmt.Errorf("material: phong: creating additive light buffer %d: %w", i, err)
		}
		f.additiveBuf[i] = buf
		au := AdditiveLightUniform{LightIndex: uint32(i + 1)}
		queue.WriteBuffer(buf, 0, au.Marshal())

		if f.lightIdxA >= 0 {
			grp, err := rawDevice.CreateBindGroup(&wgpu.BindGroupDescriptor{
				Label:  fmt.Sprintf("phong.additive.%d.light.group", i),
				Layout: addPH.layouts[f.lightIdxA],
				Entries: []wgpu.BindGroupEntry{
					{Binding: 0, Buffer: lightBuf, Offset: 0, Size: wgpu.WholeSize},
					{Binding: 1, Buffer: buf, Offset: 0, Size: wgpu.WholeSize},
				},
			})
			if err != nil {
				return fmt.Errorf("material: phong: creating additive light bind group %d: %w", i, err)
			}
			f.additiveGroup[i] = grp
		}
	}

	// Shadow uniform (group 3): the shadow pass's own group has only the
	// matrix; the base pass's group 3 additionally samples the shadow map,
	// rebuilt every frame in renderBasePass since the map's view changes
	// identity each frame (it is a transient rdg resource).
	shadowBuf, err := device.CreateGPUBuffer(uint64(new(ShadowUniform).Size()), wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, "phong.shadow.uniform")
	if err != nil {
		return fmt.Errorf("material: phong: creating shadow uniform buffer: %w", err)
	}
	f.shadowBuf = shadowBuf
	f.shadowIdxS = findGroup(shadowPH.kinds, shader.PurposeGroupShadow)
	if f.shadowIdxS >= 0 {
		f.shadowGroupS, err = rawDevice.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   "phong.shadow.shadow.group",
			Layout:  shadowPH.layouts[f.shadowIdxS],
			Entries: []wgpu.BindGroupEntry{{Binding: 0, Buffer: shadowBuf, Offset: 0, Size: wgpu.WholeSize}},
		})
		if err != nil {
			return fmt.Errorf("material: phong: creating shadow pass shadow bind group: %w", err)
		}
	}
	f.shadowIdxB = findGroup(basePH.kinds, shader.PurposeGroupShadow)

	shadowSampler, err := device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:        "phong.shadow.comparison.sampler",
		AddressModeU: wgpu.AddressModeClampToEdge,
		AddressModeV: wgpu.AddressModeClampToEdge,
		AddressModeW: wgpu.AddressModeClampToEdge,
		MagFilter:    wgpu.FilterModeLinear,
		MinFilter:    wgpu.FilterModeLinear,
		Compare:      wgpu.CompareFunctionLess,
	})
	if err != nil {
		return fmt.Errorf("material: phong: creating shadow sampler: %w", err)
	}
	f.shadowSampler = shadowSampler

	staticPos, err := streambuf.NewGpuMainBuffer(device, wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst, "phong.static.positions")
	if err != nil {
		return fmt.Errorf("material: phong: %w", err)
	}
	staticProps, err := streambuf.NewGpuMainBuffer(device, wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst, "phong.static.properties")
	if err != nil {
		return fmt.Errorf("material: phong: %w", err)
	}
	staticIdx, err := streambuf.NewGpuMainBuffer(device, wgpu.BufferUsageIndex|wgpu.BufferUsageCopyDst, "phong.static.indices")
	if err != nil {
		return fmt.Errorf("material: phong: %w", err)
	}
	f.static = NewStaticMeshMerger(
		streambuf.NewGpuInputMainBuffer(staticIdx, queue, 0),
		streambuf.NewGpuInputMainBuffer(staticPos, queue, 0),
		streambuf.NewGpuInputMainBuffer(staticProps, queue, 0),
	)

	dynPos, err := streambuf.NewGpuMainBuffer(device, wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst, "phong.dynamic.positions")
	if err != nil {
		return fmt.Errorf("material: phong: %w", err)
	}
	dynProps, err := streambuf.NewGpuMainBuffer(device, wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst, "phong.dynamic.properties")
	if err != nil {
		return fmt.Errorf("material: phong: %w", err)
	}
	dynIdx, err := streambuf.NewGpuMainBuffer(device, wgpu.BufferUsageIndex|wgpu.BufferUsageCopyDst, "phong.dynamic.indices")
	if err != nil {
		return fmt.Errorf("material: phong: %w", err)
	}
	f.dynamic = streambuf.NewGpuInputMainBuffersWithProps(
		streambuf.NewGpuInputMainBuffer(dynIdx, queue, 0),
		streambuf.NewGpuInputMainBuffer(dynPos, queue, 0),
		streambuf.NewGpuInputMainBuffer(dynProps, queue, 0),
	)

	return nil
}

// bindObjectGroup creates a dynamic-uniform bind group over ring's buffer
// against ph's layout at idx, or returns (nil, nil) if the technique has no
// object-purposed group.
func bindObjectGroup(rawDevice *wgpu.Device, ph *pipelineHandles, idx int, ring *ObjectUniformRing, stride uint64, label string) (*wgpu.BindGroup, error) {
	if idx < 0 {
		return nil, nil
	}
	grp, err := rawDevice.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   label,
		Layout:  ph.layouts[idx],
		Entries: []wgpu.BindGroupEntry{{Binding: 0, Buffer: ring.Buffer(), Offset: 0, Size: stride}},
	})
	if err != nil {
		return nil, fmt.Errorf("material: phong: creating %s: %w", label, err)
	}
	return grp, nil
}

// bindMaterial creates pm's per-instance material uniform buffer and its
// base-pass/additive-pass bind groups, and writes the uniform's initial
// contents. Called the first time Setup sees a given material instance.
func (f *PhongRendererFactory) bindMaterial(device *gpu.Device, pm *PhongMaterial) error {
	rawDevice, queue, _, _ := device.Raw()
	buf, err := device.CreateGPUBuffer(uint64(new(MaterialUniform).Size()), wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, "phong.material")
	if err != nil {
		return fmt.Errorf("material: phong: creating material buffer for %d: %w", pm.ID(), err)
	}
	f.materialBuf[pm.ID()] = buf

	if f.materialIdxB >= 0 {
		grp, err := rawDevice.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   "phong.base.material.group",
			Layout:  f.basePipeline.layouts[f.materialIdxB],
			Entries: []wgpu.BindGroupEntry{{Binding: 0, Buffer: buf, Offset: 0, Size: wgpu.WholeSize}},
		})
		if err != nil {
			return fmt.Errorf("material: phong: creating base material bind group for %d: %w", pm.ID(), err)
		}
		f.materialGrpB[pm.ID()] = grp
	}
	if f.materialIdxA >= 0 {
		grp, err := rawDevice.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   "phong.additive.material.group",
			Layout:  f.additivePipeline.layouts[f.materialIdxA],
			Entries: []wgpu.BindGroupEntry{{Binding: 0, Buffer: buf, Offset: 0, Size: wgpu.WholeSize}},
		})
		if err != nil {
			return fmt.Errorf("material: phong: creating additive material bind group for %d: %w", pm.ID(), err)
		}
		f.materialGrpA[pm.ID()] = grp
	}

	mu := MaterialUniform{BaseColor: pm.BaseColor, Metallic: pm.Metallic, Roughness: pm.Roughness}
	queue.WriteBuffer(buf, 0, mu.Marshal())
	return nil
}

// NewFrame resets the per-frame object-uniform ring and dynamic-mesh
// streaming cursors.
func (f *PhongRendererFactory) NewFrame(device *gpu.Device) {
	f.objRing.Reset()
	f.dynamic.Recall()
}

// PrepareRender writes the frame's camera uniform, the light storage
// buffer, and (if the primary light casts shadows) the shadow uniform's
// light view-projection matrix.
func (f *PhongRendererFactory) PrepareRender(device *gpu.Device, camera CameraData) error {
	_, queue, _, _ := device.Raw()

	cu := CameraUniform{ViewProj: camera.ViewProj, CameraPos: camera.Position}
	queue.WriteBuffer(f.cameraBuf, 0, cu.Marshal())

	queue.WriteBuffer(f.lightBuf, 0, MarshalLightBuffer(f.ambient, f.lights))

	if len(f.lights) > 0 && f.lights[0].CastsShadows {
		vp := computeDirectionalLightVP(f.lights[0].Direction, camera.Position, phongShadowHalfExtent, phongShadowNear, phongShadowFar)
		su := ShadowUniform{LightVP: vp}
		queue.WriteBuffer(f.shadowBuf, 0, su.Marshal())
	}
	return nil
}

// renderShadowPass draws every object of every Phong material into the
// shadow map from the primary light's perspective, skipping entirely if
// that light doesn't cast a shadow.
func (f *PhongRendererFactory) renderShadowPass(ctx *rdg.ExecContext, provider ObjectProvider) {
	if len(f.lights) == 0 || !f.lights[0].CastsShadows {
		return
	}
	pass := ctx.Pass
	pass.SetPipeline(f.shadowPipeline.pipeline)
	if f.shadowGroupS != nil {
		pass.SetBindGroup(uint32(f.shadowIdxS), f.shadowGroupS, nil)
	}
	for _, mat := range f.materials {
		objects := provider.ObjectsForMaterial(mat.ID())
		if len(objects) == 0 {
			continue
		}
		_ = f.drawObjects(pass, objects, provider, mat.IsStatic(), f.objGroupS, f.objIdxS, "phong.shadow")
	}
}

// renderBasePass draws every Phong object lit by scene ambient plus the
// primary light (index 0), sampling its shadow map if it casts a shadow.
func (f *PhongRendererFactory) renderBasePass(ctx *rdg.ExecContext, provider ObjectProvider, rawDevice *wgpu.Device, shadowMapID rdg.ResourceID) {
	pass := ctx.Pass
	pass.SetPipeline(f.basePipeline.pipeline)
	if f.cameraGroupB != nil {
		pass.SetBindGroup(uint32(f.cameraIdxB), f.cameraGroupB, nil)
	}
	if f.lightGroupB != nil {
		pass.SetBindGroup(uint32(f.lightIdxB), f.lightGroupB, nil)
	}
	if f.shadowIdxB >= 0 {
		// The shadow map's view is a fresh handle every frame (it is a
		// transient rdg resource, recreated by Compile's lifetime
		// analysis), so its bind group can't be built once in configure;
		// it is rebuilt here each time this pass executes.
		grp, err := rawDevice.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  "phong.base.shadow.group",
			Layout: f.basePipeline.layouts[f.shadowIdxB],
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, Buffer: f.shadowBuf, Offset: 0, Size: wgpu.WholeSize},
				{Binding: 1, TextureView: ctx.TextureView(shadowMapID)},
				{Binding: 2, Sampler: f.shadowSampler.Sampler()},
			},
		})
		if err == nil {
			pass.SetBindGroup(uint32(f.shadowIdxB), grp, nil)
		}
	}

	for _, mat := range f.materials {
		pm, ok := mat.(*PhongMaterial)
		if !ok {
			continue
		}
		objects := provider.ObjectsForMaterial(mat.ID())
		if len(objects) == 0 {
			continue
		}
		if grp, ok := f.materialGrpB[pm.ID()]; ok {
			pass.SetBindGroup(uint32(f.materialIdxB), grp, nil)
		}
		_ = f.drawObjects(pass, objects, provider, pm.IsStatic(), f.objGroupB, f.objIdxB, "phong.base")
	}
}

// renderAdditivePass draws every Phong object lit only by the light at
// lightIndex+1 (index 0 is the base pass's light), skipping entirely if
// the scene has no such light.
func (f *PhongRendererFactory) renderAdditivePass(ctx *rdg.ExecContext, provider ObjectProvider, lightIndex int) {
	if len(f.lights) <= lightIndex+1 {
		return
	}
	pass := ctx.Pass
	pass.SetPipeline(f.additivePipeline.pipeline)
	if f.cameraGroupA != nil {
		pass.SetBindGroup(uint32(f.cameraIdxA), f.cameraGroupA, nil)
	}
	if f.additiveGroup[lightIndex] != nil {
		pass.SetBindGroup(uint32(f.lightIdxA), f.additiveGroup[lightIndex], nil)
	}

	for _, mat := range f.materials {
		pm, ok := mat.(*PhongMaterial)
		if !ok {
			continue
		}
		objects := provider.ObjectsForMaterial(mat.ID())
		if len(objects) == 0 {
			continue
		}
		if grp, ok := f.materialGrpA[pm.ID()]; ok {
			pass.SetBindGroup(uint32(f.materialIdxA), grp, nil)
		}
		_ = f.drawObjects(pass, objects, provider, pm.IsStatic(), f.objGroupA, f.objIdxA, "phong.additive")
	}
}

// drawObjects streams geometry for objects and issues one indexed draw call
// per object, shared by the shadow, base and additive draw routines. Static
// objects stream once per mesh version through the shared StaticMeshMerger;
// dynamic objects restream every time this is called, including once per
// pass, which is simpler than caching a single frame's dynamic stream
// across passes at the cost of re-copying the same bytes up to
// 2+maxPhongAdditiveLights times per frame.
func (f *PhongRendererFactory) drawObjects(pass *wgpu.RenderPassEncoder, objects []ObjectID, provider ObjectProvider, static bool, objGroup *wgpu.BindGroup, objIdx int, errPrefix string) error {
	for _, id := range objects {
		data, ok := provider.ObjectData(id)
		if !ok || data.Mesh == nil {
			continue
		}

		var posBuf, propsBuf, indexBuf *wgpu.Buffer
		var posOff, propsOff, iOff, posSize, propsSize, iSize uint64
		var indexCount int
		var format wgpu.IndexFormat

		if static {
			entry, err := f.static.Ensure(id, data.MeshVersion, data.Mesh)
			if err != nil {
				return fmt.Errorf("%s: streaming static mesh %d: %w", errPrefix, id, err)
			}
			posBuf, propsBuf, indexBuf = f.static.PositionBuffer(), f.static.PropsBuffer(), f.static.IndexBuffer()
			posOff, posSize = entry.positionOffset, entry.positionSize
			propsOff, propsSize = entry.propsOffset, entry.propsSize
			iOff, iSize = entry.indexOffset, entry.indexSize
			indexCount, format = entry.indexCount, entry.indexFormat
		} else {
			positionBytes, propsBytes, indexBytes, count, idxFormat, err := geometryBytes(data.Mesh)
			if err != nil {
				return fmt.Errorf("%s: streaming dynamic mesh %d: %w", errPrefix, id, err)
			}
			iOff, posOff, propsOff, err = f.dynamic.CopyStage(indexBytes, positionBytes, propsBytes)
			if err != nil {
				return fmt.Errorf("%s: staging dynamic mesh %d: %w", errPrefix, id, err)
			}
			posBuf, propsBuf, indexBuf = f.dynamic.Vertex.Buffer(), f.dynamic.VertexProps.Buffer(), f.dynamic.Index.Buffer()
			posSize, propsSize, iSize = uint64(len(positionBytes)), uint64(len(propsBytes)), uint64(len(indexBytes))
			indexCount, format = count, idxFormat
		}

		ou := ObjectUniform{Model: data.ModelMatrix}
		offset, err := f.objRing.Write(ou.Marshal())
		if err != nil {
			return fmt.Errorf("%s: writing object uniform %d: %w", errPrefix, id, err)
		}
		if objGroup != nil {
			pass.SetBindGroup(uint32(objIdx), objGroup, []uint32{uint32(offset)})
		}

		pass.SetVertexBuffer(0, posBuf, posOff, posSize)
		pass.SetVertexBuffer(1, propsBuf, propsOff, propsSize)
		pass.SetIndexBuffer(indexBuf, format, iOff, iSize)
		pass.DrawIndexed(uint32(indexCount), 1, 0, 0, 0)
	}
	return nil
}

// RenderMaterial satisfies RendererFactory for callers that drive Phong
// through the generic single-pass contract (e.g. tests); it renders
// exactly the base pass's lighting for mat's objects, without shadows or
// extra lights.
func (f *PhongRendererFactory) RenderMaterial(ctx *rdg.ExecContext, objects []ObjectID, mat Material, provider ObjectProvider) error {
	pm, ok := mat.(*PhongMaterial)
	if !ok {
		return fmt.Errorf("material: phong: RenderMaterial called with non-phong material %T", mat)
	}
	pass := ctx.Pass
	pass.SetPipeline(f.basePipeline.pipeline)
	if f.cameraGroupB != nil {
		pass.SetBindGroup(uint32(f.cameraIdxB), f.cameraGroupB, nil)
	}
	if f.lightGroupB != nil {
		pass.SetBindGroup(uint32(f.lightIdxB), f.lightGroupB, nil)
	}
	if grp, ok := f.materialGrpB[pm.ID()]; ok {
		pass.SetBindGroup(uint32(f.materialIdxB), grp, nil)
	}
	return f.drawObjects(pass, objects, provider, pm.IsStatic(), f.objGroupB, f.objIdxB, "material: phong")
}

// SortKey orders Phong materials by a fixed shader ID (2, after debug's 0
// and basic's 1) and this kind's material ID.
func (f *PhongRendererFactory) SortKey(mat Material, device *gpu.Device) uint64 {
	return SortKey(0, 2, 0, mat.ID())
}

// computeDirectionalLightVP builds an orthographic view-projection matrix
// for a directional light, framing a halfExtent-sized box centered on
// center (normally the camera position), adapted from the teacher's
// GPUShadowData.ComputeDirectionalLightVP (engine/light/gpu_types.go) for
// this package's Light type and column-major common.LookAt/common.Mul4
// helpers.
func computeDirectionalLightVP(direction [3]float32, center [3]float32, halfExtent, near, far float32) [16]float32 {
	eyeX := center[0] - direction[0]*far*0.5
	eyeY := center[1] - direction[1]*far*0.5
	eyeZ := center[2] - direction[2]*far*0.5

	upX, upY, upZ := float32(0), float32(1), float32(0)
	if absF32(direction[1]) > 0.99 {
		upX, upY, upZ = 1, 0, 0
	}

	var view [16]float32
	common.LookAt(view[:], eyeX, eyeY, eyeZ, center[0], center[1], center[2], upX, upY, upZ)

	var proj [16]float32
	orthoWebGPU(proj[:], -halfExtent, halfExtent, -halfExtent, halfExtent, near, far)

	var vp [16]float32
	common.Mul4(vp[:], proj[:], view[:])
	return vp
}

// orthoWebGPU builds an orthographic projection matrix with WebGPU's clip
// space convention (X/Y in [-1, 1], Z in [0, 1]), adapted from the
// teacher's unexported ortho helper (engine/light/gpu_types.go).
func orthoWebGPU(out []float32, left, right, bottom, top, near, far float32) {
	common.Identity(out)
	rl := right - left
	tb := top - bottom
	fn := far - near

	out[0] = 2.0 / rl
	out[5] = 2.0 / tb
	out[10] = -1.0 / fn
	out[12] = -(right + left) / rl
	out[13] = -(top + bottom) / tb
	out[14] = -near / fn
}

func absF32(v float32) float32 {
	return float32(math.Abs(float64(v)))
}

func floatPtr(v float32) *float32 { return &v }
