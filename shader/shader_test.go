package shader

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/require"
)

const testVertexWGSL = `
struct VertexInput {
    @location(0) position: vec3<f32>,
    @location(1) normal: vec3<f32>,
}

struct CameraUniform {
    view_proj: mat4x4<f32>,
}

struct ObjectUniform {
    model: mat4x4<f32>,
}

@group(0) @binding(0) var<uniform> camera: CameraUniform;
@group(1) @binding(0) var<uniform> object: ObjectUniform;

@vertex
fn vs_main(input: VertexInput) -> @builtin(position) vec4<f32> {
    return camera.view_proj * object.model * vec4<f32>(input.position, 1.0);
}
`

const testFragmentWGSL = `
struct MaterialUniform {
    color: vec4<f32>,
}

@group(2) @binding(0) var<uniform> material: MaterialUniform;
@group(2) @binding(1) var material_sampler: sampler;
@group(2) @binding(2) var material_texture: texture_2d<f32>;

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return material.color;
}
`

func TestReflectExtractsEntryPoints(t *testing.T) {
	r := Reflect(testVertexWGSL)
	require.Equal(t, "vs_main", r.VertexEntry)
	require.Empty(t, r.FragmentEntry)

	fr := Reflect(testFragmentWGSL)
	require.Equal(t, "fs_main", fr.FragmentEntry)
	require.Empty(t, fr.VertexEntry)
}

func TestReflectExtractsVertexLayout(t *testing.T) {
	r := Reflect(testVertexWGSL)
	// vertex_split_slot defaults to true: slot 0 is position alone, slot 1
	// carries every other attribute at its own zero-based offset.
	require.Len(t, r.VertexLayouts, 2)

	posLayout := r.VertexLayouts[0][0]
	require.Len(t, posLayout.Attributes, 1)
	require.Equal(t, wgpu.VertexFormatFloat32x3, posLayout.Attributes[0].Format)
	require.Equal(t, uint64(0), posLayout.Attributes[0].Offset)
	require.Equal(t, uint32(0), posLayout.Attributes[0].ShaderLocation)
	require.Equal(t, uint64(12), posLayout.ArrayStride)

	propsLayout := r.VertexLayouts[1][0]
	require.Len(t, propsLayout.Attributes, 1)
	require.Equal(t, wgpu.VertexFormatFloat32x3, propsLayout.Attributes[0].Format)
	require.Equal(t, uint64(0), propsLayout.Attributes[0].Offset)
	require.Equal(t, uint32(1), propsLayout.Attributes[0].ShaderLocation)
	require.Equal(t, uint64(12), propsLayout.ArrayStride)
}

func TestVertexLayoutsForUnsplitPacksOneSlot(t *testing.T) {
	r := Reflect(testVertexWGSL)
	layouts := r.VertexLayoutsFor(false)
	require.Len(t, layouts, 1)

	layout := layouts[0][0]
	require.Len(t, layout.Attributes, 2)
	require.Equal(t, uint64(0), layout.Attributes[0].Offset)
	require.Equal(t, uint64(12), layout.Attributes[1].Offset)
	require.Equal(t, uint64(24), layout.ArrayStride)
}

func TestWithVertexSplitSlotOverridesDefault(t *testing.T) {
	d := NewPipelineDesc("test", testVertexWGSL, testFragmentWGSL, WithVertexSplitSlot(false))
	require.False(t, d.VertexSplitSlot)
}

func TestReflectExtractsBindGroupMinBindingSize(t *testing.T) {
	r := Reflect(testVertexWGSL)

	cameraGroup, ok := r.BindGroups[0]
	require.True(t, ok)
	require.Len(t, cameraGroup.Entries, 1)
	require.Equal(t, wgpu.BufferBindingTypeUniform, cameraGroup.Entries[0].Buffer.Type)
	require.Equal(t, uint64(64), cameraGroup.Entries[0].Buffer.MinBindingSize) // mat4x4<f32>

	objectGroup, ok := r.BindGroups[1]
	require.True(t, ok)
	require.Equal(t, uint64(64), objectGroup.Entries[0].Buffer.MinBindingSize)
}

func TestReflectClassifiesSamplerAndTexture(t *testing.T) {
	r := Reflect(testFragmentWGSL)

	group, ok := r.BindGroups[2]
	require.True(t, ok)
	require.Len(t, group.Entries, 3)

	var sampler, texture wgpu.BindGroupLayoutEntry
	for _, e := range group.Entries {
		switch e.Binding {
		case 1:
			sampler = e
		case 2:
			texture = e
		}
	}
	require.Equal(t, wgpu.SamplerBindingTypeFiltering, sampler.Sampler.Type)
	require.Equal(t, wgpu.TextureViewDimension2D, texture.Texture.ViewDimension)
	require.Equal(t, wgpu.TextureSampleTypeFloat, texture.Texture.SampleType)
}

func TestReflectClassifiesPurposeGroups(t *testing.T) {
	r := Reflect(testVertexWGSL)
	require.Equal(t, PurposeGroupCamera, r.BindGroupKinds[0])
	require.Equal(t, PurposeGroupObject, r.BindGroupKinds[1])

	fr := Reflect(testFragmentWGSL)
	require.Equal(t, PurposeGroupMaterial, fr.BindGroupKinds[2])
}

func TestReflectUnknownPurposeGroupForUnnamedVars(t *testing.T) {
	const src = `
@group(0) @binding(0) var<uniform> foo: f32;

@vertex
fn vs_main() -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0, 0.0, 0.0, 1.0);
}
`
	r := Reflect(src)
	require.Equal(t, PurposeGroupUnknown, r.BindGroupKinds[0])
}

func TestReflectParsesWorkgroupSize(t *testing.T) {
	const src = `
@compute @workgroup_size(8, 4, 2)
fn cs_main() {}
`
	r := Reflect(src)
	require.Equal(t, "cs_main", r.ComputeEntry)
	require.Equal(t, [3]uint32{8, 4, 2}, r.WorkgroupSize)
}

func TestReflectDefaultsWorkgroupSizeToOnes(t *testing.T) {
	const src = `
@compute @workgroup_size(64)
fn cs_main() {}
`
	r := Reflect(src)
	require.Equal(t, [3]uint32{64, 1, 1}, r.WorkgroupSize)
}

func TestReflectStripsLineAndBlockComments(t *testing.T) {
	const src = `
// a line comment with @group(9) @binding(9) var<uniform> fake: f32;
/* a block
   comment with @vertex fn fake_main() {} */
struct VertexInput {
    @location(0) position: vec3<f32>,
}

@vertex
fn vs_main(input: VertexInput) -> @builtin(position) vec4<f32> {
    return vec4<f32>(input.position, 1.0);
}
`
	r := Reflect(src)
	require.Equal(t, "vs_main", r.VertexEntry)
	require.Empty(t, r.BindGroups)
}

func TestNewVariantKeyCanonicalizesFlagOrder(t *testing.T) {
	a := NewVariantKey("phong", 0, []VariantFlag{"SKINNED", "SHADOW_PASS"})
	b := NewVariantKey("phong", 0, []VariantFlag{"SHADOW_PASS", "SKINNED"})
	require.Equal(t, a, b)
	require.Equal(t, "phong#0[SHADOW_PASS,SKINNED]", a.String())
}

func TestNewVariantKeyDedupesFlags(t *testing.T) {
	k := NewVariantKey("phong", 1, []VariantFlag{"SKINNED", "SKINNED"})
	require.Equal(t, []VariantFlag{"SKINNED"}, k.Flags())
}

func TestNewVariantKeyDistinguishesPassIndex(t *testing.T) {
	a := NewVariantKey("phong", 0, nil)
	b := NewVariantKey("phong", 1, nil)
	require.NotEqual(t, a, b)
}

func TestVariantKeyFlagsRoundTripsEmpty(t *testing.T) {
	k := NewVariantKey("basic", 0, nil)
	require.Nil(t, k.Flags())
	require.Equal(t, "basic#0", k.String())
}

func TestMergeBindGroupLayoutUnionsVisibility(t *testing.T) {
	a := wgpu.BindGroupLayoutDescriptor{
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageVertex, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}},
		},
	}
	b := wgpu.BindGroupLayoutDescriptor{
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageFragment, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: wgpu.ShaderStageFragment},
		},
	}

	merged := mergeBindGroupLayout(a, b)
	require.Len(t, merged.Entries, 2)

	var zero wgpu.BindGroupLayoutEntry
	for _, e := range merged.Entries {
		if e.Binding == 0 {
			zero = e
		}
	}
	require.Equal(t, wgpu.ShaderStageVertex|wgpu.ShaderStageFragment, zero.Visibility)
}

func TestMergeBindGroupLayoutHandlesOneSidedEmpty(t *testing.T) {
	a := wgpu.BindGroupLayoutDescriptor{}
	b := wgpu.BindGroupLayoutDescriptor{
		Entries: []wgpu.BindGroupLayoutEntry{{Binding: 0, Visibility: wgpu.ShaderStageFragment}},
	}
	require.Equal(t, b, mergeBindGroupLayout(a, b))
	require.Equal(t, b, mergeBindGroupLayout(b, a))
}

func TestNewPipelineDescAppliesDefaults(t *testing.T) {
	d := NewPipelineDesc("test", testVertexWGSL, testFragmentWGSL)
	require.True(t, d.DepthTestEnabled)
	require.True(t, d.DepthWriteEnabled)
	require.Equal(t, wgpu.TextureFormatDepth24Plus, d.DepthFormat)
	require.Equal(t, wgpu.PrimitiveTopologyTriangleList, d.Topology)
	require.Equal(t, wgpu.CullModeNone, d.CullMode)
	require.NotNil(t, d.BlendState)
}

func TestWithDepthDisabledOverridesDefaults(t *testing.T) {
	d := NewPipelineDesc("test", testVertexWGSL, testFragmentWGSL, WithDepthDisabled())
	require.False(t, d.DepthTestEnabled)
	require.False(t, d.DepthWriteEnabled)
}

func TestWithAdditiveBlendSetsOneOneFactors(t *testing.T) {
	d := NewPipelineDesc("test", testVertexWGSL, testFragmentWGSL, WithAdditiveBlend())
	require.Equal(t, wgpu.BlendFactorOne, d.BlendState.Color.SrcFactor)
	require.Equal(t, wgpu.BlendFactorOne, d.BlendState.Color.DstFactor)
}

func TestWithNoBlendClearsBlendState(t *testing.T) {
	d := NewPipelineDesc("test", testVertexWGSL, testFragmentWGSL, WithNoBlend())
	require.Nil(t, d.BlendState)
}
