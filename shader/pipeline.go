package shader

import "github.com/cogentcore/webgpu/wgpu"

// PipelineDesc is the CPU-side configuration for one render pipeline state
// object: everything needed to call device.CreateRenderPipeline except the
// compiled shader modules and layout, which the PSO cache supplies from the
// Reflection of the technique's vertex/fragment sources.
type PipelineDesc struct {
	Label        string
	VertexWGSL   string
	FragmentWGSL string

	DepthTestEnabled  bool
	DepthWriteEnabled bool
	DepthCompare      wgpu.CompareFunction
	DepthBias         int32
	DepthBiasSlope    float32
	DepthFormat       wgpu.TextureFormat

	Topology  wgpu.PrimitiveTopology
	CullMode  wgpu.CullMode
	FrontFace wgpu.FrontFace

	ColorFormat wgpu.TextureFormat
	WriteMask   wgpu.ColorWriteMask
	BlendState  *wgpu.BlendState

	SampleCount uint32

	// VertexSplitSlot selects the vertex-buffer layout policy of spec.md
	// §4.4: true (the default) puts the position attribute alone in slot 0,
	// fed from the mesh's dedicated position stream, and every other
	// attribute in slot 1, fed from the interleaved properties frame; false
	// packs every attribute into one slot in binding order, for a mesh with
	// no separate position stream (PositionNone).
	VertexSplitSlot bool
}

// PipelineDescOption mutates a PipelineDesc during construction, following
// the functional-option idiom used throughout this codebase's builders.
type PipelineDescOption func(*PipelineDesc)

// NewPipelineDesc builds a PipelineDesc with this engine's defaults (depth
// test+write on, triangle list, CCW front face, no culling, straight alpha
// blend) and applies opts over them.
func NewPipelineDesc(label, vertexWGSL, fragmentWGSL string, opts ...PipelineDescOption) PipelineDesc {
	d := PipelineDesc{
		Label:             label,
		VertexWGSL:        vertexWGSL,
		FragmentWGSL:      fragmentWGSL,
		DepthTestEnabled:  true,
		DepthWriteEnabled: true,
		DepthCompare:      wgpu.CompareFunctionLess,
		DepthFormat:       wgpu.TextureFormatDepth24Plus,
		Topology:          wgpu.PrimitiveTopologyTriangleList,
		CullMode:          wgpu.CullModeNone,
		FrontFace:         wgpu.FrontFaceCCW,
		ColorFormat:       wgpu.TextureFormatRGBA8Unorm,
		WriteMask:         wgpu.ColorWriteMaskAll,
		SampleCount:       1,
		VertexSplitSlot:   true,
		BlendState: &wgpu.BlendState{
			Color: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorSrcAlpha,
				DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
				Operation: wgpu.BlendOperationAdd,
			},
			Alpha: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorOne,
				DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
				Operation: wgpu.BlendOperationAdd,
			},
		},
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithDepthDisabled turns off depth test and write (e.g. for UI overlay
// techniques drawn in submission order).
func WithDepthDisabled() PipelineDescOption {
	return func(d *PipelineDesc) {
		d.DepthTestEnabled = false
		d.DepthWriteEnabled = false
		d.DepthCompare = wgpu.CompareFunctionAlways
	}
}

// WithDepthCompare overrides the depth comparison function, e.g. Equal for
// an additive pass that must match the base pass's already-written depth
// without re-testing Less.
func WithDepthCompare(compare wgpu.CompareFunction) PipelineDescOption {
	return func(d *PipelineDesc) { d.DepthCompare = compare }
}

// WithDepthFormat overrides the depth attachment format, e.g. for a shadow
// pass rendering into its own Depth32Float map instead of the scene's main
// depth buffer.
func WithDepthFormat(format wgpu.TextureFormat) PipelineDescOption {
	return func(d *PipelineDesc) { d.DepthFormat = format }
}

// WithDepthWriteEnabled overrides depth-write independent of the compare
// function, e.g. an additive pass testing Equal against the base pass's
// depth without re-writing it.
func WithDepthWriteEnabled(enabled bool) PipelineDescOption {
	return func(d *PipelineDesc) { d.DepthWriteEnabled = enabled }
}

// WithDepthBias sets a constant and slope-scaled depth bias, used by shadow
// techniques to reduce self-shadowing.
func WithDepthBias(bias int32, slope float32) PipelineDescOption {
	return func(d *PipelineDesc) {
		d.DepthBias = bias
		d.DepthBiasSlope = slope
	}
}

// WithCullMode overrides the default no-culling rasterizer state.
func WithCullMode(mode wgpu.CullMode) PipelineDescOption {
	return func(d *PipelineDesc) { d.CullMode = mode }
}

// WithTopology overrides the default triangle-list primitive topology.
func WithTopology(topology wgpu.PrimitiveTopology) PipelineDescOption {
	return func(d *PipelineDesc) { d.Topology = topology }
}

// WithColorFormat overrides the target color attachment format.
func WithColorFormat(format wgpu.TextureFormat) PipelineDescOption {
	return func(d *PipelineDesc) { d.ColorFormat = format }
}

// WithSampleCount overrides the MSAA sample count (must match the render
// pass's attachments).
func WithSampleCount(count uint32) PipelineDescOption {
	return func(d *PipelineDesc) { d.SampleCount = count }
}

// WithAdditiveBlend swaps in additive blending, used by Phong's
// per-extra-light additive draws.
func WithAdditiveBlend() PipelineDescOption {
	return func(d *PipelineDesc) {
		d.BlendState = &wgpu.BlendState{
			Color: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorOne,
				DstFactor: wgpu.BlendFactorOne,
				Operation: wgpu.BlendOperationAdd,
			},
			Alpha: wgpu.BlendComponent{
				SrcFactor: wgpu.BlendFactorOne,
				DstFactor: wgpu.BlendFactorOne,
				Operation: wgpu.BlendOperationAdd,
			},
		}
	}
}

// WithNoBlend disables blending for opaque passes.
func WithNoBlend() PipelineDescOption {
	return func(d *PipelineDesc) { d.BlendState = nil }
}

// WithVertexSplitSlot overrides the default two-slot (position/properties)
// vertex-buffer layout policy. Pass false for a technique whose mesh has no
// dedicated position stream (mesh.PositionNone), so every attribute packs
// into one slot instead.
func WithVertexSplitSlot(split bool) PipelineDescOption {
	return func(d *PipelineDesc) { d.VertexSplitSlot = split }
}
