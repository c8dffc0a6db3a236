package rdg

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/kadds/gstudy-sub000/gpu"
)

// ResourceUsage classifies how a pass touches a declared input or output.
// It is stored with each declaration but Compile does not read it —
// direction (input vs output) is what drives scheduling.
type ResourceUsage int

const (
	UsageTextureRead ResourceUsage = iota
	UsageTextureWrite
	UsageBufferRead
	UsageBufferWrite
)

type ioEntry struct {
	id    ResourceID
	usage ResourceUsage
}

// PassIO is the declared set of resources a pass reads from and writes to.
type PassIO struct {
	Textures []ioEntry
	Buffers  []ioEntry
}

// RenderTarget is a pass's render-target attachment configuration: zero or
// more color attachments and an optional depth attachment.
type RenderTarget struct {
	Colors []ResourceID
	Depth  *ResourceID
}

// ExecContext is handed to a RenderPass's callback during Execute. It
// resolves the pass's declared resource IDs to their live GPU handles and
// exposes the frame's single shared command encoder plus, once the pass's
// render pass has begun, the active RenderPassEncoder.
type ExecContext struct {
	Encoder   *wgpu.CommandEncoder
	Pass      *wgpu.RenderPassEncoder
	resources map[ResourceID]gpu.Resource
}

// TextureView resolves a declared texture resource to its view.
func (c *ExecContext) TextureView(id ResourceID) *wgpu.TextureView {
	if h, ok := c.resources[id]; ok {
		return h.View()
	}
	return nil
}

// Buffer resolves a declared buffer resource to its wgpu buffer.
func (c *ExecContext) Buffer(id ResourceID) *wgpu.Buffer {
	if h, ok := c.resources[id]; ok {
		return h.Buffer()
	}
	return nil
}

// RenderPassExecFunc is the body a material renderer supplies for one pass:
// set pipeline, bind groups, and issue draws against ctx.Pass.
type RenderPassExecFunc func(ctx *ExecContext)

// RenderPass is one node of the graph's DAG: a declared set of inputs,
// outputs, a render target, and the callback that records draw commands
// once the pass's attachments are resolved.
type RenderPass struct {
	Label   string
	Inputs  PassIO
	Outputs PassIO
	Target  RenderTarget

	isDefaultColorTarget bool
	exec                 RenderPassExecFunc
}

// RenderPassOption mutates a RenderPass during construction.
type RenderPassOption func(*RenderPass)

// NewRenderPass builds a pass with the given label and execute callback,
// applying opts to declare its inputs/outputs/render-target.
func NewRenderPass(label string, exec RenderPassExecFunc, opts ...RenderPassOption) *RenderPass {
	p := &RenderPass{Label: label, exec: exec}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithTextureInput declares a texture this pass reads before its own work.
func WithTextureInput(id ResourceID, usage ResourceUsage) RenderPassOption {
	return func(p *RenderPass) {
		p.Inputs.Textures = append(p.Inputs.Textures, ioEntry{id, usage})
	}
}

// WithTextureOutput declares a texture this pass writes, beyond its render
// target attachments (e.g. a storage-texture compute write).
func WithTextureOutput(id ResourceID, usage ResourceUsage) RenderPassOption {
	return func(p *RenderPass) {
		p.Outputs.Textures = append(p.Outputs.Textures, ioEntry{id, usage})
	}
}

// WithBufferInput declares a buffer this pass reads.
func WithBufferInput(id ResourceID, usage ResourceUsage) RenderPassOption {
	return func(p *RenderPass) {
		p.Inputs.Buffers = append(p.Inputs.Buffers, ioEntry{id, usage})
	}
}

// WithBufferOutput declares a buffer this pass writes.
func WithBufferOutput(id ResourceID, usage ResourceUsage) RenderPassOption {
	return func(p *RenderPass) {
		p.Outputs.Buffers = append(p.Outputs.Buffers, ioEntry{id, usage})
	}
}

// WithColorTarget adds a color attachment to the pass's render target. A
// pass that targets RTColor is the graph's default render target; exactly
// one such pass is allowed per graph, enforced at Compile.
func WithColorTarget(id ResourceID) RenderPassOption {
	return func(p *RenderPass) {
		p.Target.Colors = append(p.Target.Colors, id)
		p.Outputs.Textures = append(p.Outputs.Textures, ioEntry{id, UsageTextureWrite})
		if id == RTColor {
			p.isDefaultColorTarget = true
		}
	}
}

// WithDepthTarget sets the pass's depth attachment. Declaring RTDepth here
// is what makes the default depth buffer's lifetime span this pass, per the
// compile algorithm's lifetime analysis.
func WithDepthTarget(id ResourceID) RenderPassOption {
	return func(p *RenderPass) {
		d := id
		p.Target.Depth = &d
		p.Outputs.Textures = append(p.Outputs.Textures, ioEntry{id, UsageTextureWrite})
	}
}
