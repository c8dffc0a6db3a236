package rdg

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/kadds/gstudy-sub000/gpu"
)

// Injected carries the imported resources a caller must provide before
// Execute runs — at minimum the swapchain back buffer (RTColor) acquired
// this frame via gpu.Device.AcquireSurfaceTexture. Additional imports
// declared through Builder.ImportTexture must also be present here, keyed
// by the ID returned from that call.
type Injected map[ResourceID]gpu.Resource

// Execute runs the compiled schedule against device: for each step it
// materializes any resources whose lifetime begins there, resolves the
// pass's declared attachments, begins a render pass and invokes the
// material renderer's callback, ends the pass, and releases any resources
// whose lifetime ends there. The whole graph is recorded into one shared
// command encoder and submitted once at the end, per the one-encoder-per-
// frame discipline.
func (g *RenderGraph) Execute(device *gpu.Device, injected Injected) error {
	rawDevice, queue, _, _ := device.Raw()

	encoder, err := rawDevice.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("rdg: creating command encoder: %w", err)
	}

	live := make(map[ResourceID]gpu.Resource, len(injected))
	for id, res := range injected {
		live[id] = res
	}

	for _, step := range g.schedule {
		for _, id := range step.creates {
			node := g.resources[id]
			res, err := materialize(device, node)
			if err != nil {
				encoder.Release()
				return fmt.Errorf("rdg: materializing resource %q: %w", node.name, err)
			}
			live[id] = res
		}

		if step.pass != nil {
			if err := g.runPass(encoder, step.pass, live); err != nil {
				encoder.Release()
				return err
			}
		}

		for _, id := range step.destroys {
			if res, ok := live[id]; ok {
				res.Release()
				delete(live, id)
			}
		}
	}

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		encoder.Release()
		return fmt.Errorf("rdg: finishing command encoder: %w", err)
	}
	queue.Submit(commandBuffer)
	commandBuffer.Release()
	encoder.Release()

	return nil
}

func (g *RenderGraph) runPass(encoder *wgpu.CommandEncoder, pass *RenderPass, live map[ResourceID]gpu.Resource) error {
	colorAttachments := make([]wgpu.RenderPassColorAttachment, 0, len(pass.Target.Colors))
	for _, id := range pass.Target.Colors {
		res, ok := live[id]
		if !ok {
			return fmt.Errorf("rdg: pass %q: color target %d not live at execute time", pass.Label, id)
		}
		colorAttachments = append(colorAttachments, wgpu.RenderPassColorAttachment{
			View:       res.View(),
			LoadOp:     loadOpFor(g.resources[id]),
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: clearColorFor(g.resources[id]),
		})
	}

	var depthAttachment *wgpu.RenderPassDepthStencilAttachment
	if pass.Target.Depth != nil {
		res, ok := live[*pass.Target.Depth]
		if !ok {
			return fmt.Errorf("rdg: pass %q: depth target %d not live at execute time", pass.Label, *pass.Target.Depth)
		}
		depthAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            res.View(),
			DepthLoadOp:     depthLoadOpFor(g.resources[*pass.Target.Depth]),
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: depthClearFor(g.resources[*pass.Target.Depth]),
		}
	}

	rp := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label:                  pass.Label,
		ColorAttachments:       colorAttachments,
		DepthStencilAttachment: depthAttachment,
	})

	ctx := &ExecContext{Encoder: encoder, Pass: rp, resources: live}
	pass.exec(ctx)

	rp.End()
	return nil
}

func materialize(device *gpu.Device, node *resourceNode) (gpu.Resource, error) {
	switch node.kind {
	case ResourceKindTexture:
		return device.CreateTexture(&wgpu.TextureDescriptor{
			Label: node.name,
			Size: wgpu.Extent3D{
				Width: node.texture.Width, Height: node.texture.Height,
				DepthOrArrayLayers: valueOrOne(node.texture.DepthOrArrayLayers),
			},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     wgpu.TextureDimension2D,
			Format:        node.texture.Format,
			Usage:         node.texture.Usage,
		})
	case ResourceKindBuffer:
		return device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: node.name,
			Size:  node.buffer.Size,
			Usage: node.buffer.Usage,
		})
	default:
		return gpu.Resource{}, fmt.Errorf("rdg: resource %q has no transient descriptor to materialize", node.name)
	}
}

func valueOrOne(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	return v
}

func loadOpFor(node *resourceNode) wgpu.LoadOp {
	if node.kind == ResourceKindImportTexture {
		if node.importClear != nil && node.importClear.Color != nil {
			return wgpu.LoadOpClear
		}
		return wgpu.LoadOpLoad
	}
	if node.texture.Clear != nil && node.texture.Clear.Color != nil {
		return wgpu.LoadOpClear
	}
	return wgpu.LoadOpLoad
}

func clearColorFor(node *resourceNode) wgpu.Color {
	var c *wgpu.Color
	if node.kind == ResourceKindImportTexture {
		if node.importClear != nil {
			c = node.importClear.Color
		}
	} else if node.texture.Clear != nil {
		c = node.texture.Clear.Color
	}
	if c == nil {
		return wgpu.Color{}
	}
	return *c
}

func depthLoadOpFor(node *resourceNode) wgpu.LoadOp {
	if node.texture.Clear != nil && node.texture.Clear.Depth != nil {
		return wgpu.LoadOpClear
	}
	return wgpu.LoadOpLoad
}

func depthClearFor(node *resourceNode) float32 {
	if node.texture.Clear != nil && node.texture.Clear.Depth != nil {
		return *node.texture.Clear.Depth
	}
	return 1.0
}
