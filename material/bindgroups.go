package material

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/kadds/gstudy-sub000/gpu"
	"github.com/kadds/gstudy-sub000/shader"
)

// pipelineHandles is what a material kind keeps around after resolving a
// variant through the PSOCache: the compiled pipeline plus the concrete
// bind group layouts it needs in order to build actual bind groups, since
// shader.PSOCache.Get only returns layout descriptors — it builds its own
// wgpu.BindGroupLayout handles internally for the pipeline layout and
// discards them.
type pipelineHandles struct {
	pipeline *wgpu.RenderPipeline
	layouts  []*wgpu.BindGroupLayout
	kinds    map[int]shader.PurposeGroup
}

// resolvePipeline calls psoCache.Get for key and re-materializes the
// returned bind group layout descriptors into real wgpu.BindGroupLayout
// handles. The object-purposed group (if any) is widened to a dynamic
// uniform binding of objectSlotStride bytes so a single bind group can
// serve every object via ObjectUniformRing's per-draw offset, instead of
// needing one bind group per object.
func resolvePipeline(device *gpu.Device, psoCache *shader.PSOCache, key shader.VariantKey, build shader.Builder, objectSlotStride uint64) (*pipelineHandles, error) {
	pipeline, descs, kinds, err := psoCache.Get(device, key, build)
	if err != nil {
		return nil, fmt.Errorf("material: resolving pipeline %s: %w", key, err)
	}

	rawDevice, _, _, _ := device.Raw()
	layouts := make([]*wgpu.BindGroupLayout, len(descs))
	for i, desc := range descs {
		if kinds[i] == shader.PurposeGroupObject {
			desc = withDynamicUniform(desc, objectSlotStride)
		}
		bgl, err := rawDevice.CreateBindGroupLayout(&desc)
		if err != nil {
			return nil, fmt.Errorf("material: creating bind group layout %d for %s: %w", i, key, err)
		}
		layouts[i] = bgl
	}

	return &pipelineHandles{pipeline: pipeline, layouts: layouts, kinds: kinds}, nil
}

// withDynamicUniform returns a copy of desc with every uniform-buffer entry
// marked HasDynamicOffset and sized to stride, so the resulting layout
// accepts a per-draw offset passed to RenderPassEncoder.SetBindGroup instead
// of requiring a fresh bind group per object.
func withDynamicUniform(desc wgpu.BindGroupLayoutDescriptor, stride uint64) wgpu.BindGroupLayoutDescriptor {
	entries := make([]wgpu.BindGroupLayoutEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		if e.Buffer.Type == wgpu.BufferBindingTypeUniform {
			e.Buffer.HasDynamicOffset = true
			e.Buffer.MinBindingSize = stride
		}
		entries[i] = e
	}
	return wgpu.BindGroupLayoutDescriptor{Entries: entries}
}

// findGroup returns the first bind group index classified as kind, or -1.
func findGroup(kinds map[int]shader.PurposeGroup, kind shader.PurposeGroup) int {
	for idx, k := range kinds {
		if k == kind {
			return idx
		}
	}
	return -1
}
