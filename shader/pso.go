package shader

import (
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/kadds/gstudy-sub000/gpu"
)

// pendingBuild lets concurrent PSOCache.Get calls for the same VariantKey
// dedupe onto a single wgpu pipeline creation instead of racing each other.
type pendingBuild struct {
	done   chan struct{}
	entry  *wgpu.RenderPipeline
	layout []wgpu.BindGroupLayoutDescriptor
	kinds  map[int]PurposeGroup
	err    error
}

// PSOCache caches compiled render pipelines keyed by (technique, pass index,
// variant flags), per spec.md §4.3. Concurrent misses for the same key block
// on one builder instead of compiling the same pipeline twice.
type PSOCache struct {
	mu      sync.Mutex
	pending map[VariantKey]*pendingBuild
}

// NewPSOCache creates an empty PSO cache.
func NewPSOCache() *PSOCache {
	return &PSOCache{pending: make(map[VariantKey]*pendingBuild)}
}

// Builder compiles the render pipeline for a variant from its PipelineDesc.
// Callers pass this in so PSOCache stays free of technique-specific wiring
// (e.g. how a variant's flags alter the PipelineDesc).
type Builder func(key VariantKey) (PipelineDesc, error)

// Get returns the cached pipeline for key, building it via build on a miss.
// Concurrent Get calls for the same key that race a miss block on the first
// caller's build instead of compiling redundant pipelines.
func (c *PSOCache) Get(device *gpu.Device, key VariantKey, build Builder) (*wgpu.RenderPipeline, []wgpu.BindGroupLayoutDescriptor, map[int]PurposeGroup, error) {
	c.mu.Lock()
	if pb, ok := c.pending[key]; ok {
		c.mu.Unlock()
		<-pb.done
		return pb.entry, pb.layout, pb.kinds, pb.err
	}

	pb := &pendingBuild{done: make(chan struct{})}
	c.pending[key] = pb
	c.mu.Unlock()

	pb.entry, pb.layout, pb.kinds, pb.err = c.build(device, key, build)
	close(pb.done)

	if pb.err != nil {
		// Don't poison the cache with a failed build; a later retry (e.g.
		// after a transient device error) should attempt a fresh compile.
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}

	return pb.entry, pb.layout, pb.kinds, pb.err
}

func (c *PSOCache) build(device *gpu.Device, key VariantKey, build Builder) (*wgpu.RenderPipeline, []wgpu.BindGroupLayoutDescriptor, map[int]PurposeGroup, error) {
	desc, err := build(key)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("shader: PSOCache: building PipelineDesc for %s: %w", key, err)
	}

	vertexRefl := Reflect(desc.VertexWGSL)
	fragRefl := Reflect(desc.FragmentWGSL)

	maxGroup := -1
	for g := range vertexRefl.BindGroups {
		if g > maxGroup {
			maxGroup = g
		}
	}
	for g := range fragRefl.BindGroups {
		if g > maxGroup {
			maxGroup = g
		}
	}
	layouts := make([]wgpu.BindGroupLayoutDescriptor, maxGroup+1)
	kinds := make(map[int]PurposeGroup, maxGroup+1)
	for g, desc := range vertexRefl.BindGroups {
		layouts[g] = desc
		kinds[g] = vertexRefl.BindGroupKinds[g]
	}
	for g, desc := range fragRefl.BindGroups {
		merged := mergeBindGroupLayout(layouts[g], desc)
		layouts[g] = merged
		if kinds[g] == PurposeGroupUnknown {
			kinds[g] = fragRefl.BindGroupKinds[g]
		}
	}

	rawDevice, _, _, _ := device.Raw()

	vsModule, err := rawDevice.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          key.String() + ".vs",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.VertexWGSL},
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("shader: PSOCache: compiling vertex module: %w", err)
	}
	fsModule, err := rawDevice.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          key.String() + ".fs",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.FragmentWGSL},
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("shader: PSOCache: compiling fragment module: %w", err)
	}

	bindGroupLayouts := make([]*wgpu.BindGroupLayout, 0, len(layouts))
	for i := range layouts {
		bgl, err := rawDevice.CreateBindGroupLayout(&layouts[i])
		if err != nil {
			return nil, nil, nil, fmt.Errorf("shader: PSOCache: creating bind group layout %d: %w", i, err)
		}
		bindGroupLayouts = append(bindGroupLayouts, bgl)
	}

	pipelineLayout, err := rawDevice.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            key.String() + ".layout",
		BindGroupLayouts: bindGroupLayouts,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("shader: PSOCache: creating pipeline layout: %w", err)
	}

	vertexLayouts := vertexRefl.VertexLayoutsFor(desc.VertexSplitSlot)
	var vertexBuffers []wgpu.VertexBufferLayout
	for i := 0; i < len(vertexLayouts); i++ {
		vertexBuffers = append(vertexBuffers, vertexLayouts[i]...)
	}

	depthStencil := &wgpu.DepthStencilState{
		Format:              desc.DepthFormat,
		DepthWriteEnabled:   desc.DepthWriteEnabled,
		DepthCompare:        desc.DepthCompare,
		DepthBias:           desc.DepthBias,
		DepthBiasSlopeScale: desc.DepthBiasSlope,
		StencilFront:        wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		StencilBack:         wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
	}

	pipeline, err := rawDevice.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  key.String(),
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     vsModule,
			EntryPoint: vertexRefl.VertexEntry,
			Buffers:    vertexBuffers,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  desc.Topology,
			CullMode:  desc.CullMode,
			FrontFace: desc.FrontFace,
		},
		DepthStencil: depthStencil,
		Multisample: wgpu.MultisampleState{
			Count: desc.SampleCount,
			Mask:  0xFFFFFFFF,
		},
		Fragment: &wgpu.FragmentState{
			Module:     fsModule,
			EntryPoint: fragRefl.FragmentEntry,
			Targets: []wgpu.ColorTargetState{
				{
					Format:    desc.ColorFormat,
					Blend:     desc.BlendState,
					WriteMask: desc.WriteMask,
				},
			},
		},
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("shader: PSOCache: creating render pipeline: %w", err)
	}

	return pipeline, layouts, kinds, nil
}

// mergeBindGroupLayout unions two partial descriptions of the same bind
// group index seen from different shader stages, widening each entry's
// Visibility flags to the union instead of overwriting it.
func mergeBindGroupLayout(a, b wgpu.BindGroupLayoutDescriptor) wgpu.BindGroupLayoutDescriptor {
	if len(a.Entries) == 0 {
		return b
	}
	if len(b.Entries) == 0 {
		return a
	}

	byBinding := make(map[uint32]wgpu.BindGroupLayoutEntry, len(a.Entries))
	for _, e := range a.Entries {
		byBinding[e.Binding] = e
	}
	for _, e := range b.Entries {
		if existing, ok := byBinding[e.Binding]; ok {
			existing.Visibility |= e.Visibility
			byBinding[e.Binding] = existing
		} else {
			byBinding[e.Binding] = e
		}
	}

	merged := make([]wgpu.BindGroupLayoutEntry, 0, len(byBinding))
	for _, e := range byBinding {
		merged = append(merged, e)
	}
	return wgpu.BindGroupLayoutDescriptor{Entries: merged}
}
