package rdg

import (
	"fmt"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// Builder assembles one frame's render graph: resource declarations and
// render passes. Call Compile once all passes have been added to produce
// the linear, lifetime-annotated schedule.
type Builder struct {
	name      string
	resources map[ResourceID]*resourceNode
	nextID    ResourceID
	passes    []*RenderPass
	hasTarget bool
}

// NewBuilder creates an empty graph builder. A fresh Builder is expected
// every frame, per the scene frame driver's "build graph" phase.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:      name,
		resources: make(map[ResourceID]*resourceNode),
		nextID:    RTDepth + 1,
	}
}

// SetPresentTarget registers the swapchain back buffer (RTColor, imported)
// and its companion depth buffer (RTDepth, transient Depth32Float,
// clear-to-1.0 by default). Must be called before Compile.
func (b *Builder) SetPresentTarget(width, height uint32, format wgpu.TextureFormat, clear *wgpu.Color) {
	depthClear := float32(1.0)
	b.resources[RTDepth] = &resourceNode{
		id:   RTDepth,
		name: "back_depth",
		kind: ResourceKindTexture,
		texture: TextureInfo{
			Width: width, Height: height, DepthOrArrayLayers: 1,
			Format: wgpu.TextureFormatDepth32Float,
			Usage:  wgpu.TextureUsageRenderAttachment,
			Clear:  &ClearValue{Depth: &depthClear},
		},
	}
	b.resources[RTColor] = &resourceNode{
		id:           RTColor,
		name:         "back_buffer",
		kind:         ResourceKindImportTexture,
		importFormat: format,
		importClear:  &ClearValue{Color: clear},
	}
	b.hasTarget = true
}

// AllocateTexture reserves a new transient texture resource and returns its
// ID for use in pass input/output/target declarations.
func (b *Builder) AllocateTexture(name string, info TextureInfo) ResourceID {
	id := b.nextID
	b.nextID++
	b.resources[id] = &resourceNode{id: id, name: name, kind: ResourceKindTexture, texture: info}
	return id
}

// AllocateBuffer reserves a new transient buffer resource.
func (b *Builder) AllocateBuffer(name string, info BufferInfo) ResourceID {
	id := b.nextID
	b.nextID++
	b.resources[id] = &resourceNode{id: id, name: name, kind: ResourceKindBuffer, buffer: info}
	return id
}

// ImportTexture reserves a resource slot for a texture supplied externally
// (e.g. a shadow atlas owned outside this frame's graph). The caller must
// inject it into the registry before Execute; the graph never creates or
// destroys it.
func (b *Builder) ImportTexture(name string) ResourceID {
	id := b.nextID
	b.nextID++
	b.resources[id] = &resourceNode{id: id, name: name, kind: ResourceKindImportTexture}
	return id
}

// AddRenderPass appends a pass to the graph in declaration order. Pass
// execution order in the compiled schedule matches declaration order.
func (b *Builder) AddRenderPass(pass *RenderPass) {
	b.passes = append(b.passes, pass)
}

// scheduleStep is one entry of a compiled RenderGraph's linear schedule.
type scheduleStep struct {
	pass     *RenderPass // nil for the trailing present step
	creates  []ResourceID
	destroys []ResourceID
}

// RenderGraph is the immutable, compiled output of Builder.Compile, ready
// for repeated or one-shot Execute calls against a gpu.Device.
type RenderGraph struct {
	name      string
	resources map[ResourceID]*resourceNode
	schedule  []scheduleStep
}

// ErrRDGCycle reports a cycle detected during Compile, fatal to the frame.
// It carries a formatted adjacency dump so the offending dependency chain
// is visible without re-running the graph under a debugger.
type ErrRDGCycle struct {
	Dump string
}

func (e *ErrRDGCycle) Error() string {
	return "rdg: cycle detected in render graph:\n" + e.Dump
}

// nodeKey identifies one node of the dependency graph used for cycle
// detection: either a declared pass (by its index in b.passes) or a
// resource (by ID). The present node is represented by isPresent.
type nodeKey struct {
	isPresent  bool
	isPass     bool
	passIdx    int
	resourceID ResourceID
}

func (k nodeKey) label(passes []*RenderPass, resources map[ResourceID]*resourceNode) string {
	switch {
	case k.isPresent:
		return "Present"
	case k.isPass:
		return fmt.Sprintf("Pass(%s)", passes[k.passIdx].Label)
	default:
		if r, ok := resources[k.resourceID]; ok {
			return fmt.Sprintf("Resource(%d:%s)", k.resourceID, r.name)
		}
		return fmt.Sprintf("Resource(%d)", k.resourceID)
	}
}

// Compile builds the dependency DAG from the declared resources and passes,
// checks it for cycles, computes per-resource lifetimes, and lowers the
// result to a linear create/execute/destroy schedule with Present last.
func (b *Builder) Compile() (*RenderGraph, error) {
	if !b.hasTarget {
		return nil, fmt.Errorf("rdg: Compile called before SetPresentTarget")
	}

	present := nodeKey{isPresent: true}
	backBuffer := nodeKey{resourceID: RTColor}

	adj := make(map[nodeKey][]nodeKey)
	addEdge := func(from, to nodeKey) { adj[from] = append(adj[from], to) }
	addEdge(backBuffer, present)

	defaultTargetSeen := false
	for i, pass := range b.passes {
		passNode := nodeKey{isPass: true, passIdx: i}
		for _, in := range pass.Inputs.Textures {
			addEdge(nodeKey{resourceID: in.id}, passNode)
		}
		for _, in := range pass.Inputs.Buffers {
			addEdge(nodeKey{resourceID: in.id}, passNode)
		}
		for _, out := range pass.Outputs.Textures {
			addEdge(passNode, nodeKey{resourceID: out.id})
		}
		for _, out := range pass.Outputs.Buffers {
			addEdge(passNode, nodeKey{resourceID: out.id})
		}
		if pass.isDefaultColorTarget {
			if defaultTargetSeen {
				return nil, fmt.Errorf("rdg: more than one pass declared as the default render target")
			}
			defaultTargetSeen = true
			addEdge(passNode, backBuffer)
		}
	}
	if !defaultTargetSeen {
		return nil, fmt.Errorf("rdg: no pass declared as the default render target")
	}

	if cyclePath, ok := findCycle(adj); ok {
		var sb strings.Builder
		for i, n := range cyclePath {
			if i > 0 {
				sb.WriteString(" -> ")
			}
			sb.WriteString(n.label(b.passes, b.resources))
		}
		return nil, &ErrRDGCycle{Dump: sb.String()}
	}

	type lifetime struct{ beg, end int }
	lifetimes := make(map[ResourceID]*lifetime)
	record := func(id ResourceID, idx int) {
		lt, ok := lifetimes[id]
		if !ok {
			lifetimes[id] = &lifetime{beg: idx, end: idx}
			return
		}
		if idx < lt.beg {
			lt.beg = idx
		}
		if idx > lt.end {
			lt.end = idx
		}
	}
	for i, pass := range b.passes {
		for _, e := range pass.Inputs.Textures {
			record(e.id, i)
		}
		for _, e := range pass.Outputs.Textures {
			record(e.id, i)
		}
		for _, e := range pass.Inputs.Buffers {
			record(e.id, i)
		}
		for _, e := range pass.Outputs.Buffers {
			record(e.id, i)
		}
	}

	schedule := make([]scheduleStep, 0, len(b.passes)+1)
	for i, pass := range b.passes {
		step := scheduleStep{pass: pass}
		for id, lt := range lifetimes {
			node := b.resources[id]
			if node == nil || node.kind == ResourceKindImportTexture {
				continue
			}
			if lt.beg == i {
				step.creates = append(step.creates, id)
			}
			if lt.end == i {
				step.destroys = append(step.destroys, id)
			}
		}
		schedule = append(schedule, step)
	}
	schedule = append(schedule, scheduleStep{pass: nil})

	return &RenderGraph{name: b.name, resources: b.resources, schedule: schedule}, nil
}

// PassCount returns the number of render passes scheduled this frame,
// excluding the trailing present step. Exposed for per-frame profiling.
func (g *RenderGraph) PassCount() int {
	n := 0
	for _, step := range g.schedule {
		if step.pass != nil {
			n++
		}
	}
	return n
}

// findCycle runs an iterative DFS with white/gray/black coloring over adj,
// returning the first cycle found as an ordered node path.
func findCycle(adj map[nodeKey][]nodeKey) ([]nodeKey, bool) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[nodeKey]int)
	parent := make(map[nodeKey]nodeKey)

	nodes := make(map[nodeKey]struct{})
	for from, tos := range adj {
		nodes[from] = struct{}{}
		for _, to := range tos {
			nodes[to] = struct{}{}
		}
	}

	var cyclePath []nodeKey
	var visit func(n nodeKey) bool
	visit = func(n nodeKey) bool {
		color[n] = gray
		for _, next := range adj[n] {
			switch color[next] {
			case white:
				parent[next] = n
				if visit(next) {
					return true
				}
			case gray:
				// Found a back edge: reconstruct the cycle from n back to next.
				path := []nodeKey{next}
				cur := n
				for cur != next {
					path = append(path, cur)
					cur = parent[cur]
				}
				path = append(path, next)
				// path is next,...,n,next in reverse; present it start-to-end.
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				cyclePath = path
				return true
			}
		}
		color[n] = black
		return false
	}

	for n := range nodes {
		if color[n] == white {
			if visit(n) {
				return cyclePath, true
			}
		}
	}
	return nil, false
}
