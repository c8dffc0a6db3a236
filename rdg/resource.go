// Package rdg implements the render dependency graph: a declarative DAG of
// passes and resources that is compiled into a linear schedule with
// per-resource lifetime-managed create/destroy ops, then executed against a
// gpu.Device.
package rdg

import "github.com/cogentcore/webgpu/wgpu"

// ResourceID identifies a node in the graph's resource table. Two IDs are
// reserved and always present once a Builder's SetPresentTarget has run:
// RTColor is the swapchain back buffer, RTDepth is its companion depth
// buffer.
type ResourceID uint32

const (
	RTColor ResourceID = 0
	RTDepth ResourceID = 1
)

// ResourceKind distinguishes how a resource node is materialized: Texture
// and Buffer are transient — created at first use and destroyed at last use
// by the compiled schedule. ImportTexture is injected by the caller before
// Execute and is never created or destroyed by the graph.
type ResourceKind int

const (
	ResourceKindTexture ResourceKind = iota
	ResourceKindBuffer
	ResourceKindImportTexture
)

// ClearValue is the load-op clear for a color or depth attachment. Exactly
// one of Color or Depth is set; nil means "don't clear" (LoadOpLoad).
type ClearValue struct {
	Color *wgpu.Color
	Depth *float32
}

// TextureInfo describes a transient texture resource's creation parameters.
type TextureInfo struct {
	Width, Height, DepthOrArrayLayers uint32
	Format                            wgpu.TextureFormat
	Usage                             wgpu.TextureUsage
	Clear                             *ClearValue
}

// BufferInfo describes a transient buffer resource's creation parameters.
type BufferInfo struct {
	Size  uint64
	Usage wgpu.BufferUsage
}

// resourceNode is the builder's record of one allocated, imported, or
// reserved resource. Exactly one of texture/buffer/importClear is
// meaningful, selected by kind.
type resourceNode struct {
	id      ResourceID
	name    string
	kind    ResourceKind
	texture TextureInfo
	buffer  BufferInfo
	// importFormat documents the format the injected view is expected to
	// carry; the graph never creates the view itself so this is advisory.
	importFormat wgpu.TextureFormat
	importClear  *ClearValue
}
