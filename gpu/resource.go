package gpu

import (
	"sync"
	"sync/atomic"

	"github.com/cogentcore/webgpu/wgpu"
)

// Kind identifies which concrete GPU object a Resource wraps, per spec.md §3.
type Kind int

const (
	// KindTexture is an owned image plus its default view.
	KindTexture Kind = iota
	// KindSurfaceTexture is an acquired swapchain image and view, presented
	// on drop.
	KindSurfaceTexture
	// KindSampler is a GPU sampler.
	KindSampler
	// KindBuffer is a GPU buffer.
	KindBuffer
)

// Registry is the central "weak bookkeeping" table of live resources: it
// never extends a Resource's lifetime, it only records which IDs are live
// for diagnostics and lookup. Dropping the last Resource handle deregisters
// its entry.
type Registry struct {
	mu      sync.Mutex
	entries map[uint64]Kind
}

// NewRegistry creates an empty resource registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[uint64]Kind)}
}

func (r *Registry) register(id uint64, kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = kind
}

func (r *Registry) deregister(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len returns the number of currently-registered resources, for diagnostics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// refCounted is the shared state behind every clone of a Resource handle.
type refCounted struct {
	id       uint64
	kind     Kind
	registry *Registry
	count    int32

	texture        *wgpu.Texture
	textureView    *wgpu.TextureView
	sampler        *wgpu.Sampler
	buffer         *wgpu.Buffer
	surfaceTexture *wgpu.SurfaceTexture
	surface        *wgpu.Surface
}

func (rc *refCounted) release() {
	if atomic.AddInt32(&rc.count, -1) > 0 {
		return
	}
	rc.registry.deregister(rc.id)
	switch rc.kind {
	case KindTexture:
		if rc.textureView != nil {
			rc.textureView.Release()
		}
		if rc.texture != nil {
			rc.texture.Release()
		}
	case KindSurfaceTexture:
		// Presented exactly once on drop, per spec.md §4.1.
		if rc.surface != nil {
			rc.surface.Present()
		}
		if rc.textureView != nil {
			rc.textureView.Release()
		}
	case KindSampler:
		if rc.sampler != nil {
			rc.sampler.Release()
		}
	case KindBuffer:
		if rc.buffer != nil {
			rc.buffer.Release()
		}
	}
}

// Resource is a shared handle referring to one Texture, SurfaceTexture,
// Sampler, or Buffer. Cloning increments a shared refcount; Release
// decrements it, and the underlying GPU object is released (and, for
// SurfaceTexture, presented) only when the last holder releases.
type Resource struct {
	rc *refCounted
}

// ID returns the resource's process-unique 64-bit ID.
func (r Resource) ID() uint64 { return r.rc.id }

// Kind returns which concrete GPU object this resource wraps.
func (r Resource) Kind() Kind { return r.rc.kind }

// Texture returns the underlying texture, or nil if this is not a texture.
func (r Resource) Texture() *wgpu.Texture { return r.rc.texture }

// View returns the default/acquired texture view, or nil if not applicable.
func (r Resource) View() *wgpu.TextureView { return r.rc.textureView }

// Sampler returns the underlying sampler, or nil if this is not a sampler.
func (r Resource) Sampler() *wgpu.Sampler { return r.rc.sampler }

// Buffer returns the underlying buffer, or nil if this is not a buffer.
func (r Resource) Buffer() *wgpu.Buffer { return r.rc.buffer }

// Clone returns a new handle to the same underlying resource, incrementing
// the shared refcount. The resource's lifetime is the longest-lived holder.
func (r Resource) Clone() Resource {
	atomic.AddInt32(&r.rc.count, 1)
	return Resource{rc: r.rc}
}

// Release drops this handle. When it is the last holder, the underlying GPU
// object is released (surface textures are presented) and the resource is
// deregistered from its Registry.
func (r Resource) Release() {
	r.rc.release()
}
