// Package gpu wraps the wgpu instance/adapter/device/queue/surface into the
// session-scoped Device type described in spec.md §4.1, together with the
// shared-refcount Resource handles in resource.go.
package gpu

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cogentcore/webgpu/wgpu"
)

// ErrNoAdapter is returned when the three-step (HighPerformance, surface) →
// (LowPower, surface) → (LowPower, no surface) fallback ladder in spec.md
// §4.1 is exhausted.
var ErrNoAdapter = errors.New("gpu: no adapter satisfied any requested power preference")

// ErrNoFormat is returned when a surface's capabilities contain neither of
// the two formats this engine knows how to drive.
var ErrNoFormat = errors.New("gpu: surface offers neither Rgba8Unorm nor Bgra8Unorm")

// PushConstantBytes is the 64-byte push-constant size this package names.
// newDevice does not request a push-constant feature or limit: its first
// RequestDevice raises only MaxBindGroups, and its retry uses default limits.
const PushConstantBytes = 64

// Device owns the wgpu instance/adapter/device/queue and, when constructed
// with a surface, the swapchain surface too. One Device is created per
// session (per tagging.Context), never as a package-level singleton.
type Device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface

	surfaceFormat wgpu.TextureFormat
	hasSurface    bool

	registry *Registry
	nextID   uint64
}

// acquireResult bundles what the fallback ladder in requestAdapter produces.
type acquireResult struct {
	adapter    *wgpu.Adapter
	usedPower  wgpu.PowerPreference
	hadSurface bool
}

// requestAdapter implements spec.md §4.1's adapter selection protocol:
// request in order (HighPerformance, compatible=surface), (LowPower,
// compatible=surface), (LowPower, no surface); fail with ErrNoAdapter if all
// three yield nothing.
func requestAdapter(instance *wgpu.Instance, surface *wgpu.Surface) (*acquireResult, error) {
	attempts := []struct {
		power      wgpu.PowerPreference
		useSurface bool
	}{
		{wgpu.PowerPreferenceHighPerformance, true},
		{wgpu.PowerPreferenceLowPower, true},
		{wgpu.PowerPreferenceLowPower, false},
	}

	for _, attempt := range attempts {
		opts := &wgpu.RequestAdapterOptions{
			PowerPreference: attempt.power,
		}
		if attempt.useSurface && surface != nil {
			opts.CompatibleSurface = surface
		}
		adapter, err := instance.RequestAdapter(opts)
		if err == nil && adapter != nil {
			return &acquireResult{adapter: adapter, usedPower: attempt.power, hadSurface: attempt.useSurface && surface != nil}, nil
		}
	}
	return nil, ErrNoAdapter
}

// NewDevice creates a headless Device: no surface, used for compute-only or
// off-screen render-graph execution (e.g. shadow atlas baking in tests).
func NewDevice() (*Device, error) {
	return newDevice(nil)
}

// NewDeviceForSurface creates a Device bound to a presentable surface
// described by desc (e.g. from a windowing library's surface descriptor).
func NewDeviceForSurface(desc *wgpu.SurfaceDescriptor) (*Device, error) {
	instance := wgpu.CreateInstance(nil)
	surface := instance.CreateSurface(desc)
	return newDevice(&deviceInit{instance: instance, surface: surface})
}

type deviceInit struct {
	instance *wgpu.Instance
	surface  *wgpu.Surface
}

func newDevice(init *deviceInit) (*Device, error) {
	var instance *wgpu.Instance
	var surface *wgpu.Surface
	if init != nil {
		instance = init.instance
		surface = init.surface
	} else {
		instance = wgpu.CreateInstance(nil)
	}

	result, err := requestAdapter(instance, surface)
	if err != nil {
		return nil, err
	}

	limits := wgpu.DefaultLimits()
	limits.MaxBindGroups = 8

	device, err := result.adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "render-graph device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		// Retry once against unmodified downlevel-safe limits, per spec.md
		// §4.1's "fall back to downlevel limits" clause.
		device, err = result.adapter.RequestDevice(&wgpu.DeviceDescriptor{
			Label: "render-graph device (downlevel limits)",
		})
		if err != nil {
			return nil, fmt.Errorf("gpu: RequestDevice failed even with downlevel limits: %w", err)
		}
	}

	d := &Device{
		instance:   instance,
		adapter:    result.adapter,
		device:     device,
		queue:      device.GetQueue(),
		surface:    surface,
		hasSurface: result.hadSurface,
		registry:   NewRegistry(),
	}

	if surface != nil {
		format, err := d.selectSurfaceFormat()
		if err != nil {
			return nil, err
		}
		d.surfaceFormat = format
	}

	return d, nil
}

// selectSurfaceFormat prefers Rgba8Unorm, then Bgra8Unorm, per spec.md §4.1.
func (d *Device) selectSurfaceFormat() (wgpu.TextureFormat, error) {
	caps := d.surface.GetCapabilities(d.adapter)
	return pickSurfaceFormat(caps.Formats)
}

// pickSurfaceFormat is the pure selection rule behind selectSurfaceFormat,
// split out so it can be exercised without a live wgpu surface.
func pickSurfaceFormat(formats []wgpu.TextureFormat) (wgpu.TextureFormat, error) {
	var fallback *wgpu.TextureFormat
	for i := range formats {
		f := formats[i]
		if f == wgpu.TextureFormatRGBA8Unorm {
			return f, nil
		}
		if f == wgpu.TextureFormatBGRA8Unorm && fallback == nil {
			fallback = &formats[i]
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return wgpu.TextureFormat(0), ErrNoFormat
}

// SurfaceFormat returns the format chosen by selectSurfaceFormat. Only valid
// when the Device was created with NewDeviceForSurface.
func (d *Device) SurfaceFormat() wgpu.TextureFormat { return d.surfaceFormat }

// Raw returns the underlying wgpu handles for packages (rdg, shader,
// streambuf, material) that need to issue direct wgpu calls this wrapper
// does not itself expose.
func (d *Device) Raw() (*wgpu.Device, *wgpu.Queue, *wgpu.Adapter, *wgpu.Instance) {
	return d.device, d.queue, d.adapter, d.instance
}

// Resize reconfigures the bound surface to max(requested, 16) per axis, per
// spec.md §4.1's resize-clamping rule, on every call. It returns true
// whenever a surface is bound and false for a headless Device.
func (d *Device) Resize(width, height int) bool {
	if d.surface == nil {
		return false
	}
	if width < 16 {
		width = 16
	}
	if height < 16 {
		height = 16
	}
	caps := d.surface.GetCapabilities(d.adapter)
	d.surface.Configure(d.adapter, d.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      d.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	})
	return true
}

// AcquireSurfaceTexture acquires the next swapchain image as a Resource.
// Releasing the returned Resource (after the last clone) presents it.
func (d *Device) AcquireSurfaceTexture() (Resource, error) {
	if d.surface == nil {
		return Resource{}, errors.New("gpu: AcquireSurfaceTexture called on a headless Device")
	}
	st, err := d.surface.GetCurrentTexture()
	if err != nil {
		return Resource{}, fmt.Errorf("gpu: GetCurrentTexture: %w", err)
	}
	view, err := st.Texture.CreateView(nil)
	if err != nil {
		return Resource{}, fmt.Errorf("gpu: CreateView on surface texture: %w", err)
	}

	id := atomic.AddUint64(&d.nextID, 1)
	rc := &refCounted{
		id:             id,
		kind:           KindSurfaceTexture,
		registry:       d.registry,
		count:          1,
		textureView:    view,
		surfaceTexture: st,
		surface:        d.surface,
	}
	d.registry.register(id, KindSurfaceTexture)
	return Resource{rc: rc}, nil
}

// CreateTexture creates a new owned texture Resource.
func (d *Device) CreateTexture(desc *wgpu.TextureDescriptor) (Resource, error) {
	tex, err := d.device.CreateTexture(desc)
	if err != nil {
		return Resource{}, err
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return Resource{}, err
	}
	id := atomic.AddUint64(&d.nextID, 1)
	rc := &refCounted{id: id, kind: KindTexture, registry: d.registry, count: 1, texture: tex, textureView: view}
	d.registry.register(id, KindTexture)
	return Resource{rc: rc}, nil
}

// CreateBuffer creates a new owned buffer Resource.
func (d *Device) CreateBuffer(desc *wgpu.BufferDescriptor) (Resource, error) {
	buf, err := d.device.CreateBuffer(desc)
	if err != nil {
		return Resource{}, err
	}
	id := atomic.AddUint64(&d.nextID, 1)
	rc := &refCounted{id: id, kind: KindBuffer, registry: d.registry, count: 1, buffer: buf}
	d.registry.register(id, KindBuffer)
	return Resource{rc: rc}, nil
}

// CreateGPUBuffer creates a raw wgpu buffer (not wrapped in a Resource) for
// packages such as streambuf that manage their own buffer identity/lifetime
// across grow/shrink cycles.
func (d *Device) CreateGPUBuffer(size uint64, usage wgpu.BufferUsage, label string) (*wgpu.Buffer, error) {
	return d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label,
		Size:             size,
		Usage:            usage,
		MappedAtCreation: false,
	})
}

// CreateSampler creates a new owned sampler Resource.
func (d *Device) CreateSampler(desc *wgpu.SamplerDescriptor) (Resource, error) {
	samp, err := d.device.CreateSampler(desc)
	if err != nil {
		return Resource{}, err
	}
	id := atomic.AddUint64(&d.nextID, 1)
	rc := &refCounted{id: id, kind: KindSampler, registry: d.registry, count: 1, sampler: samp}
	d.registry.register(id, KindSampler)
	return Resource{rc: rc}, nil
}

// ResourceCount reports how many live resources this Device currently owns,
// for diagnostics and leak checks.
func (d *Device) ResourceCount() int { return d.registry.Len() }

// Release releases the device, adapter, and (if present) surface/instance.
func (d *Device) Release() {
	if d.device != nil {
		d.device.Release()
	}
	if d.adapter != nil {
		d.adapter.Release()
	}
	if d.surface != nil {
		d.surface.Release()
	}
	if d.instance != nil {
		d.instance.Release()
	}
}
