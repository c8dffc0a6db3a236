// Package streambuf implements the pooled GPU buffer types described in
// spec.md §4.4: GpuMainBuffer grows on demand and shrinks under sustained
// low use, and GpuInputMainBuffer layers a per-frame staging cursor with
// alignment on top of it for streamed vertex/uniform uploads.
package streambuf

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

const (
	// initialBufferSize is GpuMainBuffer's starting capacity, per spec.md §4.4.
	initialBufferSize = 2 * 1024 * 1024

	// recentUseRingSize bounds how many recent prepare() sizes are kept to
	// decide whether the buffer is sustained-low-use.
	recentUseRingSize = 100

	// shrinkCheckInterval is how many prepare() calls elapse between shrink
	// evaluations.
	shrinkCheckInterval = 500

	// shrinkLowUseFactor: the buffer is eligible to shrink when the maximum
	// recently-requested size is below this fraction of current capacity.
	shrinkLowUseFactor = 0.25
)

// Allocator is the subset of gpu.Device that GpuMainBuffer needs; kept as an
// interface so tests can supply a fake without a live wgpu device.
type Allocator interface {
	CreateGPUBuffer(size uint64, usage wgpu.BufferUsage, label string) (*wgpu.Buffer, error)
}

// GpuMainBuffer is a grow-on-demand GPU buffer with a sustained-low-use
// shrink policy, per spec.md §4.4. It does not itself track a write cursor —
// see GpuInputMainBuffer for that layer.
type GpuMainBuffer struct {
	alloc Allocator
	usage wgpu.BufferUsage
	label string

	buffer   *wgpu.Buffer
	capacity uint64

	recentUse  [recentUseRingSize]uint64
	ringCursor int
	ringFilled int

	callCount int
}

// NewGpuMainBuffer creates a buffer of initialBufferSize and the given usage.
func NewGpuMainBuffer(alloc Allocator, usage wgpu.BufferUsage, label string) (*GpuMainBuffer, error) {
	b := &GpuMainBuffer{alloc: alloc, usage: usage, label: label}
	if err := b.resize(initialBufferSize); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *GpuMainBuffer) resize(size uint64) error {
	buf, err := b.alloc.CreateGPUBuffer(size, b.usage, b.label)
	if err != nil {
		return fmt.Errorf("streambuf: GpuMainBuffer resize to %d: %w", size, err)
	}
	if b.buffer != nil {
		b.buffer.Release()
	}
	b.buffer = buf
	b.capacity = size
	return nil
}

// Buffer returns the current underlying wgpu buffer. It may change identity
// across Prepare calls that grow or shrink the buffer.
func (b *GpuMainBuffer) Buffer() *wgpu.Buffer { return b.buffer }

// Capacity returns the buffer's current byte capacity.
func (b *GpuMainBuffer) Capacity() uint64 { return b.capacity }

func (b *GpuMainBuffer) recordUse(size uint64) {
	b.recentUse[b.ringCursor] = size
	b.ringCursor = (b.ringCursor + 1) % recentUseRingSize
	if b.ringFilled < recentUseRingSize {
		b.ringFilled++
	}
}

func (b *GpuMainBuffer) maxRecentUse() uint64 {
	var max uint64
	for i := 0; i < b.ringFilled; i++ {
		if b.recentUse[i] > max {
			max = b.recentUse[i]
		}
	}
	return max
}

// Prepare ensures the buffer can hold requestedSize bytes. Per spec.md
// §4.3 point 1, a capacity shortfall reallocates to exactly requestedSize
// (not a rounded-up power of two) and resets the recent-use window, since
// the new capacity itself is the only sample that matters until the next
// shrink evaluation. Otherwise requestedSize is appended to the recent-use
// ring and, periodically, the buffer may shrink back down under sustained
// low use. Returns true if the underlying wgpu.Buffer identity changed.
func (b *GpuMainBuffer) Prepare(requestedSize uint64) (bool, error) {
	if requestedSize > b.capacity {
		if err := b.resize(requestedSize); err != nil {
			return false, err
		}
		b.recentUse = [recentUseRingSize]uint64{}
		b.ringCursor = 0
		b.ringFilled = 0
		b.callCount = 0
		return true, nil
	}

	b.callCount++
	b.recordUse(requestedSize)

	if b.callCount%shrinkCheckInterval == 0 && b.ringFilled == recentUseRingSize {
		maxUse := b.maxRecentUse()
		if maxUse > 0 && float64(maxUse) < float64(b.capacity)*shrinkLowUseFactor {
			shrunk := b.capacity / 2
			if shrunk < initialBufferSize {
				shrunk = initialBufferSize
			}
			if shrunk < maxUse {
				shrunk = maxUse
			}
			if shrunk != b.capacity {
				if err := b.resize(shrunk); err != nil {
					return false, err
				}
				return true, nil
			}
		}
	}

	return false, nil
}

// Release releases the underlying wgpu buffer.
func (b *GpuMainBuffer) Release() {
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
	}
}
