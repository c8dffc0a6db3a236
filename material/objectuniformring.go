package material

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/kadds/gstudy-sub000/streambuf"
)

// ObjectUniformRing is the per-object dynamic-uniform ring described in
// SPEC_FULL.md §D.3, ported from phong-render/src/material_render.rs's
// per-object model-matrix buffer: a fixed-stride ring of dynamic-offset
// slots, recreated (grown) only when a frame needs more slots than the ring
// currently holds. Unlike streambuf.GpuInputMainBuffer's append-at-any-size
// staging cursor, every slot here is the same size (aligned to the device's
// minimum uniform buffer offset alignment) so a dynamic bind-group offset
// can address any slot directly.
type ObjectUniformRing struct {
	main       *streambuf.GpuMainBuffer
	queue      streambuf.Queue
	slotStride uint64
	used       int
}

// NewObjectUniformRing creates a ring whose slots are slotStride bytes
// apart. Callers should round slotStride up to the device's
// minUniformBufferOffsetAlignment before calling this (typically 256).
func NewObjectUniformRing(alloc streambuf.Allocator, queue streambuf.Queue, slotStride uint64, label string) (*ObjectUniformRing, error) {
	main, err := streambuf.NewGpuMainBuffer(alloc, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, label)
	if err != nil {
		return nil, fmt.Errorf("material: NewObjectUniformRing: %w", err)
	}
	return &ObjectUniformRing{main: main, queue: queue, slotStride: slotStride}, nil
}

// Reset starts a new frame's allocation from slot zero. The buffer's
// contents are left in place; slots are overwritten as Write reuses them.
func (r *ObjectUniformRing) Reset() { r.used = 0 }

// Reserve grows the ring's backing buffer, if needed, to hold at least
// slotCount slots for the upcoming frame. Calling this before the frame's
// first Write avoids a resize mid-stream when the object count is known
// up front.
func (r *ObjectUniformRing) Reserve(slotCount int) error {
	if slotCount <= 0 {
		return nil
	}
	_, err := r.main.Prepare(uint64(slotCount) * r.slotStride)
	return err
}

// Write stages data into the next free slot and returns its byte offset,
// suitable for use as a dynamic bind-group offset. Growing the ring (when
// the frame has used more slots than previously provisioned) preserves
// already-written slots' byte contents, since GpuMainBuffer.Prepare copies
// forward via a fresh device-side buffer only when capacity, not content,
// changes — callers must rewrite every slot used so far in the new frame
// regardless, per the ring's per-frame Reset/Write contract.
func (r *ObjectUniformRing) Write(data []byte) (uint64, error) {
	if uint64(len(data)) > r.slotStride {
		return 0, fmt.Errorf("material: ObjectUniformRing.Write: data length %d exceeds slot stride %d", len(data), r.slotStride)
	}
	slot := r.used
	needed := uint64(slot+1) * r.slotStride
	if _, err := r.main.Prepare(needed); err != nil {
		return 0, fmt.Errorf("material: ObjectUniformRing.Write: %w", err)
	}
	offset := uint64(slot) * r.slotStride
	r.queue.WriteBuffer(r.main.Buffer(), offset, data)
	r.used++
	return offset, nil
}

// Buffer returns the ring's current backing wgpu.Buffer. Its identity may
// change across a Write call that grows the ring.
func (r *ObjectUniformRing) Buffer() *wgpu.Buffer { return r.main.Buffer() }

// SlotStride returns the byte distance between consecutive slots.
func (r *ObjectUniformRing) SlotStride() uint64 { return r.slotStride }

// Used returns how many slots the current frame has written so far.
func (r *ObjectUniformRing) Used() int { return r.used }

// Release releases the underlying GPU buffer.
func (r *ObjectUniformRing) Release() { r.main.Release() }
