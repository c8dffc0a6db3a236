package streambuf

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// Queue is the subset of wgpu.Queue used to stage writes into a
// GpuInputMainBuffer.
type Queue interface {
	WriteBuffer(buffer *wgpu.Buffer, offset uint64, data []byte)
}

// defaultAlignment is the offset alignment enforced between successive
// writes within a frame, matching WebGPU's COPY_BUFFER_ALIGNMENT.
const defaultAlignment = 4

// alignUp rounds n up to the next multiple of align (align must be a power
// of two).
func alignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}

// GpuInputMainBuffer layers a per-frame write cursor and alignment discipline
// on top of a GpuMainBuffer, modeling the "staging belt" pattern in spec.md
// §4.4: CopyStage appends caller data at an aligned offset within the
// current frame, Finish records the frame's total written size so the next
// Prepare call can grow/shrink appropriately, and Recall resets the cursor
// for the next frame.
type GpuInputMainBuffer struct {
	main      *GpuMainBuffer
	queue     Queue
	alignment uint64
	cursor    uint64
}

// NewGpuInputMainBuffer wraps main with a staging cursor at the given
// alignment (0 selects defaultAlignment).
func NewGpuInputMainBuffer(main *GpuMainBuffer, queue Queue, alignment uint64) *GpuInputMainBuffer {
	if alignment == 0 {
		alignment = defaultAlignment
	}
	return &GpuInputMainBuffer{main: main, queue: queue, alignment: alignment}
}

// Buffer returns the backing wgpu buffer.
func (b *GpuInputMainBuffer) Buffer() *wgpu.Buffer { return b.main.Buffer() }

// Cursor returns the number of bytes written so far this frame.
func (b *GpuInputMainBuffer) Cursor() uint64 { return b.cursor }

// CopyStage writes data at the next aligned offset within the current
// frame, growing the backing buffer first if needed. Returns the byte
// offset the data was written at.
func (b *GpuInputMainBuffer) CopyStage(data []byte) (uint64, error) {
	offset := alignUp(b.cursor, b.alignment)
	end := offset + uint64(len(data))

	if _, err := b.main.Prepare(end); err != nil {
		return 0, fmt.Errorf("streambuf: GpuInputMainBuffer.CopyStage: %w", err)
	}

	b.queue.WriteBuffer(b.main.Buffer(), offset, data)
	b.cursor = end
	return offset, nil
}

// Finish ends the current frame's staging: it re-runs Prepare against the
// final cursor so the shrink-policy ring sees the frame's true high-water
// mark, then returns the total bytes staged this frame.
func (b *GpuInputMainBuffer) Finish() (uint64, error) {
	if _, err := b.main.Prepare(b.cursor); err != nil {
		return 0, err
	}
	return b.cursor, nil
}

// Recall resets the write cursor for the next frame. The underlying buffer
// contents are left in place — callers that need the prior frame's data
// preserved across a recall should copy it out before calling this.
func (b *GpuInputMainBuffer) Recall() {
	b.cursor = 0
}

// GpuInputMainBuffers aggregates the index+vertex buffer pair a
// position-only draw stream needs (e.g. the debug technique's
// position-only VertexInput), mirroring the Rust original's
// GpuInputMainBuffers (wgpu_backend.rs). A combined Prepare/CopyStage/
// Finish/Recall spans both subordinate buffers in one call, per spec.md
// §4.3's "a prepare/copy/finish/recall API on each aggregates subordinate
// calls".
type GpuInputMainBuffers struct {
	Index  *GpuInputMainBuffer
	Vertex *GpuInputMainBuffer
}

// NewGpuInputMainBuffers wraps an already-constructed index/vertex pair.
func NewGpuInputMainBuffers(index, vertex *GpuInputMainBuffer) *GpuInputMainBuffers {
	return &GpuInputMainBuffers{Index: index, Vertex: vertex}
}

// CopyStage stages indices and vertices in that order, returning each
// call's write offset.
func (g *GpuInputMainBuffers) CopyStage(indices, vertices []byte) (indexOffset, vertexOffset uint64, err error) {
	indexOffset, err = g.Index.CopyStage(indices)
	if err != nil {
		return 0, 0, fmt.Errorf("streambuf: GpuInputMainBuffers.CopyStage: %w", err)
	}
	vertexOffset, err = g.Vertex.CopyStage(vertices)
	if err != nil {
		return 0, 0, fmt.Errorf("streambuf: GpuInputMainBuffers.CopyStage: %w", err)
	}
	return indexOffset, vertexOffset, nil
}

// Finish flushes both subordinate buffers' staging cursors, returning the
// index and vertex byte counts staged this frame.
func (g *GpuInputMainBuffers) Finish() (indexBytes, vertexBytes uint64, err error) {
	if indexBytes, err = g.Index.Finish(); err != nil {
		return 0, 0, err
	}
	if vertexBytes, err = g.Vertex.Finish(); err != nil {
		return 0, 0, err
	}
	return indexBytes, vertexBytes, nil
}

// Recall resets both subordinate buffers' write cursors for the next frame.
func (g *GpuInputMainBuffers) Recall() {
	g.Index.Recall()
	g.Vertex.Recall()
}

// GpuInputMainBuffersWithProps extends GpuInputMainBuffers with a third,
// separately-slotted buffer for the interleaved properties frame, for
// techniques whose VertexInput splits position (slot 0) from everything
// else (slot 1) per spec.md §4.4's vertex_split_slot policy. Mirrors the
// Rust original's GpuInputMainBuffersWithProps.
type GpuInputMainBuffersWithProps struct {
	Index       *GpuInputMainBuffer
	Vertex      *GpuInputMainBuffer
	VertexProps *GpuInputMainBuffer
}

// NewGpuInputMainBuffersWithProps wraps an already-constructed index/
// position/properties triple.
func NewGpuInputMainBuffersWithProps(index, vertex, vertexProps *GpuInputMainBuffer) *GpuInputMainBuffersWithProps {
	return &GpuInputMainBuffersWithProps{Index: index, Vertex: vertex, VertexProps: vertexProps}
}

// CopyStage stages indices, positions, and properties in that order,
// returning each call's write offset.
func (g *GpuInputMainBuffersWithProps) CopyStage(indices, vertices, vertexProps []byte) (indexOffset, vertexOffset, vertexPropsOffset uint64, err error) {
	indexOffset, err = g.Index.CopyStage(indices)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("streambuf: GpuInputMainBuffersWithProps.CopyStage: %w", err)
	}
	vertexOffset, err = g.Vertex.CopyStage(vertices)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("streambuf: GpuInputMainBuffersWithProps.CopyStage: %w", err)
	}
	vertexPropsOffset, err = g.VertexProps.CopyStage(vertexProps)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("streambuf: GpuInputMainBuffersWithProps.CopyStage: %w", err)
	}
	return indexOffset, vertexOffset, vertexPropsOffset, nil
}

// Finish flushes all three subordinate buffers' staging cursors.
func (g *GpuInputMainBuffersWithProps) Finish() (indexBytes, vertexBytes, vertexPropsBytes uint64, err error) {
	if indexBytes, err = g.Index.Finish(); err != nil {
		return 0, 0, 0, err
	}
	if vertexBytes, err = g.Vertex.Finish(); err != nil {
		return 0, 0, 0, err
	}
	if vertexPropsBytes, err = g.VertexProps.Finish(); err != nil {
		return 0, 0, 0, err
	}
	return indexBytes, vertexBytes, vertexPropsBytes, nil
}

// Recall resets all three subordinate buffers' write cursors for the next
// frame.
func (g *GpuInputMainBuffersWithProps) Recall() {
	g.Index.Recall()
	g.Vertex.Recall()
	g.VertexProps.Recall()
}
