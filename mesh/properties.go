// Package mesh implements the mesh data model and the interleaved vertex
// property builder described in spec.md §3/§4.2: PropertiesBuilder packs
// typed per-vertex attributes into a single row-major byte buffer, which
// MeshBuilder then combines with positions and indices into an immutable
// Mesh consumed as GPU vertex input.
package mesh

import (
	"fmt"
	"log"

	"github.com/kadds/gstudy-sub000/common"
)

// PropertyOffset describes where a registered property key lives within one
// row of a PropertiesFrame: its byte offset and byte length.
type PropertyOffset struct {
	Offset int
	Length int
}

// PropertiesFrame is an interleaved, row-major byte buffer of typed per-vertex
// properties, keyed by K (typically a small enum of property kinds such as
// position/normal/uv/color). See spec.md §3 for the invariants this type
// must uphold:
//
//	offset[K].Offset + offset[K].Length <= RowStride
//	len(Data) == RowStride * Count
type PropertiesFrame[K comparable] struct {
	data         []byte
	rowStride    int
	count        int
	order        []K
	offsets      map[K]PropertyOffset
	maxAlignment int
}

// RowStride returns the byte size of one row.
func (f *PropertiesFrame[K]) RowStride() int { return f.rowStride }

// Count returns the number of rows (vertices) in the frame.
func (f *PropertiesFrame[K]) Count() int { return f.count }

// Data returns the raw interleaved byte buffer, length RowStride()*Count().
func (f *PropertiesFrame[K]) Data() []byte { return f.data }

// Keys returns the registered property keys in insertion order.
func (f *PropertiesFrame[K]) Keys() []K {
	out := make([]K, len(f.order))
	copy(out, f.order)
	return out
}

// Offset returns the (offset, length) pair for a registered key.
func (f *PropertiesFrame[K]) Offset(key K) (PropertyOffset, bool) {
	off, ok := f.offsets[key]
	return off, ok
}

// MaxAlignment returns the largest per-key alignment seen during build. This
// module follows the "packed" resolution of spec.md §9 Open Question 1: rows
// are packed back-to-back in insertion order with no per-key padding, so
// MaxAlignment is tracked for diagnostic purposes only and never changes
// RowStride. See SPEC_FULL.md §E.1.
func (f *PropertiesFrame[K]) MaxAlignment() int { return f.maxAlignment }

// Row returns the raw bytes of row i.
func (f *PropertiesFrame[K]) Row(i int) []byte {
	return f.data[i*f.rowStride : (i+1)*f.rowStride]
}

// PropertyBytes returns the bytes of key within row i.
func (f *PropertiesFrame[K]) PropertyBytes(key K, i int) ([]byte, bool) {
	off, ok := f.offsets[key]
	if !ok {
		return nil, false
	}
	row := f.Row(i)
	return row[off.Offset : off.Offset+off.Length], true
}

// PropertiesBuilder accumulates typed per-vertex property data and, on
// Build(), finalizes it into a PropertiesFrame. Keys must be registered with
// AddProperty before any AddPropertyData/AddRawData call; the first such call
// locks in the row layout per the Finish policy in spec.md §4.2.
type PropertiesBuilder[K comparable] struct {
	order      []K
	sizes      map[K]int
	alignments map[K]int
	offsets    map[K]PropertyOffset
	rowStride  int
	maxAlign   int
	locked     bool

	rows          [][]byte
	writtenCounts map[K]int
}

// NewPropertiesBuilder creates an empty builder.
func NewPropertiesBuilder[K comparable]() *PropertiesBuilder[K] {
	return &PropertiesBuilder[K]{
		sizes:         make(map[K]int),
		alignments:    make(map[K]int),
		offsets:       make(map[K]PropertyOffset),
		writtenCounts: make(map[K]int),
	}
}

// AddProperty registers a property key with its per-element byte size and
// natural alignment. Must be called before any AddPropertyData/AddRawData
// call for this builder; panics otherwise.
func (b *PropertiesBuilder[K]) AddProperty(key K, size, alignment int) {
	if b.locked {
		panic(fmt.Sprintf("mesh: AddProperty(%v) called after row layout was finalized by the first data write", key))
	}
	if _, exists := b.sizes[key]; exists {
		return
	}
	b.order = append(b.order, key)
	b.sizes[key] = size
	if alignment <= 0 {
		alignment = 1
	}
	b.alignments[key] = alignment
}

func (b *PropertiesBuilder[K]) finishLayout() {
	if b.locked {
		return
	}
	offset := 0
	maxAlign := 1
	for _, key := range b.order {
		size := b.sizes[key]
		b.offsets[key] = PropertyOffset{Offset: offset, Length: size}
		offset += size
		if a := b.alignments[key]; a > maxAlign {
			maxAlign = a
		}
	}
	b.rowStride = offset
	b.maxAlign = maxAlign
	b.locked = true
}

// AddPropertyData writes len(rows) values of key's property, starting at the
// first row key has not been written to yet and adding rows as needed.
// T's size must exactly match the size registered for key via AddProperty;
// panics otherwise, per spec.md §4.2.
func AddPropertyData[K comparable, T any](b *PropertiesBuilder[K], key K, rows []T) {
	b.finishLayout()

	size, ok := b.sizes[key]
	if !ok {
		panic(fmt.Sprintf("mesh: AddPropertyData for unregistered key %v", key))
	}
	tSize := int(common.SizeOf[T]())
	if tSize != size {
		panic(fmt.Sprintf("mesh: AddPropertyData(%v): sizeof(T)=%d does not match registered length %d", key, tSize, size))
	}

	off := b.offsets[key]
	raw := common.SliceToBytes(rows)
	start := b.writtenCounts[key]
	for i := range rows {
		r := start + i
		for len(b.rows) <= r {
			b.rows = append(b.rows, make([]byte, b.rowStride))
		}
		copy(b.rows[r][off.Offset:off.Offset+off.Length], raw[i*tSize:(i+1)*tSize])
	}
	b.writtenCounts[key] += len(rows)
}

// AddRawData appends pre-interleaved rows. len(data) must be a multiple of
// the finalized RowStride.
func (b *PropertiesBuilder[K]) AddRawData(data []byte) {
	b.finishLayout()
	if b.rowStride == 0 {
		if len(data) != 0 {
			panic("mesh: AddRawData called with non-empty data but no properties registered")
		}
		return
	}
	if len(data)%b.rowStride != 0 {
		panic(fmt.Sprintf("mesh: AddRawData: len(data)=%d is not a multiple of row_stride=%d", len(data), b.rowStride))
	}
	for off := 0; off < len(data); off += b.rowStride {
		row := make([]byte, b.rowStride)
		copy(row, data[off:off+b.rowStride])
		b.rows = append(b.rows, row)
	}
}

// Build finalizes the builder into an immutable PropertiesFrame. If per-key
// written counts differ (some AddPropertyData calls wrote more rows for one
// key than another), a diagnostic is logged — the build still succeeds using
// the row count actually accumulated.
func (b *PropertiesBuilder[K]) Build() *PropertiesFrame[K] {
	b.finishLayout()

	if len(b.order) > 0 {
		first := b.writtenCounts[b.order[0]]
		for _, key := range b.order[1:] {
			if b.writtenCounts[key] != first {
				log.Printf("mesh: PropertiesBuilder.Build: property %v wrote %d rows, expected %d (first key's count) — frame may be malformed",
					key, b.writtenCounts[key], first)
			}
		}
	}

	data := make([]byte, 0, len(b.rows)*b.rowStride)
	for _, row := range b.rows {
		data = append(data, row...)
	}

	offsets := make(map[K]PropertyOffset, len(b.offsets))
	for k, v := range b.offsets {
		offsets[k] = v
	}
	order := make([]K, len(b.order))
	copy(order, b.order)

	return &PropertiesFrame[K]{
		data:         data,
		rowStride:    b.rowStride,
		count:        len(b.rows),
		order:        order,
		offsets:      offsets,
		maxAlignment: b.maxAlign,
	}
}

// ErrOutOfRange is returned by PropertiesUpdater when the requested row range
// exceeds the frame's row count.
var ErrOutOfRange = fmt.Errorf("mesh: row range out of bounds")

// PropertiesUpdater performs in-place mutation of an already-built
// PropertiesFrame. It uses the same packed offsets PropertiesBuilder
// computed, so the two stay consistent per SPEC_FULL.md §E.1.
type PropertiesUpdater[K comparable] struct {
	frame *PropertiesFrame[K]
}

// NewPropertiesUpdater wraps a built frame for in-place updates.
func NewPropertiesUpdater[K comparable](frame *PropertiesFrame[K]) *PropertiesUpdater[K] {
	return &PropertiesUpdater[K]{frame: frame}
}

// Update overwrites count rows of property key starting at rowIndex with the
// bytes in data (len(data) must equal count*propertyLength). Fails
// ErrOutOfRange if rowIndex+count exceeds the frame's row count.
func (u *PropertiesUpdater[K]) Update(key K, rowIndex, count int, data []byte) error {
	f := u.frame
	if rowIndex+count > f.count {
		return ErrOutOfRange
	}
	off, ok := f.offsets[key]
	if !ok {
		return fmt.Errorf("mesh: PropertiesUpdater.Update: unknown key %v", key)
	}
	if len(data) != count*off.Length {
		return fmt.Errorf("mesh: PropertiesUpdater.Update: data length %d does not match count*length=%d", len(data), count*off.Length)
	}
	for i := 0; i < count; i++ {
		row := f.Row(rowIndex + i)
		copy(row[off.Offset:off.Offset+off.Length], data[i*off.Length:(i+1)*off.Length])
	}
	return nil
}
