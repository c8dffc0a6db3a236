package material

// SortKey packs the four draw-ordering fields spec.md §4.6 calls for into one
// u64, high bits first: zorder, then shader id, then PSO id, then the
// low 16 bits of the material id. Sorting a bucket's objects by this key
// groups draws by depth layer first, then by shader, then by pipeline, and
// finally by material instance — minimizing pipeline/bind-group rebinds
// within a layer.
func SortKey(zorder uint8, shaderID uint8, psoID uint32, matID MaterialID) uint64 {
	return uint64(zorder)<<56 |
		uint64(shaderID)<<48 |
		uint64(psoID)<<16 |
		uint64(matID)&0xFFFF
}
