package zoom

// Mask records which zoom levels of a pyramid have finished tiling.
// Bit i set means level i is servable. Batches complete out of order, so
// the catalog accumulates masks with bitwise OR; OR is idempotent, which
// makes duplicate batch completions harmless.
type Mask uint64

// MaskForRange returns the mask with bits lo through hi set.
func MaskForRange(lo, hi int) Mask {
	var m Mask
	for level := lo; level <= hi; level++ {
		m |= 1 << uint(level)
	}
	return m
}

// Merge returns the union of two masks.
func (m Mask) Merge(other Mask) Mask {
	return m | other
}

// Has reports whether the given zoom level is complete.
func (m Mask) Has(level int) bool {
	return m&(1<<uint(level)) != 0
}

// HighestContiguous returns the highest level h such that every level
// from minZoom through h is complete, or minZoom-1 if minZoom itself is
// missing. Consumers serve the pyramid up to this level and degrade to
// it when higher levels are still being produced.
func (m Mask) HighestContiguous(minZoom int) int {
	level := minZoom
	for m.Has(level) {
		level++
	}
	return level - 1
}
