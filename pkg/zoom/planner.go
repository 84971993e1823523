// Package zoom computes tile pyramid zoom ranges: the maximum useful
// zoom for an image, the split of the zoom range into an eager first
// batch plus deferred single-level batches, and the completion mask the
// catalog accumulates as batches finish.
package zoom

import "math/bits"

// baseTileShift encodes the 256px base tile size: an image of side
// 2^(z+8) pixels is fully resolved at zoom z.
const baseTileShift = 8

// PlannerConfig holds the planner's zoom constants.
type PlannerConfig struct {
	// GlobalMinZoom is the lowest zoom level every pyramid gets.
	GlobalMinZoom int

	// GlobalMaxZoom caps the pyramid regardless of image size.
	GlobalMaxZoom int

	// FirstBatchSpan is how many levels above GlobalMinZoom the eager
	// first batch covers.
	FirstBatchSpan int
}

// Batch is one contiguous zoom range processed as a single job.
type Batch struct {
	Lo    int
	Hi    int
	First bool
}

// Levels returns how many zoom levels the batch covers.
func (b Batch) Levels() int {
	return b.Hi - b.Lo + 1
}

// ComputeMaxZoom returns the highest zoom level worth cutting for an
// image of the given dimensions, capped at globalMax.
func ComputeMaxZoom(width, height, globalMax int) int {
	longest := width
	if height > longest {
		longest = height
	}
	if longest <= 0 {
		return 0
	}
	maxZoom := bits.Len(uint(longest)) - 1 - baseTileShift
	if maxZoom < 0 {
		maxZoom = 0
	}
	if maxZoom > globalMax {
		maxZoom = globalMax
	}
	return maxZoom
}

// Plan splits the zoom range for an image into an eager first batch and
// one deferred batch per remaining level. The emitted batches partition
// [GlobalMinZoom, maxZoom] with no gaps or overlaps. Zero-width images
// are rejected upstream by catalog validation, not here.
func Plan(width, height int, cfg PlannerConfig) []Batch {
	maxZoom := ComputeMaxZoom(width, height, cfg.GlobalMaxZoom)

	firstHi := cfg.GlobalMinZoom + cfg.FirstBatchSpan
	if firstHi > maxZoom {
		firstHi = maxZoom
	}

	batches := []Batch{{Lo: cfg.GlobalMinZoom, Hi: firstHi, First: true}}
	for level := firstHi + 1; level <= maxZoom; level++ {
		batches = append(batches, Batch{Lo: level, Hi: level})
	}
	return batches
}
