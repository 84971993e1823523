package zoom

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskForRange(t *testing.T) {
	m := MaskForRange(0, 3)
	assert.Equal(t, Mask(0b1111), m)

	m = MaskForRange(4, 4)
	assert.Equal(t, Mask(0b10000), m)
}

func TestMask_MergeIsCommutativeAndIdempotent(t *testing.T) {
	ranges := [][2]int{{0, 3}, {4, 4}, {5, 5}, {6, 8}}

	// Apply in several shuffled orders; the final mask never changes.
	var want Mask
	for _, r := range ranges {
		want = want.Merge(MaskForRange(r[0], r[1]))
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([][2]int{}, ranges...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		var got Mask
		for _, r := range shuffled {
			got = got.Merge(MaskForRange(r[0], r[1]))
		}
		assert.Equal(t, want, got)
	}

	// A duplicate completion is a no-op.
	assert.Equal(t, want, want.Merge(MaskForRange(4, 4)))
}

func TestMask_HighestContiguous(t *testing.T) {
	var m Mask
	m = m.Merge(MaskForRange(0, 3))
	assert.Equal(t, 3, m.HighestContiguous(0))

	// Level 5 done but 4 missing: still 3.
	m = m.Merge(MaskForRange(5, 5))
	assert.Equal(t, 3, m.HighestContiguous(0))

	// Filling the gap extends the servable range to 5.
	m = m.Merge(MaskForRange(4, 4))
	assert.Equal(t, 5, m.HighestContiguous(0))
}

func TestMask_HighestContiguousEmptyMask(t *testing.T) {
	var m Mask
	assert.Equal(t, -1, m.HighestContiguous(0))
	assert.Equal(t, 1, m.HighestContiguous(2))
}

func TestMask_Has(t *testing.T) {
	m := MaskForRange(2, 4)
	assert.False(t, m.Has(1))
	assert.True(t, m.Has(2))
	assert.True(t, m.Has(4))
	assert.False(t, m.Has(5))
}
