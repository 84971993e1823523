package pipeline

import (
	"fmt"
	"image"
	"os"
)

// DefaultBackgroundColor is used when sampling fails.
const DefaultBackgroundColor = "#ddd"

// SampleBackgroundColor picks a representative background color by
// frequency among the image's border pixels. Ties break toward the
// color seen first while walking the border.
func SampleBackgroundColor(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", err
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return "", fmt.Errorf("empty image")
	}

	counts := make(map[string]int)
	var order []string

	sample := func(x, y int) {
		r, g, b, _ := img.At(x, y).RGBA()
		hex := fmt.Sprintf("#%02x%02x%02x", uint8(r>>8), uint8(g>>8), uint8(b>>8))
		if _, seen := counts[hex]; !seen {
			order = append(order, hex)
		}
		counts[hex]++
	}

	// Walk the border: top and bottom rows, then left and right columns
	// minus the corners already visited.
	for x := bounds.Min.X; x < bounds.Max.X; x++ {
		sample(x, bounds.Min.Y)
		if bounds.Dy() > 1 {
			sample(x, bounds.Max.Y-1)
		}
	}
	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		sample(bounds.Min.X, y)
		if bounds.Dx() > 1 {
			sample(bounds.Max.X-1, y)
		}
	}

	best := ""
	for _, hex := range order {
		if best == "" || counts[hex] > counts[best] {
			best = hex
		}
	}
	return best, nil
}
