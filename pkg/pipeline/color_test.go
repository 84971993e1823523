package pipeline

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writePNG renders a w×h image where fill covers everything and accent
// covers the first accentN border pixels of the top row.
func writePNG(t *testing.T, w, h int, fill, accent color.RGBA, accentN int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	for x := 0; x < accentN && x < w; x++ {
		img.Set(x, 0, accent)
	}

	path := filepath.Join(t.TempDir(), "source.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestSampleBackgroundColor_DominantBorder(t *testing.T) {
	sea := color.RGBA{R: 0x11, G: 0x22, B: 0x33, A: 0xff}
	land := color.RGBA{R: 0xaa, G: 0xbb, B: 0xcc, A: 0xff}
	path := writePNG(t, 16, 16, sea, land, 3)

	got, err := SampleBackgroundColor(path)
	require.NoError(t, err)
	assert.Equal(t, "#112233", got)
}

func TestSampleBackgroundColor_TieBreaksFirstSeen(t *testing.T) {
	// A 2x1 image: both pixels are border pixels, each color counted once.
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 0x01, G: 0x02, B: 0x03, A: 0xff})
	img.Set(1, 0, color.RGBA{R: 0x0a, G: 0x0b, B: 0x0c, A: 0xff})

	path := filepath.Join(t.TempDir(), "tie.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	f.Close()

	got, err := SampleBackgroundColor(path)
	require.NoError(t, err)
	assert.Equal(t, "#010203", got)
}

func TestSampleBackgroundColor_SinglePixel(t *testing.T) {
	c := color.RGBA{R: 0xdd, G: 0xdd, B: 0xdd, A: 0xff}
	path := writePNG(t, 1, 1, c, c, 0)

	got, err := SampleBackgroundColor(path)
	require.NoError(t, err)
	assert.Equal(t, "#dddddd", got)
}

func TestSampleBackgroundColor_MissingFile(t *testing.T) {
	_, err := SampleBackgroundColor(filepath.Join(t.TempDir(), "nope.png"))
	assert.Error(t, err)
}

func TestSampleBackgroundColor_NotAnImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	_, err := SampleBackgroundColor(path)
	assert.Error(t, err)
}
