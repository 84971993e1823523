package pipeline

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
)

// optimizeTiles losslessly recompresses every produced PNG tile at the
// encoder's best compression level. Entirely best-effort: a tile that
// fails to recompress keeps its original bytes, and the first error is
// returned only so the caller can log it.
func optimizeTiles(ctx context.Context, tilesDir, pattern string) error {
	files, err := filepath.Glob(filepath.Join(tilesDir, pattern))
	if err != nil {
		return fmt.Errorf("glob %s: %w", pattern, err)
	}

	var firstErr error
	for _, file := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if filepath.Ext(file) != ".png" {
			continue
		}
		if err := recompressPNG(file); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", file, err)
		}
	}
	return firstErr
}

func recompressPNG(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	img, err := png.Decode(f)
	f.Close()
	if err != nil {
		return err
	}

	tmp := path + ".opt"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(out, img); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	// Keep the smaller of the two encodings.
	origInfo, err := os.Stat(path)
	if err != nil {
		os.Remove(tmp)
		return err
	}
	optInfo, err := os.Stat(tmp)
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if optInfo.Size() >= origInfo.Size() {
		return os.Remove(tmp)
	}
	return os.Rename(tmp, path)
}
