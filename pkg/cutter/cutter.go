package cutter

import (
	"context"
	"fmt"
)

// Cutter wraps the external tile-cutting binary. A non-zero exit is a
// hard failure for the batch. Two batches of the same image must never
// share an output directory; callers derive a distinct directory per
// batch.
type Cutter struct {
	binary string
	runner Runner
}

// New creates a Cutter invoking the given binary.
func New(binary string, runner Runner) *Cutter {
	if runner == nil {
		runner = NewExecRunner()
	}
	return &Cutter{binary: binary, runner: runner}
}

// Cut tiles the source image for the zoom range [lo, hi] into outDir.
// The raster profile and resampling-off flag keep the tool from
// reprojecting or upscaling beyond the source resolution.
func (c *Cutter) Cut(ctx context.Context, imagePath, outDir string, lo, hi int) error {
	args := []string{
		"--profile=raster",
		fmt.Sprintf("--zoom=%d-%d", lo, hi),
		"--resampling=none",
		imagePath,
		outDir,
	}

	_, stderr, err := c.runner.Run(ctx, c.binary, args...)
	if err != nil {
		return fmt.Errorf("cutter: %s zoom %d-%d: %w (stderr: %s)",
			c.binary, lo, hi, err, truncate(string(stderr), 512))
	}
	return nil
}
