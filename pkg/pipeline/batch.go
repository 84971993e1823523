package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/Wikia/interactive-maps-sub000/pkg/jobctx"
	"github.com/Wikia/interactive-maps-sub000/pkg/objstore"
	"github.com/Wikia/interactive-maps-sub000/pkg/zoom"
)

// batchContext flows through the tile-batch stages. Each stage reads
// what earlier stages produced and adds its own results.
type batchContext struct {
	payload BatchPayload
	jobID   string

	workDir   string
	tilesDir  string
	imagePath string

	backgroundColor string
	session         *objstore.Session
}

// stage is one step of the tile-batch pipeline. Errors from best-effort
// stages are logged and swallowed; everything else short-circuits the
// chain as a StageError.
type stage struct {
	name       string
	bestEffort bool
	run        func(ctx context.Context, bc *batchContext) error
}

// handleBatch runs the full per-batch pipeline for one zoom span.
func (o *Orchestrator) handleBatch(ctx context.Context, p BatchPayload) error {
	jobID := jobctx.JobIDFromContext(ctx)
	bc := &batchContext{
		payload:  p,
		jobID:    jobID,
		workDir:  filepath.Join(o.config.WorkDir, jobID),
		tilesDir: filepath.Join(o.config.WorkDir, jobID, fmt.Sprintf("tiles_%d_%d", p.Lo, p.Hi)),
	}

	stages := []stage{
		{name: "fetch", run: o.stageFetch},
		{name: "colorSample", bestEffort: true, run: o.stageColorSample},
		{name: "tile", run: o.stageTile},
		{name: "optimize", bestEffort: true, run: o.stageOptimize},
		{name: "upload", run: o.stageUpload},
		{name: "cleanup", bestEffort: true, run: o.stageCleanup},
		{name: "catalog", run: o.stageCatalogUpdate},
		{name: "purge", bestEffort: true, run: o.stagePurge},
	}

	for _, s := range stages {
		if err := s.run(ctx, bc); err != nil {
			if s.bestEffort {
				o.logger.Warn("best-effort stage failed",
					"stage", s.name, "job_id", jobID, "tileset_id", p.TileSetID, "error", err)
				continue
			}
			return &StageError{JobID: jobID, Stage: s.name, Err: err}
		}
	}

	o.logger.Info("batch complete",
		"job_id", jobID, "tileset_id", p.TileSetID, "zoom_lo", p.Lo, "zoom_hi", p.Hi, "first", p.First)
	return nil
}

// stageFetch downloads a working copy of the source image. Each batch
// gets its own directory keyed by job id, so concurrent batches of the
// same image never collide.
func (o *Orchestrator) stageFetch(ctx context.Context, bc *batchContext) error {
	path, err := o.download(ctx, bc.payload.SourceURL, bc.workDir)
	if err != nil {
		return err
	}
	bc.imagePath = path
	return nil
}

// stageColorSample picks the representative background color from the
// image border. First batch only; later batches inherit whatever the
// activation wrote. Failures fall back to the default color instead of
// failing the job.
func (o *Orchestrator) stageColorSample(_ context.Context, bc *batchContext) error {
	if !bc.payload.First {
		return nil
	}
	color, err := SampleBackgroundColor(bc.imagePath)
	if err != nil {
		bc.backgroundColor = DefaultBackgroundColor
		return err
	}
	bc.backgroundColor = color
	return nil
}

// stageTile invokes the external cutter for this batch's zoom span.
func (o *Orchestrator) stageTile(ctx context.Context, bc *batchContext) error {
	return o.cutter.Cut(ctx, bc.imagePath, bc.tilesDir, bc.payload.Lo, bc.payload.Hi)
}

// stageOptimize losslessly recompresses the produced tiles. Gated by
// config and best-effort either way.
func (o *Orchestrator) stageOptimize(ctx context.Context, bc *batchContext) error {
	if !o.config.OptimizeTiles {
		return nil
	}
	return optimizeTiles(ctx, bc.tilesDir, o.config.TilePattern)
}

// stageUpload authenticates, provisions the bucket on the first batch,
// and runs the parallel upload. Any file failure fails the stage so the
// whole batch retries; the object store client never aborts siblings.
func (o *Orchestrator) stageUpload(ctx context.Context, bc *batchContext) error {
	sess, err := o.store.Authenticate(ctx)
	if err != nil {
		return err
	}
	bc.session = sess

	bucket := o.BucketName(bc.payload.TileSetID)
	if bc.payload.First {
		if err := o.store.EnsureBucket(ctx, sess, bucket); err != nil {
			return err
		}
	}

	report, err := o.store.UploadDir(ctx, sess, bucket, bc.tilesDir, o.config.TilePattern)
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d tile uploads failed", report.Failed, report.Failed+report.Uploaded)
	}
	if report.Uploaded == 0 {
		return fmt.Errorf("cutter produced no tiles matching %q", o.config.TilePattern)
	}
	return nil
}

// stageCleanup deletes the working copy and tile output. Must never
// block the catalog update.
func (o *Orchestrator) stageCleanup(_ context.Context, bc *batchContext) error {
	o.cleanup(bc.workDir)
	return nil
}

// stageCatalogUpdate is the activation on the first batch and a mask
// accumulation on every later one. The mask is OR'd in SQL, never
// overwritten, because batches complete out of order.
func (o *Orchestrator) stageCatalogUpdate(ctx context.Context, bc *batchContext) error {
	mask := zoom.MaskForRange(bc.payload.Lo, bc.payload.Hi)
	if bc.payload.First {
		color := bc.backgroundColor
		if color == "" {
			color = DefaultBackgroundColor
		}
		return o.catalog.Activate(ctx, bc.payload.TileSetID,
			bc.payload.Width, bc.payload.Height, bc.payload.MinZoom, color, mask)
	}
	return o.catalog.AccumulateMask(ctx, bc.payload.TileSetID, mask)
}

// stagePurge fires the cache invalidation trigger. Fire-and-forget;
// delivery failures are the trigger's problem, not the pipeline's.
func (o *Orchestrator) stagePurge(_ context.Context, bc *batchContext) error {
	o.purger.Fire(bc.payload.TileSetID)
	return nil
}
