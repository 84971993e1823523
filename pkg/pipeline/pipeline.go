// Package pipeline orchestrates the per-job tile generation stages:
// fetching the source image, sampling its background color, cutting and
// optimizing tiles, uploading them to the object store, and keeping the
// catalog's completion mask in step.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Wikia/interactive-maps-sub000/pkg/core"
	"github.com/Wikia/interactive-maps-sub000/pkg/cutter"
	"github.com/Wikia/interactive-maps-sub000/pkg/objstore"
	"github.com/Wikia/interactive-maps-sub000/pkg/purge"
	"github.com/Wikia/interactive-maps-sub000/pkg/queue"
	"github.com/Wikia/interactive-maps-sub000/pkg/tileset"
	"github.com/Wikia/interactive-maps-sub000/pkg/zoom"
)

// Job types.
const (
	JobTypeFetch     = "fetch"
	JobTypeTileBatch = "tile-batch"
)

// FetchPayload starts a tiling request: download, measure, plan, fan out.
type FetchPayload struct {
	TileSetID uint   `json:"tileset_id"`
	Name      string `json:"name"`
	SourceURL string `json:"source_url"`
}

// BatchPayload carries everything a tile-batch job needs to resume the
// pipeline for one zoom span.
type BatchPayload struct {
	TileSetID uint   `json:"tileset_id"`
	Name      string `json:"name"`
	SourceURL string `json:"source_url"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	MinZoom   int    `json:"min_zoom"`
	Lo        int    `json:"lo"`
	Hi        int    `json:"hi"`
	First     bool   `json:"first"`
}

// StageError carries the failing stage's identity up to the queue.
type StageError struct {
	JobID string
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s (job %s): %v", e.Stage, e.JobID, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Config holds the orchestrator's knobs.
type Config struct {
	Planner zoom.PlannerConfig

	// WorkDir is the root under which per-job working directories live.
	WorkDir string

	// BucketPrefix derives the deterministic bucket name per catalog id.
	BucketPrefix string

	// TilePattern globs produced tiles relative to the batch output dir.
	TilePattern string

	// FetchConcurrency and BatchConcurrency bound concurrently active
	// jobs per type in one process.
	FetchConcurrency int
	BatchConcurrency int

	// FetchAttempts and BatchAttempts are the per-job attempt budgets.
	FetchAttempts int
	BatchAttempts int

	// BatchDelay holds deferred (non-first) batches back so low zoom
	// levels become servable before high ones are cut.
	BatchDelay time.Duration

	// OptimizeTiles gates the lossless recompression stage.
	OptimizeTiles bool

	// KeepWorkDirs skips cleanup, for debugging.
	KeepWorkDirs bool
}

// Orchestrator wires the planner, cutter, object store, catalog, and
// purge trigger into the queue's consumers. All collaborators are
// injected; there is no ambient global queue handle.
type Orchestrator struct {
	queue   *queue.Queue
	catalog *tileset.Catalog
	cutter  *cutter.Cutter
	store   *objstore.Client
	purger  *purge.Trigger
	config  Config
	logger  *slog.Logger
}

// New creates an orchestrator.
func New(q *queue.Queue, catalog *tileset.Catalog, cut *cutter.Cutter, store *objstore.Client, purger *purge.Trigger, config Config) *Orchestrator {
	if config.FetchConcurrency <= 0 {
		config.FetchConcurrency = 2
	}
	if config.BatchConcurrency <= 0 {
		config.BatchConcurrency = 2
	}
	if config.FetchAttempts <= 0 {
		config.FetchAttempts = 3
	}
	if config.BatchAttempts <= 0 {
		config.BatchAttempts = 3
	}
	if config.BatchDelay <= 0 {
		config.BatchDelay = time.Minute
	}
	if config.TilePattern == "" {
		config.TilePattern = objstore.DefaultTilePattern
	}
	return &Orchestrator{
		queue:   q,
		catalog: catalog,
		cutter:  cut,
		store:   store,
		purger:  purger,
		config:  config,
		logger:  slog.Default(),
	}
}

// Register wires the orchestrator's consumers and its terminal-failure
// compensation into the queue. The fail hook, unlike a per-job observer,
// survives process restarts because it is re-registered at startup.
func (o *Orchestrator) Register() {
	o.queue.Consume(JobTypeFetch, o.config.FetchConcurrency, o.handleFetch)
	o.queue.Consume(JobTypeTileBatch, o.config.BatchConcurrency, o.handleBatch)
	o.queue.OnJobFail(o.compensate)
}

// RequestTiling accepts a tiling request: it creates the catalog stub
// and enqueues the fetch job that will plan and fan out the batches.
func (o *Orchestrator) RequestTiling(ctx context.Context, name, sourceURL string) (uint, *queue.Handle, error) {
	id, err := o.catalog.InsertStub(ctx, name, sourceURL)
	if err != nil {
		return 0, nil, fmt.Errorf("pipeline: insert stub: %w", err)
	}

	handle, err := o.queue.Enqueue(ctx, JobTypeFetch,
		FetchPayload{TileSetID: id, Name: name, SourceURL: sourceURL},
		queue.Priority(core.PriorityHigh),
		queue.Attempts(o.config.FetchAttempts),
		queue.Unique(fmt.Sprintf("fetch:%d", id)),
	)
	if err != nil {
		// The stub must not outlive a request that never got queued.
		if delErr := o.catalog.DeleteStub(ctx, id); delErr != nil {
			o.logger.Error("failed to delete stub after enqueue error", "tileset_id", id, "error", delErr)
		}
		return 0, nil, err
	}
	return id, handle, nil
}

// BucketName derives the bucket for a catalog id. Deterministic so
// retried batches land in the same bucket.
func (o *Orchestrator) BucketName(catalogID uint) string {
	return fmt.Sprintf("%s_%d", o.config.BucketPrefix, catalogID)
}

// compensate runs on terminal job failure. Losing the fetch job or the
// mandatory first batch deletes the stub so no partially-configured
// tile set is ever user-visible. A later batch's loss leaves the catalog
// as-is; that zoom range simply stays unavailable.
func (o *Orchestrator) compensate(ctx context.Context, job *core.Job, jobErr error) {
	var tileSetID uint
	var first bool

	switch job.Type {
	case JobTypeFetch:
		var p FetchPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			o.logger.Error("cannot decode failed fetch payload", "job_id", job.ID, "error", err)
			return
		}
		tileSetID, first = p.TileSetID, true
	case JobTypeTileBatch:
		var p BatchPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			o.logger.Error("cannot decode failed batch payload", "job_id", job.ID, "error", err)
			return
		}
		tileSetID, first = p.TileSetID, p.First
	default:
		return
	}

	if !first {
		o.logger.Error("tile batch lost, zoom range stays unavailable",
			"job_id", job.ID, "tileset_id", tileSetID, "error", jobErr)
		return
	}

	o.logger.Error("first batch lost, removing catalog stub",
		"job_id", job.ID, "tileset_id", tileSetID, "error", jobErr)
	if err := o.catalog.DeleteStub(ctx, tileSetID); err != nil {
		o.logger.Error("failed to delete stub", "tileset_id", tileSetID, "error", err)
	}
}
