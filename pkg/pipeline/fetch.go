package pipeline

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"

	// Decoders for the source formats the catalog accepts.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/Wikia/interactive-maps-sub000/pkg/core"
	"github.com/Wikia/interactive-maps-sub000/pkg/jobctx"
	"github.com/Wikia/interactive-maps-sub000/pkg/queue"
	"github.com/Wikia/interactive-maps-sub000/pkg/zoom"
)

// handleFetch is the "fetch" job: download the source image, measure it,
// ask the planner for the batch split, and fan the batches out as
// tile-batch jobs. The first batch goes out eagerly at medium priority;
// the remaining levels are enqueued low-priority and delayed.
func (o *Orchestrator) handleFetch(ctx context.Context, p FetchPayload) error {
	jobID := jobctx.JobIDFromContext(ctx)
	workDir := filepath.Join(o.config.WorkDir, jobID)
	defer o.cleanup(workDir)

	imagePath, err := o.download(ctx, p.SourceURL, workDir)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", p.SourceURL, err)
	}

	width, height, err := imageDimensions(imagePath)
	if err != nil {
		return fmt.Errorf("measure %s: %w", imagePath, err)
	}

	batches := zoom.Plan(width, height, o.config.Planner)
	o.logger.Info("planned zoom batches",
		"tileset_id", p.TileSetID, "width", width, "height", height, "batches", len(batches))

	for _, b := range batches {
		payload := BatchPayload{
			TileSetID: p.TileSetID,
			Name:      p.Name,
			SourceURL: p.SourceURL,
			Width:     width,
			Height:    height,
			MinZoom:   o.config.Planner.GlobalMinZoom,
			Lo:        b.Lo,
			Hi:        b.Hi,
			First:     b.First,
		}

		opts := []queue.Option{
			queue.Attempts(o.config.BatchAttempts),
			queue.Unique(fmt.Sprintf("batch:%d:%d-%d", p.TileSetID, b.Lo, b.Hi)),
		}
		if b.First {
			opts = append(opts, queue.Priority(core.PriorityMedium))
		} else {
			opts = append(opts, queue.Priority(core.PriorityLow), queue.Delay(o.config.BatchDelay))
		}

		if _, err := o.queue.Enqueue(ctx, JobTypeTileBatch, payload, opts...); err != nil {
			return fmt.Errorf("enqueue batch %d-%d: %w", b.Lo, b.Hi, err)
		}
	}
	return nil
}

// download fetches the source image into the working directory and
// returns the local path. Network and IO failures are retryable through
// the job's attempts.
func (o *Orchestrator) download(ctx context.Context, sourceURL, workDir string) (string, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("source returned %d", resp.StatusCode)
	}

	path := filepath.Join(workDir, "source"+sourceExt(sourceURL))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func sourceExt(sourceURL string) string {
	ext := filepath.Ext(sourceURL)
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif":
		return ext
	}
	return ".png"
}

// imageDimensions reads just the image header.
func imageDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// cleanup removes a working directory. Failures must not block the
// pipeline; they are logged and the directory leaks until the next
// operator sweep.
func (o *Orchestrator) cleanup(dir string) {
	if o.config.KeepWorkDirs {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		o.logger.Warn("cleanup failed", "dir", dir, "error", err)
	}
}
