// Command tilerd runs the tile generation service: the job queue's
// supervisor, the pipeline consumers, and a small health endpoint
// exposing queue depth.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Wikia/interactive-maps-sub000/pkg/config"
	"github.com/Wikia/interactive-maps-sub000/pkg/core"
	"github.com/Wikia/interactive-maps-sub000/pkg/cutter"
	"github.com/Wikia/interactive-maps-sub000/pkg/objstore"
	"github.com/Wikia/interactive-maps-sub000/pkg/pipeline"
	"github.com/Wikia/interactive-maps-sub000/pkg/purge"
	"github.com/Wikia/interactive-maps-sub000/pkg/queue"
	"github.com/Wikia/interactive-maps-sub000/pkg/storage"
	"github.com/Wikia/interactive-maps-sub000/pkg/tileset"
	"github.com/Wikia/interactive-maps-sub000/pkg/worker"
	"github.com/Wikia/interactive-maps-sub000/pkg/zoom"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	if err := run(cfg); err != nil {
		slog.Error("tilerd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(sqlite.Open(cfg.Database.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return err
	}

	store := storage.NewGormStorage(db)
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	catalog := tileset.NewCatalog(db)
	if err := catalog.Migrate(ctx); err != nil {
		return err
	}

	q := queue.New(store)

	orch := pipeline.New(
		q,
		catalog,
		cutter.New(cfg.Cutter.Binary, nil),
		objstore.New(objstore.Config{
			AuthURL: cfg.Store.AuthURL,
			User:    cfg.Store.User,
			Key:     cfg.Store.Key,
			Timeout: cfg.Store.Timeout,
		}),
		purge.New(cfg.Purge.Endpoint, cfg.Purge.Prefix),
		pipeline.Config{
			Planner: zoom.PlannerConfig{
				GlobalMinZoom:  cfg.Zoom.GlobalMinZoom,
				GlobalMaxZoom:  cfg.Zoom.GlobalMaxZoom,
				FirstBatchSpan: cfg.Zoom.FirstBatchSpan,
			},
			WorkDir:          cfg.Cutter.WorkDir,
			BucketPrefix:     cfg.Store.BucketPrefix,
			FetchConcurrency: cfg.Queue.FetchConcurrency,
			BatchConcurrency: cfg.Queue.BatchConcurrency,
			FetchAttempts:    cfg.Queue.FetchAttempts,
			BatchAttempts:    cfg.Queue.BatchAttempts,
			BatchDelay:       cfg.Queue.BatchDelay,
			OptimizeTiles:    cfg.Cutter.OptimizeTiles,
			KeepWorkDirs:     cfg.Cutter.KeepWorkDirs,
		},
	)
	orch.Register()

	go serveHealth(cfg.Server.HealthAddr, q)

	sup := worker.NewSupervisor(q, worker.SupervisorConfig{
		Workers:             cfg.Queue.Workers,
		PromoteInterval:     cfg.Queue.PromoteInterval,
		StaleAfter:          cfg.Queue.StaleAfter,
		PurgeCompletedAfter: cfg.Queue.PurgeCompletedAfter,
	})

	slog.Info("tilerd started", "db", cfg.Database.Path, "health", cfg.Server.HealthAddr)
	return sup.Run(ctx)
}

// serveHealth exposes queue depth per job state.
func serveHealth(addr string, q *queue.Queue) {
	e := echo.New()
	e.HideBanner = true

	e.GET("/healthz", func(c echo.Context) error {
		depths := map[string]int64{}
		for _, status := range []core.JobStatus{
			core.StatusDelayed, core.StatusQueued, core.StatusActive,
			core.StatusCompleted, core.StatusFailed,
		} {
			n, err := q.CountByState(c.Request().Context(), status)
			if err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			}
			depths[string(status)] = n
		}
		return c.JSON(http.StatusOK, depths)
	})

	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		slog.Error("health server stopped", "error", err)
	}
}
