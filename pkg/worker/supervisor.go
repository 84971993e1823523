package worker

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Wikia/interactive-maps-sub000/pkg/queue"
	"github.com/Wikia/interactive-maps-sub000/pkg/schedule"
)

// SupervisorConfig holds supervisor configuration.
type SupervisorConfig struct {
	// Workers is the number of workers to fan out. Defaults to the CPU
	// core count.
	Workers int

	// PromoteInterval is how often delayed jobs are promoted.
	PromoteInterval time.Duration

	// StaleAfter is how long past its lease an active job may sit before
	// being reclaimed. Covers jobs orphaned by a crashed worker.
	StaleAfter time.Duration

	// PurgeCompletedAfter drops completed job rows older than this during
	// the nightly purge. Zero disables purging.
	PurgeCompletedAfter time.Duration

	// WorkerOptions are applied to every spawned worker.
	WorkerOptions []WorkerOption
}

// Supervisor fans out workers over one queue, runs the promotion and
// reclaim loops, respawns crashed workers, and re-queues in-flight jobs
// on shutdown so a restart picks them up again.
type Supervisor struct {
	queue    *queue.Queue
	config   SupervisorConfig
	logger   *slog.Logger
	stopping atomic.Bool
}

// NewSupervisor creates a supervisor for the given queue.
func NewSupervisor(q *queue.Queue, config SupervisorConfig) *Supervisor {
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.PromoteInterval <= 0 {
		config.PromoteInterval = queue.DefaultPromoteInterval
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = 10 * time.Minute
	}
	return &Supervisor{
		queue:  q,
		config: config,
		logger: slog.Default(),
	}
}

// Run starts the workers and maintenance loops and blocks until ctx is
// cancelled. On cancellation it waits for the workers to stop, then
// forces every still-active job back to delayed so the promotion loop
// re-runs it after restart. At-least-once, not exactly-once.
func (s *Supervisor) Run(ctx context.Context) error {
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go s.superviseWorker(workerCtx, &wg, i)
	}

	go s.runMaintenance(workerCtx)

	<-ctx.Done()
	s.stopping.Store(true)
	s.logger.Info("shutting down", "workers", s.config.Workers)

	cancelWorkers()
	wg.Wait()

	// Workers are gone; re-queue whatever was still active. Use a fresh
	// context because ctx is already cancelled.
	requeueCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := s.queue.Storage().RequeueActive(requeueCtx)
	if err != nil {
		s.logger.Error("failed to re-queue active jobs on shutdown", "error", err)
		return err
	}
	s.logger.Info("re-queued active jobs for restart", "count", n)
	return nil
}

// superviseWorker runs one worker and respawns it if it crashes, unless
// shutdown is in progress.
func (s *Supervisor) superviseWorker(ctx context.Context, wg *sync.WaitGroup, slot int) {
	defer wg.Done()

	for {
		if ctx.Err() != nil || s.stopping.Load() {
			return
		}

		err := s.runWorkerOnce(ctx, slot)
		if ctx.Err() != nil || s.stopping.Load() {
			return
		}
		s.logger.Error("worker exited, respawning", "slot", slot, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (s *Supervisor) runWorkerOnce(ctx context.Context, slot int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("worker panicked", "slot", slot, "panic", r)
		}
	}()

	w := NewWorker(s.queue, s.config.WorkerOptions...)
	s.logger.Info("worker started", "slot", slot, "worker_id", w.ID())
	return w.Start(ctx)
}

// runMaintenance drives the promotion loop, the stale-lock reclaim, and
// the nightly purge of completed jobs.
func (s *Supervisor) runMaintenance(ctx context.Context) {
	promote := schedule.Every(s.config.PromoteInterval)
	reclaim := schedule.Every(s.config.StaleAfter / 2)
	purge := schedule.Daily(3, 0)

	nextPromote := promote.Next(time.Now())
	nextReclaim := reclaim.Next(time.Now())
	nextPurge := purge.Next(time.Now())

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()

			if now.After(nextPromote) {
				nextPromote = promote.Next(now)
				if n, err := s.queue.Promote(ctx); err != nil {
					s.logger.Error("promotion failed", "error", err)
				} else if n > 0 {
					s.logger.Debug("promoted delayed jobs", "count", n)
				}
			}

			if now.After(nextReclaim) {
				nextReclaim = reclaim.Next(now)
				if n, err := s.queue.Storage().ReleaseStaleLocks(ctx, s.config.StaleAfter); err != nil {
					s.logger.Error("stale lock reclaim failed", "error", err)
				} else if n > 0 {
					s.logger.Warn("reclaimed stuck jobs", "count", n)
				}
			}

			if s.config.PurgeCompletedAfter > 0 && now.After(nextPurge) {
				nextPurge = purge.Next(now)
				cutoff := now.Add(-s.config.PurgeCompletedAfter)
				if n, err := s.queue.Storage().DeleteCompletedBefore(ctx, cutoff); err != nil {
					s.logger.Error("completed-job purge failed", "error", err)
				} else if n > 0 {
					s.logger.Info("purged completed jobs", "count", n)
				}
			}
		}
	}
}
