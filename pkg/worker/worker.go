package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Wikia/interactive-maps-sub000/pkg/core"
	"github.com/Wikia/interactive-maps-sub000/pkg/jobctx"
	"github.com/Wikia/interactive-maps-sub000/pkg/queue"
)

// Worker processes jobs from the queue. Each registered consumer gets
// its own pool of slots so that one job type cannot starve another's
// concurrency budget.
type Worker struct {
	queue  *queue.Queue
	config WorkerConfig
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewWorker creates a new worker for the given queue.
func NewWorker(q *queue.Queue, opts ...WorkerOption) *Worker {
	config := WorkerConfig{
		PollInterval: 100 * time.Millisecond,
		WorkerID:     uuid.New().String(),
	}

	for _, opt := range opts {
		opt.ApplyWorker(&config)
	}

	if config.StorageRetry == nil {
		defaultCfg := DefaultRetryConfig()
		config.StorageRetry = &defaultCfg
	}
	if config.ClaimRetry == nil {
		// Use longer backoff for claiming to avoid hammering the store
		// during outages
		claimCfg := RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
			JitterFraction:    0.2,
		}
		config.ClaimRetry = &claimCfg
	}

	return &Worker{
		queue:  q,
		config: config,
		logger: slog.Default(),
	}
}

// ID returns the worker's id, recorded on every job it claims.
func (w *Worker) ID() string {
	return w.config.WorkerID
}

// Start begins processing jobs. Blocks until context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	types := w.queue.ConsumerTypes()
	if len(types) == 0 {
		return fmt.Errorf("tilejobs: worker started with no registered consumers")
	}

	for _, name := range types {
		c, _ := w.queue.GetConsumer(name)
		for i := 0; i < c.Concurrency; i++ {
			w.wg.Add(1)
			go w.runSlot(ctx, name)
		}
	}

	<-ctx.Done()
	w.wg.Wait()
	return ctx.Err()
}

// runSlot is one consumer slot: claim a job of the slot's type, process
// it, repeat. Idle slots poll on the configured interval.
func (w *Worker) runSlot(ctx context.Context, jobType string) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := w.claimWithRetry(ctx, jobType)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					w.logger.Error("failed to claim after retries", "type", jobType, "error", err)
				}
				continue
			}
			if job != nil {
				w.processJob(ctx, job)
			}
		}
	}
}

// claimWithRetry attempts to claim a job with exponential backoff on
// storage failure.
func (w *Worker) claimWithRetry(ctx context.Context, jobType string) (*core.Job, error) {
	var job *core.Job
	err := retryWithBackoff(ctx, *w.config.ClaimRetry, func() error {
		var claimErr error
		job, claimErr = w.queue.Storage().Claim(ctx, []string{jobType}, w.config.WorkerID)
		return claimErr
	})
	return job, err
}

func (w *Worker) processJob(ctx context.Context, job *core.Job) {
	startTime := time.Now()

	c, ok := w.queue.GetConsumer(job.Type)
	if !ok {
		w.logger.Error("no consumer for job", "type", job.Type)
		w.failJob(ctx, job, fmt.Errorf("no consumer for %s", job.Type), nil)
		return
	}

	w.queue.Emit(&core.JobStarted{Job: job, Timestamp: startTime})

	// Heartbeat keeps the lease alive so the stale-lock reclaim does not
	// steal a long-running job from a live worker.
	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	go w.runHeartbeat(heartbeatCtx, job)

	err := w.executeHandler(ctx, job, c)

	cancelHeartbeat()

	if err != nil {
		w.handleError(ctx, job, err)
		return
	}

	completeErr := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		return w.queue.Storage().Complete(ctx, job.ID, w.config.WorkerID)
	})
	if completeErr != nil {
		w.logger.Error("failed to complete job after retries", "job_id", job.ID, "error", completeErr)
		return
	}
	w.queue.NotifyComplete(ctx, job, time.Since(startTime))
}

// runHeartbeat periodically extends the job lock during execution.
func (w *Worker) runHeartbeat(ctx context.Context, job *core.Job) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
				return w.queue.Storage().Heartbeat(ctx, job.ID, w.config.WorkerID)
			})
			if err != nil {
				w.logger.Warn("heartbeat failed after retries", "job_id", job.ID, "error", err)
			}
		}
	}
}

func (w *Worker) executeHandler(ctx context.Context, job *core.Job, c *queue.Consumer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.Handler.Execute(jobctx.WithJob(ctx, job), job.Payload)
}

func (w *Worker) handleError(ctx context.Context, job *core.Job, err error) {
	// Non-retryable errors burn all remaining attempts
	var noRetry *core.NoRetryError
	if errors.As(err, &noRetry) {
		failErr := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
			return w.queue.Storage().FailTerminal(ctx, job.ID, w.config.WorkerID, err.Error())
		})
		if failErr != nil {
			w.logger.Error("failed to mark job failed after retries", "job_id", job.ID, "error", failErr)
		}
		w.queue.NotifyFailed(ctx, job, err)
		return
	}

	var retryAt *time.Time
	var retryAfter *core.RetryAfterError
	if errors.As(err, &retryAfter) {
		at := time.Now().Add(retryAfter.Delay)
		retryAt = &at
	}

	w.failJob(ctx, job, err, retryAt)
}

// failJob records a failed attempt and reports failed-attempt or failed
// depending on the attempts remaining.
func (w *Worker) failJob(ctx context.Context, job *core.Job, jobErr error, retryAt *time.Time) {
	var attemptsLeft int
	err := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		var failErr error
		attemptsLeft, failErr = w.queue.Storage().Fail(ctx, job.ID, w.config.WorkerID, jobErr.Error(), retryAt)
		return failErr
	})
	if err != nil {
		w.logger.Error("failed to mark job failed after retries", "job_id", job.ID, "error", err)
		return
	}

	if attemptsLeft > 0 {
		nextRunAt := time.Now()
		if retryAt != nil {
			nextRunAt = *retryAt
		}
		w.queue.NotifyFailedAttempt(ctx, job, attemptsLeft, jobErr, nextRunAt)
	} else {
		w.queue.NotifyFailed(ctx, job, jobErr)
	}
}
