package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Wikia/interactive-maps-sub000/pkg/core"
	"github.com/Wikia/interactive-maps-sub000/pkg/internal/handler"
	"github.com/Wikia/interactive-maps-sub000/pkg/security"
)

// DefaultPromoteInterval is how often the promotion loop runs.
const DefaultPromoteInterval = 5 * time.Second

// Consumer pairs a handler with its per-process concurrency.
type Consumer struct {
	Handler     *handler.Handler
	Concurrency int
}

// Queue manages consumer registration, enqueueing, and job state
// reporting. All state lives in the injected Storage; the Queue itself
// carries no ambient globals.
type Queue struct {
	storage   core.Storage
	consumers map[string]*Consumer
	mu        sync.RWMutex

	// Per-job observers, in-process only. Jobs that survive a restart
	// lose their handles; restart-safe compensation belongs in hooks.
	handles   map[string]*Handle
	handlesMu sync.Mutex

	// Hooks, keyed off every job regardless of origin
	onComplete      []func(context.Context, *core.Job)
	onFail          []func(context.Context, *core.Job, error)
	onFailedAttempt []func(context.Context, *core.Job, int, error)

	// Event stream
	eventSubs []chan core.Event
}

// New creates a new Queue with the given storage backend.
func New(s core.Storage) *Queue {
	return &Queue{
		storage:   s,
		consumers: make(map[string]*Consumer),
		handles:   make(map[string]*Handle),
	}
}

// Consume registers a handler for a job type, invoked with one job at a
// time up to concurrency concurrently active per process. The function
// must have signature func(ctx context.Context, payload T) error; its
// return value is the job's explicit success or failure.
func (q *Queue) Consume(name string, concurrency int, fn any) {
	if err := security.ValidateJobTypeName(name); err != nil {
		panic(fmt.Sprintf("tilejobs: invalid consumer name %q: %v", name, err))
	}

	h, err := handler.NewHandler(fn)
	if err != nil {
		panic(fmt.Sprintf("tilejobs: consumer for %q: %v", name, err))
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.consumers[name] = &Consumer{
		Handler:     h,
		Concurrency: security.ClampConcurrency(concurrency),
	}
}

// GetConsumer returns a registered consumer by job type.
func (q *Queue) GetConsumer(name string) (*Consumer, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	c, ok := q.consumers[name]
	return c, ok
}

// ConsumerTypes returns the registered job types.
func (q *Queue) ConsumerTypes() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	types := make([]string, 0, len(q.consumers))
	for name := range q.consumers {
		types = append(types, name)
	}
	return types
}

// TotalConcurrency sums the concurrency of all registered consumers.
func (q *Queue) TotalConcurrency() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	total := 0
	for _, c := range q.consumers {
		total += c.Concurrency
	}
	return total
}

// Enqueue persists a job, delayed if a Delay option is given, queued
// otherwise. The returned Handle accepts per-job observers.
func (q *Queue) Enqueue(ctx context.Context, name string, payload any, opts ...Option) (*Handle, error) {
	q.mu.RLock()
	_, ok := q.consumers[name]
	q.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("tilejobs: no consumer registered for %q", name)
	}

	options := NewOptions()
	for _, opt := range opts {
		opt.Apply(options)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("tilejobs: failed to marshal payload: %w", err)
	}
	if len(payloadBytes) > security.MaxPayloadSize {
		return nil, core.ErrPayloadTooLarge
	}

	job := &core.Job{
		ID:           uuid.New().String(),
		Type:         name,
		Payload:      payloadBytes,
		Priority:     options.Priority,
		AttemptsLeft: security.ClampAttempts(options.Attempts),
		Status:       core.StatusQueued,
	}

	if options.Delay > 0 {
		runAt := time.Now().Add(options.Delay)
		job.RunAt = &runAt
		job.Status = core.StatusDelayed
	}

	if options.UniqueKey != "" {
		if err := security.ValidateUniqueKey(options.UniqueKey); err != nil {
			return nil, err
		}
		if err := q.storage.EnqueueUnique(ctx, job, options.UniqueKey); err != nil {
			if errors.Is(err, core.ErrDuplicateJob) {
				return nil, err
			}
			return nil, fmt.Errorf("tilejobs: failed to enqueue: %w", err)
		}
	} else if err := q.storage.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("tilejobs: failed to enqueue: %w", err)
	}

	h := newHandle(job.ID)
	q.handlesMu.Lock()
	q.handles[job.ID] = h
	q.handlesMu.Unlock()
	return h, nil
}

// Promote moves every delayed job whose delay elapsed into queued.
// Idempotent and safe to call concurrently with consumption.
func (q *Queue) Promote(ctx context.Context) (int64, error) {
	n, err := q.storage.PromoteDue(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.Emit(&core.JobsPromoted{Count: n, Timestamp: time.Now()})
	}
	return n, nil
}

// CountByState returns the queue depth for one job state.
func (q *Queue) CountByState(ctx context.Context, status core.JobStatus) (int64, error) {
	return q.storage.CountByStatus(ctx, status)
}

// Storage returns the underlying storage.
func (q *Queue) Storage() core.Storage {
	return q.storage
}

// OnJobComplete registers a hook for every successfully completed job.
func (q *Queue) OnJobComplete(fn func(context.Context, *core.Job)) {
	q.mu.Lock()
	q.onComplete = append(q.onComplete, fn)
	q.mu.Unlock()
}

// OnJobFail registers a hook for every terminally failed job. The job's
// payload is intact so the hook can run compensating cleanup.
func (q *Queue) OnJobFail(fn func(context.Context, *core.Job, error)) {
	q.mu.Lock()
	q.onFail = append(q.onFail, fn)
	q.mu.Unlock()
}

// OnJobFailedAttempt registers a hook for every retryable failure.
func (q *Queue) OnJobFailedAttempt(fn func(context.Context, *core.Job, int, error)) {
	q.mu.Lock()
	q.onFailedAttempt = append(q.onFailedAttempt, fn)
	q.mu.Unlock()
}

// Events returns a channel for receiving queue events.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (q *Queue) Events() <-chan core.Event {
	ch := make(chan core.Event, 100)
	q.mu.Lock()
	q.eventSubs = append(q.eventSubs, ch)
	q.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Events().
func (q *Queue) Unsubscribe(ch <-chan core.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, sub := range q.eventSubs {
		if sub == ch {
			q.eventSubs = append(q.eventSubs[:i], q.eventSubs[i+1:]...)
			return
		}
	}
}

// Emit emits an event to all subscribers.
func (q *Queue) Emit(e core.Event) {
	q.mu.RLock()
	subs := make([]chan core.Event, len(q.eventSubs))
	copy(subs, q.eventSubs)
	q.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			// Drop if full - this prevents blocking on slow consumers
		}
	}
}

// NotifyComplete reports a successful job. Called by workers.
func (q *Queue) NotifyComplete(ctx context.Context, job *core.Job, duration time.Duration) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.Job), len(q.onComplete))
	copy(hooks, q.onComplete)
	q.mu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, job)
	}

	q.Emit(&core.JobCompleted{Job: job, Duration: duration, Timestamp: time.Now()})
	q.takeHandle(job.ID).notifyComplete(job)
}

// NotifyFailed reports a terminal failure. Called by workers.
func (q *Queue) NotifyFailed(ctx context.Context, job *core.Job, err error) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.Job, error), len(q.onFail))
	copy(hooks, q.onFail)
	q.mu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, job, err)
	}

	q.Emit(&core.JobFailed{Job: job, Error: err, Timestamp: time.Now()})
	q.takeHandle(job.ID).notifyFailed(job, err)
}

// NotifyFailedAttempt reports a retryable failure. Called by workers.
func (q *Queue) NotifyFailedAttempt(ctx context.Context, job *core.Job, attemptsLeft int, err error, nextRunAt time.Time) {
	q.mu.RLock()
	hooks := make([]func(context.Context, *core.Job, int, error), len(q.onFailedAttempt))
	copy(hooks, q.onFailedAttempt)
	q.mu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, job, attemptsLeft, err)
	}

	q.Emit(&core.JobFailedAttempt{
		Job:          job,
		AttemptsLeft: attemptsLeft,
		Error:        err,
		NextRunAt:    nextRunAt,
		Timestamp:    time.Now(),
	})
	q.peekHandle(job.ID).notifyFailedAttempt(job, attemptsLeft, err)
}

// takeHandle removes and returns the handle for a finished job.
func (q *Queue) takeHandle(jobID string) *Handle {
	q.handlesMu.Lock()
	defer q.handlesMu.Unlock()
	h := q.handles[jobID]
	delete(q.handles, jobID)
	return h
}

// peekHandle returns the handle without removing it; the job will run again.
func (q *Queue) peekHandle(jobID string) *Handle {
	q.handlesMu.Lock()
	defer q.handlesMu.Unlock()
	return q.handles[jobID]
}
