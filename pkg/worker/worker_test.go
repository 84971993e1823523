package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Wikia/interactive-maps-sub000/pkg/core"
	"github.com/Wikia/interactive-maps-sub000/pkg/queue"
	"github.com/Wikia/interactive-maps-sub000/pkg/storage"
)

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s := storage.NewGormStorage(db)
	require.NoError(t, s.Migrate(context.Background()))
	return queue.New(s)
}

func startWorker(t *testing.T, q *queue.Queue) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w := NewWorker(q, PollInterval(10*time.Millisecond))
	go func() {
		defer close(done)
		_ = w.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestWorker_ProcessesJob(t *testing.T) {
	q := newTestQueue(t)

	type payload struct {
		Name string `json:"name"`
	}

	got := make(chan payload, 1)
	q.Consume("fetch", 1, func(ctx context.Context, p payload) error {
		got <- p
		return nil
	})

	done := make(chan *core.Job, 1)
	q.OnJobComplete(func(_ context.Context, job *core.Job) { done <- job })

	h, err := q.Enqueue(context.Background(), "fetch", payload{Name: "de_starwars"})
	require.NoError(t, err)

	startWorker(t, q)

	select {
	case p := <-got:
		assert.Equal(t, "de_starwars", p.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}

	select {
	case job := <-done:
		assert.Equal(t, h.JobID(), job.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("job never completed")
	}

	job, err := q.Storage().GetJob(context.Background(), h.JobID())
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
}

func TestWorker_HighPriorityFirst(t *testing.T) {
	q := newTestQueue(t)

	var mu sync.Mutex
	var order []string
	allDone := make(chan struct{})
	q.Consume("tile-batch", 1, func(ctx context.Context, p struct {
		Tag string `json:"tag"`
	}) error {
		mu.Lock()
		order = append(order, p.Tag)
		n := len(order)
		mu.Unlock()
		if n == 3 {
			close(allDone)
		}
		return nil
	})

	type payload struct {
		Tag string `json:"tag"`
	}
	ctx := context.Background()
	_, err := q.Enqueue(ctx, "tile-batch", payload{Tag: "low"}, queue.Priority(core.PriorityLow))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "tile-batch", payload{Tag: "medium"}, queue.Priority(core.PriorityMedium))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "tile-batch", payload{Tag: "high"}, queue.Priority(core.PriorityHigh))
	require.NoError(t, err)

	startWorker(t, q)

	select {
	case <-allDone:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs never finished")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"high", "medium", "low"}, order)
}

func TestWorker_RetriesThenFailsTerminally(t *testing.T) {
	q := newTestQueue(t)

	var runs int
	q.Consume("fetch", 1, func(ctx context.Context, _ struct{}) error {
		runs++
		return errors.New("image host down")
	})

	failedAttempts := make(chan int, 4)
	failed := make(chan *core.Job, 4)
	q.OnJobFailedAttempt(func(_ context.Context, _ *core.Job, attemptsLeft int, _ error) {
		failedAttempts <- attemptsLeft
	})
	q.OnJobFail(func(_ context.Context, job *core.Job, _ error) { failed <- job })

	h, err := q.Enqueue(context.Background(), "fetch", struct{}{}, queue.Attempts(2))
	require.NoError(t, err)

	startWorker(t, q)

	select {
	case left := <-failedAttempts:
		assert.Equal(t, 1, left)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a failed attempt")
	}

	select {
	case job := <-failed:
		assert.Equal(t, h.JobID(), job.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a terminal failure")
	}

	// Exactly one retryable report and one terminal report.
	assert.Empty(t, failedAttempts)
	assert.Empty(t, failed)
	assert.Equal(t, 2, runs)

	job, err := q.Storage().GetJob(context.Background(), h.JobID())
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, job.Status)
	assert.Contains(t, job.LastError, "image host down")
	assert.NotEmpty(t, job.Payload)
}

func TestWorker_NoRetrySkipsRemainingAttempts(t *testing.T) {
	q := newTestQueue(t)

	var runs int
	q.Consume("fetch", 1, func(ctx context.Context, _ struct{}) error {
		runs++
		return core.NoRetry(errors.New("storage authorization failed, likely wrong key"))
	})

	failed := make(chan *core.Job, 1)
	q.OnJobFail(func(_ context.Context, job *core.Job, _ error) { failed <- job })

	h, err := q.Enqueue(context.Background(), "fetch", struct{}{}, queue.Attempts(5))
	require.NoError(t, err)

	startWorker(t, q)

	select {
	case job := <-failed:
		assert.Equal(t, h.JobID(), job.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a terminal failure")
	}

	assert.Equal(t, 1, runs)

	job, err := q.Storage().GetJob(context.Background(), h.JobID())
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, job.Status)
	assert.Zero(t, job.AttemptsLeft)
}

func TestWorker_RetryAfterDelaysNextRun(t *testing.T) {
	q := newTestQueue(t)

	q.Consume("fetch", 1, func(ctx context.Context, _ struct{}) error {
		return core.RetryAfter(time.Hour, errors.New("rate limited"))
	})

	attempted := make(chan struct{}, 1)
	q.OnJobFailedAttempt(func(context.Context, *core.Job, int, error) {
		select {
		case attempted <- struct{}{}:
		default:
		}
	})

	h, err := q.Enqueue(context.Background(), "fetch", struct{}{}, queue.Attempts(3))
	require.NoError(t, err)

	startWorker(t, q)

	select {
	case <-attempted:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a failed attempt")
	}

	// The retry is parked until its RunAt, not immediately re-claimable.
	require.Eventually(t, func() bool {
		job, err := q.Storage().GetJob(context.Background(), h.JobID())
		return err == nil && job.Status == core.StatusDelayed
	}, 2*time.Second, 10*time.Millisecond)

	job, err := q.Storage().GetJob(context.Background(), h.JobID())
	require.NoError(t, err)
	require.NotNil(t, job.RunAt)
	assert.True(t, job.RunAt.After(time.Now().Add(30*time.Minute)))
}

func TestWorker_PanicCountsAsFailedAttempt(t *testing.T) {
	q := newTestQueue(t)

	q.Consume("tile-batch", 1, func(ctx context.Context, _ struct{}) error {
		panic("cutter segfault")
	})

	failed := make(chan *core.Job, 1)
	q.OnJobFail(func(_ context.Context, job *core.Job, _ error) { failed <- job })

	h, err := q.Enqueue(context.Background(), "tile-batch", struct{}{}, queue.Attempts(1))
	require.NoError(t, err)

	startWorker(t, q)

	select {
	case <-failed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a terminal failure")
	}

	job, err := q.Storage().GetJob(context.Background(), h.JobID())
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, job.Status)
	assert.Contains(t, job.LastError, "panic")
}

func TestWorker_StartWithoutConsumers(t *testing.T) {
	q := newTestQueue(t)
	w := NewWorker(q)
	err := w.Start(context.Background())
	assert.Error(t, err)
}
