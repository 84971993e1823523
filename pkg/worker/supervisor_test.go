package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wikia/interactive-maps-sub000/pkg/core"
	"github.com/Wikia/interactive-maps-sub000/pkg/queue"
)

func TestSupervisor_Defaults(t *testing.T) {
	q := newTestQueue(t)
	s := NewSupervisor(q, SupervisorConfig{})

	assert.Greater(t, s.config.Workers, 0)
	assert.Equal(t, queue.DefaultPromoteInterval, s.config.PromoteInterval)
	assert.Equal(t, 10*time.Minute, s.config.StaleAfter)
}

func TestSupervisor_ProcessesJobs(t *testing.T) {
	q := newTestQueue(t)

	var processed atomic.Int32
	q.Consume("fetch", 2, func(ctx context.Context, _ struct{}) error {
		processed.Add(1)
		return nil
	})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := q.Enqueue(ctx, "fetch", struct{}{})
		require.NoError(t, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	s := NewSupervisor(q, SupervisorConfig{
		Workers:       1,
		WorkerOptions: []WorkerOption{PollInterval(10 * time.Millisecond)},
	})
	go func() { done <- s.Run(runCtx) }()

	require.Eventually(t, func() bool {
		return processed.Load() == 5
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("supervisor did not shut down")
	}
}

func TestSupervisor_PromotesDelayedJobs(t *testing.T) {
	q := newTestQueue(t)

	processed := make(chan struct{}, 1)
	q.Consume("tile-batch", 1, func(ctx context.Context, _ struct{}) error {
		processed <- struct{}{}
		return nil
	})

	_, err := q.Enqueue(context.Background(), "tile-batch", struct{}{},
		queue.Delay(50*time.Millisecond))
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	s := NewSupervisor(q, SupervisorConfig{
		Workers:         1,
		PromoteInterval: 20 * time.Millisecond,
		WorkerOptions:   []WorkerOption{PollInterval(10 * time.Millisecond)},
	})
	go func() { done <- s.Run(runCtx) }()

	select {
	case <-processed:
	case <-time.After(5 * time.Second):
		t.Fatal("delayed job was never promoted and run")
	}

	cancel()
	<-done
}

func TestSupervisor_RequeuesActiveOnShutdown(t *testing.T) {
	q := newTestQueue(t)

	started := make(chan struct{})
	q.Consume("tile-batch", 1, func(ctx context.Context, _ struct{}) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	h, err := q.Enqueue(context.Background(), "tile-batch", struct{}{})
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	s := NewSupervisor(q, SupervisorConfig{
		Workers:       1,
		WorkerOptions: []WorkerOption{PollInterval(10 * time.Millisecond)},
	})
	go func() { done <- s.Run(runCtx) }()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never started")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not shut down")
	}

	// The in-flight job survives the restart as a delayed job due now.
	job, err := q.Storage().GetJob(context.Background(), h.JobID())
	require.NoError(t, err)
	assert.Equal(t, core.StatusDelayed, job.Status)
	require.NotNil(t, job.RunAt)
	assert.False(t, job.RunAt.After(time.Now()))
}
