package core

import (
	"context"
	"time"
)

// Starter is the interface for starting workers.
type Starter interface {
	Start(ctx context.Context) error
}

// Storage defines the persistence layer for jobs. The persisted store is
// the only shared mutable state across workers; Claim must serialize so
// that exactly one worker transitions a given job from queued to active.
type Storage interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Job lifecycle
	Enqueue(ctx context.Context, job *Job) error
	EnqueueUnique(ctx context.Context, job *Job, uniqueKey string) error
	EnqueueBatch(ctx context.Context, jobs []*Job) error
	Claim(ctx context.Context, types []string, workerID string) (*Job, error)
	Complete(ctx context.Context, jobID string, workerID string) error
	Fail(ctx context.Context, jobID string, workerID string, errMsg string, retryAt *time.Time) (attemptsLeft int, err error)
	FailTerminal(ctx context.Context, jobID string, workerID string, errMsg string) error

	// Promotion and reclaim
	PromoteDue(ctx context.Context) (int64, error)
	RequeueActive(ctx context.Context) (int64, error)
	ReleaseStaleLocks(ctx context.Context, staleDuration time.Duration) (int64, error)

	// Locking
	Heartbeat(ctx context.Context, jobID string, workerID string) error

	// Queries
	GetJob(ctx context.Context, jobID string) (*Job, error)
	GetJobsByStatus(ctx context.Context, status JobStatus, limit int) ([]*Job, error)
	CountByStatus(ctx context.Context, status JobStatus) (int64, error)

	// Maintenance
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
