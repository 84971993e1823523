// Package worker provides the job processor and the multi-worker
// supervisor.
package worker

import (
	"time"
)

// WorkerOption configures a Worker.
type WorkerOption interface {
	ApplyWorker(*WorkerConfig)
}

type workerOptionFunc func(*WorkerConfig)

func (f workerOptionFunc) ApplyWorker(c *WorkerConfig) { f(c) }

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	PollInterval time.Duration
	WorkerID     string
	StorageRetry *RetryConfig
	ClaimRetry   *RetryConfig
}

// PollInterval sets how often an idle consumer slot polls for work.
func PollInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.PollInterval = d
	})
}

// WorkerID overrides the generated worker id. Useful in tests.
func WorkerID(id string) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.WorkerID = id
	})
}
