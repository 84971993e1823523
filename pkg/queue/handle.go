package queue

import (
	"sync"

	"github.com/Wikia/interactive-maps-sub000/pkg/core"
)

// Handle is returned by Enqueue and accepts per-job observers. Observers
// only fire in the process that enqueued the job; a job re-run after a
// restart has no handle anymore.
type Handle struct {
	jobID string

	mu              sync.Mutex
	onComplete      []func(*core.Job)
	onFailed        []func(*core.Job, error)
	onFailedAttempt []func(*core.Job, int, error)
}

func newHandle(jobID string) *Handle {
	return &Handle{jobID: jobID}
}

// JobID returns the persisted job's id.
func (h *Handle) JobID() string { return h.jobID }

// OnComplete registers an observer for successful completion.
func (h *Handle) OnComplete(fn func(*core.Job)) *Handle {
	h.mu.Lock()
	h.onComplete = append(h.onComplete, fn)
	h.mu.Unlock()
	return h
}

// OnFailed registers an observer for terminal failure.
func (h *Handle) OnFailed(fn func(*core.Job, error)) *Handle {
	h.mu.Lock()
	h.onFailed = append(h.onFailed, fn)
	h.mu.Unlock()
	return h
}

// OnFailedAttempt registers an observer for retryable failures.
func (h *Handle) OnFailedAttempt(fn func(*core.Job, int, error)) *Handle {
	h.mu.Lock()
	h.onFailedAttempt = append(h.onFailedAttempt, fn)
	h.mu.Unlock()
	return h
}

func (h *Handle) notifyComplete(job *core.Job) {
	if h == nil {
		return
	}
	h.mu.Lock()
	fns := append([]func(*core.Job){}, h.onComplete...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(job)
	}
}

func (h *Handle) notifyFailed(job *core.Job, err error) {
	if h == nil {
		return
	}
	h.mu.Lock()
	fns := append([]func(*core.Job, error){}, h.onFailed...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(job, err)
	}
}

func (h *Handle) notifyFailedAttempt(job *core.Job, attemptsLeft int, err error) {
	if h == nil {
		return
	}
	h.mu.Lock()
	fns := append([]func(*core.Job, int, error){}, h.onFailedAttempt...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(job, attemptsLeft, err)
	}
}
