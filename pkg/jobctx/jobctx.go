// Package jobctx exposes the currently executing job through the
// handler's context. Handlers use the job id to key working directories
// and log lines.
package jobctx

import (
	"context"

	"github.com/Wikia/interactive-maps-sub000/pkg/core"
)

type contextKey struct{}

// WithJob returns a context carrying the job. Workers call this before
// invoking a handler.
func WithJob(ctx context.Context, job *core.Job) context.Context {
	return context.WithValue(ctx, contextKey{}, job)
}

// JobFromContext returns the current Job, or nil outside a job handler.
func JobFromContext(ctx context.Context) *core.Job {
	job, _ := ctx.Value(contextKey{}).(*core.Job)
	return job
}

// JobIDFromContext returns the current job id, or empty string outside a
// job handler.
func JobIDFromContext(ctx context.Context) string {
	if job := JobFromContext(ctx); job != nil {
		return job.ID
	}
	return ""
}
