package core

import "time"

// Event is the interface for all queue events.
type Event interface {
	eventMarker()
}

// JobStarted is emitted when a worker begins executing a job.
type JobStarted struct {
	Job       *Job
	Timestamp time.Time
}

func (*JobStarted) eventMarker() {}

// JobCompleted is emitted when a job completes successfully.
type JobCompleted struct {
	Job       *Job
	Duration  time.Duration
	Timestamp time.Time
}

func (*JobCompleted) eventMarker() {}

// JobFailed is emitted when a job fails with no attempts remaining.
// The job's payload is intact so subscribers can run compensating cleanup.
type JobFailed struct {
	Job       *Job
	Error     error
	Timestamp time.Time
}

func (*JobFailed) eventMarker() {}

// JobFailedAttempt is emitted when a job fails but still has attempts
// left; the job returns to the queued state.
type JobFailedAttempt struct {
	Job          *Job
	AttemptsLeft int
	Error        error
	NextRunAt    time.Time
	Timestamp    time.Time
}

func (*JobFailedAttempt) eventMarker() {}

// JobsPromoted is emitted by the promotion loop when delayed jobs whose
// delay elapsed were moved to queued.
type JobsPromoted struct {
	Count     int64
	Timestamp time.Time
}

func (*JobsPromoted) eventMarker() {}
