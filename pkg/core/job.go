// Package core provides the domain models and interfaces shared by the
// tile job queue, storage, and worker packages.
package core

import (
	"time"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	// StatusDelayed means the job is persisted but not yet eligible to run.
	// Only the promotion loop moves a delayed job to queued.
	StatusDelayed JobStatus = "delayed"
	// StatusQueued means the job is eligible and waiting for a worker.
	StatusQueued JobStatus = "queued"
	// StatusActive means a worker has claimed the job and is executing it.
	StatusActive JobStatus = "active"
	// StatusCompleted is terminal success.
	StatusCompleted JobStatus = "completed"
	// StatusFailed is terminal failure with no attempts remaining.
	StatusFailed JobStatus = "failed"
)

// Job priorities. Claiming is strict across tiers: a lower tier is never
// served while a higher tier has a queued job.
const (
	PriorityLow    = 0
	PriorityMedium = 1
	PriorityHigh   = 2
)

// Job represents a unit of queued work.
type Job struct {
	ID           string     `gorm:"primaryKey;size:36"`
	Type         string     `gorm:"index;size:255;not null"`
	Payload      []byte     `gorm:"type:bytes"`
	Priority     int        `gorm:"index;default:0"`
	Status       JobStatus  `gorm:"index;size:20;default:'queued'"`
	AttemptsLeft int        `gorm:"default:3"`
	LastError    string     `gorm:"type:text"`
	RunAt        *time.Time `gorm:"index"`
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time  `gorm:"autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime"`
	LockedBy     string     `gorm:"size:255"`
	LockedUntil  *time.Time `gorm:"index"`
	UniqueKey    string     `gorm:"index;size:255"` // For job deduplication
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
