// Package storage provides the GORM-backed job store.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Wikia/interactive-maps-sub000/pkg/core"
	"github.com/Wikia/interactive-maps-sub000/pkg/security"
)

// DefaultLockDuration is how long a claim holds a job before the lease
// can be reclaimed. Workers extend it via Heartbeat.
const DefaultLockDuration = 5 * time.Minute

// GormStorage implements core.Storage using GORM.
type GormStorage struct {
	db *gorm.DB
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.Job{})
}

func prepare(job *core.Job) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		if job.RunAt != nil && job.RunAt.After(time.Now()) {
			job.Status = core.StatusDelayed
		} else {
			job.Status = core.StatusQueued
		}
	}
}

// Enqueue adds a job to the queue. A job with a future RunAt is persisted
// as delayed; the promotion loop moves it to queued once due.
func (s *GormStorage) Enqueue(ctx context.Context, job *core.Job) error {
	prepare(job)
	return s.db.WithContext(ctx).Create(job).Error
}

// EnqueueUnique adds a job only if no job with the same unique key exists
// in a non-terminal state.
func (s *GormStorage) EnqueueUnique(ctx context.Context, job *core.Job, uniqueKey string) error {
	prepare(job)
	job.UniqueKey = uniqueKey

	var count int64
	err := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("unique_key = ?", uniqueKey).
		Where("status IN ?", []core.JobStatus{core.StatusDelayed, core.StatusQueued, core.StatusActive}).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return core.ErrDuplicateJob
	}

	return s.db.WithContext(ctx).Create(job).Error
}

// EnqueueBatch persists several jobs in one insert. The pipeline's
// fan-out goes through Enqueue one job at a time because it needs
// unique keys and handles; this is for bulk producers that need
// neither.
func (s *GormStorage) EnqueueBatch(ctx context.Context, jobs []*core.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	for _, job := range jobs {
		prepare(job)
	}
	return s.db.WithContext(ctx).Create(jobs).Error
}

// Claim fetches and locks the next queued job. Strict priority across
// tiers, FIFO within a tier. The transaction is the single point that
// serializes the queued→active transition across workers.
func (s *GormStorage) Claim(ctx context.Context, types []string, workerID string) (*core.Job, error) {
	var job core.Job
	now := time.Now()
	lockUntil := now.Add(DefaultLockDuration)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.
			Where("type IN ?", types).
			Where("status = ?", core.StatusQueued).
			Where("(locked_until IS NULL OR locked_until < ?)", now).
			Order("priority DESC, created_at ASC").
			First(&job)

		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return nil
			}
			return result.Error
		}

		job.Status = core.StatusActive
		job.LockedBy = workerID
		job.LockedUntil = &lockUntil
		job.StartedAt = &now

		return tx.Save(&job).Error
	})

	if err != nil {
		return nil, err
	}
	if job.ID == "" {
		return nil, nil
	}
	return &job, nil
}

// Complete marks a job as successfully completed.
// Validates that the worker owns the job before completing.
func (s *GormStorage) Complete(ctx context.Context, jobID string, workerID string) error {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND locked_by = ?", jobID, workerID).
		Updates(map[string]any{
			"status":       core.StatusCompleted,
			"completed_at": now,
			"locked_by":    "",
			"locked_until": nil,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrJobNotOwned
	}
	return nil
}

// Fail records a failed attempt. While attempts remain the job returns to
// queued (optionally at retryAt); once they run out it is terminally
// failed with the payload intact. Returns the attempts left after the
// decrement so the caller can distinguish failed-attempt from failed.
func (s *GormStorage) Fail(ctx context.Context, jobID string, workerID string, errMsg string, retryAt *time.Time) (int, error) {
	sanitizedErr := security.SanitizeErrorMessage(errMsg)

	var attemptsLeft int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job core.Job
		if err := tx.First(&job, "id = ? AND locked_by = ?", jobID, workerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return core.ErrJobNotOwned
			}
			return err
		}

		job.AttemptsLeft--
		if job.AttemptsLeft < 0 {
			job.AttemptsLeft = 0
		}
		attemptsLeft = job.AttemptsLeft

		job.LastError = sanitizedErr
		job.LockedBy = ""
		job.LockedUntil = nil

		if attemptsLeft > 0 {
			job.Status = core.StatusQueued
			job.RunAt = retryAt
			if retryAt != nil && retryAt.After(time.Now()) {
				job.Status = core.StatusDelayed
			}
		} else {
			job.Status = core.StatusFailed
			now := time.Now()
			job.CompletedAt = &now
		}

		return tx.Save(&job).Error
	})

	return attemptsLeft, err
}

// FailTerminal marks a job failed regardless of remaining attempts.
// Used for non-retryable errors such as object store authorization
// failures.
func (s *GormStorage) FailTerminal(ctx context.Context, jobID string, workerID string, errMsg string) error {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND locked_by = ?", jobID, workerID).
		Updates(map[string]any{
			"status":        core.StatusFailed,
			"attempts_left": 0,
			"last_error":    security.SanitizeErrorMessage(errMsg),
			"completed_at":  now,
			"locked_by":     "",
			"locked_until":  nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrJobNotOwned
	}
	return nil
}

// PromoteDue moves every delayed job whose delay has elapsed into queued.
// One idempotent UPDATE; safe to run concurrently with claiming. FIFO
// order within a priority tier is preserved because claiming orders by
// created_at, not promotion time.
func (s *GormStorage) PromoteDue(ctx context.Context) (int64, error) {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("status = ?", core.StatusDelayed).
		Where("(run_at IS NULL OR run_at <= ?)", now).
		Update("status", core.StatusQueued)
	return result.RowsAffected, result.Error
}

// RequeueActive forces all active jobs back to delayed. Called during
// graceful shutdown so the promotion loop re-runs them after restart.
// At-least-once delivery, not exactly-once.
func (s *GormStorage) RequeueActive(ctx context.Context) (int64, error) {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("status = ?", core.StatusActive).
		Updates(map[string]any{
			"status":       core.StatusDelayed,
			"run_at":       now,
			"locked_by":    "",
			"locked_until": nil,
		})
	return result.RowsAffected, result.Error
}

// ReleaseStaleLocks returns active jobs whose lease expired to queued.
// This reclaims jobs orphaned by a crashed worker.
func (s *GormStorage) ReleaseStaleLocks(ctx context.Context, staleDuration time.Duration) (int64, error) {
	cutoff := time.Now().Add(-staleDuration)
	result := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("status = ?", core.StatusActive).
		Where("locked_until < ?", cutoff).
		Updates(map[string]any{
			"status":       core.StatusQueued,
			"locked_by":    nil,
			"locked_until": nil,
		})
	return result.RowsAffected, result.Error
}

// Heartbeat extends the lock on an active job.
func (s *GormStorage) Heartbeat(ctx context.Context, jobID string, workerID string) error {
	lockUntil := time.Now().Add(DefaultLockDuration)
	return s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND locked_by = ?", jobID, workerID).
		Update("locked_until", lockUntil).Error
}

// GetJob retrieves a job by ID.
func (s *GormStorage) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJobsByStatus retrieves jobs by status.
func (s *GormStorage) GetJobsByStatus(ctx context.Context, status core.JobStatus, limit int) ([]*core.Job, error) {
	var jobList []*core.Job
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Limit(limit).
		Find(&jobList).Error
	return jobList, err
}

// CountByStatus returns the number of jobs in the given state. Used for
// queue-depth health checks.
func (s *GormStorage) CountByStatus(ctx context.Context, status core.JobStatus) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

// DeleteCompletedBefore removes completed job rows older than cutoff.
func (s *GormStorage) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("status = ?", core.StatusCompleted).
		Where("completed_at < ?", cutoff).
		Delete(&core.Job{})
	return result.RowsAffected, result.Error
}
