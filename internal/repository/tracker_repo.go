package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mforney/docpipe/internal/domain"
	"gorm.io/gorm"
)

// TrackerRepository persists per-attempt diagnostic records. One tracker per
// attempt: a retried job gets a new tracker, and finished trackers stay
// around for operator inspection.
type TrackerRepository struct {
	db *gorm.DB
}

// NewTrackerRepository creates a new TrackerRepository.
func NewTrackerRepository(db *gorm.DB) *TrackerRepository {
	return &TrackerRepository{db: db}
}

// Start records the beginning of an attempt.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job the attempt belongs to.
//   - jobType: short label of the work being attempted.
// Returns:
//   - *domain.JobTracker: created tracker.
//   - error: non-nil if the insert fails.
func (r *TrackerRepository) Start(ctx context.Context, job *domain.QueuedJob, jobType string) (*domain.JobTracker, error) {
	tracker := &domain.JobTracker{
		ID:           uuid.New().String(),
		JobID:        job.ID,
		AssignmentID: job.AssignmentID,
		BlobID:       job.BlobID,
		JobType:      jobType,
		StartedAt:    time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(tracker).Error; err != nil {
		return nil, fmt.Errorf("failed to create tracker for job %s: %w", job.ID, err)
	}
	return tracker, nil
}

// Finish closes a tracker with its outcome message and elapsed time.
func (r *TrackerRepository) Finish(ctx context.Context, trackerID, message string) error {
	var tracker domain.JobTracker
	if err := r.db.WithContext(ctx).First(&tracker, "id = ?", trackerID).Error; err != nil {
		return fmt.Errorf("failed to load tracker %s: %w", trackerID, err)
	}
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&domain.JobTracker{}).
		Where("id = ?", trackerID).
		Updates(map[string]interface{}{
			"message":    message,
			"ended_at":   now,
			"elapsed_ms": now.Sub(tracker.StartedAt).Milliseconds(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to finish tracker %s: %w", trackerID, res.Error)
	}
	return nil
}

// Record writes a closed diagnostic record in one step, used by the timeout
// monitor which observes attempts only after the fact.
func (r *TrackerRepository) Record(ctx context.Context, job *domain.QueuedJob, jobType, message string) error {
	now := time.Now().UTC()
	started := now
	if job.AssignedAt != nil {
		started = *job.AssignedAt
	}
	tracker := &domain.JobTracker{
		ID:           uuid.New().String(),
		JobID:        job.ID,
		AssignmentID: job.AssignmentID,
		BlobID:       job.BlobID,
		JobType:      jobType,
		Message:      message,
		StartedAt:    started,
		ElapsedMs:    now.Sub(started).Milliseconds(),
		EndedAt:      &now,
	}
	if err := r.db.WithContext(ctx).Create(tracker).Error; err != nil {
		return fmt.Errorf("failed to record tracker for job %s: %w", job.ID, err)
	}
	return nil
}

// ListRecent retrieves the most recent trackers for inspection.
func (r *TrackerRepository) ListRecent(ctx context.Context, limit int) ([]domain.JobTracker, error) {
	var trackers []domain.JobTracker
	if err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&trackers).Error; err != nil {
		return nil, fmt.Errorf("failed to list trackers: %w", err)
	}
	return trackers, nil
}
