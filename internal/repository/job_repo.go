package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mforney/docpipe/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStaleAssignment is returned when a lifecycle update names an assignment
// that is no longer live (the job was reassigned or already finished). The
// write is a no-op; callers must not treat the condition as job failure.
var ErrStaleAssignment = errors.New("assignment is no longer live")

// JobRepository handles queued job persistence. All state transitions are
// single conditional updates so that out-of-process workers can race safely.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// CreateIfAbsent inserts a job unless one already exists for its dedupe
// tuple (tenant, document, queue, input format). Replayed stream batches hit
// the unique index and are absorbed silently.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist.
// Returns:
//   - bool: true if a new job was created.
//   - error: non-nil if the insert fails for a reason other than a duplicate.
func (r *JobRepository) CreateIfAbsent(ctx context.Context, job *domain.QueuedJob) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(job)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create job %s: %w", job.ID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ClaimNext atomically claims the oldest queued job for a queue, flipping it
// to assigned with a fresh assignment id and heartbeat. Two concurrent
// callers never receive the same job: the claim is a conditional update and
// losers retry on the next candidate.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - queueName: queue to claim from.
// Returns:
//   - *domain.QueuedJob: claimed job, or nil if the queue is empty.
//   - error: non-nil if the store operation fails.
func (r *JobRepository) ClaimNext(ctx context.Context, queueName string) (*domain.QueuedJob, error) {
	for {
		var candidate domain.QueuedJob
		err := r.db.WithContext(ctx).
			Where("queue_name = ? AND status = ?", queueName, domain.JobStatusQueued).
			Order("created_at ASC").
			First(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find next job for queue %s: %w", queueName, err)
		}

		now := time.Now().UTC()
		assignmentID := uuid.New().String()
		res := r.db.WithContext(ctx).
			Model(&domain.QueuedJob{}).
			Where("id = ? AND status = ?", candidate.ID, domain.JobStatusQueued).
			Updates(map[string]interface{}{
				"status":        domain.JobStatusAssigned,
				"assignment_id": assignmentID,
				"assigned_at":   now,
				"heartbeat_at":  now,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("failed to claim job %s: %w", candidate.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			// Lost the race; try the next candidate.
			continue
		}

		candidate.Status = domain.JobStatusAssigned
		candidate.AssignmentID = assignmentID
		candidate.AssignedAt = &now
		candidate.HeartbeatAt = &now
		return &candidate, nil
	}
}

// Heartbeat refreshes the lease of a live assignment.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job whose lease to refresh.
//   - assignmentID: assignment the caller holds.
// Returns:
//   - error: ErrStaleAssignment if the assignment is no longer live.
func (r *JobRepository) Heartbeat(ctx context.Context, jobID, assignmentID string) error {
	res := r.db.WithContext(ctx).
		Model(&domain.QueuedJob{}).
		Where("id = ? AND assignment_id = ? AND status = ?", jobID, assignmentID, domain.JobStatusAssigned).
		Update("heartbeat_at", time.Now().UTC())
	if res.Error != nil {
		return fmt.Errorf("failed to heartbeat job %s: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleAssignment
	}
	return nil
}

// Complete marks a job completed. The update is conditional on the
// assignment id so a reassigned job's original worker finishing late affects
// zero rows and is reported as ErrStaleAssignment.
func (r *JobRepository) Complete(ctx context.Context, jobID, assignmentID, message string) error {
	return r.finish(ctx, jobID, assignmentID, domain.JobStatusCompleted, message)
}

// Fail marks a job terminally failed with the failure cause recorded. Only
// attempts past the retry budget land here; transient failures go through
// Requeue instead.
func (r *JobRepository) Fail(ctx context.Context, jobID, assignmentID, message string) error {
	return r.finish(ctx, jobID, assignmentID, domain.JobStatusFailed, message)
}

func (r *JobRepository) finish(ctx context.Context, jobID, assignmentID string, status domain.JobStatus, message string) error {
	res := r.db.WithContext(ctx).
		Model(&domain.QueuedJob{}).
		Where("id = ? AND assignment_id = ? AND status = ?", jobID, assignmentID, domain.JobStatusAssigned).
		Updates(map[string]interface{}{
			"status":  status,
			"message": message,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to finish job %s: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleAssignment
	}
	return nil
}

// FindStalled retrieves assigned jobs whose heartbeat is older than cutoff.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cutoff: heartbeat threshold; older assignments are considered abandoned.
// Returns:
//   - []domain.QueuedJob: stalled jobs.
//   - error: non-nil if the query fails.
func (r *JobRepository) FindStalled(ctx context.Context, cutoff time.Time) ([]domain.QueuedJob, error) {
	var jobs []domain.QueuedJob
	if err := r.db.WithContext(ctx).
		Where("status = ? AND heartbeat_at < ?", domain.JobStatusAssigned, cutoff).
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to find stalled jobs: %w", err)
	}
	return jobs, nil
}

// Requeue returns a timed-out or failed job to the queue for redelivery,
// incrementing its attempt counter and clearing the assignment so the stale
// worker's later writes miss. The message records why the attempt ended.
func (r *JobRepository) Requeue(ctx context.Context, jobID, assignmentID, message string) error {
	res := r.db.WithContext(ctx).
		Model(&domain.QueuedJob{}).
		Where("id = ? AND assignment_id = ? AND status = ?", jobID, assignmentID, domain.JobStatusAssigned).
		Updates(map[string]interface{}{
			"status":        domain.JobStatusQueued,
			"assignment_id": "",
			"assigned_at":   nil,
			"heartbeat_at":  nil,
			"attempts":      gorm.Expr("attempts + 1"),
			"message":       message,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to requeue job %s: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleAssignment
	}
	return nil
}

// FailTimedOut terminally fails a job that exhausted its retry budget.
func (r *JobRepository) FailTimedOut(ctx context.Context, jobID, assignmentID, message string) error {
	return r.finish(ctx, jobID, assignmentID, domain.JobStatusFailed, message)
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.QueuedJob, error) {
	var job domain.QueuedJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// CountByStatus counts jobs in a queue by status.
func (r *JobRepository) CountByStatus(ctx context.Context, queueName string, status domain.JobStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.QueuedJob{}).
		Where("queue_name = ? AND status = ?", queueName, status).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
