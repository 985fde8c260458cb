package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mforney/docpipe/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CheckpointRepository persists the per-tenant stream cursor. Writes are
// last-write-wins and deliberately not transactional with the stream read;
// the poll loop only saves a checkpoint after the batch it covers has been
// fully dispatched.
type CheckpointRepository struct {
	db *gorm.DB
}

// NewCheckpointRepository creates a new CheckpointRepository.
func NewCheckpointRepository(db *gorm.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// Get retrieves the last persisted checkpoint for a tenant; 0 if none.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - tenantID: tenant whose cursor to read.
// Returns:
//   - int64: last fully dispatched sequence number (0 on first poll).
//   - error: non-nil if the lookup fails.
func (r *CheckpointRepository) Get(ctx context.Context, tenantID string) (int64, error) {
	var cp domain.StreamCheckpoint
	err := r.db.WithContext(ctx).First(&cp, "tenant_id = ?", tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint for tenant %s: %w", tenantID, err)
	}
	return cp.Checkpoint, nil
}

// Save upserts the checkpoint for a tenant.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - tenantID: tenant whose cursor to persist.
//   - checkpoint: sequence number of the last fully dispatched entry.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *CheckpointRepository) Save(ctx context.Context, tenantID string, checkpoint int64) error {
	cp := domain.StreamCheckpoint{
		TenantID:   tenantID,
		Checkpoint: checkpoint,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}},
		UpdateAll: true,
	}).Create(&cp).Error; err != nil {
		return fmt.Errorf("failed to save checkpoint for tenant %s: %w", tenantID, err)
	}
	return nil
}
