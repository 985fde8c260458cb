package repository

import (
	"context"
	"fmt"

	"github.com/mforney/docpipe/internal/domain"
	"gorm.io/gorm"
)

// StreamRepository reads the ordered document event stream. The stream is an
// append-only log owned by the domain layer; Append exists for local
// single-binary mode where the command bus writes events directly.
type StreamRepository struct {
	db *gorm.DB
}

// NewStreamRepository creates a new StreamRepository.
func NewStreamRepository(db *gorm.DB) *StreamRepository {
	return &StreamRepository{db: db}
}

// ReadBatch reads up to limit entries for a tenant with sequence strictly
// greater than after, ascending by sequence.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - tenantID: tenant whose stream to read.
//   - after: exclusive lower bound on sequence numbers.
//   - limit: maximum number of entries to return.
// Returns:
//   - []domain.StreamEvent: ordered batch, possibly empty.
//   - error: non-nil if the query fails.
func (r *StreamRepository) ReadBatch(ctx context.Context, tenantID string, after int64, limit int) ([]domain.StreamEvent, error) {
	var events []domain.StreamEvent
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND sequence > ?", tenantID, after).
		Order("sequence ASC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to read stream for tenant %s: %w", tenantID, err)
	}
	return events, nil
}

// FormatsOf folds a document's stream history into its current format set
// (formats added and not later deleted). Used in local mode where no external
// domain layer tracks the document aggregate.
func (r *StreamRepository) FormatsOf(ctx context.Context, tenantID, documentID string) (domain.FormatSet, error) {
	var events []domain.StreamEvent
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND document_id = ?", tenantID, documentID).
		Order("sequence ASC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to read document history for %s: %w", documentID, err)
	}
	var formats domain.FormatSet
	for _, event := range events {
		switch event.EventType {
		case domain.EventFormatAdded:
			if !formats.Contains(event.Format) {
				formats = append(formats, event.Format)
			}
		case domain.EventFormatDeleted:
			kept := formats[:0]
			for _, f := range formats {
				if !f.Equals(event.Format) {
					kept = append(kept, f)
				}
			}
			formats = kept
		}
	}
	return formats, nil
}

// Append adds an event to the stream; the sequence number is assigned by the
// store.
func (r *StreamRepository) Append(ctx context.Context, event *domain.StreamEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to append stream event: %w", err)
	}
	return nil
}
