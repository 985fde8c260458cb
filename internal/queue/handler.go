package queue

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/mforney/docpipe/internal/domain"
	"github.com/mforney/docpipe/internal/logger"
	"github.com/mforney/docpipe/internal/repository"
)

// QueueHandler owns one named queue: it matches incoming stream events
// against the queue's rule and materializes jobs on match. Job creation is
// idempotent under stream replay (the dedupe tuple is the job's primary
// key), which is what makes the manager's at-least-once redelivery safe.
type QueueHandler struct {
	info *QueueInfo
	jobs *repository.JobRepository
}

// NewQueueHandler creates a handler bound to one queue rule.
func NewQueueHandler(info *QueueInfo, jobs *repository.JobRepository) *QueueHandler {
	return &QueueHandler{info: info, jobs: jobs}
}

// Name returns the queue name.
func (h *QueueHandler) Name() string {
	return h.info.Name
}

// Info returns the queue's compiled rule.
func (h *QueueHandler) Info() *QueueInfo {
	return h.info
}

// Handle presents one format-added stream event to the queue. A match
// creates a queued job keyed by (tenant, document, queue, input format);
// replays of the same entry are absorbed by the key.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - event: format-added stream entry.
// Returns:
//   - bool: true if a new job was created.
//   - error: non-nil if the job store operation fails.
func (h *QueueHandler) Handle(ctx context.Context, event *domain.StreamEvent) (bool, error) {
	if !h.info.Match(event.PipelineID, FileExtension(event.FileName), event.Formats) {
		return false, nil
	}

	job := &domain.QueuedJob{
		ID:          domain.JobKey(event.TenantID, event.DocumentID, h.info.Name, event.Format),
		TenantID:    event.TenantID,
		DocumentID:  event.DocumentID,
		QueueName:   h.info.Name,
		InputFormat: event.Format,
		BlobID:      event.BlobID,
		FileName:    event.FileName,
		Status:      domain.JobStatusQueued,
		Parameters:  domain.ParamMap(h.info.Parameters),
	}
	created, err := h.jobs.CreateIfAbsent(ctx, job)
	if err != nil {
		return false, err
	}
	if created {
		logger.CtxInfo(ctx, "Queued job %s on queue %s (blob %s)", job.ID, h.info.Name, job.BlobID)
	} else {
		logger.CtxDebug(ctx, "Duplicate stream entry absorbed for job %s", job.ID)
	}
	return created, nil
}

// GetNextJob atomically claims the oldest unassigned job for this queue.
// Returns nil when the queue is empty; that is a normal state, not an error.
func (h *QueueHandler) GetNextJob(ctx context.Context) (*domain.QueuedJob, error) {
	return h.jobs.ClaimNext(ctx, h.info.Name)
}

// FileExtension extracts the lowercase extension of a file name, without
// the leading dot.
func FileExtension(fileName string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
}
