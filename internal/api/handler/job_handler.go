package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mforney/docpipe/internal/command"
	"github.com/mforney/docpipe/internal/domain"
	"github.com/mforney/docpipe/internal/logger"
	"github.com/mforney/docpipe/internal/repository"
	"gorm.io/gorm"
)

// JobHandler exposes the job lifecycle endpoints workers call while holding
// an assignment. Every transition is guarded by the assignment id; a stale
// worker gets 409 and must discard its work.
type JobHandler struct {
	jobs       *repository.JobRepository
	trackers   *repository.TrackerRepository
	bus        command.Bus
	retryLimit int
}

// NewJobHandler creates a new job handler. retryLimit is the shared attempts
// budget: worker-reported failures and lease timeouts both consume it.
func NewJobHandler(jobs *repository.JobRepository, trackers *repository.TrackerRepository, bus command.Bus, retryLimit int) *JobHandler {
	return &JobHandler{jobs: jobs, trackers: trackers, bus: bus, retryLimit: retryLimit}
}

type heartbeatRequest struct {
	AssignmentID string `json:"assignment_id" binding:"required"`
}

// Heartbeat refreshes a worker's lease on its assignment.
func (h *JobHandler) Heartbeat(c *gin.Context) {
	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "assignment_id is required"})
		return
	}
	err := h.jobs.Heartbeat(c.Request.Context(), c.Param("id"), req.AssignmentID)
	if errors.Is(err, repository.ErrStaleAssignment) {
		c.JSON(http.StatusConflict, gin.H{"error": "assignment is no longer live"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record heartbeat"})
		return
	}
	c.Status(http.StatusNoContent)
}

// completedOutput is one artifact produced by the worker.
type completedOutput struct {
	Format   domain.DocumentFormat `json:"format" binding:"required"`
	BlobID   domain.BlobID         `json:"blob_id" binding:"required"`
	FileName string                `json:"file_name"`
}

type completeRequest struct {
	AssignmentID string            `json:"assignment_id" binding:"required"`
	Outputs      []completedOutput `json:"outputs" binding:"required,min=1"`
	TrackerID    string            `json:"tracker_id"`
	Message      string            `json:"message"`
}

// Complete finishes a job with its produced formats. Outcomes are delivered
// to the document owner before the job flips to completed: if the flip then
// finds the assignment stale, the duplicate delivery is absorbed downstream
// by the dedupe key, whereas the reverse order could lose formats.
func (h *JobHandler) Complete(c *gin.Context) {
	ctx := c.Request.Context()
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "assignment_id and at least one output are required"})
		return
	}
	for _, out := range req.Outputs {
		if _, err := domain.ParseBlobID(string(out.BlobID)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid blob_id"})
			return
		}
	}

	job, err := h.jobs.GetByID(ctx, c.Param("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}
	if job.AssignmentID != req.AssignmentID || job.Status != domain.JobStatusAssigned {
		c.JSON(http.StatusConflict, gin.H{"error": "assignment is no longer live"})
		return
	}

	ctx = logger.SetTenantID(ctx, job.TenantID)
	for _, out := range req.Outputs {
		err = h.bus.AddFormatToDocument(ctx, command.AddFormatToDocument{
			TenantID:   job.TenantID,
			DocumentID: job.DocumentID,
			Format:     out.Format,
			BlobID:     out.BlobID,
			PipelineID: pipelineOfQueue(job.QueueName),
			FileName:   out.FileName,
		})
		if err != nil {
			logger.CtxError(ctx, "Failed to deliver format %s for job %s: %v", out.Format, job.ID, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to deliver conversion outcome"})
			return
		}
	}

	err = h.jobs.Complete(ctx, job.ID, req.AssignmentID, req.Message)
	if errors.Is(err, repository.ErrStaleAssignment) {
		c.JSON(http.StatusConflict, gin.H{"error": "assignment is no longer live"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to complete job"})
		return
	}
	h.finishTracker(c, req.TrackerID, fmt.Sprintf("completed with %d output(s)", len(req.Outputs)))
	c.Status(http.StatusNoContent)
}

type failRequest struct {
	AssignmentID string `json:"assignment_id" binding:"required"`
	Message      string `json:"message"`
	TrackerID    string `json:"tracker_id"`
}

// Fail records a conversion failure reported by the worker. The attempts
// budget is shared with timeout recovery: under the retry limit the job goes
// back to the queue for another worker, at the limit it fails terminally and
// the document owner is notified.
func (h *JobHandler) Fail(c *gin.Context) {
	ctx := c.Request.Context()
	var req failRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "assignment_id is required"})
		return
	}

	job, err := h.jobs.GetByID(ctx, c.Param("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}
	ctx = logger.SetTenantID(ctx, job.TenantID)

	if job.Attempts < h.retryLimit {
		err = h.jobs.Requeue(ctx, job.ID, req.AssignmentID, req.Message)
		if errors.Is(err, repository.ErrStaleAssignment) {
			c.JSON(http.StatusConflict, gin.H{"error": "assignment is no longer live"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to requeue job"})
			return
		}
		logger.CtxWarn(ctx, "Job %s failed, requeued (attempt %d of %d): %s",
			job.ID, job.Attempts+1, h.retryLimit, req.Message)
		h.finishTracker(c, req.TrackerID, "failed, requeued: "+req.Message)
		c.Status(http.StatusNoContent)
		return
	}

	err = h.jobs.Fail(ctx, job.ID, req.AssignmentID, req.Message)
	if errors.Is(err, repository.ErrStaleAssignment) {
		c.JSON(http.StatusConflict, gin.H{"error": "assignment is no longer live"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fail job"})
		return
	}

	if berr := h.bus.MarkConversionFailed(ctx, command.MarkConversionFailed{
		TenantID:   job.TenantID,
		DocumentID: job.DocumentID,
		QueueName:  job.QueueName,
		Message:    req.Message,
	}); berr != nil {
		logger.CtxError(ctx, "Failed to deliver failure notice for job %s: %v", job.ID, berr)
	}
	h.finishTracker(c, req.TrackerID, "failed: "+req.Message)
	c.Status(http.StatusNoContent)
}

// GetJob retrieves a job by id.
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) finishTracker(c *gin.Context, trackerID, message string) {
	if trackerID == "" {
		return
	}
	if err := h.trackers.Finish(c.Request.Context(), trackerID, message); err != nil {
		logger.CtxError(c.Request.Context(), "Failed to finish tracker %s: %v", trackerID, err)
	}
}

// pipelineOfQueue maps a queue back to the pipeline family that publishes
// its output, which is the pipeline id recorded on the resulting stream
// event. Unknown queues publish under their own name.
func pipelineOfQueue(queueName string) domain.PipelineID {
	switch queueName {
	case "imgresize":
		return domain.NewPipelineID("img")
	case "videothumb":
		return domain.NewPipelineID("video")
	default:
		return domain.NewPipelineID(queueName)
	}
}
