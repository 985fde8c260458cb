package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mforney/docpipe/internal/domain"
	"github.com/mforney/docpipe/internal/logger"
	"github.com/mforney/docpipe/internal/queue"
	"github.com/mforney/docpipe/internal/repository"
)

// QueueHandler exposes the worker-facing queue endpoints.
type QueueHandler struct {
	manager  *queue.QueueManager
	jobs     *repository.JobRepository
	trackers *repository.TrackerRepository
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(manager *queue.QueueManager, jobs *repository.JobRepository, trackers *repository.TrackerRepository) *QueueHandler {
	return &QueueHandler{manager: manager, jobs: jobs, trackers: trackers}
}

// nextJobResponse is the claimed-job payload handed to a worker. The
// assignment id is the worker's lease token: every later lifecycle call must
// present it.
type nextJobResponse struct {
	Job       *domain.QueuedJob `json:"job"`
	TrackerID string            `json:"tracker_id,omitempty"`
}

// NextJob claims the oldest queued job of a queue for the calling worker.
// Responds 200 with the job, 204 when the queue is empty, 404 when no queue
// has that name.
func (h *QueueHandler) NextJob(c *gin.Context) {
	ctx := c.Request.Context()
	name := c.Param("name")

	job, err := h.manager.GetNextJob(ctx, name)
	if errors.Is(err, queue.ErrNoSuchQueue) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no queue configured with that name"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to claim next job"})
		return
	}
	if job == nil {
		c.Status(http.StatusNoContent)
		return
	}

	resp := nextJobResponse{Job: job}
	tracker, err := h.trackers.Start(ctx, job, name)
	if err != nil {
		// The claim stands; the attempt just goes untracked.
		logger.CtxError(ctx, "Failed to start tracker for job %s: %v", job.ID, err)
	} else {
		resp.TrackerID = tracker.ID
	}
	c.JSON(http.StatusOK, resp)
}

// queueStats summarizes one queue's job counts by status.
type queueStats struct {
	Name      string `json:"name"`
	Queued    int64  `json:"queued"`
	Assigned  int64  `json:"assigned"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
}

// ListQueues reports the configured queues with their job counts.
func (h *QueueHandler) ListQueues(c *gin.Context) {
	ctx := c.Request.Context()
	stats := make([]queueStats, 0)
	for _, name := range h.manager.QueueNames() {
		s := queueStats{Name: name}
		var err error
		if s.Queued, err = h.jobs.CountByStatus(ctx, name, domain.JobStatusQueued); err == nil {
			if s.Assigned, err = h.jobs.CountByStatus(ctx, name, domain.JobStatusAssigned); err == nil {
				if s.Completed, err = h.jobs.CountByStatus(ctx, name, domain.JobStatusCompleted); err == nil {
					s.Failed, err = h.jobs.CountByStatus(ctx, name, domain.JobStatusFailed)
				}
			}
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count jobs"})
			return
		}
		stats = append(stats, s)
	}
	c.JSON(http.StatusOK, gin.H{"queues": stats})
}

// PollNow requests an immediate stream poll, used by operators after
// backfilling events.
func (h *QueueHandler) PollNow(c *gin.Context) {
	h.manager.PollNow()
	c.Status(http.StatusAccepted)
}
