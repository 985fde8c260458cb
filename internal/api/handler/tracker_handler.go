package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mforney/docpipe/internal/repository"
)

// TrackerHandler exposes the per-attempt diagnostic records.
type TrackerHandler struct {
	trackers *repository.TrackerRepository
}

// NewTrackerHandler creates a new tracker handler.
func NewTrackerHandler(trackers *repository.TrackerRepository) *TrackerHandler {
	return &TrackerHandler{trackers: trackers}
}

// ListRecent returns the latest trackers, newest first.
func (h *TrackerHandler) ListRecent(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = parsed
	}
	trackers, err := h.trackers.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list trackers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trackers": trackers, "count": len(trackers)})
}
