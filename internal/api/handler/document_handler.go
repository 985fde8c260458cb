package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mforney/docpipe/internal/domain"
	"github.com/mforney/docpipe/internal/logger"
	"github.com/mforney/docpipe/internal/repository"
	"github.com/mforney/docpipe/internal/storage"
)

// Poller requests an immediate stream poll.
type Poller interface {
	PollNow()
}

// DocumentHandler ingests documents in local single-binary mode: the upload
// becomes an original-format blob plus the stream events that set the
// conversion machinery in motion. Deployments with an external domain layer
// do not mount these routes.
type DocumentHandler struct {
	blobs  *storage.BlobStore
	stream *repository.StreamRepository
	poller Poller
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(blobs *storage.BlobStore, stream *repository.StreamRepository, poller Poller) *DocumentHandler {
	return &DocumentHandler{blobs: blobs, stream: stream, poller: poller}
}

// Create accepts a multipart upload (tenant_id, optional document_id, file)
// and emits document_created plus format_added(original) to the stream.
func (h *DocumentHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	tenantID := strings.TrimSpace(c.PostForm("tenant_id"))
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}
	documentID := strings.TrimSpace(c.PostForm("document_id"))
	if documentID == "" {
		documentID = uuid.New().String()
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	ctx = logger.SetTenantID(ctx, tenantID)
	ctx = logger.SetDocumentID(ctx, documentID)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	blobID, err := h.blobs.Upload(ctx, domain.FormatOriginal, file, header.Size, contentType)
	if err != nil {
		logger.CtxError(ctx, "Failed to store original blob: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store document"})
		return
	}

	events := []*domain.StreamEvent{
		{
			TenantID:   tenantID,
			EventType:  domain.EventDocumentCreated,
			DocumentID: documentID,
			Format:     domain.FormatOriginal,
			BlobID:     blobID,
			FileName:   header.Filename,
			Formats:    domain.FormatSet{domain.FormatOriginal},
		},
		{
			TenantID:   tenantID,
			EventType:  domain.EventFormatAdded,
			DocumentID: documentID,
			Format:     domain.FormatOriginal,
			BlobID:     blobID,
			FileName:   header.Filename,
			Formats:    domain.FormatSet{domain.FormatOriginal},
		},
	}
	for _, event := range events {
		if err := h.stream.Append(ctx, event); err != nil {
			logger.CtxError(ctx, "Failed to append ingestion event: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record document"})
			return
		}
	}
	if h.poller != nil {
		h.poller.PollNow()
	}

	logger.CtxInfo(ctx, "Document ingested: %s (blob %s)", header.Filename, blobID)
	c.JSON(http.StatusCreated, gin.H{
		"tenant_id":   tenantID,
		"document_id": documentID,
		"blob_id":     blobID,
		"file_name":   header.Filename,
	})
}
