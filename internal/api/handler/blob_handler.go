package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mforney/docpipe/internal/domain"
	"github.com/mforney/docpipe/internal/storage"
)

// BlobHandler exposes blob upload and download. Workers use it to fetch job
// inputs and publish conversion outputs.
type BlobHandler struct {
	blobs *storage.BlobStore
}

// NewBlobHandler creates a new blob handler.
func NewBlobHandler(blobs *storage.BlobStore) *BlobHandler {
	return &BlobHandler{blobs: blobs}
}

// Upload stores the request body as a new blob of the given format and
// returns its descriptor. The id embeds the format prefix.
func (h *BlobHandler) Upload(c *gin.Context) {
	format := domain.NewDocumentFormat(c.Param("format"))
	if format == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format is required"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	blobID, err := h.blobs.Upload(c.Request.Context(), format, file, header.Size, contentType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store blob"})
		return
	}
	c.JSON(http.StatusCreated, storage.BlobDescriptor{
		BlobID:      blobID,
		FileName:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
	})
}

// Download streams a blob's content.
func (h *BlobHandler) Download(c *gin.Context) {
	blobID, err := domain.ParseBlobID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid blob id"})
		return
	}
	desc, err := h.blobs.GetDescriptor(c.Request.Context(), blobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "blob not found"})
		return
	}
	body, err := h.blobs.Download(c.Request.Context(), blobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open blob"})
		return
	}
	defer body.Close()
	c.DataFromReader(http.StatusOK, desc.Size, desc.ContentType, body, nil)
}

// Descriptor returns a blob's metadata without its content.
func (h *BlobHandler) Descriptor(c *gin.Context) {
	blobID, err := domain.ParseBlobID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid blob id"})
		return
	}
	desc, err := h.blobs.GetDescriptor(c.Request.Context(), blobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "blob not found"})
		return
	}
	c.JSON(http.StatusOK, desc)
}
