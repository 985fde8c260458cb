package command

import (
	"context"

	"github.com/mforney/docpipe/internal/domain"
)

// AddFormatToDocument announces a finished conversion: the blob holds the
// new format of the document and should be attached to it. Dispatching the
// resulting stream event is what drives the next conversion hop.
type AddFormatToDocument struct {
	TenantID   string                `json:"tenant_id"`
	DocumentID string                `json:"document_id"`
	Format     domain.DocumentFormat `json:"format"`
	BlobID     domain.BlobID         `json:"blob_id"`
	PipelineID domain.PipelineID     `json:"pipeline_id"`
	FileName   string                `json:"file_name"`
}

// MarkConversionFailed reports that a conversion could not produce its
// format, for the document owner to surface.
type MarkConversionFailed struct {
	TenantID   string `json:"tenant_id"`
	DocumentID string `json:"document_id"`
	QueueName  string `json:"queue_name"`
	Message    string `json:"message"`
}

// Bus delivers conversion outcomes to the document owner. In a deployment
// with an external domain layer this is an HTTP call; in local single-binary
// mode the outcome is appended straight to the event stream.
type Bus interface {
	AddFormatToDocument(ctx context.Context, cmd AddFormatToDocument) error
	MarkConversionFailed(ctx context.Context, cmd MarkConversionFailed) error
}
