package pipeline

import (
	"context"

	"github.com/mforney/docpipe/internal/domain"
)

// FileRef identifies one concrete artifact of a document as seen by the
// pipelines: the blob holding it, its logical file name, the format it
// represents, and the formats already existing on the document.
type FileRef struct {
	TenantID   string
	DocumentID string
	BlobID     domain.BlobID
	FileName   string
	Format     domain.DocumentFormat
	Formats    domain.FormatSet
}

// JobRequest asks for a conversion job to be queued. Requests share the
// queue engine's dedupe key, so a request for work that a stream event
// already created is absorbed.
type JobRequest struct {
	TenantID    string
	DocumentID  string
	QueueName   string
	InputFormat domain.DocumentFormat
	BlobID      domain.BlobID
	FileName    string
}

// JobRequester queues conversion work on behalf of a pipeline.
type JobRequester interface {
	RequestJob(ctx context.Context, req JobRequest) error
}

// Pipeline is one conversion family. It decides which files it is
// interested in, starts the family's first conversion, and reacts to any
// newly available format — possibly by starting a different pipeline, which
// is how multi-hop conversions chain without a central conversion list.
type Pipeline interface {
	ID() domain.PipelineID
	// QueueName is the queue feeding this family's workers.
	QueueName() string
	// Extensions is the family's file-extension allow-list.
	Extensions() []string
	// Produces lists the formats this family's conversions emit, used for
	// load-time cycle validation of the pipeline graph.
	Produces() []domain.DocumentFormat

	ShouldHandleFile(ctx context.Context, ref FileRef) bool
	Start(ctx context.Context, ref FileRef) error
	FormatAvailable(ctx context.Context, ref FileRef) error

	// Attach hands the pipeline its manager for chaining. Called once at
	// registration.
	Attach(manager *Manager)
}

// base carries the state shared by all built-in pipelines.
type base struct {
	id         domain.PipelineID
	queueName  string
	extensions []string
	produces   []domain.DocumentFormat
	requester  JobRequester
	manager    *Manager
}

func (b *base) ID() domain.PipelineID             { return b.id }
func (b *base) QueueName() string                 { return b.queueName }
func (b *base) Extensions() []string              { return b.extensions }
func (b *base) Produces() []domain.DocumentFormat { return b.produces }
func (b *base) Attach(manager *Manager)           { b.manager = manager }

// ShouldHandleFile is the default extension allow-list test.
func (b *base) ShouldHandleFile(_ context.Context, ref FileRef) bool {
	ext := fileExtension(ref.FileName)
	for _, allowed := range b.extensions {
		if allowed == ext {
			return true
		}
	}
	return false
}

// Start queues the family's first conversion for the file.
func (b *base) Start(ctx context.Context, ref FileRef) error {
	return b.requester.RequestJob(ctx, JobRequest{
		TenantID:    ref.TenantID,
		DocumentID:  ref.DocumentID,
		QueueName:   b.queueName,
		InputFormat: ref.Format,
		BlobID:      ref.BlobID,
		FileName:    ref.FileName,
	})
}

// FormatAvailable is a no-op by default; chaining pipelines override it.
func (b *base) FormatAvailable(_ context.Context, _ FileRef) error {
	return nil
}
