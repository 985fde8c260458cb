package command

import (
	"context"
	"fmt"

	"github.com/mforney/docpipe/internal/domain"
	"github.com/mforney/docpipe/internal/logger"
	"github.com/mforney/docpipe/internal/repository"
)

// Poller lets the bus nudge the queue engine after appending an event so
// local mode reacts immediately instead of waiting for the next tick.
type Poller interface {
	PollNow()
}

// LocalBus closes the conversion loop inside one process: outcomes become
// stream events in the same database the queue engine polls.
type LocalBus struct {
	stream *repository.StreamRepository
	poller Poller
}

func NewLocalBus(stream *repository.StreamRepository, poller Poller) *LocalBus {
	return &LocalBus{stream: stream, poller: poller}
}

func (b *LocalBus) AddFormatToDocument(ctx context.Context, cmd AddFormatToDocument) error {
	formats, err := b.stream.FormatsOf(ctx, cmd.TenantID, cmd.DocumentID)
	if err != nil {
		return err
	}
	if !formats.Contains(cmd.Format) {
		formats = append(formats, cmd.Format)
	}
	event := &domain.StreamEvent{
		TenantID:   cmd.TenantID,
		EventType:  domain.EventFormatAdded,
		DocumentID: cmd.DocumentID,
		Format:     cmd.Format,
		BlobID:     cmd.BlobID,
		PipelineID: cmd.PipelineID,
		FileName:   cmd.FileName,
		Formats:    formats,
	}
	if err := b.stream.Append(ctx, event); err != nil {
		return fmt.Errorf("failed to record format %s on document %s: %w", cmd.Format, cmd.DocumentID, err)
	}
	logger.CtxInfo(ctx, "Format %s added to document %s (blob %s)", cmd.Format, cmd.DocumentID, cmd.BlobID)
	if b.poller != nil {
		b.poller.PollNow()
	}
	return nil
}

func (b *LocalBus) MarkConversionFailed(ctx context.Context, cmd MarkConversionFailed) error {
	logger.CtxWarn(ctx, "Conversion failed on queue %s for document %s: %s",
		cmd.QueueName, cmd.DocumentID, cmd.Message)
	return nil
}
