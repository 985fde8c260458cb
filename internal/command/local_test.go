package command

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mforney/docpipe/internal/domain"
	"github.com/mforney/docpipe/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type countingPoller struct {
	polls int
}

func (p *countingPoller) PollNow() { p.polls++ }

func testStream(t *testing.T) *repository.StreamRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "stream.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&domain.StreamEvent{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return repository.NewStreamRepository(db)
}

func TestLocalBusAppendsFormatAdded(t *testing.T) {
	stream := testStream(t)
	poller := &countingPoller{}
	bus := NewLocalBus(stream, poller)
	ctx := context.Background()

	seed := &domain.StreamEvent{
		TenantID:   "acme",
		EventType:  domain.EventFormatAdded,
		DocumentID: "doc-1",
		Format:     domain.FormatOriginal,
		BlobID:     "original.1",
		FileName:   "report.docx",
	}
	if err := stream.Append(ctx, seed); err != nil {
		t.Fatal(err)
	}

	err := bus.AddFormatToDocument(ctx, AddFormatToDocument{
		TenantID:   "acme",
		DocumentID: "doc-1",
		Format:     domain.FormatPdf,
		BlobID:     "pdf.1",
		PipelineID: "office",
		FileName:   "report.pdf",
	})
	if err != nil {
		t.Fatalf("AddFormatToDocument failed: %v", err)
	}

	events, err := stream.ReadBatch(ctx, "acme", seed.Sequence, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d new events, want 1", len(events))
	}
	event := events[0]
	if event.EventType != domain.EventFormatAdded || event.Format != domain.FormatPdf {
		t.Errorf("event = %+v, want format_added pdf", event)
	}
	if event.PipelineID != "office" {
		t.Errorf("event pipeline = %s, want office", event.PipelineID)
	}
	if !event.Formats.Contains(domain.FormatOriginal) || !event.Formats.Contains(domain.FormatPdf) {
		t.Errorf("event formats = %v, want the folded set with original and pdf", event.Formats)
	}
	if poller.polls != 1 {
		t.Errorf("poller nudged %d times, want 1", poller.polls)
	}
}

func TestFormatsOfFoldsDeletions(t *testing.T) {
	stream := testStream(t)
	ctx := context.Background()

	for _, event := range []*domain.StreamEvent{
		{TenantID: "acme", EventType: domain.EventFormatAdded, DocumentID: "doc-1", Format: domain.FormatOriginal},
		{TenantID: "acme", EventType: domain.EventFormatAdded, DocumentID: "doc-1", Format: domain.FormatPdf},
		{TenantID: "acme", EventType: domain.EventFormatDeleted, DocumentID: "doc-1", Format: domain.FormatPdf},
	} {
		if err := stream.Append(ctx, event); err != nil {
			t.Fatal(err)
		}
	}

	formats, err := stream.FormatsOf(ctx, "acme", "doc-1")
	if err != nil {
		t.Fatalf("FormatsOf failed: %v", err)
	}
	if !formats.Contains(domain.FormatOriginal) {
		t.Errorf("formats = %v, want original retained", formats)
	}
	if formats.Contains(domain.FormatPdf) {
		t.Errorf("formats = %v, want deleted pdf excluded", formats)
	}
}
