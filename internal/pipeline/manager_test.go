package pipeline

import (
	"context"
	"testing"

	"github.com/mforney/docpipe/internal/config"
	"github.com/mforney/docpipe/internal/domain"
	"github.com/mforney/docpipe/internal/queue"
)

type fakeRequester struct {
	requests []JobRequest
}

func (f *fakeRequester) RequestJob(_ context.Context, req JobRequest) error {
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeRequester) queues() []string {
	names := make([]string, len(f.requests))
	for i, req := range f.requests {
		names[i] = req.QueueName
	}
	return names
}

func newTestManager(t *testing.T) (*Manager, *fakeRequester) {
	t.Helper()
	requester := &fakeRequester{}
	m := NewManager()
	for _, p := range []Pipeline{
		NewOfficePipeline(requester),
		NewTikaPipeline(requester),
		NewImagePipeline(requester),
		NewVideoPipeline(requester),
		NewEmailPipeline(requester),
		NewHTMLPipeline(requester),
	} {
		if err := m.Register(p); err != nil {
			t.Fatalf("Register(%s) failed: %v", p.ID(), err)
		}
	}
	return m, requester
}

func defaultInfos(t *testing.T) []*queue.QueueInfo {
	t.Helper()
	var infos []*queue.QueueInfo
	for _, cfg := range config.DefaultQueues() {
		info, err := queue.NewQueueInfo(cfg)
		if err != nil {
			t.Fatalf("default queue %q does not compile: %v", cfg.Name, err)
		}
		infos = append(infos, info)
	}
	return infos
}

func TestNewDocxStartsOfficeAndTika(t *testing.T) {
	m, requester := newTestManager(t)

	m.OnStreamEvent(context.Background(), &domain.StreamEvent{
		EventType:  domain.EventDocumentCreated,
		TenantID:   "acme",
		DocumentID: "doc-1",
		BlobID:     "original.1",
		FileName:   "contract.docx",
	})

	queues := requester.queues()
	if len(queues) != 2 || queues[0] != "office" || queues[1] != "tika" {
		t.Fatalf("requested queues = %v, want [office tika]", queues)
	}
	for _, req := range requester.requests {
		if req.InputFormat != domain.FormatOriginal {
			t.Errorf("request on %s has input format %s, want original", req.QueueName, req.InputFormat)
		}
		if req.BlobID != "original.1" {
			t.Errorf("request on %s has blob %s, want original.1", req.QueueName, req.BlobID)
		}
	}
}

func TestPdfFromOfficeChainsIntoTikaOnly(t *testing.T) {
	m, requester := newTestManager(t)

	m.OnStreamEvent(context.Background(), &domain.StreamEvent{
		EventType:  domain.EventFormatAdded,
		TenantID:   "acme",
		DocumentID: "doc-1",
		Format:     domain.FormatPdf,
		BlobID:     "pdf.7",
		PipelineID: "office",
		FileName:   "contract.pdf",
	})

	queues := requester.queues()
	if len(queues) != 1 || queues[0] != "tika" {
		t.Fatalf("requested queues = %v, want [tika]: the office family must not reclaim its own pdf", queues)
	}
	if requester.requests[0].InputFormat != domain.FormatPdf {
		t.Errorf("chained request input format = %s, want pdf", requester.requests[0].InputFormat)
	}
}

func TestEmailViewChainsIntoHTMLFamily(t *testing.T) {
	m, requester := newTestManager(t)

	m.OnStreamEvent(context.Background(), &domain.StreamEvent{
		EventType:  domain.EventFormatAdded,
		TenantID:   "acme",
		DocumentID: "doc-2",
		Format:     domain.FormatEmail,
		BlobID:     "email.3",
		PipelineID: "email",
		FileName:   "message.html",
	})

	queues := requester.queues()
	if len(queues) != 1 || queues[0] != "htmlzip" {
		t.Fatalf("requested queues = %v, want [htmlzip]", queues)
	}
}

func TestThumbnailsTriggerNothing(t *testing.T) {
	m, requester := newTestManager(t)

	m.OnStreamEvent(context.Background(), &domain.StreamEvent{
		EventType:  domain.EventFormatAdded,
		TenantID:   "acme",
		DocumentID: "doc-3",
		Format:     domain.FormatThumbSmall,
		BlobID:     "thumb.small.9",
		PipelineID: "img",
		FileName:   "thumb_small.png",
	})

	if len(requester.requests) != 0 {
		t.Errorf("thumbnail availability requested %v, want no further conversions", requester.queues())
	}
}

func TestValidateGraphAcceptsDefaultConfiguration(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.ValidateGraph(defaultInfos(t)); err != nil {
		t.Errorf("default configuration rejected: %v", err)
	}
}

func TestValidateGraphRejectsSelfTriggeringQueue(t *testing.T) {
	m, _ := newTestManager(t)

	// An image queue without the self-exclusion rule would resize its own
	// thumbnails forever.
	cycling, err := queue.NewQueueInfo(config.QueueConfig{
		Name:       "imgresize",
		Extensions: "png|jpg|gif|jpeg",
	})
	if err != nil {
		t.Fatalf("NewQueueInfo failed: %v", err)
	}
	if err := m.ValidateGraph([]*queue.QueueInfo{cycling}); err == nil {
		t.Error("expected cycle error for self-triggering image queue")
	}
}

func TestRegisterRejectsDuplicateIDs(t *testing.T) {
	requester := &fakeRequester{}
	m := NewManager()
	if err := m.Register(NewTikaPipeline(requester)); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := m.Register(NewTikaPipeline(requester)); err == nil {
		t.Error("expected error for duplicate pipeline id")
	}
}
