package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mforney/docpipe/internal/domain"
	"github.com/mforney/docpipe/internal/logger"
	"github.com/mforney/docpipe/internal/queue"
)

// formatExtensions maps produced formats to the file extension their blobs
// carry, which is what queue extension filters and pipeline allow-lists see
// when chaining re-dispatches an output.
var formatExtensions = map[domain.DocumentFormat]string{
	domain.FormatPdf:        "pdf",
	domain.FormatTika:       "txt",
	domain.FormatHTML:       "html",
	domain.FormatEmail:      "html",
	domain.FormatThumbSmall: "png",
	domain.FormatThumbLarge: "png",
}

// Manager owns the registered pipelines and fans stream events out to them.
// It implements queue.StreamListener: new documents are offered to every
// pipeline's ShouldHandleFile, and newly available formats are announced
// through FormatAvailable so pipelines can chain further conversions.
type Manager struct {
	pipelines map[domain.PipelineID]Pipeline
	order     []Pipeline
}

func NewManager() *Manager {
	return &Manager{pipelines: make(map[domain.PipelineID]Pipeline)}
}

// Register adds a pipeline and hands it the manager for chaining.
func (m *Manager) Register(p Pipeline) error {
	if _, dup := m.pipelines[p.ID()]; dup {
		return fmt.Errorf("duplicate pipeline id %q", p.ID())
	}
	m.pipelines[p.ID()] = p
	m.order = append(m.order, p)
	p.Attach(m)
	return nil
}

// OnStreamEvent dispatches one stream entry to the pipelines. Errors from a
// pipeline are logged and do not block the others: the queue engine's own
// dispatch already happened, and a missed chain start is recovered on replay.
func (m *Manager) OnStreamEvent(ctx context.Context, event *domain.StreamEvent) {
	ref := FileRef{
		TenantID:   event.TenantID,
		DocumentID: event.DocumentID,
		BlobID:     event.BlobID,
		FileName:   event.FileName,
		Format:     event.Format,
		Formats:    event.Formats,
	}
	switch event.EventType {
	case domain.EventDocumentCreated:
		if ref.Format == "" {
			ref.Format = domain.FormatOriginal
		}
		m.Start(ctx, ref)
	case domain.EventFormatAdded:
		for _, p := range m.order {
			if err := p.FormatAvailable(ctx, ref); err != nil {
				logger.CtxError(ctx, "Pipeline %s failed to handle new format %s on document %s: %v",
					p.ID(), ref.Format, ref.DocumentID, err)
			}
		}
	}
}

// Start offers a file to every pipeline and starts the ones that claim it.
// Chaining pipelines call this with their own output, which is how a docx
// becomes a pdf and the pdf then becomes text and thumbnails.
func (m *Manager) Start(ctx context.Context, ref FileRef) {
	dctx := logger.SetDocumentID(ctx, ref.DocumentID)
	for _, p := range m.order {
		if !p.ShouldHandleFile(dctx, ref) {
			continue
		}
		if err := p.Start(dctx, ref); err != nil {
			logger.CtxError(dctx, "Pipeline %s failed to start on %s (blob %s): %v",
				p.ID(), ref.FileName, ref.BlobID, err)
			continue
		}
		logger.CtxInfo(dctx, "Pipeline %s started for %s (blob %s)", p.ID(), ref.FileName, ref.BlobID)
	}
}

// Get returns a registered pipeline by id.
func (m *Manager) Get(id domain.PipelineID) (Pipeline, bool) {
	p, ok := m.pipelines[id]
	return p, ok
}

// ValidateGraph rejects configurations where conversions can trigger each
// other forever. An edge A -> B exists when some format produced by A would,
// through the given queue rules, queue work for B's family; the resulting
// graph must be acyclic. The exclusion idiom in a queue's pipeline rule
// ("any pipeline but my own") is what normally breaks self-loops, so a
// missing exclusion surfaces here at startup instead of as runaway jobs.
func (m *Manager) ValidateGraph(infos []*queue.QueueInfo) error {
	queueOwner := make(map[string]Pipeline, len(m.order))
	for _, p := range m.order {
		queueOwner[p.QueueName()] = p
	}

	edges := make(map[domain.PipelineID][]domain.PipelineID)
	for _, p := range m.order {
		for _, format := range p.Produces() {
			ext, ok := formatExtensions[format]
			if !ok {
				continue
			}
			for _, info := range infos {
				owner, owned := queueOwner[info.Name]
				if !owned {
					continue
				}
				// Required formats are assumed satisfiable: the check must be
				// conservative about what can run, not about what will.
				if info.Match(p.ID(), ext, domain.FormatSet{format, domain.FormatOriginal}) {
					edges[p.ID()] = append(edges[p.ID()], owner.ID())
				}
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[domain.PipelineID]int)
	var visit func(id domain.PipelineID, trail []domain.PipelineID) error
	visit = func(id domain.PipelineID, trail []domain.PipelineID) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("pipeline cycle detected: %s -> %s",
				joinIDs(trail), id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, next := range edges[id] {
			if err := visit(next, append(trail, id)); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}
	for _, p := range m.order {
		if err := visit(p.ID(), nil); err != nil {
			return err
		}
	}
	return nil
}

func joinIDs(ids []domain.PipelineID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, " -> ")
}

func fileExtension(fileName string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
}
