package pipeline

import (
	"context"

	"github.com/mforney/docpipe/internal/domain"
)

// OfficePipeline converts office documents to pdf. When the pdf becomes
// available it re-offers it to the manager, chaining the pdf consumers
// (text extraction, thumbnails) without knowing who they are.
type OfficePipeline struct {
	base
}

func NewOfficePipeline(requester JobRequester) *OfficePipeline {
	return &OfficePipeline{base: base{
		id:        domain.NewPipelineID("office"),
		queueName: "office",
		extensions: []string{
			"xls", "xlsx", "docx", "doc", "ppt", "pptx", "pps", "ppsx", "rtf", "odt", "ods", "odp",
		},
		produces:  []domain.DocumentFormat{domain.FormatPdf},
		requester: requester,
	}}
}

// FormatAvailable chains on pdf. The manager's Start fans the pdf out by
// extension, so this pipeline never claims its own output.
func (p *OfficePipeline) FormatAvailable(ctx context.Context, ref FileRef) error {
	if !ref.Format.Equals(domain.FormatPdf) {
		return nil
	}
	p.manager.Start(ctx, ref)
	return nil
}
