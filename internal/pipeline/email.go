package pipeline

import (
	"context"

	"github.com/mforney/docpipe/internal/domain"
)

// EmailPipeline renders mail files (eml, msg) into a browsable html view,
// published as the email format. The html is then re-offered to the manager
// so the html family can carry it on to pdf.
type EmailPipeline struct {
	base
}

func NewEmailPipeline(requester JobRequester) *EmailPipeline {
	return &EmailPipeline{base: base{
		id:         domain.NewPipelineID("email"),
		queueName:  "email",
		extensions: []string{"eml", "msg"},
		produces:   []domain.DocumentFormat{domain.FormatEmail},
		requester:  requester,
	}}
}

// FormatAvailable chains the rendered html view into the html family.
func (p *EmailPipeline) FormatAvailable(ctx context.Context, ref FileRef) error {
	if !ref.Format.Equals(domain.FormatEmail) {
		return nil
	}
	p.manager.Start(ctx, ref)
	return nil
}
