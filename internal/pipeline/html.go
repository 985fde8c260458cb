package pipeline

import (
	"github.com/mforney/docpipe/internal/domain"
)

// HTMLPipeline archives web pages and html mail views to pdf. The pdf it
// produces flows on to the pdf consumers through the office family's
// chaining, the same as any other pdf.
type HTMLPipeline struct {
	base
}

func NewHTMLPipeline(requester JobRequester) *HTMLPipeline {
	return &HTMLPipeline{base: base{
		id:         domain.NewPipelineID("htmlzip"),
		queueName:  "htmlzip",
		extensions: []string{"html", "htm", "mht", "mhtml"},
		produces:   []domain.DocumentFormat{domain.FormatPdf},
		requester:  requester,
	}}
}
