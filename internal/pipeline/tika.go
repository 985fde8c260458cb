package pipeline

import (
	"github.com/mforney/docpipe/internal/domain"
)

// TikaPipeline extracts plain text from pdfs and office documents. It is a
// terminal family: its output triggers no further conversion.
type TikaPipeline struct {
	base
}

func NewTikaPipeline(requester JobRequester) *TikaPipeline {
	return &TikaPipeline{base: base{
		id:        domain.NewPipelineID("tika"),
		queueName: "tika",
		extensions: []string{
			"pdf", "xls", "xlsx", "docx", "doc", "ppt", "pptx", "pps", "ppsx", "rtf", "odt", "ods", "odp",
		},
		produces:  []domain.DocumentFormat{domain.FormatTika},
		requester: requester,
	}}
}
