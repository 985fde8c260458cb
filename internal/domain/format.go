package domain

import "strings"

// DocumentFormat is the logical name of a derived artifact kind
// (original, pdf, tika, thumb.small, ...). Formats are lowercase and
// compared case-insensitively; the zero value means "no format".
type DocumentFormat string

// Well-known formats produced by the built-in pipelines.
const (
	FormatOriginal   DocumentFormat = "original"
	FormatPdf        DocumentFormat = "pdf"
	FormatTika       DocumentFormat = "tika"
	FormatHTML       DocumentFormat = "html"
	FormatEmail      DocumentFormat = "email"
	FormatThumbSmall DocumentFormat = "thumb.small"
	FormatThumbLarge DocumentFormat = "thumb.large"
)

// NewDocumentFormat normalizes a format tag to its canonical lowercase form.
func NewDocumentFormat(s string) DocumentFormat {
	return DocumentFormat(strings.ToLower(strings.TrimSpace(s)))
}

// Equals compares two formats case-insensitively.
func (f DocumentFormat) Equals(other DocumentFormat) bool {
	return strings.EqualFold(string(f), string(other))
}

func (f DocumentFormat) String() string {
	return string(f)
}

// PipelineID names a registered processing pipeline (office, tika, img, ...).
type PipelineID string

func NewPipelineID(s string) PipelineID {
	return PipelineID(strings.ToLower(strings.TrimSpace(s)))
}

func (p PipelineID) String() string {
	return string(p)
}
