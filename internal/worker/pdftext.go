package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/mforney/docpipe/internal/domain"
)

// TextConverter extracts plain text from pdfs, feeding the tika format used
// for search indexing. Office inputs are rendered to pdf first through the
// shared soffice runner, so the tika queue can accept office documents
// directly when no pdf exists yet.
type TextConverter struct {
	office *OfficeConverter
}

// NewTextConverter creates a converter; office may be nil when only pdf
// inputs are expected.
func NewTextConverter(office *OfficeConverter) *TextConverter {
	return &TextConverter{office: office}
}

func (c *TextConverter) Convert(ctx context.Context, _ *domain.QueuedJob, inputPath, workDir string) ([]Output, error) {
	pdfPath := inputPath
	if !strings.EqualFold(filepath.Ext(inputPath), ".pdf") {
		if c.office == nil {
			return nil, fmt.Errorf("input %s is not a pdf and no office converter is configured", filepath.Base(inputPath))
		}
		var err error
		pdfPath, err = c.office.toPdf(ctx, inputPath, workDir)
		if err != nil {
			return nil, err
		}
	}

	text, err := extractText(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}

	outPath := filepath.Join(workDir, "tika.txt")
	if err := os.WriteFile(outPath, []byte(text), 0644); err != nil {
		return nil, fmt.Errorf("failed to write text output: %w", err)
	}
	return []Output{{Format: domain.FormatTika, Path: outPath, ContentType: "text/plain; charset=utf-8"}}, nil
}

func extractText(pdfPath string) (string, error) {
	f, reader, err := pdf.Open(pdfPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	body, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(&sb, body); err != nil {
		return "", err
	}
	return sb.String(), nil
}
