package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mforney/docpipe/internal/domain"
	"github.com/mforney/docpipe/internal/logger"
)

// OfficeConverter shells out to LibreOffice to render office documents to
// pdf. The soffice process is bounded by the job context, so an abandoned
// lease also kills the conversion.
type OfficeConverter struct {
	sofficePath string
}

// NewOfficeConverter creates a converter using the soffice binary at path.
func NewOfficeConverter(sofficePath string) *OfficeConverter {
	return &OfficeConverter{sofficePath: sofficePath}
}

func (c *OfficeConverter) Convert(ctx context.Context, _ *domain.QueuedJob, inputPath, workDir string) ([]Output, error) {
	pdfPath, err := c.toPdf(ctx, inputPath, workDir)
	if err != nil {
		return nil, err
	}
	return []Output{{Format: domain.FormatPdf, Path: pdfPath, ContentType: "application/pdf"}}, nil
}

// toPdf runs one soffice conversion and returns the produced pdf path.
func (c *OfficeConverter) toPdf(ctx context.Context, inputPath, workDir string) (string, error) {
	outDir := filepath.Join(workDir, "pdf")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output folder: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.sofficePath,
		"--headless", "--norestore", "--convert-to", "pdf", "--outdir", outDir, inputPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("soffice conversion failed: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	logger.CtxDebug(ctx, "soffice output: %s", strings.TrimSpace(string(out)))

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	pdfPath := filepath.Join(outDir, base+".pdf")
	if _, err := os.Stat(pdfPath); err != nil {
		return "", fmt.Errorf("soffice reported success but produced no pdf: %w", err)
	}
	return pdfPath, nil
}
