package worker

import (
	"context"

	"github.com/mforney/docpipe/internal/domain"
)

// Output is one artifact produced by a conversion.
type Output struct {
	Format      domain.DocumentFormat
	Path        string
	ContentType string
}

// Converter turns a job's input file into one or more output artifacts.
// Implementations receive the job for its parameters and must write outputs
// under workDir.
type Converter interface {
	Convert(ctx context.Context, job *domain.QueuedJob, inputPath, workDir string) ([]Output, error)
}
