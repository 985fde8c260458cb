package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mforney/docpipe/internal/domain"
)

// VideoThumbConverter extracts a poster frame from video files with ffmpeg
// and publishes it as the large thumbnail.
type VideoThumbConverter struct {
	ffmpegPath string
}

// NewVideoThumbConverter creates a converter; path defaults to "ffmpeg" on
// PATH when empty.
func NewVideoThumbConverter(ffmpegPath string) *VideoThumbConverter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &VideoThumbConverter{ffmpegPath: ffmpegPath}
}

func (c *VideoThumbConverter) Convert(ctx context.Context, job *domain.QueuedJob, inputPath, workDir string) ([]Output, error) {
	ext := job.Parameters["thumb_format"]
	if ext == "" {
		ext = "jpg"
	}
	outPath := filepath.Join(workDir, "poster."+ext)

	// Grab a frame a few seconds in; frame zero is often black.
	cmd := exec.CommandContext(ctx, c.ffmpegPath,
		"-y", "-ss", "00:00:03", "-i", inputPath, "-frames:v", "1", outPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame extraction failed: %w (%s)", err, lastLine(string(out)))
	}
	if _, err := os.Stat(outPath); err != nil {
		return nil, fmt.Errorf("ffmpeg produced no frame: %w", err)
	}

	contentType := "image/jpeg"
	if ext == "png" {
		contentType = "image/png"
	}
	return []Output{{Format: domain.FormatThumbLarge, Path: outPath, ContentType: contentType}}, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
