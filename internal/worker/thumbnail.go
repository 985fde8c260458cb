package worker

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mforney/docpipe/internal/domain"
	"golang.org/x/image/draw"
)

// thumbSize is one named resize target parsed from the queue's "sizes"
// parameter ("small:200x200|large:800x800").
type thumbSize struct {
	name   string
	width  int
	height int
}

// ThumbnailConverter scales raster images into the thumbnail formats.
// Aspect ratio is preserved; the size names the bounding box.
type ThumbnailConverter struct{}

func NewThumbnailConverter() *ThumbnailConverter {
	return &ThumbnailConverter{}
}

func (c *ThumbnailConverter) Convert(ctx context.Context, job *domain.QueuedJob, inputPath, workDir string) ([]Output, error) {
	sizes, err := parseSizes(job.Parameters["sizes"])
	if err != nil {
		return nil, err
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer in.Close()
	src, _, err := image.Decode(in)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	outputs := make([]Output, 0, len(sizes))
	for _, size := range sizes {
		format, ok := thumbFormat(size.name)
		if !ok {
			return nil, fmt.Errorf("unknown thumbnail size name %q", size.name)
		}
		scaled := scaleToFit(src, size.width, size.height)
		outPath := filepath.Join(workDir, fmt.Sprintf("thumb_%s.png", size.name))
		if err := writePng(outPath, scaled); err != nil {
			return nil, err
		}
		outputs = append(outputs, Output{Format: format, Path: outPath, ContentType: "image/png"})
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return outputs, nil
}

func thumbFormat(name string) (domain.DocumentFormat, bool) {
	switch name {
	case "small":
		return domain.FormatThumbSmall, true
	case "large":
		return domain.FormatThumbLarge, true
	default:
		return "", false
	}
}

func parseSizes(raw string) ([]thumbSize, error) {
	if strings.TrimSpace(raw) == "" {
		return []thumbSize{
			{name: "small", width: 200, height: 200},
			{name: "large", width: 800, height: 800},
		}, nil
	}
	var sizes []thumbSize
	for _, part := range strings.Split(raw, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		nameDims := strings.SplitN(part, ":", 2)
		if len(nameDims) != 2 {
			return nil, fmt.Errorf("invalid size spec %q", part)
		}
		dims := strings.SplitN(nameDims[1], "x", 2)
		if len(dims) != 2 {
			return nil, fmt.Errorf("invalid size spec %q", part)
		}
		width, werr := strconv.Atoi(dims[0])
		height, herr := strconv.Atoi(dims[1])
		if werr != nil || herr != nil || width < 1 || height < 1 {
			return nil, fmt.Errorf("invalid size spec %q", part)
		}
		sizes = append(sizes, thumbSize{name: strings.ToLower(nameDims[0]), width: width, height: height})
	}
	return sizes, nil
}

// scaleToFit scales src to fit inside width x height, preserving aspect
// ratio. Images already smaller than the box are returned unscaled.
func scaleToFit(src image.Image, width, height int) image.Image {
	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW <= width && srcH <= height {
		return src
	}

	ratioW := float64(width) / float64(srcW)
	ratioH := float64(height) / float64(srcH)
	ratio := ratioW
	if ratioH < ratio {
		ratio = ratioH
	}
	dstW := int(float64(srcW) * ratio)
	dstH := int(float64(srcH) * ratio)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

func writePng(path string, img image.Image) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create thumbnail file: %w", err)
	}
	defer out.Close()
	if err := png.Encode(out, img); err != nil {
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return nil
}
