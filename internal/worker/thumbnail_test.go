package worker

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/mforney/docpipe/internal/domain"
)

func TestParseSizes(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []thumbSize
		wantErr bool
	}{
		{
			name: "standard two sizes",
			raw:  "small:200x200|large:800x800",
			want: []thumbSize{
				{name: "small", width: 200, height: 200},
				{name: "large", width: 800, height: 800},
			},
		},
		{
			name: "empty falls back to defaults",
			raw:  "",
			want: []thumbSize{
				{name: "small", width: 200, height: 200},
				{name: "large", width: 800, height: 800},
			},
		},
		{name: "missing dimensions", raw: "small", wantErr: true},
		{name: "non-numeric dimensions", raw: "small:axb", wantErr: true},
		{name: "zero dimension", raw: "small:0x200", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSizes(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseSizes(%q) succeeded, want error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSizes(%q) failed: %v", tt.raw, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseSizes(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("size %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestScaleToFitPreservesAspectRatio(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1000, 500))

	scaled := scaleToFit(src, 200, 200)
	bounds := scaled.Bounds()
	if bounds.Dx() != 200 || bounds.Dy() != 100 {
		t.Errorf("scaled to %dx%d, want 200x100", bounds.Dx(), bounds.Dy())
	}
}

func TestScaleToFitLeavesSmallImagesAlone(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 50, 50))
	if got := scaleToFit(src, 200, 200); got != src {
		t.Error("small image was rescaled, want it returned unchanged")
	}
}

func TestThumbnailConvert(t *testing.T) {
	workDir := t.TempDir()
	inputPath := filepath.Join(workDir, "photo.png")
	out, err := os.Create(inputPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(out, image.NewRGBA(image.Rect(0, 0, 640, 480))); err != nil {
		t.Fatal(err)
	}
	out.Close()

	job := &domain.QueuedJob{Parameters: domain.ParamMap{"sizes": "small:100x100|large:400x400"}}
	outputs, err := NewThumbnailConverter().Convert(context.Background(), job, inputPath, workDir)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if len(outputs) != 2 {
		t.Fatalf("got %d outputs, want 2", len(outputs))
	}
	if outputs[0].Format != domain.FormatThumbSmall || outputs[1].Format != domain.FormatThumbLarge {
		t.Errorf("output formats = %s, %s, want thumb.small, thumb.large", outputs[0].Format, outputs[1].Format)
	}
	for _, o := range outputs {
		if _, err := os.Stat(o.Path); err != nil {
			t.Errorf("output %s missing on disk: %v", o.Format, err)
		}
	}
}

func TestThumbnailConvertRejectsUnknownSizeName(t *testing.T) {
	workDir := t.TempDir()
	inputPath := filepath.Join(workDir, "photo.png")
	out, err := os.Create(inputPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(out, image.NewRGBA(image.Rect(0, 0, 10, 10))); err != nil {
		t.Fatal(err)
	}
	out.Close()

	job := &domain.QueuedJob{Parameters: domain.ParamMap{"sizes": "huge:4000x4000"}}
	if _, err := NewThumbnailConverter().Convert(context.Background(), job, inputPath, workDir); err == nil {
		t.Error("expected error for size name with no matching format")
	}
}
