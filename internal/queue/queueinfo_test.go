package queue

import (
	"testing"

	"github.com/mforney/docpipe/internal/config"
	"github.com/mforney/docpipe/internal/domain"
)

func mustQueueInfo(t *testing.T, cfg config.QueueConfig) *QueueInfo {
	t.Helper()
	info, err := NewQueueInfo(cfg)
	if err != nil {
		t.Fatalf("NewQueueInfo(%q) failed: %v", cfg.Name, err)
	}
	return info
}

func TestQueueInfoMatch(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.QueueConfig
		pipeline  string
		extension string
		formats   domain.FormatSet
		want      bool
	}{
		{
			name:      "extension in list",
			cfg:       config.QueueConfig{Name: "office", Extensions: "docx|xlsx"},
			extension: "docx",
			want:      true,
		},
		{
			name:      "extension not in list",
			cfg:       config.QueueConfig{Name: "office", Extensions: "docx|xlsx"},
			extension: "pdf",
			want:      false,
		},
		{
			name:      "extension compared case-insensitively",
			cfg:       config.QueueConfig{Name: "office", Extensions: "docx"},
			extension: "DOCX",
			want:      true,
		},
		{
			name:      "empty extension list matches everything",
			cfg:       config.QueueConfig{Name: "all"},
			extension: "xyz",
			want:      true,
		},
		{
			name:      "exclusion idiom rejects own pipeline",
			cfg:       config.QueueConfig{Name: "imgresize", Pipeline: "^(?!img$).*", Extensions: "png|jpg"},
			pipeline:  "img",
			extension: "png",
			want:      false,
		},
		{
			name:      "exclusion idiom rejects own pipeline case-insensitively",
			cfg:       config.QueueConfig{Name: "imgresize", Pipeline: "^(?!img$).*", Extensions: "png|jpg"},
			pipeline:  "IMG",
			extension: "png",
			want:      false,
		},
		{
			name:      "exclusion idiom accepts other pipelines",
			cfg:       config.QueueConfig{Name: "imgresize", Pipeline: "^(?!img$).*", Extensions: "png|jpg"},
			pipeline:  "office",
			extension: "jpg",
			want:      true,
		},
		{
			name:      "exclusion idiom accepts empty pipeline",
			cfg:       config.QueueConfig{Name: "imgresize", Pipeline: "^(?!img$).*", Extensions: "png|jpg"},
			pipeline:  "",
			extension: "png",
			want:      true,
		},
		{
			name:      "plain regex pipeline rule",
			cfg:       config.QueueConfig{Name: "archive", Pipeline: "office|htmlzip", Extensions: "pdf"},
			pipeline:  "htmlzip",
			extension: "pdf",
			want:      true,
		},
		{
			name:      "plain regex pipeline rule rejects others",
			cfg:       config.QueueConfig{Name: "archive", Pipeline: "^office$", Extensions: "pdf"},
			pipeline:  "tika",
			extension: "pdf",
			want:      false,
		},
		{
			name: "exclusion with extensions and required format accepts matching file",
			cfg: config.QueueConfig{
				Name: "imgresize", Pipeline: "^(?!img$).*", Extensions: "png|jpg", Formats: "original",
			},
			pipeline:  "tika",
			extension: "png",
			formats:   domain.FormatSet{domain.FormatOriginal},
			want:      true,
		},
		{
			name: "extension outside list rejected regardless of pipeline",
			cfg: config.QueueConfig{
				Name: "imgresize", Pipeline: "^(?!img$).*", Extensions: "png|jpg", Formats: "original",
			},
			pipeline:  "tika",
			extension: "gif",
			formats:   domain.FormatSet{domain.FormatOriginal},
			want:      false,
		},
		{
			name:      "required format present",
			cfg:       config.QueueConfig{Name: "late", Extensions: "png", Formats: "original"},
			extension: "png",
			formats:   domain.FormatSet{domain.FormatOriginal},
			want:      true,
		},
		{
			name:      "required format missing",
			cfg:       config.QueueConfig{Name: "late", Extensions: "png", Formats: "original|pdf"},
			extension: "png",
			formats:   domain.FormatSet{domain.FormatOriginal},
			want:      false,
		},
		{
			name:      "required format compared case-insensitively",
			cfg:       config.QueueConfig{Name: "late", Extensions: "png", Formats: "Original"},
			extension: "png",
			formats:   domain.FormatSet{"ORIGINAL"},
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := mustQueueInfo(t, tt.cfg)
			got := info.Match(domain.PipelineID(tt.pipeline), tt.extension, tt.formats)
			if got != tt.want {
				t.Errorf("Match(%q, %q, %v) = %v, want %v",
					tt.pipeline, tt.extension, tt.formats, got, tt.want)
			}
		})
	}
}

func TestNewQueueInfoValidation(t *testing.T) {
	if _, err := NewQueueInfo(config.QueueConfig{Name: "  "}); err == nil {
		t.Error("expected error for empty queue name")
	}
	if _, err := NewQueueInfo(config.QueueConfig{Name: "bad", Pipeline: "("}); err == nil {
		t.Error("expected error for invalid pipeline regex")
	}
	// The exclusion idiom is not valid RE2; it must still compile.
	if _, err := NewQueueInfo(config.QueueConfig{Name: "img", Pipeline: "^(?!img$).*"}); err != nil {
		t.Errorf("exclusion idiom rejected: %v", err)
	}
}

func TestNewQueueInfoNormalizesLists(t *testing.T) {
	info := mustQueueInfo(t, config.QueueConfig{
		Name:       "Office",
		Extensions: " PDF | Docx ",
		Formats:    " Original ",
	})
	if info.Name != "office" {
		t.Errorf("Name = %q, want %q", info.Name, "office")
	}
	if len(info.Extensions) != 2 || info.Extensions[0] != "pdf" || info.Extensions[1] != "docx" {
		t.Errorf("Extensions = %v, want [pdf docx]", info.Extensions)
	}
	if len(info.RequiredFormats) != 1 || info.RequiredFormats[0] != domain.FormatOriginal {
		t.Errorf("RequiredFormats = %v, want [original]", info.RequiredFormats)
	}
}

func TestDefaultQueuesCompile(t *testing.T) {
	for _, cfg := range config.DefaultQueues() {
		if _, err := NewQueueInfo(cfg); err != nil {
			t.Errorf("default queue %q does not compile: %v", cfg.Name, err)
		}
	}
}

func TestFileExtension(t *testing.T) {
	tests := []struct {
		fileName string
		want     string
	}{
		{"report.DOCX", "docx"},
		{"archive.tar.gz", "gz"},
		{"noext", ""},
		{"photo.png", "png"},
	}
	for _, tt := range tests {
		if got := FileExtension(tt.fileName); got != tt.want {
			t.Errorf("FileExtension(%q) = %q, want %q", tt.fileName, got, tt.want)
		}
	}
}
