package pipeline

import (
	"github.com/mforney/docpipe/internal/domain"
)

// ImagePipeline resizes raster images into the small and large thumbnail
// formats. Its queue rule excludes the img pipeline itself, so the
// thumbnails it emits (which are images too) do not re-enter the family.
type ImagePipeline struct {
	base
}

func NewImagePipeline(requester JobRequester) *ImagePipeline {
	return &ImagePipeline{base: base{
		id:         domain.NewPipelineID("img"),
		queueName:  "imgresize",
		extensions: []string{"png", "jpg", "jpeg", "gif"},
		produces:   []domain.DocumentFormat{domain.FormatThumbSmall, domain.FormatThumbLarge},
		requester:  requester,
	}}
}
