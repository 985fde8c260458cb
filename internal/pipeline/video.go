package pipeline

import (
	"github.com/mforney/docpipe/internal/domain"
)

// VideoPipeline extracts a poster frame from video files and publishes it
// as the large thumbnail format.
type VideoPipeline struct {
	base
}

func NewVideoPipeline(requester JobRequester) *VideoPipeline {
	return &VideoPipeline{base: base{
		id:         domain.NewPipelineID("video"),
		queueName:  "videothumb",
		extensions: []string{"mp4", "avi", "mkv", "mov"},
		produces:   []domain.DocumentFormat{domain.FormatThumbLarge},
		requester:  requester,
	}}
}
