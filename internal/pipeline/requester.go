package pipeline

import (
	"context"

	"github.com/mforney/docpipe/internal/domain"
	"github.com/mforney/docpipe/internal/logger"
	"github.com/mforney/docpipe/internal/queue"
	"github.com/mforney/docpipe/internal/repository"
)

// StoreJobRequester queues pipeline-initiated work directly in the job
// store, under the same dedupe key the queue handlers use. When a stream
// entry already queued the job, the pipeline's request is a no-op, so the
// two creation paths never double-dispatch.
type StoreJobRequester struct {
	jobs   *repository.JobRepository
	params map[string]map[string]string
}

// NewStoreJobRequester builds a requester. Queue parameters are copied from
// the compiled queue rules so pipeline-created jobs carry the same worker
// parameters as stream-created ones.
func NewStoreJobRequester(jobs *repository.JobRepository, infos []*queue.QueueInfo) *StoreJobRequester {
	params := make(map[string]map[string]string, len(infos))
	for _, info := range infos {
		params[info.Name] = info.Parameters
	}
	return &StoreJobRequester{jobs: jobs, params: params}
}

func (r *StoreJobRequester) RequestJob(ctx context.Context, req JobRequest) error {
	job := &domain.QueuedJob{
		ID:          domain.JobKey(req.TenantID, req.DocumentID, req.QueueName, req.InputFormat),
		TenantID:    req.TenantID,
		DocumentID:  req.DocumentID,
		QueueName:   req.QueueName,
		InputFormat: req.InputFormat,
		BlobID:      req.BlobID,
		FileName:    req.FileName,
		Status:      domain.JobStatusQueued,
		Parameters:  domain.ParamMap(r.params[req.QueueName]),
	}
	created, err := r.jobs.CreateIfAbsent(ctx, job)
	if err != nil {
		return err
	}
	if created {
		logger.CtxInfo(ctx, "Pipeline queued job %s on queue %s", job.ID, req.QueueName)
	}
	return nil
}
