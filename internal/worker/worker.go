package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mforney/docpipe/internal/domain"
	"github.com/mforney/docpipe/internal/logger"
)

// defaultHeartbeatInterval is used when no interval is configured. It must
// be comfortably under the engine's job timeout.
const defaultHeartbeatInterval = 30 * time.Second

// HeartbeatIntervalFor derives a lease renewal period from the engine's job
// timeout: a third of the timeout, capped at the default so short timeouts
// never outlive a renewal gap.
func HeartbeatIntervalFor(jobTimeout time.Duration) time.Duration {
	interval := jobTimeout / 3
	if interval <= 0 || interval > defaultHeartbeatInterval {
		return defaultHeartbeatInterval
	}
	if interval < time.Second {
		return time.Second
	}
	return interval
}

// Worker pulls jobs from its queues, runs the matching converter, uploads
// the outputs and reports the outcome. One worker processes one job at a
// time; scale out by running more workers.
type Worker struct {
	client       *Client
	queues       []string
	converters   map[string]Converter
	pollInterval time.Duration
	heartbeat    time.Duration
	workDir      string
}

// NewWorker creates a worker for the given queues. Every queue must have a
// registered converter. heartbeat is how often a busy worker renews its
// lease; zero falls back to the default.
func NewWorker(client *Client, queues []string, converters map[string]Converter, pollInterval, heartbeat time.Duration, workDir string) (*Worker, error) {
	for _, q := range queues {
		if _, ok := converters[q]; !ok {
			return nil, fmt.Errorf("no converter registered for queue %s", q)
		}
	}
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	return &Worker{
		client:       client,
		queues:       queues,
		converters:   converters,
		pollInterval: pollInterval,
		heartbeat:    heartbeat,
		workDir:      workDir,
	}, nil
}

// Run processes jobs until the context is cancelled. Queues are polled
// round-robin; an idle full round sleeps one poll interval.
func (w *Worker) Run(ctx context.Context) error {
	logger.CtxInfo(ctx, "Worker started: queues=%v, poll interval=%s", w.queues, w.pollInterval)
	for {
		processed := false
		for _, queueName := range w.queues {
			if err := ctx.Err(); err != nil {
				return nil
			}
			ok, err := w.pollQueue(ctx, queueName)
			if errors.Is(err, ErrUnknownQueue) {
				return err
			}
			if err != nil {
				logger.CtxError(ctx, "Polling queue %s failed: %v", queueName, err)
				continue
			}
			if ok {
				processed = true
			}
		}
		if !processed {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.pollInterval):
			}
		}
	}
}

// pollQueue claims and processes at most one job. Returns true if a job was
// processed (successfully or not).
func (w *Worker) pollQueue(ctx context.Context, queueName string) (bool, error) {
	job, trackerID, err := w.client.NextJob(ctx, queueName)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	jctx := logger.WithFields(ctx, logger.Fields{
		logger.FieldJobID:      job.ID,
		logger.FieldQueue:      queueName,
		logger.FieldTenantID:   job.TenantID,
		logger.FieldDocumentID: job.DocumentID,
	})
	w.process(jctx, job, trackerID, w.converters[queueName])
	return true, nil
}

// process runs one conversion attempt end to end. A background heartbeat
// keeps the lease alive; losing the lease cancels the conversion so a
// requeued job is not finished twice.
func (w *Worker) process(ctx context.Context, job *domain.QueuedJob, trackerID string, converter Converter) {
	jobDir := filepath.Join(w.workDir, job.AssignmentID)
	defer os.RemoveAll(jobDir)

	hctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go w.heartbeatLoop(hctx, cancel, job)

	outputs, err := w.convert(hctx, job, trackerID, converter, jobDir)
	if err != nil {
		if hctx.Err() != nil {
			logger.CtxWarn(ctx, "Job abandoned, lease lost during conversion")
			return
		}
		logger.CtxError(ctx, "Conversion failed: %v", err)
		if ferr := w.client.Fail(ctx, job.ID, job.AssignmentID, trackerID, err.Error()); ferr != nil && !errors.Is(ferr, ErrLeaseLost) {
			logger.CtxError(ctx, "Failed to report job failure: %v", ferr)
		}
		return
	}

	err = w.client.Complete(ctx, job.ID, CompleteRequest{
		AssignmentID: job.AssignmentID,
		Outputs:      outputs,
		TrackerID:    trackerID,
	})
	if errors.Is(err, ErrLeaseLost) {
		logger.CtxWarn(ctx, "Completion rejected, job was reassigned")
		return
	}
	if err != nil {
		logger.CtxError(ctx, "Failed to complete job: %v", err)
		return
	}
	logger.CtxInfo(ctx, "Job completed with %d output(s)", len(outputs))
}

func (w *Worker) convert(ctx context.Context, job *domain.QueuedJob, trackerID string, converter Converter, jobDir string) ([]CompletedOutput, error) {
	inputPath, err := w.client.DownloadBlob(ctx, job.BlobID, jobDir, job.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch input blob: %w", err)
	}

	results, err := converter.Convert(ctx, job, inputPath, jobDir)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("converter produced no outputs")
	}

	outputs := make([]CompletedOutput, 0, len(results))
	for _, result := range results {
		blobID, err := w.client.UploadBlob(ctx, result.Format, result.Path, result.ContentType)
		if err != nil {
			return nil, fmt.Errorf("failed to upload %s output: %w", result.Format, err)
		}
		outputs = append(outputs, CompletedOutput{
			Format:   result.Format,
			BlobID:   blobID,
			FileName: filepath.Base(result.Path),
		})
	}
	return outputs, nil
}

// heartbeatLoop renews the lease until the context ends. A stale-assignment
// response cancels the conversion.
func (w *Worker) heartbeatLoop(ctx context.Context, cancel context.CancelFunc, job *domain.QueuedJob) {
	ticker := time.NewTicker(w.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.client.Heartbeat(ctx, job.ID, job.AssignmentID)
			if errors.Is(err, ErrLeaseLost) {
				logger.CtxWarn(ctx, "Lease lost, cancelling conversion")
				cancel()
				return
			}
			if err != nil {
				logger.CtxWarn(ctx, "Heartbeat failed: %v", err)
			}
		}
	}
}

// DefaultConverters builds the standard queue-to-converter registry.
func DefaultConverters(sofficePath string) map[string]Converter {
	office := NewOfficeConverter(sofficePath)
	return map[string]Converter{
		"office":     office,
		"tika":       NewTextConverter(office),
		"imgresize":  NewThumbnailConverter(),
		"videothumb": NewVideoThumbConverter(""),
	}
}
