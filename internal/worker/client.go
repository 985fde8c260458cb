package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mforney/docpipe/internal/domain"
)

// ErrLeaseLost is returned when the engine rejects a lifecycle call because
// the worker's assignment is no longer live. The worker must discard its
// work in progress; the job has been requeued or finished elsewhere.
var ErrLeaseLost = errors.New("job lease lost")

// ErrUnknownQueue is returned when the engine has no queue with the
// requested name, which means the worker and engine configs disagree.
var ErrUnknownQueue = errors.New("unknown queue")

// Client is the worker's HTTP client for the dispatch engine API.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for the engine at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	return &Client{http: client}
}

type nextJobResponse struct {
	Job       *domain.QueuedJob `json:"job"`
	TrackerID string            `json:"tracker_id"`
}

// NextJob claims the next job of a queue. A nil job means the queue is
// empty.
func (c *Client) NextJob(ctx context.Context, queueName string) (*domain.QueuedJob, string, error) {
	var body nextJobResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Post(fmt.Sprintf("/api/v1/queues/%s/next", queueName))
	if err != nil {
		return nil, "", fmt.Errorf("failed to request next job: %w", err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return body.Job, body.TrackerID, nil
	case http.StatusNoContent:
		return nil, "", nil
	case http.StatusNotFound:
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownQueue, queueName)
	default:
		return nil, "", fmt.Errorf("next job request failed: %s", resp.Status())
	}
}

// Heartbeat renews the lease on an assignment.
func (c *Client) Heartbeat(ctx context.Context, jobID, assignmentID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"assignment_id": assignmentID}).
		Post(fmt.Sprintf("/api/v1/jobs/%s/heartbeat", jobID))
	if err != nil {
		return fmt.Errorf("failed to send heartbeat: %w", err)
	}
	if resp.StatusCode() == http.StatusConflict {
		return ErrLeaseLost
	}
	if resp.IsError() {
		return fmt.Errorf("heartbeat rejected: %s", resp.Status())
	}
	return nil
}

// CompletedOutput is one uploaded artifact of a finished conversion.
type CompletedOutput struct {
	Format   domain.DocumentFormat `json:"format"`
	BlobID   domain.BlobID         `json:"blob_id"`
	FileName string                `json:"file_name"`
}

// CompleteRequest reports a finished conversion with its artifacts.
type CompleteRequest struct {
	AssignmentID string            `json:"assignment_id"`
	Outputs      []CompletedOutput `json:"outputs"`
	TrackerID    string            `json:"tracker_id,omitempty"`
	Message      string            `json:"message,omitempty"`
}

// Complete finishes a job with its produced blob.
func (c *Client) Complete(ctx context.Context, jobID string, req CompleteRequest) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post(fmt.Sprintf("/api/v1/jobs/%s/complete", jobID))
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if resp.StatusCode() == http.StatusConflict {
		return ErrLeaseLost
	}
	if resp.IsError() {
		return fmt.Errorf("complete rejected: %s (%s)", resp.Status(), resp.String())
	}
	return nil
}

// Fail reports a failed conversion.
func (c *Client) Fail(ctx context.Context, jobID, assignmentID, trackerID, message string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"assignment_id": assignmentID,
			"tracker_id":    trackerID,
			"message":       message,
		}).
		Post(fmt.Sprintf("/api/v1/jobs/%s/fail", jobID))
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	if resp.StatusCode() == http.StatusConflict {
		return ErrLeaseLost
	}
	if resp.IsError() {
		return fmt.Errorf("fail rejected: %s", resp.Status())
	}
	return nil
}

// DownloadBlob materializes a blob into folder under fileName and returns
// the local path.
func (c *Client) DownloadBlob(ctx context.Context, blobID domain.BlobID, folder, fileName string) (string, error) {
	if err := os.MkdirAll(folder, 0755); err != nil {
		return "", fmt.Errorf("failed to create work folder: %w", err)
	}
	if fileName == "" {
		fileName = blobID.String()
	}
	localPath := filepath.Join(folder, filepath.Base(fileName))
	resp, err := c.http.R().
		SetContext(ctx).
		SetOutput(localPath).
		Get(fmt.Sprintf("/api/v1/blobs/%s", blobID))
	if err != nil {
		return "", fmt.Errorf("failed to download blob %s: %w", blobID, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("blob download rejected: %s", resp.Status())
	}
	return localPath, nil
}

// UploadBlob stores a local file as a new blob of the given format.
func (c *Client) UploadBlob(ctx context.Context, format domain.DocumentFormat, path, contentType string) (domain.BlobID, error) {
	var desc struct {
		BlobID domain.BlobID `json:"blob_id"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetFile("file", path).
		SetResult(&desc).
		Post(fmt.Sprintf("/api/v1/blobs/%s", format))
	if err != nil {
		return domain.BlobIDNull, fmt.Errorf("failed to upload blob: %w", err)
	}
	if resp.IsError() {
		return domain.BlobIDNull, fmt.Errorf("blob upload rejected: %s", resp.Status())
	}
	return desc.BlobID, nil
}
