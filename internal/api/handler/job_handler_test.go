package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mforney/docpipe/internal/command"
	"github.com/mforney/docpipe/internal/config"
	"github.com/mforney/docpipe/internal/domain"
	"github.com/mforney/docpipe/internal/repository"
)

// recordingBus captures delivered outcome commands.
type recordingBus struct {
	added    []command.AddFormatToDocument
	failures []command.MarkConversionFailed
}

func (b *recordingBus) AddFormatToDocument(_ context.Context, cmd command.AddFormatToDocument) error {
	b.added = append(b.added, cmd)
	return nil
}

func (b *recordingBus) MarkConversionFailed(_ context.Context, cmd command.MarkConversionFailed) error {
	b.failures = append(b.failures, cmd)
	return nil
}

func testJobRouter(t *testing.T, retryLimit int) (*gin.Engine, *repository.JobRepository, *recordingBus) {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:          "sqlite",
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxIdleConns:    1,
		MaxOpenConns:    1,
		ConnMaxLifetime: time.Hour,
		AutoMigrate:     true,
	})
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	jobs := repository.NewJobRepository(db)
	trackers := repository.NewTrackerRepository(db)
	bus := &recordingBus{}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewJobHandler(jobs, trackers, bus, retryLimit)
	r.POST("/api/v1/jobs/:id/fail", h.Fail)
	return r, jobs, bus
}

func claimedJob(t *testing.T, jobs *repository.JobRepository) *domain.QueuedJob {
	t.Helper()
	ctx := context.Background()
	format := domain.FormatOriginal
	seed := &domain.QueuedJob{
		ID:          domain.JobKey("acme", "doc-1", "office", format),
		TenantID:    "acme",
		DocumentID:  "doc-1",
		QueueName:   "office",
		InputFormat: format,
		BlobID:      "original.1",
		FileName:    "report.docx",
		Status:      domain.JobStatusQueued,
	}
	if _, err := jobs.CreateIfAbsent(ctx, seed); err != nil {
		t.Fatal(err)
	}
	job, err := jobs.ClaimNext(ctx, "office")
	if err != nil || job == nil {
		t.Fatalf("ClaimNext: job=%v err=%v", job, err)
	}
	return job
}

func postFail(t *testing.T, r *gin.Engine, jobID, assignmentID, message string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"assignment_id": assignmentID,
		"message":       message,
	})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+jobID+"/fail", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestFailUnderRetryLimitRequeues(t *testing.T) {
	r, jobs, bus := testJobRouter(t, 2)
	job := claimedJob(t, jobs)

	w := postFail(t, r, job.ID, job.AssignmentID, "soffice crashed")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	got, err := jobs.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.JobStatusQueued {
		t.Errorf("status = %s, want queued for redelivery", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
	if got.AssignmentID != "" {
		t.Errorf("assignment = %q, want cleared", got.AssignmentID)
	}
	if got.Message != "soffice crashed" {
		t.Errorf("message = %q, want the failure cause recorded", got.Message)
	}
	if len(bus.failures) != 0 {
		t.Errorf("failure notices = %v, want none while retries remain", bus.failures)
	}
}

func TestFailAtRetryLimitIsTerminal(t *testing.T) {
	r, jobs, bus := testJobRouter(t, 2)
	job := claimedJob(t, jobs)
	ctx := context.Background()

	// Burn the retry budget through two failed attempts.
	for i := 0; i < 2; i++ {
		if err := jobs.Requeue(ctx, job.ID, job.AssignmentID, "transient"); err != nil {
			t.Fatal(err)
		}
		next, err := jobs.ClaimNext(ctx, "office")
		if err != nil || next == nil {
			t.Fatalf("ClaimNext: job=%v err=%v", next, err)
		}
		job = next
	}
	if job.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2 before the final report", job.Attempts)
	}

	w := postFail(t, r, job.ID, job.AssignmentID, "soffice crashed again")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	got, err := jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.JobStatusFailed {
		t.Errorf("status = %s, want terminally failed at the retry limit", got.Status)
	}
	if len(bus.failures) != 1 {
		t.Fatalf("failure notices = %d, want exactly 1", len(bus.failures))
	}
	notice := bus.failures[0]
	if notice.TenantID != "acme" || notice.QueueName != "office" || notice.Message != "soffice crashed again" {
		t.Errorf("failure notice = %+v, want tenant, queue and cause", notice)
	}
}

func TestFailWithStaleAssignmentConflicts(t *testing.T) {
	r, jobs, bus := testJobRouter(t, 2)
	job := claimedJob(t, jobs)

	w := postFail(t, r, job.ID, "not-the-live-assignment", "late report")
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}

	got, err := jobs.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.JobStatusAssigned || got.Attempts != 0 {
		t.Errorf("job = %+v, want untouched by the stale report", got)
	}
	if len(bus.failures) != 0 {
		t.Errorf("failure notices = %v, want none", bus.failures)
	}
}
