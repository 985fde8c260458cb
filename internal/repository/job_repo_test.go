package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mforney/docpipe/internal/config"
	"github.com/mforney/docpipe/internal/domain"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Driver:          "sqlite",
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxIdleConns:    1,
		MaxOpenConns:    1,
		ConnMaxLifetime: time.Hour,
		AutoMigrate:     true,
	}
	db, err := InitDB(cfg)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	return db
}

func testJob(tenant, doc, queue string) *domain.QueuedJob {
	format := domain.FormatOriginal
	return &domain.QueuedJob{
		ID:          domain.JobKey(tenant, doc, queue, format),
		TenantID:    tenant,
		DocumentID:  doc,
		QueueName:   queue,
		InputFormat: format,
		BlobID:      "original.1",
		FileName:    "report.docx",
		Status:      domain.JobStatusQueued,
	}
}

func TestCreateIfAbsentDeduplicates(t *testing.T) {
	repo := NewJobRepository(testDB(t))
	ctx := context.Background()

	created, err := repo.CreateIfAbsent(ctx, testJob("acme", "doc-1", "office"))
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v, want true nil", created, err)
	}

	// A replayed stream batch produces the same dedupe tuple.
	created, err = repo.CreateIfAbsent(ctx, testJob("acme", "doc-1", "office"))
	if err != nil {
		t.Fatalf("replayed create returned error: %v", err)
	}
	if created {
		t.Error("replayed create reported a new job, want it absorbed")
	}

	// Same document on another queue is distinct work.
	created, err = repo.CreateIfAbsent(ctx, testJob("acme", "doc-1", "tika"))
	if err != nil || !created {
		t.Fatalf("create on second queue: created=%v err=%v, want true nil", created, err)
	}
}

func TestClaimNextAssignsOldestFirst(t *testing.T) {
	repo := NewJobRepository(testDB(t))
	ctx := context.Background()

	first := testJob("acme", "doc-1", "office")
	if _, err := repo.CreateIfAbsent(ctx, first); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := repo.CreateIfAbsent(ctx, testJob("acme", "doc-2", "office")); err != nil {
		t.Fatal(err)
	}

	job, err := repo.ClaimNext(ctx, "office")
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if job == nil || job.ID != first.ID {
		t.Fatalf("claimed %+v, want oldest job %s", job, first.ID)
	}
	if job.Status != domain.JobStatusAssigned || job.AssignmentID == "" || job.HeartbeatAt == nil {
		t.Errorf("claimed job not properly assigned: %+v", job)
	}
}

func TestClaimNextEmptyQueue(t *testing.T) {
	repo := NewJobRepository(testDB(t))
	job, err := repo.ClaimNext(context.Background(), "office")
	if err != nil {
		t.Fatalf("ClaimNext on empty queue returned error: %v", err)
	}
	if job != nil {
		t.Errorf("ClaimNext on empty queue returned %+v, want nil", job)
	}
}

func TestClaimNextAtMostOnce(t *testing.T) {
	repo := NewJobRepository(testDB(t))
	ctx := context.Background()

	const jobs = 5
	for i := 0; i < jobs; i++ {
		if _, err := repo.CreateIfAbsent(ctx, testJob("acme", "doc-"+string(rune('a'+i)), "office")); err != nil {
			t.Fatal(err)
		}
	}

	var mu sync.Mutex
	claimed := make(map[string]int)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := repo.ClaimNext(ctx, "office")
				if err != nil {
					t.Errorf("ClaimNext failed: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != jobs {
		t.Errorf("claimed %d distinct jobs, want %d", len(claimed), jobs)
	}
	for id, n := range claimed {
		if n != 1 {
			t.Errorf("job %s claimed %d times, want exactly once", id, n)
		}
	}
}

func TestStaleCompletionIsRejected(t *testing.T) {
	repo := NewJobRepository(testDB(t))
	ctx := context.Background()

	if _, err := repo.CreateIfAbsent(ctx, testJob("acme", "doc-1", "office")); err != nil {
		t.Fatal(err)
	}
	job, err := repo.ClaimNext(ctx, "office")
	if err != nil || job == nil {
		t.Fatalf("ClaimNext: job=%v err=%v", job, err)
	}
	staleAssignment := job.AssignmentID

	// Timeout recovery hands the job to a second worker.
	if err := repo.Requeue(ctx, job.ID, staleAssignment, "timed out"); err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}
	second, err := repo.ClaimNext(ctx, "office")
	if err != nil || second == nil {
		t.Fatalf("second ClaimNext: job=%v err=%v", second, err)
	}
	if second.Attempts != 1 {
		t.Errorf("attempts after requeue = %d, want 1", second.Attempts)
	}

	// The first worker finishes late; its write must miss.
	err = repo.Complete(ctx, job.ID, staleAssignment, "late result")
	if !errors.Is(err, ErrStaleAssignment) {
		t.Fatalf("stale Complete returned %v, want ErrStaleAssignment", err)
	}
	err = repo.Heartbeat(ctx, job.ID, staleAssignment)
	if !errors.Is(err, ErrStaleAssignment) {
		t.Fatalf("stale Heartbeat returned %v, want ErrStaleAssignment", err)
	}

	// The live assignment is unaffected.
	if err := repo.Complete(ctx, second.ID, second.AssignmentID, "done"); err != nil {
		t.Fatalf("live Complete failed: %v", err)
	}
	got, err := repo.GetByID(ctx, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.JobStatusCompleted || got.Message != "done" {
		t.Errorf("job after completion = %+v, want completed with message", got)
	}
}

func TestFindStalledAndFailTimedOut(t *testing.T) {
	repo := NewJobRepository(testDB(t))
	ctx := context.Background()

	if _, err := repo.CreateIfAbsent(ctx, testJob("acme", "doc-1", "office")); err != nil {
		t.Fatal(err)
	}
	job, err := repo.ClaimNext(ctx, "office")
	if err != nil || job == nil {
		t.Fatalf("ClaimNext: job=%v err=%v", job, err)
	}

	// A cutoff in the past finds nothing; the heartbeat is fresh.
	stalled, err := repo.FindStalled(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(stalled) != 0 {
		t.Errorf("found %d stalled jobs with fresh heartbeat, want 0", len(stalled))
	}

	// A cutoff in the future ages every heartbeat out.
	stalled, err = repo.FindStalled(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(stalled) != 1 {
		t.Fatalf("found %d stalled jobs, want 1", len(stalled))
	}

	if err := repo.FailTimedOut(ctx, job.ID, job.AssignmentID, "timed out"); err != nil {
		t.Fatalf("FailTimedOut failed: %v", err)
	}
	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.JobStatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
}

func TestCountByStatus(t *testing.T) {
	repo := NewJobRepository(testDB(t))
	ctx := context.Background()

	for _, doc := range []string{"a", "b", "c"} {
		if _, err := repo.CreateIfAbsent(ctx, testJob("acme", doc, "office")); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := repo.ClaimNext(ctx, "office"); err != nil {
		t.Fatal(err)
	}

	queued, err := repo.CountByStatus(ctx, "office", domain.JobStatusQueued)
	if err != nil {
		t.Fatal(err)
	}
	assigned, err := repo.CountByStatus(ctx, "office", domain.JobStatusAssigned)
	if err != nil {
		t.Fatal(err)
	}
	if queued != 2 || assigned != 1 {
		t.Errorf("queued=%d assigned=%d, want 2 and 1", queued, assigned)
	}
}
