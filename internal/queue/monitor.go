package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mforney/docpipe/internal/domain"
	"github.com/mforney/docpipe/internal/logger"
	"github.com/mforney/docpipe/internal/repository"
	"github.com/robfig/cron/v3"
)

// StalledJobStore is the slice of the job store the monitor transitions
// jobs through. Implemented by repository.JobRepository.
type StalledJobStore interface {
	FindStalled(ctx context.Context, cutoff time.Time) ([]domain.QueuedJob, error)
	Requeue(ctx context.Context, jobID, assignmentID, message string) error
	FailTimedOut(ctx context.Context, jobID, assignmentID, message string) error
}

// TimeoutRecorder writes the diagnostic record of a timed-out attempt.
// Implemented by repository.TrackerRepository.
type TimeoutRecorder interface {
	Record(ctx context.Context, job *domain.QueuedJob, jobType, message string) error
}

// TimeoutMonitor guarantees progress despite crashed or hung workers. On a
// fixed schedule it scans assigned jobs whose heartbeat age exceeds the
// timeout and either requeues them (under the retry limit) or terminally
// fails them with a diagnostic record. Recovery is purely lease-expiry
// based: no cancellation is sent to the worker, and a stale worker's late
// completion is rejected by the assignment-id check in the job store.
type TimeoutMonitor struct {
	jobs     StalledJobStore
	trackers TimeoutRecorder

	jobTimeout   time.Duration
	retryLimit   int
	interval     time.Duration
	initialDelay time.Duration

	cron *cron.Cron
}

// NewTimeoutMonitor builds a monitor.
// Parameters:
//   - jobs: job store to scan and transition.
//   - trackers: diagnostic record store.
//   - jobTimeout: heartbeat age after which an assignment is abandoned.
//   - retryLimit: requeues allowed before a job is terminally failed.
//   - interval: scan schedule.
//   - initialDelay: delay before the first scan (short in development).
// Returns:
//   - *TimeoutMonitor: initialized monitor (not yet running).
func NewTimeoutMonitor(
	jobs StalledJobStore,
	trackers TimeoutRecorder,
	jobTimeout time.Duration,
	retryLimit int,
	interval time.Duration,
	initialDelay time.Duration,
) *TimeoutMonitor {
	return &TimeoutMonitor{
		jobs:         jobs,
		trackers:     trackers,
		jobTimeout:   jobTimeout,
		retryLimit:   retryLimit,
		interval:     interval,
		initialDelay: initialDelay,
	}
}

// Start schedules the recurring scan.
func (m *TimeoutMonitor) Start(ctx context.Context) error {
	m.cron = cron.New()
	spec := fmt.Sprintf("@every %s", m.interval)
	if _, err := m.cron.AddFunc(spec, func() { m.Scan(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule timeout monitor: %w", err)
	}
	m.cron.Start()

	if m.initialDelay > 0 {
		go func() {
			select {
			case <-ctx.Done():
			case <-time.After(m.initialDelay):
				m.Scan(ctx)
			}
		}()
	}
	logger.CtxInfo(ctx, "Timeout monitor started: timeout=%s, retry limit=%d, interval=%s",
		m.jobTimeout, m.retryLimit, m.interval)
	return nil
}

// Stop halts the schedule; a running scan finishes first.
func (m *TimeoutMonitor) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
}

// Scan performs one recovery pass.
func (m *TimeoutMonitor) Scan(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-m.jobTimeout)
	stalled, err := m.jobs.FindStalled(ctx, cutoff)
	if err != nil {
		logger.CtxError(ctx, "Timeout scan failed: %v", err)
		return
	}

	for i := range stalled {
		job := &stalled[i]
		jctx := logger.WithFields(ctx, logger.Fields{
			logger.FieldJobID: job.ID,
			logger.FieldQueue: job.QueueName,
		})

		if job.Attempts < m.retryLimit {
			message := fmt.Sprintf("timed out, heartbeat last seen %s", heartbeatAge(job.HeartbeatAt))
			err := m.jobs.Requeue(jctx, job.ID, job.AssignmentID, message)
			if errors.Is(err, repository.ErrStaleAssignment) {
				// The job moved on (completed or reassigned) between the
				// scan and the transition; nothing to recover.
				continue
			}
			if err != nil {
				logger.CtxError(jctx, "Failed to requeue stalled job: %v", err)
				continue
			}
			logger.CtxWarn(jctx, "Requeued stalled job (attempt %d of %d)", job.Attempts+1, m.retryLimit)
			continue
		}

		message := fmt.Sprintf("timed out after %d attempts, heartbeat last seen %s",
			job.Attempts+1, heartbeatAge(job.HeartbeatAt))
		err = m.jobs.FailTimedOut(jctx, job.ID, job.AssignmentID, message)
		if errors.Is(err, repository.ErrStaleAssignment) {
			continue
		}
		if err != nil {
			logger.CtxError(jctx, "Failed to fail stalled job: %v", err)
			continue
		}
		if terr := m.trackers.Record(jctx, job, "timeout", message); terr != nil {
			logger.CtxError(jctx, "Failed to record timeout tracker: %v", terr)
		}
		logger.CtxError(jctx, "Job terminally failed: %s", message)
	}
}

func heartbeatAge(heartbeat *time.Time) string {
	if heartbeat == nil {
		return "never"
	}
	return fmt.Sprintf("%s ago", time.Since(*heartbeat).Round(time.Second))
}
