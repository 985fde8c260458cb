package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mforney/docpipe/internal/domain"
	"github.com/mforney/docpipe/internal/logger"
	"github.com/mforney/docpipe/internal/repository"
)

// ErrNoSuchQueue is returned by GetNextJob when the queue name is not
// configured. It is a configuration error, distinct from the normal
// empty-queue state (nil job, nil error).
var ErrNoSuchQueue = errors.New("no queue configured with that name")

// StreamReader produces ordered batches of the document event stream.
// Implemented by repository.StreamRepository.
type StreamReader interface {
	ReadBatch(ctx context.Context, tenantID string, after int64, limit int) ([]domain.StreamEvent, error)
}

// CheckpointStore persists per-tenant stream cursors. Implemented by
// repository.CheckpointRepository.
type CheckpointStore interface {
	Get(ctx context.Context, tenantID string) (int64, error)
	Save(ctx context.Context, tenantID string, checkpoint int64) error
}

// StreamListener receives stream entries after queue dispatch. The pipeline
// manager hangs off this to drive chaining.
type StreamListener interface {
	OnStreamEvent(ctx context.Context, event *domain.StreamEvent)
}

// tenantCursor tracks one tenant's in-memory checkpoint between polls.
type tenantCursor struct {
	tenantID   string
	checkpoint int64
}

// QueueManager drives per-tenant polling of the document event stream and
// keeps queue dispatch eventually consistent with it.
//
// One background goroutine executes polls; a ticker requests them. Requests
// are coalesced through a one-slot channel: while a poll runs, at most one
// further request can be pending and the rest are dropped, bounding
// concurrent polling to a single in-flight pass per process.
type QueueManager struct {
	stream      StreamReader
	checkpoints CheckpointStore
	handlers    map[string]*QueueHandler
	tenants     []*tenantCursor
	listener    StreamListener

	batchSize    int
	pollInterval time.Duration

	pollReq chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// NewQueueManager wires the manager over its stores and compiled queues.
// Parameters:
//   - stream: event stream reader.
//   - checkpoints: per-tenant checkpoint store.
//   - jobs: job store shared by all queue handlers.
//   - infos: compiled queue rules; names must be unique.
//   - tenants: tenant ids to poll.
//   - batchSize: stream entries read per pass (per tenant).
//   - pollInterval: ticker period between poll requests.
// Returns:
//   - *QueueManager: initialized manager (not yet polling).
//   - error: non-nil on duplicate queue names.
func NewQueueManager(
	stream StreamReader,
	checkpoints CheckpointStore,
	jobs *repository.JobRepository,
	infos []*QueueInfo,
	tenants []string,
	batchSize int,
	pollInterval time.Duration,
) (*QueueManager, error) {
	handlers := make(map[string]*QueueHandler, len(infos))
	for _, info := range infos {
		if _, dup := handlers[info.Name]; dup {
			return nil, fmt.Errorf("duplicate queue name %q", info.Name)
		}
		handlers[info.Name] = NewQueueHandler(info, jobs)
	}
	cursors := make([]*tenantCursor, 0, len(tenants))
	for _, id := range tenants {
		cursors = append(cursors, &tenantCursor{tenantID: id})
	}
	return &QueueManager{
		stream:       stream,
		checkpoints:  checkpoints,
		handlers:     handlers,
		tenants:      cursors,
		batchSize:    batchSize,
		pollInterval: pollInterval,
		pollReq:      make(chan struct{}, 1),
		stop:         make(chan struct{}),
	}, nil
}

// SetListener attaches a stream listener. Must be called before Start.
func (m *QueueManager) SetListener(l StreamListener) {
	m.listener = l
}

// Start loads tenant checkpoints and launches the poll worker and the
// request ticker.
func (m *QueueManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	for _, cursor := range m.tenants {
		cp, err := m.checkpoints.Get(ctx, cursor.tenantID)
		if err != nil {
			return fmt.Errorf("failed to load checkpoint for tenant %s: %w", cursor.tenantID, err)
		}
		cursor.checkpoint = cp
	}

	m.wg.Add(2)
	go m.pollWorker(ctx)
	go m.tickLoop()

	m.started = true
	logger.CtxInfo(ctx, "Queue manager started: %d queues, %d tenants, batch size %d",
		len(m.handlers), len(m.tenants), m.batchSize)
	return nil
}

// Stop terminates polling. Pending poll requests are abandoned; an in-flight
// pass finishes before Stop returns.
func (m *QueueManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	close(m.stop)
	m.wg.Wait()
	m.started = false
}

// PollNow requests a poll. The request is dropped if one is already queued.
func (m *QueueManager) PollNow() {
	select {
	case m.pollReq <- struct{}{}:
	default:
	}
}

func (m *QueueManager) tickLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.PollNow()
		}
	}
}

func (m *QueueManager) pollWorker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-m.stop:
			return
		case <-m.pollReq:
			m.Poll(ctx)
		}
	}
}

// Poll drains the stream for every tenant, repeating full rounds until one
// adds no new entries so bursts are consumed without waiting for the next
// tick. A failing tenant is logged and skipped for the round; its checkpoint
// is untouched, so it retries from the same position next pass while other
// tenants keep making progress.
func (m *QueueManager) Poll(ctx context.Context) {
	for {
		hasNewData := false
		for _, cursor := range m.tenants {
			n, err := m.pollTenant(ctx, cursor)
			if err != nil {
				logger.With(logger.Fields{logger.FieldTenantID: cursor.tenantID}).
					Error(ctx, "Poll failed for tenant, will retry next pass: %v", err)
				continue
			}
			if n > 0 {
				hasNewData = true
			}
		}
		if !hasNewData {
			return
		}
	}
}

// pollTenant reads one batch past the tenant's checkpoint, dispatches it to
// every queue handler and the stream listener, then persists the checkpoint.
// The checkpoint only moves after the whole batch is dispatched: a crash
// mid-batch replays the batch, and handlers absorb the replay idempotently.
func (m *QueueManager) pollTenant(ctx context.Context, cursor *tenantCursor) (int, error) {
	tctx := logger.SetTenantID(ctx, cursor.tenantID)

	batch, err := m.stream.ReadBatch(tctx, cursor.tenantID, cursor.checkpoint, m.batchSize)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	for i := range batch {
		event := &batch[i]
		if event.EventType == domain.EventFormatAdded {
			for _, handler := range m.handlers {
				if _, err := handler.Handle(tctx, event); err != nil {
					return 0, fmt.Errorf("dispatch to queue %s failed at sequence %d: %w",
						handler.Name(), event.Sequence, err)
				}
			}
		}
		if m.listener != nil {
			m.listener.OnStreamEvent(tctx, event)
		}
	}

	last := batch[len(batch)-1].Sequence
	if err := m.checkpoints.Save(tctx, cursor.tenantID, last); err != nil {
		return 0, fmt.Errorf("failed to persist checkpoint %d: %w", last, err)
	}
	cursor.checkpoint = last

	logger.With(logger.Fields{
		logger.FieldCount:      len(batch),
		logger.FieldCheckpoint: last,
	}).Debug(tctx, "Dispatched stream batch")
	return len(batch), nil
}

// GetNextJob claims the next job of a queue for a worker. A nil job with a
// nil error means the queue is empty; ErrNoSuchQueue means the name is not
// configured.
func (m *QueueManager) GetNextJob(ctx context.Context, queueName string) (*domain.QueuedJob, error) {
	handler, ok := m.handlers[queueName]
	if !ok {
		logger.CtxError(ctx, "Requested next job for queue %q but no queue is configured with that name", queueName)
		return nil, ErrNoSuchQueue
	}
	return handler.GetNextJob(ctx)
}

// QueueNames lists the configured queues.
func (m *QueueManager) QueueNames() []string {
	names := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		names = append(names, name)
	}
	return names
}
