package exporter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Memory queue defaults.
const (
	DefaultWorkers     = 2
	DefaultQueueSize   = 100
	DefaultTaskTimeout = 30 * time.Second
)

// MemoryQueue runs tasks on a fixed pool of in-process workers.
type MemoryQueue struct {
	ctx     context.Context
	handler Handler
	logger  *slog.Logger
	tasks   chan Task
	group   *errgroup.Group
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue starts workers that run handler for each task. Tasks run under ctx,
// not the context passed to Enqueue, so they outlive the request that queued them.
func NewMemoryQueue(ctx context.Context, handler Handler, workers, size int, logger *slog.Logger) *MemoryQueue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &MemoryQueue{
		ctx:     ctx,
		handler: handler,
		logger:  logger,
		tasks:   make(chan Task, size),
		group:   &errgroup.Group{},
		timeout: DefaultTaskTimeout,
	}
	for i := 0; i < workers; i++ {
		q.group.Go(q.work)
	}
	return q
}

func (q *MemoryQueue) work() error {
	for task := range q.tasks {
		q.run(task)
	}
	return nil
}

func (q *MemoryQueue) run(task Task) {
	ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
	defer cancel()

	if err := q.handler(ctx, task); err != nil {
		q.logger.Warn("export task failed",
			"kind", task.Kind,
			"transaction_id", task.TransactionID,
			"month", task.Month,
			"error", err)
		return
	}
	q.logger.Debug("export task done", "kind", task.Kind, "transaction_id", task.TransactionID)
}

// Enqueue implements Queue. A full buffer drops the task.
func (q *MemoryQueue) Enqueue(_ context.Context, task Task) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.logger.Warn("export queue closed, dropping task", "kind", task.Kind, "transaction_id", task.TransactionID)
		return
	}

	select {
	case q.tasks <- task:
	default:
		q.logger.Warn("export queue full, dropping task", "kind", task.Kind, "transaction_id", task.TransactionID)
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	return q.group.Wait()
}
