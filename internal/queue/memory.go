package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"simulator-backend/internal/shared/metrics"
	"simulator-backend/internal/shared/telemetry"
)

// MemoryQueue is a bounded in-process queue drained by a fixed worker pool.
// Send never blocks: when every slot is taken the message is dropped with
// ErrQueueFull.
type MemoryQueue struct {
	jobs    chan Message
	handler Handler
	workers int
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	group  *errgroup.Group
}

// NewMemoryQueue builds a queue holding up to size pending messages. Each job
// runs with its own timeout; zero disables it.
func NewMemoryQueue(size, workers int, timeout time.Duration, handler Handler) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	if workers <= 0 {
		workers = 1
	}
	return &MemoryQueue{
		jobs:    make(chan Message, size),
		handler: handler,
		workers: workers,
		timeout: timeout,
	}
}

// Start launches the worker pool. It must be called once.
func (q *MemoryQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.group != nil {
		return
	}
	q.group = new(errgroup.Group)
	for i := 0; i < q.workers; i++ {
		q.group.Go(func() error {
			for msg := range q.jobs {
				metrics.SetQueueDepth(len(q.jobs))
				q.run(msg)
			}
			return nil
		})
	}
}

// Send enqueues msg without blocking.
func (q *MemoryQueue) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- msg:
		metrics.IncQueueJob("enqueued")
		metrics.SetQueueDepth(len(q.jobs))
		return nil
	default:
		metrics.IncQueueJob("dropped")
		return ErrQueueFull
	}
}

// Len reports the number of pending messages.
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}

// Close stops accepting messages and waits for pending ones to drain, or for
// ctx to end.
func (q *MemoryQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	group := q.group
	q.mu.Unlock()
	if group == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) run(msg Message) {
	ctx := context.Background()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			metrics.IncQueueJob("failed")
			telemetry.Error("analysis.queue.job_failed", map[string]any{
				"segment_id":   msg.SegmentID,
				"recording_id": msg.RecordingID,
				"request_id":   msg.RequestID,
				"error":        err.Error(),
			})
			return
		}
		metrics.IncQueueJob("processed")
	}()
	err = q.handler(ctx, msg)
}

var _ Client = (*MemoryQueue)(nil)
