package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"simulator-backend/internal/shared/metrics"
	"simulator-backend/internal/shared/telemetry"
	"simulator-backend/internal/workerproc"
)

const redisBlockTimeout = 5 * time.Second

var redisRetryDelay = 5 * time.Second

type redisQueue interface {
	Receive(ctx context.Context, wait time.Duration) (string, bool, error)
	Ack(ctx context.Context, body string) error
	Requeue(ctx context.Context, body string) error
	Recover(ctx context.Context) (int, error)
}

// pollRedis restores jobs a previous worker left unacknowledged, then takes
// jobs until ctx is done, running at most concurrency at once.
func pollRedis(ctx context.Context, wg *sync.WaitGroup, q redisQueue, processor workerproc.Processor, concurrency int) {
	if moved, err := q.Recover(ctx); err != nil {
		telemetry.Error("worker.redis.recover_failed", map[string]any{"error": err.Error()})
	} else if moved > 0 {
		telemetry.Info("worker.redis.recovered", map[string]any{"jobs": moved})
	}
	sem := make(chan struct{}, concurrency)
	for {
		select {
		case <-ctx.Done():
			return
		case sem <- struct{}{}:
		}
		body, ok, err := q.Receive(ctx, redisBlockTimeout)
		if err != nil || !ok {
			<-sem
			if err != nil && ctx.Err() == nil {
				telemetry.Error("worker.redis.receive_failed", map[string]any{"error": err.Error()})
				sleep(ctx, time.Second)
			}
			continue
		}
		metrics.IncQueueJob("received")
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			handleRedisBody(context.WithoutCancel(ctx), q, processor, body)
		}()
	}
}

// handleRedisBody processes one received payload. Bad payloads, successes and
// unrecoverable failures are acknowledged; processing errors go back on the
// list after a delay.
func handleRedisBody(ctx context.Context, q redisQueue, processor workerproc.Processor, body string) {
	msg, meta, err := workerproc.ParseMessage(body)
	if err != nil {
		telemetry.Error("worker.analysis.bad_payload", map[string]any{
			"body_len":    meta.BodyLen,
			"body_sha256": meta.BodySHA,
			"error":       err.Error(),
		})
		metrics.IncQueueJob("deleted_unrecoverable")
		ackRedis(ctx, q, body, nil)
		return
	}

	fields := map[string]any{"segment_id": msg.SegmentID, "request_id": msg.RequestID}
	if err := workerproc.Dispatch(ctx, processor, msg); err != nil {
		fields["error"] = err.Error()
		telemetry.Error("worker.analysis.failed", fields)
		metrics.IncQueueJob("failed")
		var procErr workerproc.ErrProcess
		if errors.As(err, &procErr) {
			sleep(ctx, redisRetryDelay)
			if err := q.Requeue(ctx, body); err != nil {
				fields["error"] = err.Error()
				telemetry.Error("worker.analysis.requeue_failed", fields)
			}
			return
		}
		ackRedis(ctx, q, body, fields)
		return
	}
	telemetry.Info("worker.analysis.completed", fields)
	metrics.IncQueueJob("processed")
	ackRedis(ctx, q, body, fields)
}

func ackRedis(ctx context.Context, q redisQueue, body string, fields map[string]any) {
	if err := q.Ack(ctx, body); err != nil {
		if fields == nil {
			fields = map[string]any{}
		}
		fields["error"] = err.Error()
		telemetry.Error("worker.redis.ack_failed", fields)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
