package analysis

import (
	"context"
	"errors"
	"time"

	"simulator-backend/internal/queue"
	"simulator-backend/internal/recordings"
	"simulator-backend/internal/shared/telemetry"
	"simulator-backend/internal/shared/util"
)

const enqueueTimeout = 5 * time.Second

// Trigger enqueues completed segments for background analysis.
type Trigger struct {
	Queue queue.Client
}

// NewTrigger constructs a Trigger over q.
func NewTrigger(q queue.Client) *Trigger {
	return &Trigger{Queue: q}
}

// TriggerSegment enqueues seg and returns. Enqueue failures are logged; the
// segment stays unanalyzed and can be picked up by a batch run or the sweep.
func (t *Trigger) TriggerSegment(ctx context.Context, seg recordings.Segment) {
	if t == nil || t.Queue == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()

	requestID := util.RequestIDFromContext(ctx)
	msg := queue.NewMessage(seg.ID, seg.RecordingID, requestID)
	if err := t.Queue.Send(ctx, msg); err != nil {
		event := "analysis.enqueue.failed"
		if errors.Is(err, queue.ErrQueueFull) {
			event = "analysis.enqueue.dropped"
		}
		telemetry.Error(event, map[string]any{
			"request_id":   requestID,
			"segment_id":   seg.ID,
			"recording_id": seg.RecordingID,
			"error":        err.Error(),
		})
		return
	}
	telemetry.Info("analysis.enqueued", map[string]any{
		"request_id":   requestID,
		"segment_id":   seg.ID,
		"recording_id": seg.RecordingID,
	})
}
