package analysis

import (
	"context"
	"sync"
	"time"

	"simulator-backend/internal/queue"
	"simulator-backend/internal/recordings"
	"simulator-backend/internal/shared/telemetry"
)

const (
	defaultSweepBatch    = 50
	defaultSweepCooldown = 15 * time.Minute
)

// Sweeper periodically re-enqueues closed segments that have screenshots but
// no analysis. A segment is not re-enqueued again within Cooldown.
type Sweeper struct {
	Repo      recordings.Repo
	Queue     queue.Client
	Interval  time.Duration
	BatchSize int
	Cooldown  time.Duration
	Now       func() time.Time

	mu   sync.Mutex
	sent map[string]time.Time
}

// Run sweeps every Interval until ctx is done. A zero Interval disables it.
func (s *Sweeper) Run(ctx context.Context) {
	if s.Interval <= 0 {
		return
	}
	telemetry.Info("analysis.sweep.started", map[string]any{"interval": s.Interval.String()})
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				telemetry.Error("analysis.sweep.failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

// SweepOnce enqueues one batch of pending segments and returns how many were
// sent. Segments still cooling down are excluded from the query so they do not
// take up the batch.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	limit := s.BatchSize
	if limit <= 0 {
		limit = defaultSweepBatch
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = make(map[string]time.Time)
	}
	cooling := make([]string, 0, len(s.sent))
	for id, at := range s.sent {
		if now.Sub(at) >= s.cooldown() {
			delete(s.sent, id)
			continue
		}
		cooling = append(cooling, id)
	}

	pending, err := s.Repo.ListUnanalyzedSegments(ctx, cooling, limit)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, seg := range pending {
		if _, recent := s.sent[seg.ID]; recent {
			continue
		}
		sendCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
		err := s.Queue.Send(sendCtx, queue.NewMessage(seg.ID, seg.RecordingID, ""))
		cancel()
		if err != nil {
			telemetry.Warn("analysis.sweep.enqueue_failed", map[string]any{
				"segment_id": seg.ID,
				"error":      err.Error(),
			})
			continue
		}
		s.sent[seg.ID] = now
		sent++
	}
	if sent > 0 {
		telemetry.Info("analysis.sweep.enqueued", map[string]any{
			"pending":  len(pending),
			"cooling":  len(cooling),
			"enqueued": sent,
		})
	}
	return sent, nil
}

func (s *Sweeper) cooldown() time.Duration {
	if s.Cooldown > 0 {
		return s.Cooldown
	}
	return defaultSweepCooldown
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
