package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryQueueProcessesEveryMessage(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	q := NewMemoryQueue(16, 3, time.Second, func(ctx context.Context, msg Message) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("expected a per-job deadline")
		}
		mu.Lock()
		seen[msg.SegmentID] = true
		mu.Unlock()
		return nil
	})
	q.Start()

	for _, id := range []string{"s1", "s2", "s3", "s4", "s5"} {
		if err := q.Send(context.Background(), Message{SegmentID: id}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 5 {
		t.Fatalf("expected 5 processed messages, got %d", len(seen))
	}
}

func TestMemoryQueueDropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	q := NewMemoryQueue(1, 1, 0, func(ctx context.Context, msg Message) error {
		started <- struct{}{}
		<-release
		return nil
	})
	q.Start()

	if err := q.Send(context.Background(), Message{SegmentID: "busy"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-started
	if err := q.Send(context.Background(), Message{SegmentID: "queued"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := q.Send(context.Background(), Message{SegmentID: "dropped"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	close(release)
	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := q.Send(context.Background(), Message{SegmentID: "late"}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func TestMemoryQueueSurvivesHandlerPanic(t *testing.T) {
	var mu sync.Mutex
	var processed []string
	q := NewMemoryQueue(4, 1, 0, func(ctx context.Context, msg Message) error {
		if msg.SegmentID == "bad" {
			panic("analyzer exploded")
		}
		mu.Lock()
		processed = append(processed, msg.SegmentID)
		mu.Unlock()
		return nil
	})
	q.Start()

	_ = q.Send(context.Background(), Message{SegmentID: "bad"})
	_ = q.Send(context.Background(), Message{SegmentID: "good"})
	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(processed) != 1 || processed[0] != "good" {
		t.Fatalf("expected the worker to keep running after a panic, got %v", processed)
	}
}

func TestMemoryQueueCloseHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	q := NewMemoryQueue(1, 1, 0, func(ctx context.Context, msg Message) error {
		<-release
		return nil
	})
	q.Start()
	_ = q.Send(context.Background(), Message{SegmentID: "slow"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
