package queue

import (
	"context"
	"errors"
)

var (
	// ErrQueueFull is returned when the in-process queue has no free slot.
	ErrQueueFull = errors.New("analysis queue is full")
	// ErrQueueClosed is returned by Send after Close.
	ErrQueueClosed = errors.New("analysis queue is closed")
)

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// Handler processes one dequeued message.
type Handler func(ctx context.Context, msg Message) error
