package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"simulator-backend/internal/queue"
	"simulator-backend/internal/shared/util"
)

// Processor runs the analysis of one segment.
type Processor interface {
	ProcessSegment(ctx context.Context, segmentID string) error
}

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrMissingSegmentID indicates a message without a segment id.
type ErrMissingSegmentID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingSegmentID) Error() string { return "missing segment id" }

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	SegmentID string
	RequestID string
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process segment"
	}
	return "process segment: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// Unrecoverable reports whether err means the payload itself is bad, so the
// message should be deleted rather than redelivered.
func Unrecoverable(err error) bool {
	var empty ErrEmptyBody
	var decode ErrDecode
	var missing ErrMissingSegmentID
	return errors.As(err, &empty) || errors.As(err, &decode) || errors.As(err, &missing)
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.SegmentID) == "" {
		return msg, meta, ErrMissingSegmentID{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

// Dispatch runs an already decoded message.
func Dispatch(ctx context.Context, processor Processor, msg queue.Message) error {
	if processor == nil {
		return errors.New("segment processor not configured")
	}
	if strings.TrimSpace(msg.SegmentID) == "" {
		return ErrMissingSegmentID{RequestID: msg.RequestID}
	}
	ctx = util.WithRequestID(ctx, msg.RequestID)
	if err := processor.ProcessSegment(ctx, msg.SegmentID); err != nil {
		return ErrProcess{SegmentID: msg.SegmentID, RequestID: msg.RequestID, Err: err}
	}
	return nil
}

// HandleMessage parses, validates, and processes a message payload.
func HandleMessage(ctx context.Context, processor Processor, body string) error {
	if processor == nil {
		return errors.New("segment processor not configured")
	}
	msg, _, err := ParseMessage(body)
	if err != nil {
		return err
	}
	return Dispatch(ctx, processor, msg)
}
