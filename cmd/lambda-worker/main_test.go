package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

type processorStub struct {
	failOn string
}

func (p processorStub) ProcessSegment(ctx context.Context, segmentID string) error {
	if segmentID == p.failOn {
		return errors.New("database unavailable")
	}
	return nil
}

func TestHandleBatchReportsOnlyRetryableFailures(t *testing.T) {
	event := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "ok", Body: `{"segmentId":"s-1","version":1}`},
		{MessageId: "retry", Body: `{"segmentId":"s-2","version":1}`},
		{MessageId: "bad", Body: `{not json`},
	}}

	resp := handleBatch(context.Background(), processorStub{failOn: "s-2"}, event)

	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "retry" {
		t.Fatalf("expected only the retryable record, got %#v", resp.BatchItemFailures)
	}
}
