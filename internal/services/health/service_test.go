package health

import (
	"context"
	"errors"
	"testing"
)

type pingStub struct{ err error }

func (p pingStub) PingContext(context.Context) error { return p.err }

type depthStub int

func (d depthStub) Len() int { return int(d) }

func TestStatusWithoutDatabase(t *testing.T) {
	r := NewService(nil, nil, "").Status(context.Background())
	if !r.OK || r.Database != "memory" || r.Queue != "none" || r.QueueDepth != nil {
		t.Fatalf("unexpected report: %#v", r)
	}
}

func TestStatusReportsDatabaseAndQueue(t *testing.T) {
	r := NewService(pingStub{}, depthStub(3), "memory").Status(context.Background())
	if !r.OK || r.Database != "ok" || r.QueueDepth == nil || *r.QueueDepth != 3 {
		t.Fatalf("unexpected report: %#v", r)
	}

	r = NewService(pingStub{err: errors.New("down")}, nil, "sqs").Status(context.Background())
	if r.OK || r.Database != "unreachable" || r.Queue != "sqs" {
		t.Fatalf("unexpected report: %#v", r)
	}
}
