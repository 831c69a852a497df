package health

import (
	"context"
	"time"
)

const pingTimeout = 2 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// QueueDepth is satisfied by the in-process analysis queue.
type QueueDepth interface {
	Len() int
}

// Report is the health payload.
type Report struct {
	OK         bool   `json:"ok"`
	Database   string `json:"database"`
	Queue      string `json:"queue"`
	QueueDepth *int   `json:"queueDepth,omitempty"`
}

// Service encapsulates health-related checks.
type Service struct {
	DB        Pinger
	Queue     QueueDepth
	QueueKind string
}

// NewService constructs a new health service.
func NewService(db Pinger, queue QueueDepth, queueKind string) *Service {
	return &Service{DB: db, Queue: queue, QueueKind: queueKind}
}

// Status checks the database when one is configured. Running on in-memory
// repositories is reported as healthy.
func (s *Service) Status(ctx context.Context) Report {
	r := Report{OK: true, Database: "memory", Queue: s.QueueKind}
	if r.Queue == "" {
		r.Queue = "none"
	}
	if s.DB != nil {
		ctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := s.DB.PingContext(ctx); err != nil {
			r.OK = false
			r.Database = "unreachable"
		} else {
			r.Database = "ok"
		}
	}
	if s.Queue != nil {
		n := s.Queue.Len()
		r.QueueDepth = &n
	}
	return r
}
