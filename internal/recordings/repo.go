package recordings

import (
	"context"
	"time"
)

// Repo is the single source of truth for recordings, segments and their
// analyses. Implementations must make StartSegment and the Append methods
// atomic: concurrent starts on one recording never share or skip an index,
// and concurrent appends on one segment never lose a path.
type Repo interface {
	// GetOrCreateRecording returns the recording for (assessmentID, recType),
	// creating it with startTime when absent.
	GetOrCreateRecording(ctx context.Context, assessmentID, recType string, startTime time.Time) (Recording, error)
	GetRecording(ctx context.Context, assessmentID, recType string) (Recording, error)
	GetRecordingByID(ctx context.Context, recordingID string) (Recording, error)

	// StartSegment interrupts any recording-status segment of the recording
	// (end time = seg.StartTime), allocates max(index)+1 and inserts seg. When
	// seg.Status is not recording the segment is inserted already closed.
	StartSegment(ctx context.Context, seg Segment) (Segment, error)
	AppendChunk(ctx context.Context, segmentID, path string) error
	AppendScreenshot(ctx context.Context, segmentID, path string) error
	// CompleteSegment closes the segment as completed and stamps the parent
	// recording's end time in the same unit.
	CompleteSegment(ctx context.Context, segmentID string, endTime time.Time) (Segment, error)
	InterruptSegment(ctx context.Context, segmentID string, endTime time.Time) (Segment, error)
	GetSegment(ctx context.Context, segmentID string) (Segment, error)
	// ListSegments returns the recording's segments ordered by index.
	ListSegments(ctx context.Context, recordingID string) ([]Segment, error)
	// ListUnanalyzedSegments returns closed segments with screenshots and no
	// analysis, oldest first. Segments named in exclude are skipped before the
	// limit applies.
	ListUnanalyzedSegments(ctx context.Context, exclude []string, limit int) ([]Segment, error)

	// UpsertSegmentAnalysis inserts or fully replaces the analysis of a segment.
	UpsertSegmentAnalysis(ctx context.Context, a SegmentAnalysis) error
	GetSegmentAnalysis(ctx context.Context, segmentID string) (SegmentAnalysis, error)
	ListSegmentAnalyses(ctx context.Context, recordingID string) ([]SegmentAnalysis, error)
	UpdateAggregate(ctx context.Context, recordingID string, update AggregateUpdate) error
}
