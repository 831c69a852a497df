package recordings

import (
	"encoding/json"
	"time"
)

// Segment statuses.
const (
	StatusRecording   = "recording"
	StatusCompleted   = "completed"
	StatusInterrupted = "interrupted"
)

// TypeScreen is the capture type of screen recordings.
const TypeScreen = "screen"

// Recording is the per-assessment, per-capture-type container of segments.
// Analysis holds the derived aggregate; it can always be rebuilt from the
// segment analyses.
type Recording struct {
	ID               string
	AssessmentID     string
	Type             string
	StartTime        time.Time
	EndTime          *time.Time
	Analysis         json.RawMessage
	AnalyzedAt       *time.Time
	SegmentsAnalyzed int
	SegmentsTotal    int
}

// Segment is one contiguous capture window.
type Segment struct {
	ID              string
	RecordingID     string
	Index           int
	Status          string
	StartTime       time.Time
	EndTime         *time.Time
	ChunkPaths      []string
	ScreenshotPaths []string
}

// Closed reports whether the segment has left the recording state.
func (s Segment) Closed() bool {
	return s.Status != StatusRecording
}

// SegmentAnalysis is the stored analyzer output for one segment.
type SegmentAnalysis struct {
	ID                  string
	SegmentID           string
	Analysis            json.RawMessage
	ScreenshotsAnalyzed int
	AnalyzedAt          time.Time
}

// AggregateUpdate is written onto a Recording after a batch analysis.
type AggregateUpdate struct {
	Analysis         json.RawMessage
	AnalyzedAt       time.Time
	SegmentsAnalyzed int
	SegmentsTotal    int
}
