package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"simulator-backend/internal/recordings"
)

// SegmentState is one segment's analysis state in an Overview.
type SegmentState struct {
	SegmentID           string          `json:"segmentId"`
	SegmentIndex        int             `json:"segmentIndex"`
	Status              string          `json:"status"`
	ScreenshotCount     int             `json:"screenshotCount"`
	Analyzed            bool            `json:"analyzed"`
	AnalyzedAt          *time.Time      `json:"analyzedAt"`
	ScreenshotsAnalyzed int             `json:"screenshotsAnalyzed"`
	Analysis            json.RawMessage `json:"analysis,omitempty"`
}

// Overview is the stored analysis state of a recording.
type Overview struct {
	RecordingID      string          `json:"recordingId"`
	Aggregate        json.RawMessage `json:"aggregate"`
	AnalyzedAt       *time.Time      `json:"analyzedAt"`
	SegmentsAnalyzed int             `json:"segmentsAnalyzed"`
	SegmentsTotal    int             `json:"segmentsTotal"`
	Segments         []SegmentState  `json:"segments"`
}

// Overview reads the stored analysis state of rec without computing anything.
// With segmentID only that segment is listed, including its analysis body.
func (s *Service) Overview(ctx context.Context, rec recordings.Recording, segmentID string) (Overview, error) {
	segs, err := s.Repo.ListSegments(ctx, rec.ID)
	if err != nil {
		return Overview{}, fmt.Errorf("list segments: %w", err)
	}
	analyses, err := s.existingAnalyses(ctx, rec.ID)
	if err != nil {
		return Overview{}, err
	}

	out := Overview{
		RecordingID:      rec.ID,
		Aggregate:        rec.Analysis,
		AnalyzedAt:       rec.AnalyzedAt,
		SegmentsAnalyzed: rec.SegmentsAnalyzed,
		SegmentsTotal:    len(segs),
		Segments:         []SegmentState{},
	}
	if len(out.Aggregate) == 0 {
		out.Aggregate = json.RawMessage("null")
	}

	for _, seg := range segs {
		if segmentID != "" && seg.ID != segmentID {
			continue
		}
		state := SegmentState{
			SegmentID:       seg.ID,
			SegmentIndex:    seg.Index,
			Status:          seg.Status,
			ScreenshotCount: len(seg.ScreenshotPaths),
		}
		if a, ok := analyses[seg.ID]; ok {
			at := a.AnalyzedAt
			state.Analyzed = true
			state.AnalyzedAt = &at
			state.ScreenshotsAnalyzed = a.ScreenshotsAnalyzed
			if segmentID != "" {
				state.Analysis = a.Analysis
			}
		}
		out.Segments = append(out.Segments, state)
	}
	if segmentID != "" && len(out.Segments) == 0 {
		return Overview{}, recordings.ErrNotFound
	}
	return out, nil
}
