package recordings

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"simulator-backend/internal/assessments"
	"simulator-backend/internal/shared/metrics"
	"simulator-backend/internal/shared/telemetry"
	"simulator-backend/internal/shared/tracing"
	"simulator-backend/internal/shared/util"
)

// AssessmentLookup resolves an assessment owned by the caller.
type AssessmentLookup interface {
	GetByID(ctx context.Context, userID, assessmentID string) (assessments.Assessment, error)
}

// AnalysisTrigger hands a completed segment to background analysis. It must
// return without waiting for the analysis.
type AnalysisTrigger interface {
	TriggerSegment(ctx context.Context, seg Segment)
}

// Service is the segment lifecycle manager and the session query service.
// Every operation is scoped to an assessment the caller owns.
type Service struct {
	Repo          Repo
	Assessments   AssessmentLookup
	Trigger       AnalysisTrigger
	AllowTestMode bool
	Now           func() time.Time
}

// SegmentSummary is the polling view of one segment.
type SegmentSummary struct {
	SegmentID       string     `json:"segmentId"`
	SegmentIndex    int        `json:"segmentIndex"`
	Status          string     `json:"status"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime"`
	ChunkCount      int        `json:"chunkCount"`
	ScreenshotCount int        `json:"screenshotCount"`
	Analyzed        bool       `json:"analyzed"`
}

// SessionStatus is the read-side snapshot returned to polling clients.
type SessionStatus struct {
	Exists              bool             `json:"exists"`
	RecordingID         string           `json:"recordingId,omitempty"`
	StartTime           *time.Time       `json:"startTime,omitempty"`
	EndTime             *time.Time       `json:"endTime,omitempty"`
	ActiveSegment       *SegmentSummary  `json:"activeSegment"`
	Segments            []SegmentSummary `json:"segments"`
	TotalSegments       int              `json:"totalSegments"`
	CompletedSegments   int              `json:"completedSegments"`
	InterruptedSegments int              `json:"interruptedSegments"`
	AnalyzedSegments    int              `json:"analyzedSegments"`
	TotalChunks         int              `json:"totalChunks"`
	TotalScreenshots    int              `json:"totalScreenshots"`
}

// Start opens a new segment on the assessment's screen recording, interrupting
// the active one. With testMode the segment is inserted already completed and
// empty; that variant is only allowed when AllowTestMode is set.
func (s *Service) Start(ctx context.Context, userID, assessmentID string, testMode bool) (seg Segment, err error) {
	ctx, span := tracing.Start(ctx, "recordings.Start",
		attribute.String("assessment.id", assessmentID),
		attribute.Bool("recording.test_mode", testMode),
	)
	defer func() { tracing.End(span, err) }()

	if testMode && !s.AllowTestMode {
		return Segment{}, ErrTestModeDisabled
	}
	if err := s.checkOwner(ctx, userID, assessmentID); err != nil {
		return Segment{}, err
	}

	now := s.now()
	rec, err := s.Repo.GetOrCreateRecording(ctx, assessmentID, TypeScreen, now)
	if err != nil {
		return Segment{}, err
	}

	next := Segment{RecordingID: rec.ID, StartTime: now}
	if testMode {
		end := now
		next.Status = StatusCompleted
		next.EndTime = &end
	}
	seg, err = s.Repo.StartSegment(ctx, next)
	if err != nil {
		telemetry.Error("recording.segment.start_failed", map[string]any{
			"request_id":    util.RequestIDFromContext(ctx),
			"assessment_id": assessmentID,
			"recording_id":  rec.ID,
			"error":         err.Error(),
		})
		return Segment{}, err
	}

	metrics.IncSegmentStarted()
	span.SetAttributes(attribute.Int("segment.index", seg.Index))
	telemetry.Info("recording.segment.started", map[string]any{
		"request_id":    util.RequestIDFromContext(ctx),
		"assessment_id": assessmentID,
		"recording_id":  rec.ID,
		"segment_id":    seg.ID,
		"segment_index": seg.Index,
		"test_mode":     testMode,
	})
	return seg, nil
}

// AddChunk appends a video chunk path to a recording segment.
func (s *Service) AddChunk(ctx context.Context, userID, assessmentID, segmentID, chunkPath string) (err error) {
	ctx, span := tracing.Start(ctx, "recordings.AddChunk", attribute.String("segment.id", segmentID))
	defer func() { tracing.End(span, err) }()

	if _, err := s.ownedSegment(ctx, userID, assessmentID, segmentID); err != nil {
		return err
	}
	return s.Repo.AppendChunk(ctx, segmentID, chunkPath)
}

// AddScreenshot appends a screenshot path to a recording segment.
func (s *Service) AddScreenshot(ctx context.Context, userID, assessmentID, segmentID, screenshotPath string) (err error) {
	ctx, span := tracing.Start(ctx, "recordings.AddScreenshot", attribute.String("segment.id", segmentID))
	defer func() { tracing.End(span, err) }()

	if _, err := s.ownedSegment(ctx, userID, assessmentID, segmentID); err != nil {
		return err
	}
	return s.Repo.AppendScreenshot(ctx, segmentID, screenshotPath)
}

// Complete closes the segment and, when it holds screenshots, hands it to the
// analysis trigger without waiting. The bool reports whether analysis was
// triggered.
func (s *Service) Complete(ctx context.Context, userID, assessmentID, segmentID string) (seg Segment, triggered bool, err error) {
	ctx, span := tracing.Start(ctx, "recordings.Complete", attribute.String("segment.id", segmentID))
	defer func() { tracing.End(span, err) }()

	if _, err := s.ownedSegment(ctx, userID, assessmentID, segmentID); err != nil {
		return Segment{}, false, err
	}
	seg, err = s.Repo.CompleteSegment(ctx, segmentID, s.now())
	if err != nil {
		return Segment{}, false, err
	}
	metrics.IncSegmentClosed(StatusCompleted)

	triggered = len(seg.ScreenshotPaths) > 0
	if triggered && s.Trigger != nil {
		s.Trigger.TriggerSegment(util.Detach(ctx), seg)
	}
	telemetry.Info("recording.segment.completed", map[string]any{
		"request_id":         util.RequestIDFromContext(ctx),
		"assessment_id":      assessmentID,
		"recording_id":       seg.RecordingID,
		"segment_id":         seg.ID,
		"segment_index":      seg.Index,
		"screenshot_count":   len(seg.ScreenshotPaths),
		"chunk_count":        len(seg.ChunkPaths),
		"analysis_triggered": triggered,
	})
	return seg, triggered, nil
}

// Interrupt abandons a recording segment. No analysis is triggered.
func (s *Service) Interrupt(ctx context.Context, userID, assessmentID, segmentID string) (seg Segment, err error) {
	ctx, span := tracing.Start(ctx, "recordings.Interrupt", attribute.String("segment.id", segmentID))
	defer func() { tracing.End(span, err) }()

	if _, err := s.ownedSegment(ctx, userID, assessmentID, segmentID); err != nil {
		return Segment{}, err
	}
	seg, err = s.Repo.InterruptSegment(ctx, segmentID, s.now())
	if err != nil {
		return Segment{}, err
	}
	metrics.IncSegmentClosed(StatusInterrupted)
	telemetry.Info("recording.segment.interrupted", map[string]any{
		"request_id":    util.RequestIDFromContext(ctx),
		"assessment_id": assessmentID,
		"recording_id":  seg.RecordingID,
		"segment_id":    seg.ID,
		"segment_index": seg.Index,
	})
	return seg, nil
}

// Status returns the session snapshot for the assessment's screen recording.
// A missing recording is reported with Exists=false, not as an error.
func (s *Service) Status(ctx context.Context, userID, assessmentID string) (SessionStatus, error) {
	if err := s.checkOwner(ctx, userID, assessmentID); err != nil {
		return SessionStatus{}, err
	}
	rec, err := s.Repo.GetRecording(ctx, assessmentID, TypeScreen)
	if errors.Is(err, ErrNotFound) {
		return SessionStatus{Segments: []SegmentSummary{}}, nil
	}
	if err != nil {
		return SessionStatus{}, err
	}

	segs, err := s.Repo.ListSegments(ctx, rec.ID)
	if err != nil {
		return SessionStatus{}, err
	}
	analyses, err := s.Repo.ListSegmentAnalyses(ctx, rec.ID)
	if err != nil {
		return SessionStatus{}, err
	}
	analyzed := make(map[string]bool, len(analyses))
	for _, a := range analyses {
		analyzed[a.SegmentID] = true
	}

	start := rec.StartTime
	status := SessionStatus{
		Exists:      true,
		RecordingID: rec.ID,
		StartTime:   &start,
		EndTime:     rec.EndTime,
		Segments:    make([]SegmentSummary, 0, len(segs)),
	}
	for _, seg := range segs {
		summary := SegmentSummary{
			SegmentID:       seg.ID,
			SegmentIndex:    seg.Index,
			Status:          seg.Status,
			StartTime:       seg.StartTime,
			EndTime:         seg.EndTime,
			ChunkCount:      len(seg.ChunkPaths),
			ScreenshotCount: len(seg.ScreenshotPaths),
			Analyzed:        analyzed[seg.ID],
		}
		status.Segments = append(status.Segments, summary)
		status.TotalChunks += summary.ChunkCount
		status.TotalScreenshots += summary.ScreenshotCount
		switch seg.Status {
		case StatusRecording:
			active := summary
			status.ActiveSegment = &active
		case StatusCompleted:
			status.CompletedSegments++
		case StatusInterrupted:
			status.InterruptedSegments++
		}
		if summary.Analyzed {
			status.AnalyzedSegments++
		}
	}
	status.TotalSegments = len(status.Segments)
	return status, nil
}

// ScreenRecording returns the assessment's screen recording after checking
// ownership.
func (s *Service) ScreenRecording(ctx context.Context, userID, assessmentID string) (Recording, error) {
	if err := s.checkOwner(ctx, userID, assessmentID); err != nil {
		return Recording{}, err
	}
	return s.Repo.GetRecording(ctx, assessmentID, TypeScreen)
}

func (s *Service) checkOwner(ctx context.Context, userID, assessmentID string) error {
	if userID == "" || assessmentID == "" {
		return ErrNotFound
	}
	if _, err := s.Assessments.GetByID(ctx, userID, assessmentID); err != nil {
		if errors.Is(err, assessments.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// ownedSegment loads a segment and checks it belongs to the caller's recording.
func (s *Service) ownedSegment(ctx context.Context, userID, assessmentID, segmentID string) (Segment, error) {
	if err := s.checkOwner(ctx, userID, assessmentID); err != nil {
		return Segment{}, err
	}
	rec, err := s.Repo.GetRecording(ctx, assessmentID, TypeScreen)
	if err != nil {
		return Segment{}, err
	}
	seg, err := s.Repo.GetSegment(ctx, segmentID)
	if err != nil {
		return Segment{}, err
	}
	if seg.RecordingID != rec.ID {
		return Segment{}, ErrNotFound
	}
	return seg, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
