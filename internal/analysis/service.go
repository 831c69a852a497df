package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"simulator-backend/internal/llm"
	"simulator-backend/internal/recordings"
	"simulator-backend/internal/shared/metrics"
	"simulator-backend/internal/shared/storage/object"
	"simulator-backend/internal/shared/telemetry"
	"simulator-backend/internal/shared/tracing"
	"simulator-backend/internal/shared/util"
)

const (
	defaultURLTTL           = time.Hour
	defaultBatchConcurrency = 3
	jobTimeoutSlack         = 30 * time.Second
)

// Service runs segment analyses: one at a time for queued jobs, or as a
// synchronous batch over a recording.
type Service struct {
	Repo             recordings.Repo
	Signer           object.Signer
	Bucket           string
	Analyzer         llm.ScreenshotAnalyzer
	PromptVersion    string
	URLTTL           time.Duration
	AnalyzerTimeout  time.Duration
	BatchConcurrency int
	Now              func() time.Time
}

// JobTimeout bounds one queued analysis: the analyzer timeout plus slack for
// URL signing and persistence. Zero means unbounded.
func (s *Service) JobTimeout() time.Duration {
	if s.AnalyzerTimeout <= 0 {
		return 0
	}
	return s.AnalyzerTimeout + jobTimeoutSlack
}

// ProcessSegment analyzes one closed segment and stores the result. Missing
// segments, segments still recording and segments without screenshots are
// skipped. Analysis failures are logged and swallowed; only a failure to
// load the segment is returned.
func (s *Service) ProcessSegment(ctx context.Context, segmentID string) error {
	fields := map[string]any{
		"request_id": util.RequestIDFromContext(ctx),
		"segment_id": segmentID,
	}
	seg, err := s.Repo.GetSegment(ctx, segmentID)
	if errors.Is(err, recordings.ErrNotFound) {
		metrics.IncSegmentAnalysis("skipped")
		fields["reason"] = "segment_not_found"
		telemetry.Warn("analysis.segment.skipped", fields)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load segment: %w", err)
	}
	fields["recording_id"] = seg.RecordingID
	if !seg.Closed() {
		metrics.IncSegmentAnalysis("skipped")
		fields["reason"] = "segment_recording"
		telemetry.Warn("analysis.segment.skipped", fields)
		return nil
	}
	if len(seg.ScreenshotPaths) == 0 {
		metrics.IncSegmentAnalysis("skipped")
		fields["reason"] = "no_screenshots"
		telemetry.Info("analysis.segment.skipped", fields)
		return nil
	}

	if timeout := s.JobTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if _, err := s.analyzeSegment(ctx, seg); err != nil {
		fields["error"] = err.Error()
		if errors.Is(err, errNoResolvableURLs) {
			metrics.IncSegmentAnalysis("skipped")
			telemetry.Warn("analysis.segment.skipped", fields)
			return nil
		}
		metrics.IncSegmentAnalysis("failed")
		telemetry.Error("analysis.segment.failed", fields)
		return nil
	}
	return nil
}

// analyzeSegment signs the screenshot paths, calls the analyzer and upserts
// the result.
func (s *Service) analyzeSegment(ctx context.Context, seg recordings.Segment) (a recordings.SegmentAnalysis, err error) {
	ctx, span := tracing.Start(ctx, "analysis.Segment",
		attribute.String("segment.id", seg.ID),
		attribute.Int("segment.index", seg.Index),
		attribute.Int("segment.screenshots", len(seg.ScreenshotPaths)),
	)
	defer func() { tracing.End(span, err) }()

	started := time.Now()
	defer func() { metrics.ObserveSegmentAnalysis(time.Since(started)) }()

	urls := s.resolveURLs(ctx, seg)
	if len(urls) == 0 {
		return recordings.SegmentAnalysis{}, errNoResolvableURLs
	}

	raw, err := s.Analyzer.AnalyzeScreenshots(ctx, llm.ScreenshotInput{
		URLs:            urls,
		WindowStart:     seg.StartTime,
		DurationSeconds: windowSeconds(seg),
		PromptVersion:   s.PromptVersion,
	})
	if err != nil {
		return recordings.SegmentAnalysis{}, fmt.Errorf("analyze screenshots: %w", err)
	}
	if _, err := ParseStructured(raw); err != nil {
		return recordings.SegmentAnalysis{}, err
	}

	a = recordings.SegmentAnalysis{
		SegmentID:           seg.ID,
		Analysis:            raw,
		ScreenshotsAnalyzed: len(urls),
		AnalyzedAt:          s.now(),
	}
	if err := s.Repo.UpsertSegmentAnalysis(ctx, a); err != nil {
		return recordings.SegmentAnalysis{}, fmt.Errorf("store analysis: %w", err)
	}

	metrics.IncSegmentAnalysis("completed")
	telemetry.Info("analysis.segment.completed", map[string]any{
		"request_id":           util.RequestIDFromContext(ctx),
		"segment_id":           seg.ID,
		"recording_id":         seg.RecordingID,
		"screenshots_total":    len(seg.ScreenshotPaths),
		"screenshots_analyzed": len(urls),
		"duration_ms":          time.Since(started).Milliseconds(),
	})
	return a, nil
}

// resolveURLs signs each screenshot path in order, dropping the ones that
// cannot be resolved.
func (s *Service) resolveURLs(ctx context.Context, seg recordings.Segment) []string {
	ttl := s.URLTTL
	if ttl <= 0 {
		ttl = defaultURLTTL
	}
	urls := make([]string, 0, len(seg.ScreenshotPaths))
	for _, p := range seg.ScreenshotPaths {
		u, err := s.Signer.SignedURL(ctx, s.Bucket, p, ttl)
		if err != nil || u == "" {
			fields := map[string]any{
				"request_id": util.RequestIDFromContext(ctx),
				"segment_id": seg.ID,
				"path":       p,
			}
			if err != nil {
				fields["error"] = err.Error()
			}
			telemetry.Warn("analysis.screenshot.unresolved", fields)
			continue
		}
		urls = append(urls, u)
	}
	return urls
}

// windowSeconds is the segment duration in whole seconds, never negative.
func windowSeconds(seg recordings.Segment) int {
	if seg.EndTime == nil {
		return 0
	}
	d := seg.EndTime.Sub(seg.StartTime)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
