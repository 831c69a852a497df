package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"simulator-backend/internal/recordings"
	"simulator-backend/internal/shared/telemetry"
	"simulator-backend/internal/shared/tracing"
	"simulator-backend/internal/shared/util"
)

// BatchOptions selects what a batch run analyzes.
type BatchOptions struct {
	// SegmentID limits the run to one segment of the recording.
	SegmentID string
	// Force re-analyzes segments that already have an analysis.
	Force bool
}

// BatchResult reports a batch run.
type BatchResult struct {
	Analyzed         bool
	SegmentsAnalyzed int
	SegmentsFailed   int
	SegmentsTotal    int
	TotalAnalyzed    int
	Aggregate        *AggregateAnalysis
	AnalyzedAt       *time.Time
	Message          string
}

// AnalyzeRecording synchronously analyzes the candidate segments of rec and
// recomputes the recording aggregate from every stored segment analysis.
// Candidates are closed segments with screenshots that have no analysis yet,
// or all of those when opts.Force is set. A failing segment is logged and
// left out; ErrAllSegmentsFailed is returned only when none succeeded.
func (s *Service) AnalyzeRecording(ctx context.Context, rec recordings.Recording, opts BatchOptions) (res BatchResult, err error) {
	ctx, span := tracing.Start(ctx, "analysis.Recording",
		attribute.String("recording.id", rec.ID),
		attribute.Bool("analysis.force", opts.Force),
	)
	defer func() { tracing.End(span, err) }()

	segs, err := s.Repo.ListSegments(ctx, rec.ID)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list segments: %w", err)
	}
	existing, err := s.existingAnalyses(ctx, rec.ID)
	if err != nil {
		return BatchResult{}, err
	}

	scope := segs
	if opts.SegmentID != "" {
		scope = nil
		for _, seg := range segs {
			if seg.ID == opts.SegmentID {
				scope = []recordings.Segment{seg}
				break
			}
		}
		if scope == nil {
			return BatchResult{}, recordings.ErrNotFound
		}
	}

	var candidates []recordings.Segment
	for _, seg := range scope {
		if !seg.Closed() || len(seg.ScreenshotPaths) == 0 {
			continue
		}
		if _, done := existing[seg.ID]; done && !opts.Force {
			continue
		}
		candidates = append(candidates, seg)
	}
	span.SetAttributes(attribute.Int("analysis.candidates", len(candidates)))

	if len(candidates) == 0 {
		return s.currentState(rec, segs, existing), nil
	}

	results := make([]*recordings.SegmentAnalysis, len(candidates))
	var g errgroup.Group
	g.SetLimit(s.batchConcurrency())
	for i, seg := range candidates {
		g.Go(func() error {
			a, err := s.analyzeSegment(ctx, seg)
			if err != nil {
				telemetry.Error("analysis.segment.failed", map[string]any{
					"request_id":   util.RequestIDFromContext(ctx),
					"recording_id": rec.ID,
					"segment_id":   seg.ID,
					"mode":         "batch",
					"error":        err.Error(),
				})
				return nil
			}
			results[i] = &a
			return nil
		})
	}
	_ = g.Wait()

	res.SegmentsTotal = len(segs)
	for _, a := range results {
		if a == nil {
			res.SegmentsFailed++
			continue
		}
		res.SegmentsAnalyzed++
		existing[a.SegmentID] = *a
	}
	if res.SegmentsAnalyzed == 0 {
		return res, fmt.Errorf("%w: %d segments", ErrAllSegmentsFailed, res.SegmentsFailed)
	}

	agg, used := aggregateStored(segs, existing)
	payload, err := json.Marshal(agg)
	if err != nil {
		return BatchResult{}, fmt.Errorf("encode aggregate: %w", err)
	}
	analyzedAt := s.now()
	if err := s.Repo.UpdateAggregate(ctx, rec.ID, recordings.AggregateUpdate{
		Analysis:         payload,
		AnalyzedAt:       analyzedAt,
		SegmentsAnalyzed: used,
		SegmentsTotal:    len(segs),
	}); err != nil {
		return BatchResult{}, fmt.Errorf("store aggregate: %w", err)
	}

	telemetry.Info("analysis.recording.aggregated", map[string]any{
		"request_id":        util.RequestIDFromContext(ctx),
		"recording_id":      rec.ID,
		"segments_analyzed": res.SegmentsAnalyzed,
		"segments_failed":   res.SegmentsFailed,
		"segments_total":    len(segs),
		"force":             opts.Force,
	})

	res.Analyzed = true
	res.TotalAnalyzed = used
	res.Aggregate = &agg
	res.AnalyzedAt = &analyzedAt
	return res, nil
}

// currentState answers a batch run with nothing to analyze: the stored
// aggregate when analyses exist, otherwise a neutral message.
func (s *Service) currentState(rec recordings.Recording, segs []recordings.Segment, existing map[string]recordings.SegmentAnalysis) BatchResult {
	res := BatchResult{SegmentsTotal: len(segs)}
	if len(existing) == 0 {
		res.Message = "nothing to analyze"
		return res
	}
	res.Message = "all segments already analyzed"
	res.TotalAnalyzed = len(existing)
	if stored, ok := decodeAggregate(rec.Analysis); ok {
		res.Aggregate = &stored
		res.AnalyzedAt = rec.AnalyzedAt
		return res
	}
	agg, used := aggregateStored(segs, existing)
	res.Aggregate = &agg
	res.TotalAnalyzed = used
	return res
}

func (s *Service) existingAnalyses(ctx context.Context, recordingID string) (map[string]recordings.SegmentAnalysis, error) {
	list, err := s.Repo.ListSegmentAnalyses(ctx, recordingID)
	if err != nil {
		return nil, fmt.Errorf("list segment analyses: %w", err)
	}
	out := make(map[string]recordings.SegmentAnalysis, len(list))
	for _, a := range list {
		out[a.SegmentID] = a
	}
	return out, nil
}

// aggregateStored aggregates the stored analyses of segs. Payloads that no
// longer parse are left out. It returns the number of analyses used.
func aggregateStored(segs []recordings.Segment, analyses map[string]recordings.SegmentAnalysis) (AggregateAnalysis, int) {
	inputs := make([]SegmentInput, 0, len(analyses))
	for _, seg := range segs {
		a, ok := analyses[seg.ID]
		if !ok {
			continue
		}
		parsed, err := ParseStructured(a.Analysis)
		if err != nil {
			telemetry.Warn("analysis.segment.unparseable", map[string]any{
				"segment_id": seg.ID,
				"error":      err.Error(),
			})
			continue
		}
		inputs = append(inputs, SegmentInput{
			SegmentID:           seg.ID,
			SegmentIndex:        seg.Index,
			ScreenshotsAnalyzed: a.ScreenshotsAnalyzed,
			Analysis:            parsed,
		})
	}
	return Aggregate(inputs), len(inputs)
}

func decodeAggregate(raw json.RawMessage) (AggregateAnalysis, bool) {
	if len(raw) == 0 {
		return AggregateAnalysis{}, false
	}
	var agg AggregateAnalysis
	if err := json.Unmarshal(raw, &agg); err != nil {
		return AggregateAnalysis{}, false
	}
	return agg, true
}

func (s *Service) batchConcurrency() int {
	if s.BatchConcurrency > 0 {
		return s.BatchConcurrency
	}
	return defaultBatchConcurrency
}
