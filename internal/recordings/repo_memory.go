package recordings

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Repo. One mutex serialises every mutation, which
// gives StartSegment and the appends the atomicity the Repo contract asks for.
type MemoryRepo struct {
	mu         sync.RWMutex
	recordings map[string]Recording
	byKey      map[string]string
	segments   map[string]Segment
	order      map[string][]string
	analyses   map[string]SegmentAnalysis
}

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		recordings: make(map[string]Recording),
		byKey:      make(map[string]string),
		segments:   make(map[string]Segment),
		order:      make(map[string][]string),
		analyses:   make(map[string]SegmentAnalysis),
	}
}

func recordingKey(assessmentID, recType string) string {
	return assessmentID + "|" + recType
}

func (r *MemoryRepo) GetOrCreateRecording(ctx context.Context, assessmentID, recType string, startTime time.Time) (Recording, error) {
	if err := ctx.Err(); err != nil {
		return Recording{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := recordingKey(assessmentID, recType)
	if id, ok := r.byKey[key]; ok {
		return cloneRecording(r.recordings[id]), nil
	}
	rec := Recording{
		ID:           uuid.NewString(),
		AssessmentID: assessmentID,
		Type:         recType,
		StartTime:    startTime,
	}
	r.recordings[rec.ID] = rec
	r.byKey[key] = rec.ID
	return cloneRecording(rec), nil
}

func (r *MemoryRepo) GetRecording(ctx context.Context, assessmentID, recType string) (Recording, error) {
	if err := ctx.Err(); err != nil {
		return Recording{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[recordingKey(assessmentID, recType)]
	if !ok {
		return Recording{}, ErrNotFound
	}
	return cloneRecording(r.recordings[id]), nil
}

func (r *MemoryRepo) GetRecordingByID(ctx context.Context, recordingID string) (Recording, error) {
	if err := ctx.Err(); err != nil {
		return Recording{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.recordings[recordingID]
	if !ok {
		return Recording{}, ErrNotFound
	}
	return cloneRecording(rec), nil
}

func (r *MemoryRepo) StartSegment(ctx context.Context, seg Segment) (Segment, error) {
	if err := ctx.Err(); err != nil {
		return Segment{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.recordings[seg.RecordingID]; !ok {
		return Segment{}, ErrNotFound
	}
	ids := r.order[seg.RecordingID]
	for _, id := range ids {
		existing := r.segments[id]
		if existing.Status == StatusRecording {
			end := seg.StartTime
			existing.Status = StatusInterrupted
			existing.EndTime = &end
			r.segments[id] = existing
		}
	}

	seg.Index = len(ids)
	if seg.ID == "" {
		seg.ID = uuid.NewString()
	}
	if seg.Status == "" {
		seg.Status = StatusRecording
	}
	seg.ChunkPaths = []string{}
	seg.ScreenshotPaths = []string{}
	r.segments[seg.ID] = seg
	r.order[seg.RecordingID] = append(ids, seg.ID)
	return cloneSegment(seg), nil
}

func (r *MemoryRepo) AppendChunk(ctx context.Context, segmentID, path string) error {
	return r.appendPath(ctx, segmentID, func(s *Segment) { s.ChunkPaths = append(s.ChunkPaths, path) })
}

func (r *MemoryRepo) AppendScreenshot(ctx context.Context, segmentID, path string) error {
	return r.appendPath(ctx, segmentID, func(s *Segment) { s.ScreenshotPaths = append(s.ScreenshotPaths, path) })
}

func (r *MemoryRepo) appendPath(ctx context.Context, segmentID string, apply func(*Segment)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	seg, ok := r.segments[segmentID]
	if !ok {
		return ErrNotFound
	}
	if seg.Status != StatusRecording {
		return ErrSegmentNotRecording
	}
	apply(&seg)
	r.segments[segmentID] = seg
	return nil
}

func (r *MemoryRepo) CompleteSegment(ctx context.Context, segmentID string, endTime time.Time) (Segment, error) {
	return r.closeSegment(ctx, segmentID, StatusCompleted, endTime)
}

func (r *MemoryRepo) InterruptSegment(ctx context.Context, segmentID string, endTime time.Time) (Segment, error) {
	return r.closeSegment(ctx, segmentID, StatusInterrupted, endTime)
}

func (r *MemoryRepo) closeSegment(ctx context.Context, segmentID, status string, endTime time.Time) (Segment, error) {
	if err := ctx.Err(); err != nil {
		return Segment{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	seg, ok := r.segments[segmentID]
	if !ok {
		return Segment{}, ErrNotFound
	}
	if seg.Status != StatusRecording {
		return Segment{}, ErrSegmentNotRecording
	}
	end := endTime
	seg.Status = status
	seg.EndTime = &end
	r.segments[segmentID] = seg

	if status == StatusCompleted {
		rec := r.recordings[seg.RecordingID]
		recEnd := endTime
		rec.EndTime = &recEnd
		r.recordings[rec.ID] = rec
	}
	return cloneSegment(seg), nil
}

func (r *MemoryRepo) GetSegment(ctx context.Context, segmentID string) (Segment, error) {
	if err := ctx.Err(); err != nil {
		return Segment{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	seg, ok := r.segments[segmentID]
	if !ok {
		return Segment{}, ErrNotFound
	}
	return cloneSegment(seg), nil
}

func (r *MemoryRepo) ListSegments(ctx context.Context, recordingID string) ([]Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.order[recordingID]
	out := make([]Segment, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneSegment(r.segments[id]))
	}
	return out, nil
}

func (r *MemoryRepo) ListUnanalyzedSegments(ctx context.Context, exclude []string, limit int) ([]Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Segment
	for _, seg := range r.segments {
		if seg.Status == StatusRecording || len(seg.ScreenshotPaths) == 0 {
			continue
		}
		if _, skipped := skip[seg.ID]; skipped {
			continue
		}
		if _, analyzed := r.analyses[seg.ID]; analyzed {
			continue
		}
		out = append(out, cloneSegment(seg))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EndTime.Equal(*out[j].EndTime) {
			return out[i].EndTime.Before(*out[j].EndTime)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) UpsertSegmentAnalysis(ctx context.Context, a SegmentAnalysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.segments[a.SegmentID]; !ok {
		return ErrNotFound
	}
	if existing, ok := r.analyses[a.SegmentID]; ok {
		a.ID = existing.ID
	} else if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Analysis = append([]byte(nil), a.Analysis...)
	r.analyses[a.SegmentID] = a
	return nil
}

func (r *MemoryRepo) GetSegmentAnalysis(ctx context.Context, segmentID string) (SegmentAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return SegmentAnalysis{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.analyses[segmentID]
	if !ok {
		return SegmentAnalysis{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepo) ListSegmentAnalyses(ctx context.Context, recordingID string) ([]SegmentAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []SegmentAnalysis
	for _, id := range r.order[recordingID] {
		if a, ok := r.analyses[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *MemoryRepo) UpdateAggregate(ctx context.Context, recordingID string, update AggregateUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recordings[recordingID]
	if !ok {
		return ErrNotFound
	}
	at := update.AnalyzedAt
	rec.Analysis = append([]byte(nil), update.Analysis...)
	rec.AnalyzedAt = &at
	rec.SegmentsAnalyzed = update.SegmentsAnalyzed
	rec.SegmentsTotal = update.SegmentsTotal
	r.recordings[recordingID] = rec
	return nil
}

func cloneSegment(s Segment) Segment {
	s.ChunkPaths = append([]string{}, s.ChunkPaths...)
	s.ScreenshotPaths = append([]string{}, s.ScreenshotPaths...)
	if s.EndTime != nil {
		end := *s.EndTime
		s.EndTime = &end
	}
	return s
}

func cloneRecording(r Recording) Recording {
	if r.Analysis != nil {
		r.Analysis = append([]byte(nil), r.Analysis...)
	}
	return r
}

var _ Repo = (*MemoryRepo)(nil)
