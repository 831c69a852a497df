package recordings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// PGRepo implements Repo using Postgres. Index allocation locks the parent
// recording row; path appends are single array_append statements.
type PGRepo struct {
	DB *sql.DB
}

const recordingColumns = `id, assessment_id, type, start_time, end_time, analysis, analyzed_at, segments_analyzed, segments_total`

const segmentColumns = `id, recording_id, segment_index, status, start_time, end_time, chunk_paths, screenshot_paths`

type rowScanner interface {
	Scan(dest ...any) error
}

// GetOrCreateRecording inserts the recording if absent and returns the stored row.
func (r *PGRepo) GetOrCreateRecording(ctx context.Context, assessmentID, recType string, startTime time.Time) (Recording, error) {
	if !validID(assessmentID) {
		return Recording{}, ErrNotFound
	}
	const insert = `
INSERT INTO recordings (id, assessment_id, type, start_time)
VALUES ($1, $2, $3, $4)
ON CONFLICT (assessment_id, type) DO NOTHING`
	if _, err := r.DB.ExecContext(ctx, insert, uuid.NewString(), assessmentID, recType, startTime); err != nil {
		return Recording{}, fmt.Errorf("insert recording: %w", err)
	}
	return r.GetRecording(ctx, assessmentID, recType)
}

// GetRecording fetches the recording of an assessment by capture type.
func (r *PGRepo) GetRecording(ctx context.Context, assessmentID, recType string) (Recording, error) {
	if !validID(assessmentID) {
		return Recording{}, ErrNotFound
	}
	query := `SELECT ` + recordingColumns + ` FROM recordings WHERE assessment_id = $1 AND type = $2`
	return scanRecording(r.DB.QueryRowContext(ctx, query, assessmentID, recType))
}

// GetRecordingByID fetches a recording by id.
func (r *PGRepo) GetRecordingByID(ctx context.Context, recordingID string) (Recording, error) {
	if !validID(recordingID) {
		return Recording{}, ErrNotFound
	}
	query := `SELECT ` + recordingColumns + ` FROM recordings WHERE id = $1`
	return scanRecording(r.DB.QueryRowContext(ctx, query, recordingID))
}

// StartSegment interrupts the active segment, allocates the next index and
// inserts seg inside one transaction holding the recording row lock.
func (r *PGRepo) StartSegment(ctx context.Context, seg Segment) (Segment, error) {
	if !validID(seg.RecordingID) {
		return Segment{}, ErrNotFound
	}
	if seg.ID == "" {
		seg.ID = uuid.NewString()
	}
	if seg.Status == "" {
		seg.Status = StatusRecording
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Segment{}, err
	}
	defer tx.Rollback()

	// Serialize starts per recording.
	var locked string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM recordings WHERE id = $1 FOR UPDATE`, seg.RecordingID).Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Segment{}, ErrNotFound
		}
		return Segment{}, fmt.Errorf("lock recording: %w", err)
	}

	const interrupt = `
UPDATE recording_segments
SET status = 'interrupted', end_time = $2
WHERE recording_id = $1 AND status = 'recording'`
	if _, err := tx.ExecContext(ctx, interrupt, seg.RecordingID, seg.StartTime); err != nil {
		return Segment{}, fmt.Errorf("interrupt active segment: %w", err)
	}

	const nextIndex = `SELECT COALESCE(MAX(segment_index) + 1, 0) FROM recording_segments WHERE recording_id = $1`
	if err := tx.QueryRowContext(ctx, nextIndex, seg.RecordingID).Scan(&seg.Index); err != nil {
		return Segment{}, fmt.Errorf("allocate segment index: %w", err)
	}

	const insert = `
INSERT INTO recording_segments (id, recording_id, segment_index, status, start_time, end_time, chunk_paths, screenshot_paths)
VALUES ($1, $2, $3, $4, $5, $6, '{}', '{}')`
	if _, err := tx.ExecContext(ctx, insert, seg.ID, seg.RecordingID, seg.Index, seg.Status, seg.StartTime, nullTime(seg.EndTime)); err != nil {
		return Segment{}, fmt.Errorf("insert segment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Segment{}, err
	}

	seg.ChunkPaths = []string{}
	seg.ScreenshotPaths = []string{}
	return seg, nil
}

// AppendChunk appends path to the segment's chunk list.
func (r *PGRepo) AppendChunk(ctx context.Context, segmentID, path string) error {
	const query = `
UPDATE recording_segments
SET chunk_paths = array_append(chunk_paths, $2)
WHERE id = $1 AND status = 'recording'`
	return r.appendPath(ctx, query, segmentID, path)
}

// AppendScreenshot appends path to the segment's screenshot list.
func (r *PGRepo) AppendScreenshot(ctx context.Context, segmentID, path string) error {
	const query = `
UPDATE recording_segments
SET screenshot_paths = array_append(screenshot_paths, $2)
WHERE id = $1 AND status = 'recording'`
	return r.appendPath(ctx, query, segmentID, path)
}

func (r *PGRepo) appendPath(ctx context.Context, query, segmentID, path string) error {
	if !validID(segmentID) {
		return ErrNotFound
	}
	res, err := r.DB.ExecContext(ctx, query, segmentID, path)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return r.missingOrClosed(ctx, r.DB, segmentID)
	}
	return nil
}

// CompleteSegment marks the segment completed and stamps the recording end time.
func (r *PGRepo) CompleteSegment(ctx context.Context, segmentID string, endTime time.Time) (Segment, error) {
	return r.closeSegment(ctx, segmentID, StatusCompleted, endTime)
}

// InterruptSegment marks the segment interrupted.
func (r *PGRepo) InterruptSegment(ctx context.Context, segmentID string, endTime time.Time) (Segment, error) {
	return r.closeSegment(ctx, segmentID, StatusInterrupted, endTime)
}

func (r *PGRepo) closeSegment(ctx context.Context, segmentID, status string, endTime time.Time) (Segment, error) {
	if !validID(segmentID) {
		return Segment{}, ErrNotFound
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Segment{}, err
	}
	defer tx.Rollback()

	query := `
UPDATE recording_segments
SET status = $2, end_time = $3
WHERE id = $1 AND status = 'recording'
RETURNING ` + segmentColumns
	seg, err := scanSegment(tx.QueryRowContext(ctx, query, segmentID, status, endTime))
	if errors.Is(err, ErrNotFound) {
		return Segment{}, r.missingOrClosed(ctx, tx, segmentID)
	}
	if err != nil {
		return Segment{}, err
	}

	if status == StatusCompleted {
		if _, err := tx.ExecContext(ctx, `UPDATE recordings SET end_time = $2 WHERE id = $1`, seg.RecordingID, endTime); err != nil {
			return Segment{}, fmt.Errorf("update recording end: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Segment{}, err
	}
	return seg, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *PGRepo) missingOrClosed(ctx context.Context, q queryer, segmentID string) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM recording_segments WHERE id = $1`, segmentID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrSegmentNotRecording
}

// GetSegment fetches a segment by id.
func (r *PGRepo) GetSegment(ctx context.Context, segmentID string) (Segment, error) {
	if !validID(segmentID) {
		return Segment{}, ErrNotFound
	}
	query := `SELECT ` + segmentColumns + ` FROM recording_segments WHERE id = $1`
	return scanSegment(r.DB.QueryRowContext(ctx, query, segmentID))
}

// ListSegments lists a recording's segments by index.
func (r *PGRepo) ListSegments(ctx context.Context, recordingID string) ([]Segment, error) {
	if !validID(recordingID) {
		return nil, nil
	}
	query := `SELECT ` + segmentColumns + ` FROM recording_segments WHERE recording_id = $1 ORDER BY segment_index`
	return r.querySegments(ctx, query, recordingID)
}

// ListUnanalyzedSegments lists closed segments with screenshots and no analysis.
// Excluded ids are passed as one uuid[] literal.
func (r *PGRepo) ListUnanalyzedSegments(ctx context.Context, exclude []string, limit int) ([]Segment, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
SELECT s.id, s.recording_id, s.segment_index, s.status, s.start_time, s.end_time, s.chunk_paths, s.screenshot_paths
FROM recording_segments s
LEFT JOIN segment_analyses a ON a.segment_id = s.id
WHERE s.status <> 'recording' AND cardinality(s.screenshot_paths) > 0 AND a.id IS NULL
  AND NOT (s.id = ANY($1::uuid[]))
ORDER BY s.end_time, s.id
LIMIT $2`
	return r.querySegments(ctx, query, uuidArrayLiteral(exclude), limit)
}

func uuidArrayLiteral(ids []string) string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if u, err := uuid.Parse(id); err == nil {
			valid = append(valid, u.String())
		}
	}
	return "{" + strings.Join(valid, ",") + "}"
}

func (r *PGRepo) querySegments(ctx context.Context, query string, args ...any) ([]Segment, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

// UpsertSegmentAnalysis inserts or wholly replaces the analysis for a segment.
func (r *PGRepo) UpsertSegmentAnalysis(ctx context.Context, a SegmentAnalysis) error {
	if !validID(a.SegmentID) {
		return ErrNotFound
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	const query = `
INSERT INTO segment_analyses (id, segment_id, analysis, screenshots_analyzed, analyzed_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (segment_id) DO UPDATE
SET analysis = EXCLUDED.analysis,
    screenshots_analyzed = EXCLUDED.screenshots_analyzed,
    analyzed_at = EXCLUDED.analyzed_at`
	_, err := r.DB.ExecContext(ctx, query, a.ID, a.SegmentID, string(a.Analysis), a.ScreenshotsAnalyzed, a.AnalyzedAt)
	return err
}

// GetSegmentAnalysis fetches the analysis of one segment.
func (r *PGRepo) GetSegmentAnalysis(ctx context.Context, segmentID string) (SegmentAnalysis, error) {
	if !validID(segmentID) {
		return SegmentAnalysis{}, ErrNotFound
	}
	const query = `
SELECT id, segment_id, analysis, screenshots_analyzed, analyzed_at
FROM segment_analyses
WHERE segment_id = $1`
	var a SegmentAnalysis
	var payload []byte
	err := r.DB.QueryRowContext(ctx, query, segmentID).Scan(&a.ID, &a.SegmentID, &payload, &a.ScreenshotsAnalyzed, &a.AnalyzedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SegmentAnalysis{}, ErrNotFound
		}
		return SegmentAnalysis{}, err
	}
	a.Analysis = payload
	return a, nil
}

// ListSegmentAnalyses lists the analyses of a recording's segments by index.
func (r *PGRepo) ListSegmentAnalyses(ctx context.Context, recordingID string) ([]SegmentAnalysis, error) {
	if !validID(recordingID) {
		return nil, nil
	}
	const query = `
SELECT a.id, a.segment_id, a.analysis, a.screenshots_analyzed, a.analyzed_at
FROM segment_analyses a
JOIN recording_segments s ON s.id = a.segment_id
WHERE s.recording_id = $1
ORDER BY s.segment_index`
	rows, err := r.DB.QueryContext(ctx, query, recordingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SegmentAnalysis
	for rows.Next() {
		var a SegmentAnalysis
		var payload []byte
		if err := rows.Scan(&a.ID, &a.SegmentID, &payload, &a.ScreenshotsAnalyzed, &a.AnalyzedAt); err != nil {
			return nil, err
		}
		a.Analysis = payload
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAggregate stores the recomputed aggregate on the recording.
func (r *PGRepo) UpdateAggregate(ctx context.Context, recordingID string, update AggregateUpdate) error {
	if !validID(recordingID) {
		return ErrNotFound
	}
	const query = `
UPDATE recordings
SET analysis = $2, analyzed_at = $3, segments_analyzed = $4, segments_total = $5
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, recordingID, string(update.Analysis), update.AnalyzedAt, update.SegmentsAnalyzed, update.SegmentsTotal)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecording(row rowScanner) (Recording, error) {
	var rec Recording
	var endTime sql.NullTime
	var analysis []byte
	var analyzedAt sql.NullTime
	err := row.Scan(
		&rec.ID,
		&rec.AssessmentID,
		&rec.Type,
		&rec.StartTime,
		&endTime,
		&analysis,
		&analyzedAt,
		&rec.SegmentsAnalyzed,
		&rec.SegmentsTotal,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Recording{}, ErrNotFound
		}
		return Recording{}, err
	}
	rec.EndTime = timePtr(endTime)
	rec.AnalyzedAt = timePtr(analyzedAt)
	if len(analysis) > 0 {
		rec.Analysis = analysis
	}
	return rec, nil
}

func scanSegment(row rowScanner) (Segment, error) {
	typeMap := pgtype.NewMap()
	var seg Segment
	var endTime sql.NullTime
	err := row.Scan(
		&seg.ID,
		&seg.RecordingID,
		&seg.Index,
		&seg.Status,
		&seg.StartTime,
		&endTime,
		typeMap.SQLScanner(&seg.ChunkPaths),
		typeMap.SQLScanner(&seg.ScreenshotPaths),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Segment{}, ErrNotFound
		}
		return Segment{}, err
	}
	seg.EndTime = timePtr(endTime)
	if seg.ChunkPaths == nil {
		seg.ChunkPaths = []string{}
	}
	if seg.ScreenshotPaths == nil {
		seg.ScreenshotPaths = []string{}
	}
	return seg, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

var _ Repo = (*PGRepo)(nil)
