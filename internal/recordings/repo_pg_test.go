package recordings

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

const (
	testRecordingID = "6f1c1f44-5d8a-4a53-9d67-1d0c5c6c2a10"
	testSegmentID   = "0b7f5d3e-2c1a-4f0e-8d8b-9a7e6c5b4a31"
	testSegment2ID  = "9d2e4c6a-8b0f-4e1d-a3c5-b7d9f1e3a5c7"
)

var segmentCols = []string{"id", "recording_id", "segment_index", "status", "start_time", "end_time", "chunk_paths", "screenshot_paths"}

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGRepoStartSegmentAllocatesUnderLock(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM recordings WHERE id = $1 FOR UPDATE")).
		WithArgs(testRecordingID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(testRecordingID))
	mock.ExpectExec("UPDATE recording_segments SET status = 'interrupted'").
		WithArgs(testRecordingID, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(segment_index) + 1, 0)")).
		WithArgs(testRecordingID).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(3))
	mock.ExpectExec("INSERT INTO recording_segments").
		WithArgs(testSegmentID, testRecordingID, 3, StatusRecording, now, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	seg, err := repo.StartSegment(context.Background(), Segment{
		ID:          testSegmentID,
		RecordingID: testRecordingID,
		StartTime:   now,
	})
	if err != nil {
		t.Fatalf("StartSegment: %v", err)
	}
	if seg.Index != 3 || seg.Status != StatusRecording {
		t.Fatalf("unexpected segment: %#v", seg)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoStartSegmentRollsBackOnInsertFailure(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM recordings").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(testRecordingID))
	mock.ExpectExec("UPDATE recording_segments").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(0))
	mock.ExpectExec("INSERT INTO recording_segments").
		WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	_, err := repo.StartSegment(context.Background(), Segment{RecordingID: testRecordingID, StartTime: now})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoStartSegmentMissingRecording(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM recordings").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := repo.StartSegment(context.Background(), Segment{RecordingID: testRecordingID, StartTime: time.Now()})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoAppendScreenshotUsesArrayAppend(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("SET screenshot_paths = array_append(screenshot_paths, $2)")).
		WithArgs(testSegmentID, "rec/a.png").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.AppendScreenshot(context.Background(), testSegmentID, "rec/a.png"); err != nil {
		t.Fatalf("AppendScreenshot: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoAppendChunkToClosedSegment(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("SET chunk_paths = array_append(chunk_paths, $2)")).
		WithArgs(testSegmentID, "rec/0.webm").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM recording_segments").
		WithArgs(testSegmentID).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(StatusCompleted))

	err := repo.AppendChunk(context.Background(), testSegmentID, "rec/0.webm")
	if !errors.Is(err, ErrSegmentNotRecording) {
		t.Fatalf("expected ErrSegmentNotRecording, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoAppendInvalidIDIsNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	if err := repo.AppendChunk(context.Background(), "not-a-uuid", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expected no queries: %v", err)
	}
}

func TestPGRepoCompleteSegmentUpdatesRecordingEnd(t *testing.T) {
	repo, mock := newMockRepo(t)
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE recording_segments SET status = \\$2, end_time = \\$3 WHERE id = \\$1 AND status = 'recording' RETURNING").
		WithArgs(testSegmentID, StatusCompleted, end).
		WillReturnRows(sqlmock.NewRows(segmentCols).
			AddRow(testSegmentID, testRecordingID, 0, StatusCompleted, start, end, "{}", "{rec/a.png,rec/b.png}"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE recordings SET end_time = $2 WHERE id = $1")).
		WithArgs(testRecordingID, end).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	seg, err := repo.CompleteSegment(context.Background(), testSegmentID, end)
	if err != nil {
		t.Fatalf("CompleteSegment: %v", err)
	}
	if seg.Status != StatusCompleted || seg.EndTime == nil || !seg.EndTime.Equal(end) {
		t.Fatalf("unexpected segment: %#v", seg)
	}
	if len(seg.ScreenshotPaths) != 2 || seg.ScreenshotPaths[1] != "rec/b.png" {
		t.Fatalf("unexpected screenshots: %#v", seg.ScreenshotPaths)
	}
	if len(seg.ChunkPaths) != 0 {
		t.Fatalf("expected no chunks, got %#v", seg.ChunkPaths)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoInterruptTerminalSegment(t *testing.T) {
	repo, mock := newMockRepo(t)
	end := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE recording_segments").
		WithArgs(testSegmentID, StatusInterrupted, end).
		WillReturnRows(sqlmock.NewRows(segmentCols))
	mock.ExpectQuery("SELECT status FROM recording_segments").
		WithArgs(testSegmentID).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(StatusInterrupted))
	mock.ExpectRollback()

	_, err := repo.InterruptSegment(context.Background(), testSegmentID, end)
	if !errors.Is(err, ErrSegmentNotRecording) {
		t.Fatalf("expected ErrSegmentNotRecording, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoUpsertSegmentAnalysis(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC)
	payload := json.RawMessage(`{"focusScore":0.8}`)

	mock.ExpectExec("INSERT INTO segment_analyses .* ON CONFLICT \\(segment_id\\) DO UPDATE").
		WithArgs(sqlmock.AnyArg(), testSegmentID, `{"focusScore":0.8}`, 2, at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.UpsertSegmentAnalysis(context.Background(), SegmentAnalysis{
		SegmentID:           testSegmentID,
		Analysis:            payload,
		ScreenshotsAnalyzed: 2,
		AnalyzedAt:          at,
	})
	if err != nil {
		t.Fatalf("UpsertSegmentAnalysis: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoListSegmentsOrdersByIndex(t *testing.T) {
	repo, mock := newMockRepo(t)
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM recording_segments WHERE recording_id = \\$1 ORDER BY segment_index").
		WithArgs(testRecordingID).
		WillReturnRows(sqlmock.NewRows(segmentCols).
			AddRow(testSegmentID, testRecordingID, 0, StatusInterrupted, start, start.Add(time.Minute), "{rec/0.webm}", "{}").
			AddRow(testSegment2ID, testRecordingID, 1, StatusRecording, start.Add(time.Minute), nil, "{}", "{}"))

	segs, err := repo.ListSegments(context.Background(), testRecordingID)
	if err != nil {
		t.Fatalf("ListSegments: %v", err)
	}
	if len(segs) != 2 || segs[0].Index != 0 || segs[1].Index != 1 {
		t.Fatalf("unexpected segments: %#v", segs)
	}
	if segs[1].EndTime != nil {
		t.Fatalf("recording segment must have no end time")
	}
	if len(segs[0].ChunkPaths) != 1 || segs[0].ChunkPaths[0] != "rec/0.webm" {
		t.Fatalf("unexpected chunks: %#v", segs[0].ChunkPaths)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoUpdateAggregateMissingRecording(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE recordings SET analysis").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateAggregate(context.Background(), testRecordingID, AggregateUpdate{Analysis: json.RawMessage(`{}`)})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoListUnanalyzedSegmentsExcludesBeforeLimit(t *testing.T) {
	repo, mock := newMockRepo(t)
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("AND NOT (s.id = ANY($1::uuid[]))")).
		WithArgs("{"+testSegmentID+"}", 1).
		WillReturnRows(sqlmock.NewRows(segmentCols).
			AddRow(testSegment2ID, testRecordingID, 1, StatusCompleted, start, start.Add(time.Minute), "{}", "{rec/1.png}"))

	segs, err := repo.ListUnanalyzedSegments(context.Background(), []string{testSegmentID, "not-a-uuid"}, 1)
	if err != nil {
		t.Fatalf("ListUnanalyzedSegments: %v", err)
	}
	if len(segs) != 1 || segs[0].ID != testSegment2ID {
		t.Fatalf("unexpected segments: %#v", segs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoListUnanalyzedSegmentsWithoutExclusions(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("LEFT JOIN segment_analyses").
		WithArgs("{}", 100).
		WillReturnRows(sqlmock.NewRows(segmentCols))

	segs, err := repo.ListUnanalyzedSegments(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("ListUnanalyzedSegments: %v", err)
	}
	if len(segs) != 0 {
		t.Fatalf("expected no segments, got %d", len(segs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
