package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"simulator-backend/internal/llm"
	"simulator-backend/internal/recordings"
)

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type fakeSigner struct {
	fail  map[string]bool
	empty map[string]bool
}

func (s *fakeSigner) SignedURL(_ context.Context, _, key string, ttl time.Duration) (string, error) {
	if s.fail[key] {
		return "", errors.New("sign failed")
	}
	if s.empty[key] {
		return "", nil
	}
	return fmt.Sprintf("https://cdn.test/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

type fakeAnalyzer struct {
	mu     sync.Mutex
	calls  []llm.ScreenshotInput
	failOn string
	focus  float64
}

func (a *fakeAnalyzer) AnalyzeScreenshots(_ context.Context, in llm.ScreenshotInput) (json.RawMessage, error) {
	a.mu.Lock()
	a.calls = append(a.calls, in)
	focus := a.focus
	a.mu.Unlock()
	for _, u := range in.URLs {
		if a.failOn != "" && strings.Contains(u, a.failOn) {
			return nil, errors.New("analyzer unavailable")
		}
	}
	return analysisJSON(focus, len(in.URLs)), nil
}

func (a *fakeAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func analysisJSON(focus float64, shots int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"activityTimeline": [{"timestamp": "00:00", "activity": "coding", "tool": "vscode"}],
		"toolUsage": [{"tool": "vscode", "count": %d}],
		"stuckMoments": [],
		"totalActiveSeconds": 60,
		"totalIdleSeconds": 0,
		"focusScore": %g
	}`, shots, focus))
}

func newTestService(repo recordings.Repo, analyzer llm.ScreenshotAnalyzer) *Service {
	return &Service{
		Repo:     repo,
		Signer:   &fakeSigner{},
		Analyzer: analyzer,
		Now:      func() time.Time { return t0.Add(time.Hour) },
	}
}

// seedSegments creates one closed segment per entry of shots, holding that
// many screenshots named seg<i>-<j>.png.
func seedSegments(t *testing.T, repo *recordings.MemoryRepo, shots ...int) (recordings.Recording, []recordings.Segment) {
	t.Helper()
	ctx := context.Background()
	rec, err := repo.GetOrCreateRecording(ctx, "assessment-1", recordings.TypeScreen, t0)
	if err != nil {
		t.Fatalf("GetOrCreateRecording: %v", err)
	}
	segs := make([]recordings.Segment, 0, len(shots))
	for i, n := range shots {
		start := t0.Add(time.Duration(i) * 10 * time.Minute)
		seg, err := repo.StartSegment(ctx, recordings.Segment{RecordingID: rec.ID, StartTime: start})
		if err != nil {
			t.Fatalf("StartSegment: %v", err)
		}
		for j := 0; j < n; j++ {
			if err := repo.AppendScreenshot(ctx, seg.ID, fmt.Sprintf("seg%d-%d.png", i, j)); err != nil {
				t.Fatalf("AppendScreenshot: %v", err)
			}
		}
		seg, err = repo.CompleteSegment(ctx, seg.ID, start.Add(95*time.Second))
		if err != nil {
			t.Fatalf("CompleteSegment: %v", err)
		}
		segs = append(segs, seg)
	}
	rec, _ = repo.GetRecordingByID(ctx, rec.ID)
	return rec, segs
}

func TestProcessSegmentStoresAnalysis(t *testing.T) {
	repo := recordings.NewMemoryRepo()
	analyzer := &fakeAnalyzer{focus: 0.8}
	svc := newTestService(repo, analyzer)
	_, segs := seedSegments(t, repo, 2)

	if err := svc.ProcessSegment(context.Background(), segs[0].ID); err != nil {
		t.Fatalf("ProcessSegment: %v", err)
	}
	if analyzer.callCount() != 1 {
		t.Fatalf("expected one analyzer call, got %d", analyzer.callCount())
	}
	in := analyzer.calls[0]
	want := []string{"https://cdn.test/seg0-0.png?ttl=3600", "https://cdn.test/seg0-1.png?ttl=3600"}
	if strings.Join(in.URLs, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected urls: %v", in.URLs)
	}
	if in.DurationSeconds != 95 || !in.WindowStart.Equal(t0) {
		t.Fatalf("unexpected window: start=%s duration=%d", in.WindowStart, in.DurationSeconds)
	}

	stored, err := repo.GetSegmentAnalysis(context.Background(), segs[0].ID)
	if err != nil {
		t.Fatalf("GetSegmentAnalysis: %v", err)
	}
	if stored.ScreenshotsAnalyzed != 2 {
		t.Fatalf("expected 2 screenshots analyzed, got %d", stored.ScreenshotsAnalyzed)
	}
}

func TestProcessSegmentDropsUnresolvedScreenshots(t *testing.T) {
	repo := recordings.NewMemoryRepo()
	analyzer := &fakeAnalyzer{focus: 0.5}
	svc := newTestService(repo, analyzer)
	svc.Signer = &fakeSigner{fail: map[string]bool{"seg0-0.png": true}, empty: map[string]bool{"seg0-2.png": true}}
	_, segs := seedSegments(t, repo, 3)

	if err := svc.ProcessSegment(context.Background(), segs[0].ID); err != nil {
		t.Fatalf("ProcessSegment: %v", err)
	}
	if got := analyzer.calls[0].URLs; len(got) != 1 || !strings.Contains(got[0], "seg0-1.png") {
		t.Fatalf("expected only the resolvable screenshot, got %v", got)
	}
	stored, _ := repo.GetSegmentAnalysis(context.Background(), segs[0].ID)
	if stored.ScreenshotsAnalyzed != 1 {
		t.Fatalf("expected 1 screenshot analyzed, got %d", stored.ScreenshotsAnalyzed)
	}
}

func TestProcessSegmentSkips(t *testing.T) {
	ctx := context.Background()

	t.Run("no resolvable urls", func(t *testing.T) {
		repo := recordings.NewMemoryRepo()
		analyzer := &fakeAnalyzer{}
		svc := newTestService(repo, analyzer)
		svc.Signer = &fakeSigner{empty: map[string]bool{"seg0-0.png": true}}
		_, segs := seedSegments(t, repo, 1)
		if err := svc.ProcessSegment(ctx, segs[0].ID); err != nil {
			t.Fatalf("ProcessSegment: %v", err)
		}
		if analyzer.callCount() != 0 {
			t.Fatalf("analyzer must not be called without urls")
		}
		if _, err := repo.GetSegmentAnalysis(ctx, segs[0].ID); !errors.Is(err, recordings.ErrNotFound) {
			t.Fatalf("expected no analysis, got %v", err)
		}
	})

	t.Run("no screenshots", func(t *testing.T) {
		repo := recordings.NewMemoryRepo()
		analyzer := &fakeAnalyzer{}
		svc := newTestService(repo, analyzer)
		_, segs := seedSegments(t, repo, 0)
		if err := svc.ProcessSegment(ctx, segs[0].ID); err != nil {
			t.Fatalf("ProcessSegment: %v", err)
		}
		if analyzer.callCount() != 0 {
			t.Fatalf("analyzer must not be called for an empty segment")
		}
	})

	t.Run("still recording", func(t *testing.T) {
		repo := recordings.NewMemoryRepo()
		analyzer := &fakeAnalyzer{}
		svc := newTestService(repo, analyzer)
		rec, _ := repo.GetOrCreateRecording(ctx, "assessment-1", recordings.TypeScreen, t0)
		seg, _ := repo.StartSegment(ctx, recordings.Segment{RecordingID: rec.ID, StartTime: t0})
		_ = repo.AppendScreenshot(ctx, seg.ID, "a.png")
		if err := svc.ProcessSegment(ctx, seg.ID); err != nil {
			t.Fatalf("ProcessSegment: %v", err)
		}
		if analyzer.callCount() != 0 {
			t.Fatalf("analyzer must not be called for an open segment")
		}
	})

	t.Run("missing segment", func(t *testing.T) {
		svc := newTestService(recordings.NewMemoryRepo(), &fakeAnalyzer{})
		if err := svc.ProcessSegment(ctx, "missing"); err != nil {
			t.Fatalf("expected a missing segment to be skipped, got %v", err)
		}
	})
}

func TestProcessSegmentSwallowsAnalyzerFailure(t *testing.T) {
	repo := recordings.NewMemoryRepo()
	analyzer := &fakeAnalyzer{failOn: "seg0"}
	svc := newTestService(repo, analyzer)
	_, segs := seedSegments(t, repo, 1)

	if err := svc.ProcessSegment(context.Background(), segs[0].ID); err != nil {
		t.Fatalf("analyzer failures must not surface, got %v", err)
	}
	seg, _ := repo.GetSegment(context.Background(), segs[0].ID)
	if seg.Status != recordings.StatusCompleted {
		t.Fatalf("segment state must be untouched, got %s", seg.Status)
	}
	if _, err := repo.GetSegmentAnalysis(context.Background(), segs[0].ID); !errors.Is(err, recordings.ErrNotFound) {
		t.Fatalf("expected no analysis, got %v", err)
	}
}

func TestProcessSegmentRejectsInvalidAnalyzerOutput(t *testing.T) {
	repo := recordings.NewMemoryRepo()
	svc := newTestService(repo, analyzerFunc(func(context.Context, llm.ScreenshotInput) (json.RawMessage, error) {
		return json.RawMessage(`not json`), nil
	}))
	_, segs := seedSegments(t, repo, 1)

	if err := svc.ProcessSegment(context.Background(), segs[0].ID); err != nil {
		t.Fatalf("ProcessSegment: %v", err)
	}
	if _, err := repo.GetSegmentAnalysis(context.Background(), segs[0].ID); !errors.Is(err, recordings.ErrNotFound) {
		t.Fatalf("invalid output must not be stored, got %v", err)
	}
}

type analyzerFunc func(context.Context, llm.ScreenshotInput) (json.RawMessage, error)

func (f analyzerFunc) AnalyzeScreenshots(ctx context.Context, in llm.ScreenshotInput) (json.RawMessage, error) {
	return f(ctx, in)
}

func TestJobTimeout(t *testing.T) {
	svc := &Service{}
	if svc.JobTimeout() != 0 {
		t.Fatalf("expected no timeout without an analyzer timeout")
	}
	svc.AnalyzerTimeout = 90 * time.Second
	if svc.JobTimeout() != 120*time.Second {
		t.Fatalf("expected 120s, got %s", svc.JobTimeout())
	}
}

func TestWindowSecondsNeverNegative(t *testing.T) {
	end := t0.Add(-time.Second)
	if got := windowSeconds(recordings.Segment{StartTime: t0, EndTime: &end}); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := windowSeconds(recordings.Segment{StartTime: t0}); got != 0 {
		t.Fatalf("expected 0 for an open segment, got %d", got)
	}
}
