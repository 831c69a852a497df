package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"simulator-backend/internal/llm"
	"simulator-backend/internal/shared/config"
)

type recordingAnalyzer struct {
	mu   sync.Mutex
	urls [][]string
}

func (a *recordingAnalyzer) AnalyzeScreenshots(_ context.Context, in llm.ScreenshotInput) (json.RawMessage, error) {
	a.mu.Lock()
	a.urls = append(a.urls, in.URLs)
	a.mu.Unlock()
	return json.RawMessage(`{"activityTimeline":[],"toolUsage":{"terminal":2},"stuckMoments":[],"totalActiveSeconds":30,"totalIdleSeconds":5,"focusScore":0.9}`), nil
}

func devConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Env:                "dev",
		ObjectStoreType:    "local",
		LocalStoreDir:      t.TempDir(),
		PublicBaseURL:      "http://api.test",
		SignedURLTTL:       time.Hour,
		LLMProvider:        "none",
		AnalyzerTimeout:    5 * time.Second,
		AnalysisQueue:      "memory",
		AnalysisWorkers:    1,
		AnalysisQueueSize:  8,
		BatchConcurrency:   2,
		RateLimitRPS:       100,
		RateLimitBurst:     100,
		PollRateLimitRPS:   100,
		PollRateLimitBurst: 100,
	}
}

func post(t *testing.T, app *App, path string, payload map[string]any) map[string]any {
	t.Helper()
	raw, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Guest-Id", "e2e")
	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("POST %s: expected 200, got %d: %s", path, resp.Code, resp.Body.String())
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestBuildDevAppAnalyzesCompletedSegment(t *testing.T) {
	cfg := devConfig(t)
	if err := os.MkdirAll(filepath.Join(cfg.LocalStoreDir, "shots"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"a.png", "b.png"} {
		if err := os.WriteFile(filepath.Join(cfg.LocalStoreDir, "shots", name), []byte("img"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	app, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer app.Close(context.Background())
	if app.DB != nil || app.MemoryQueue == nil || app.Files == nil {
		t.Fatalf("expected memory repositories, memory queue and local files")
	}
	analyzer := &recordingAnalyzer{}
	app.Analysis.Analyzer = analyzer

	const path = "/api/v1/recording/session"
	started := post(t, app, path, map[string]any{"assessmentId": "assessment-e2e", "action": "start"})
	segmentID, _ := started["segmentId"].(string)
	for _, shot := range []string{"shots/a.png", "shots/b.png"} {
		post(t, app, path, map[string]any{"assessmentId": "assessment-e2e", "action": "addScreenshot", "segmentId": segmentID, "screenshotPath": shot})
	}
	completed := post(t, app, path, map[string]any{"assessmentId": "assessment-e2e", "action": "complete", "segmentId": segmentID})
	if completed["analysisTriggered"] != true {
		t.Fatalf("expected analysis to be triggered: %v", completed)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := app.RecordingsRepo.GetSegmentAnalysis(context.Background(), segmentID); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("segment analysis was not stored in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	analyzer.mu.Lock()
	urls := analyzer.urls[0]
	analyzer.mu.Unlock()
	if len(urls) != 2 || !strings.HasPrefix(urls[0], "http://api.test/api/v1/files/shots/a.png?token=") {
		t.Fatalf("unexpected analyzer urls: %v", urls)
	}

	batch := post(t, app, "/api/v1/recording/analysis", map[string]any{"assessmentId": "assessment-e2e"})
	if batch["analyzed"] != false {
		t.Fatalf("expected the stored analysis to be reused, got %v", batch)
	}
}

func TestBuildRequiresDatabaseOutsideDev(t *testing.T) {
	cfg := devConfig(t)
	cfg.Env = "production"
	if _, err := Build(cfg); err == nil {
		t.Fatalf("expected an error without DATABASE_URL in production")
	}
}

func TestBuildWorkerHasNoRouter(t *testing.T) {
	app, err := BuildWorker(devConfig(t))
	if err != nil {
		t.Fatalf("BuildWorker: %v", err)
	}
	defer app.Close(context.Background())
	if app.Router != nil || app.Queue != nil || app.Analysis == nil {
		t.Fatalf("unexpected worker app: %#v", app)
	}
}
