package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ScreenshotAnalyzer turns a time-ordered list of screenshot URLs into a
// structured activity analysis for one capture window.
type ScreenshotAnalyzer interface {
	AnalyzeScreenshots(ctx context.Context, input ScreenshotInput) (json.RawMessage, error)
}

// ScreenshotInput captures one capture window.
type ScreenshotInput struct {
	URLs            []string
	WindowStart     time.Time
	DurationSeconds int
	PromptVersion   string
}

// ErrNotImplemented is returned by the placeholder analyzer.
var ErrNotImplemented = errors.New("LLM not implemented")

// PlaceholderAnalyzer is used when no provider is configured.
type PlaceholderAnalyzer struct{}

// AnalyzeScreenshots returns ErrNotImplemented.
func (PlaceholderAnalyzer) AnalyzeScreenshots(context.Context, ScreenshotInput) (json.RawMessage, error) {
	return nil, ErrNotImplemented
}
