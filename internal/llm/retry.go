package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"simulator-backend/internal/shared/telemetry"
)

const retryBaseDelay = 300 * time.Millisecond

type retryingAnalyzer struct {
	base  ScreenshotAnalyzer
	delay time.Duration
}

// WithRetry wraps base so a transient failure is retried once after a short delay.
func WithRetry(base ScreenshotAnalyzer) ScreenshotAnalyzer {
	if base == nil {
		return nil
	}
	return retryingAnalyzer{base: base, delay: retryBaseDelay}
}

func (r retryingAnalyzer) AnalyzeScreenshots(ctx context.Context, input ScreenshotInput) (json.RawMessage, error) {
	resp, err := r.base.AnalyzeScreenshots(ctx, input)
	if err == nil || !ShouldRetry(err) {
		return resp, err
	}

	telemetry.Warn("llm.retry", map[string]any{
		"attempt":          1,
		"screenshot_count": len(input.URLs),
		"error":            err.Error(),
	})
	select {
	case <-time.After(r.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r.base.AnalyzeScreenshots(ctx, input)
}

// ShouldRetry reports whether err looks transient: timeouts, 5xx responses
// and dropped connections.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http status 5") || strings.Contains(msg, "server_error") {
		return true
	}
	if strings.Contains(msg, "timeout") && (strings.Contains(msg, "openai") || strings.Contains(msg, "llm") || strings.Contains(msg, "client.timeout")) {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof") {
		return true
	}
	return false
}
