package llm

import (
	_ "embed"
	"strconv"
	"strings"
	"time"
)

//go:embed prompts/screen_activity_v1.txt
var promptScreenActivityV1 string

// DefaultPromptVersion is used when callers do not pin a prompt version.
const DefaultPromptVersion = "screen_activity_v1"

// PromptTemplate returns the prompt template text and whether the version was recognized.
func PromptTemplate(version string) (string, bool) {
	switch version {
	case "screen_activity_v1":
		return promptScreenActivityV1, true
	default:
		return promptScreenActivityV1, false
	}
}

// RenderPrompt fills the screen activity template for one capture window.
func RenderPrompt(version string, input ScreenshotInput) string {
	template, _ := PromptTemplate(version)
	start := input.WindowStart.UTC()
	end := start.Add(time.Duration(input.DurationSeconds) * time.Second)
	r := strings.NewReplacer(
		"{{WINDOW_START}}", start.Format(time.RFC3339),
		"{{WINDOW_END}}", end.Format(time.RFC3339),
		"{{DURATION_SECONDS}}", strconv.Itoa(input.DurationSeconds),
		"{{SCREENSHOT_COUNT}}", strconv.Itoa(len(input.URLs)),
	)
	return r.Replace(template)
}
