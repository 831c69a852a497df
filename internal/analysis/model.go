package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// StructuredAnalysis is the analyzer's view of one segment. Timestamps and
// descriptions are opaque analyzer output.
type StructuredAnalysis struct {
	ActivityTimeline   []TimelineEntry `json:"activityTimeline"`
	ToolUsage          ToolUsageList   `json:"toolUsage"`
	StuckMoments       []StuckMoment   `json:"stuckMoments"`
	TotalActiveSeconds float64         `json:"totalActiveSeconds"`
	TotalIdleSeconds   float64         `json:"totalIdleSeconds"`
	FocusScore         float64         `json:"focusScore"`
}

// TimelineEntry is one observed activity.
type TimelineEntry struct {
	Timestamp   string `json:"timestamp"`
	Activity    string `json:"activity"`
	Description string `json:"description,omitempty"`
	Tool        string `json:"tool,omitempty"`
}

// ToolUsage counts how often a tool was in focus.
type ToolUsage struct {
	Tool  string `json:"tool"`
	Count int    `json:"count"`
}

// StuckMoment is a period where the candidate made no visible progress.
type StuckMoment struct {
	Timestamp       string  `json:"timestamp"`
	Description     string  `json:"description"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}

// ToolUsageList accepts either [{"tool","count"}] or {"tool": count}.
type ToolUsageList []ToolUsage

// UnmarshalJSON decodes both shapes the analyzer produces. Map entries are
// ordered by tool name.
func (l *ToolUsageList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}

	switch trimmed[0] {
	case '[':
		var items []struct {
			Tool  string  `json:"tool"`
			Count float64 `json:"count"`
		}
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return fmt.Errorf("toolUsage list: %w", err)
		}
		out := make(ToolUsageList, 0, len(items))
		for _, it := range items {
			out = append(out, ToolUsage{Tool: it.Tool, Count: roundCount(it.Count)})
		}
		*l = out
		return nil
	case '{':
		var counts map[string]float64
		if err := json.Unmarshal(trimmed, &counts); err != nil {
			return fmt.Errorf("toolUsage map: %w", err)
		}
		out := make(ToolUsageList, 0, len(counts))
		for tool, n := range counts {
			out = append(out, ToolUsage{Tool: tool, Count: roundCount(n)})
		}
		sortTools(out, func(a, b ToolUsage) bool { return a.Tool < b.Tool })
		*l = out
		return nil
	default:
		return fmt.Errorf("toolUsage: unexpected JSON %q", string(trimmed[:1]))
	}
}

// ParseStructured decodes raw analyzer output.
func ParseStructured(raw json.RawMessage) (StructuredAnalysis, error) {
	var a StructuredAnalysis
	if len(bytes.TrimSpace(raw)) == 0 {
		return a, fmt.Errorf("empty analysis")
	}
	if err := json.Unmarshal(raw, &a); err != nil {
		return StructuredAnalysis{}, fmt.Errorf("parse analysis: %w", err)
	}
	return a, nil
}

func roundCount(f float64) int {
	if f < 0 || math.IsNaN(f) {
		return 0
	}
	return int(math.Round(f))
}
