package analysis

import (
	"math"
	"sort"
)

// SegmentInput is one segment's analysis fed to Aggregate.
type SegmentInput struct {
	SegmentID           string
	SegmentIndex        int
	ScreenshotsAnalyzed int
	Analysis            StructuredAnalysis
}

// AggregateTimelineEntry is a timeline entry tagged with its segment.
type AggregateTimelineEntry struct {
	SegmentIndex int `json:"segmentIndex"`
	TimelineEntry
}

// AggregateStuckMoment is a stuck moment tagged with its segment.
type AggregateStuckMoment struct {
	SegmentIndex int `json:"segmentIndex"`
	StuckMoment
}

// AggregateAnalysis is the recording-level summary.
type AggregateAnalysis struct {
	ActivityTimeline    []AggregateTimelineEntry `json:"activityTimeline"`
	ToolUsage           []ToolUsage              `json:"toolUsage"`
	StuckMoments        []AggregateStuckMoment   `json:"stuckMoments"`
	TotalActiveSeconds  float64                  `json:"totalActiveSeconds"`
	TotalIdleSeconds    float64                  `json:"totalIdleSeconds"`
	FocusScore          float64                  `json:"focusScore"`
	SegmentCount        int                      `json:"segmentCount"`
	ScreenshotsAnalyzed int                      `json:"screenshotsAnalyzed"`
}

// Aggregate folds raw per-segment analyses into one summary. It is a pure
// function of the input set: inputs are ordered by segment index (then id)
// before folding, so input order never changes the result.
//
// The focus score is the active-time-weighted mean of segment scores, or the
// plain mean when no segment reports active time, rounded to 2 decimals.
func Aggregate(inputs []SegmentInput) AggregateAnalysis {
	ordered := append([]SegmentInput(nil), inputs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].SegmentIndex != ordered[j].SegmentIndex {
			return ordered[i].SegmentIndex < ordered[j].SegmentIndex
		}
		return ordered[i].SegmentID < ordered[j].SegmentID
	})

	out := AggregateAnalysis{
		ActivityTimeline: []AggregateTimelineEntry{},
		ToolUsage:        []ToolUsage{},
		StuckMoments:     []AggregateStuckMoment{},
		SegmentCount:     len(ordered),
	}
	tools := map[string]int{}
	var weighted, plain float64

	for _, in := range ordered {
		a := in.Analysis
		for _, e := range a.ActivityTimeline {
			out.ActivityTimeline = append(out.ActivityTimeline, AggregateTimelineEntry{SegmentIndex: in.SegmentIndex, TimelineEntry: e})
		}
		for _, m := range a.StuckMoments {
			out.StuckMoments = append(out.StuckMoments, AggregateStuckMoment{SegmentIndex: in.SegmentIndex, StuckMoment: m})
		}
		for _, t := range a.ToolUsage {
			if t.Tool == "" {
				continue
			}
			tools[t.Tool] += t.Count
		}
		active := nonNegative(a.TotalActiveSeconds)
		out.TotalActiveSeconds += active
		out.TotalIdleSeconds += nonNegative(a.TotalIdleSeconds)
		out.ScreenshotsAnalyzed += in.ScreenshotsAnalyzed
		weighted += a.FocusScore * active
		plain += a.FocusScore
	}

	for tool, n := range tools {
		out.ToolUsage = append(out.ToolUsage, ToolUsage{Tool: tool, Count: n})
	}
	sortTools(out.ToolUsage, func(a, b ToolUsage) bool {
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Tool < b.Tool
	})

	switch {
	case len(ordered) == 0:
	case out.TotalActiveSeconds > 0:
		out.FocusScore = round2(weighted / out.TotalActiveSeconds)
	default:
		out.FocusScore = round2(plain / float64(len(ordered)))
	}
	return out
}

func sortTools(tools []ToolUsage, less func(a, b ToolUsage) bool) {
	sort.Slice(tools, func(i, j int) bool { return less(tools[i], tools[j]) })
}

func nonNegative(f float64) float64 {
	if f < 0 || math.IsNaN(f) {
		return 0
	}
	return f
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
