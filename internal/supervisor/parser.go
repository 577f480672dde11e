package supervisor

import (
	"encoding/json"
	"math"
	"time"
)

// EventKind labels a parsed engine output line.
type EventKind string

// Recognized event kinds. Only progress and error lines survive parsing;
// KindOther exists so downstream consumers can represent anything a future
// engine version might add without a schema change.
const (
	KindProgress EventKind = "progress"
	KindError    EventKind = "error"
	KindOther    EventKind = "other"
)

// LogEvent is one structured line from the engine's output stream. It is
// presentation-only: nothing in the control loop keys off it.
type LogEvent struct {
	Timestamp time.Time
	Kind      EventKind
	// Crawled and Total are set for progress events.
	Crawled int64
	Total   int64
	// Message and Details are set for error events.
	Message string
	Details map[string]any
}

// Percent derives completion as crawled/total*100 rounded to two decimal
// places. A zero total is a degenerate but tolerated input and yields 0.
func (e LogEvent) Percent() float64 {
	if e.Total == 0 {
		return 0
	}
	return math.Round(float64(e.Crawled)/float64(e.Total)*10000) / 100
}

// statusContext is the engine's tag for its periodic crawl statistics line.
const statusContext = "crawlStatus"

// engineLine mirrors the engine's line-oriented JSON output: a timestamp, a
// severity, a context/category tag, and either progress counts or a
// message+details payload.
type engineLine struct {
	Timestamp string          `json:"timestamp"`
	LogLevel  string          `json:"logLevel"`
	Context   string          `json:"context"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details"`
}

type statusDetails struct {
	Crawled int64 `json:"crawled"`
	Total   int64 `json:"total"`
}

// ParseLine classifies one raw output line. It recognizes exactly two
// shapes, the periodic status line and error-level lines; for anything else
// (including non-JSON noise) it reports ok=false and the line is dropped.
func ParseLine(raw string) (LogEvent, bool) {
	var line engineLine
	if err := json.Unmarshal([]byte(raw), &line); err != nil {
		return LogEvent{}, false
	}

	ts, _ := time.Parse(time.RFC3339Nano, line.Timestamp)

	switch {
	case line.Context == statusContext:
		var details statusDetails
		if len(line.Details) > 0 {
			if err := json.Unmarshal(line.Details, &details); err != nil {
				return LogEvent{}, false
			}
		}
		return LogEvent{
			Timestamp: ts,
			Kind:      KindProgress,
			Crawled:   details.Crawled,
			Total:     details.Total,
		}, true

	case line.LogLevel == "error":
		var details map[string]any
		if len(line.Details) > 0 {
			// Malformed details on an error line are not worth dropping
			// the message over.
			_ = json.Unmarshal(line.Details, &details)
		}
		return LogEvent{
			Timestamp: ts,
			Kind:      KindError,
			Message:   line.Message,
			Details:   details,
		}, true
	}

	return LogEvent{}, false
}
