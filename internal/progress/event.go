// Package progress defines the live-reporting events emitted by the crawl
// supervisor and the Hub that fans them out to sinks. The stream is strictly
// presentational: no control decision is ever made from it.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the kind of milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageAttemptStart  Stage = "ATTEMPT_START"
	StageCrawlProgress Stage = "CRAWL_PROGRESS"
	StageEngineError   Stage = "ENGINE_ERROR"
	StageAttemptEnd    Stage = "ATTEMPT_END"
	StageRunDone       Stage = "RUN_DONE"
)

// Event is a single supervisor milestone or engine status observation.
type Event struct {
	// RunID correlates every event of one collection run.
	RunID string
	// Collection names the crawl run's working-directory scope.
	Collection string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage identifies the milestone.
	Stage Stage
	// Attempt is the 1-based engine invocation number.
	Attempt int
	// Crawled/Total/Percent carry crawl statistics for CRAWL_PROGRESS.
	Crawled int64
	Total   int64
	Percent float64
	// Outcome carries the attempt or run outcome for ATTEMPT_END/RUN_DONE.
	Outcome string
	// ExitCode is the engine's advisory exit status for ATTEMPT_END.
	ExitCode int
	// Note carries low-volume free text, e.g. engine error messages.
	Note string
}

// Validate performs coarse validation so sinks can trust field presence.
func (e Event) Validate() error {
	if e.Collection == "" {
		return errors.New("collection is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageAttemptStart, StageCrawlProgress, StageEngineError, StageAttemptEnd:
		if e.Attempt < 1 {
			return fmt.Errorf("stage %s requires an attempt number", e.Stage)
		}
	case StageRunDone:
		if e.Outcome == "" {
			return errors.New("run done requires an outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Percent < 0 || e.Percent > 100 {
		return fmt.Errorf("percent %v out of range", e.Percent)
	}
	return nil
}
