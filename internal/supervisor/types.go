// Package supervisor implements the crawl attempt supervisor: the bounded
// retry-and-resume loop that drives an external crawl engine, classifies how
// each attempt ended from the engine's on-disk logs, and resumes from the
// most recent checkpoint when an attempt was interrupted.
package supervisor

import "time"

// AttemptOutcome classifies how a single engine attempt ended. It is derived
// from the attempt's log file, never from the engine's exit status (the exit
// status is recorded but advisory under the default strategy).
type AttemptOutcome string

// Attempt outcomes produced by a Classifier.
const (
	OutcomeCompleted   AttemptOutcome = "completed"
	OutcomeInterrupted AttemptOutcome = "interrupted"
	OutcomeMissingLog  AttemptOutcome = "missing_log"
)

// RunOutcome is the terminal state of a whole collection run.
type RunOutcome string

// Terminal run outcomes reported by the Controller.
const (
	RunCompleted  RunOutcome = "completed"
	RunExhausted  RunOutcome = "exhausted"
	RunMissingLog RunOutcome = "missing_log"
	RunAborted    RunOutcome = "aborted"
)

// RetryPolicy bounds the retry loop. It is immutable and passed to the
// Controller at construction; core logic never reads ambient process state.
type RetryPolicy struct {
	// MaxAttempts is the attempt ceiling, inclusive of the first attempt.
	MaxAttempts int
	// Delay is the fixed pause between an interrupted attempt and the next.
	Delay time.Duration
}

// DefaultRetryPolicy mirrors the reference policy: ten attempts, one minute
// between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 10, Delay: time.Minute}
}

// AttemptSpec is everything a crawl engine needs to run one attempt.
type AttemptSpec struct {
	// Collection is the logical identifier for the crawl run.
	Collection string
	// ConfigPath is the host path of the crawl configuration for this
	// attempt. On a resumed attempt it points at a checkpoint file.
	ConfigPath string
	// WorkDir is the host path of the collection's working directory. The
	// engine's log and checkpoint writes must land underneath it.
	WorkDir string
}

// EngineRunResult pairs the advisory process exit status of one attempt with
// the authoritative log-derived outcome. The two stay distinct so the
// authority source can change without restructuring callers.
type EngineRunResult struct {
	ExitCode int
	Outcome  AttemptOutcome
}

// RunReport summarizes a finished collection run.
type RunReport struct {
	Collection string
	Outcome    RunOutcome
	// Attempts is the number of engine invocations actually performed.
	Attempts int
	// FinalConfig is the configuration path used by the last attempt. After
	// resumption this is a checkpoint path, which downstream consumers of
	// the archive directory may want to record.
	FinalConfig string
	// Results holds one entry per attempt, in order.
	Results []EngineRunResult
}

// RetryState is a read-only snapshot of the controller's live state, exposed
// for status reporting. It has no authority over control flow.
type RetryState struct {
	Collection  string         `json:"collection"`
	RunID       string         `json:"run_id"`
	Attempt     int            `json:"attempt"`
	MaxAttempts int            `json:"max_attempts"`
	ConfigPath  string         `json:"config_path"`
	LastOutcome AttemptOutcome `json:"last_outcome,omitempty"`
	Crawled     int64          `json:"crawled"`
	Total       int64          `json:"total"`
	Percent     float64        `json:"percent"`
}
