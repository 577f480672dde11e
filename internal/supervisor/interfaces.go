package supervisor

import (
	"context"
	"time"
)

// Engine launches the external crawl engine for one attempt. Implementations
// must scope the child process to ctx so cancellation never leaves an orphan,
// and must not impose their own attempt timeout.
type Engine interface {
	Start(ctx context.Context, spec AttemptSpec) (EngineProcess, error)
}

// EngineProcess is one running attempt. Lines yields the raw combined output
// stream lazily; it is single-pass and closed once the process exits. Wait
// blocks until exit and reports the exit code. A non-nil error from Wait
// means the process infrastructure failed, not that the crawl failed; exit
// codes themselves are advisory (see Classifier).
type EngineProcess interface {
	Lines() <-chan string
	Wait() (int, error)
}

// Classifier decides how an attempt ended. The logsDir holds the engine's
// per-attempt structured logs; exitCode is the advisory process exit status.
type Classifier interface {
	Classify(logsDir string, exitCode int) (AttemptOutcome, error)
}

// Clock supplies time and context-aware sleeping so tests control the
// inter-attempt delay.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run identifiers for progress correlation.
type IDGenerator interface {
	NewID() (string, error)
}
