package supervisor

import "errors"

// Sentinel errors surfaced by the controller. Callers match them with
// errors.Is to choose an exit status.
var (
	// ErrMissingLog means an attempt finished but left no log file behind.
	// The engine never started meaningfully; the run is not retried.
	ErrMissingLog = errors.New("no crawl log found after attempt")

	// ErrExhausted means the final permitted attempt was still interrupted.
	ErrExhausted = errors.New("attempt ceiling reached while still interrupted")

	// ErrNoCheckpoint means an attempt was classified interrupted but the
	// engine left no checkpoint to resume from.
	ErrNoCheckpoint = errors.New("no checkpoint found for interrupted attempt")
)
