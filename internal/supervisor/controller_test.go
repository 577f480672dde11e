package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgi-govdata-archiving/wm-crawl-supervisor/internal/progress"
)

func TestControllerResumesFromLatestCheckpoint(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{t: t, scripts: []attemptScript{
		{logTail: []string{interruptedLine}, checkpoint: "crawl-20250601120100-a1.yaml", exitCode: 11},
		{logTail: []string{interruptedLine}, checkpoint: "crawl-20250601120500-b2.yaml", exitCode: 11},
		{logTail: []string{finishedLine}, exitCode: 0},
	}}
	clock := newFakeClock()
	controller, layout := newTestController(t, engine, clock, nil)

	report, err := controller.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, RunCompleted, report.Outcome)
	require.Equal(t, 3, report.Attempts)

	invocations := engine.invocations()
	require.Len(t, invocations, 3)
	require.Equal(t, layout.StagedConfigPath(), invocations[0])
	require.Equal(t, filepath.Join(layout.CrawlsDir(), "crawl-20250601120100-a1.yaml"), invocations[1],
		"second attempt must use the checkpoint written before it began")
	require.Equal(t, filepath.Join(layout.CrawlsDir(), "crawl-20250601120500-b2.yaml"), invocations[2],
		"third attempt must use the newest checkpoint")
	require.Equal(t, 2, clock.sleepCount())
	require.Equal(t, invocations[2], report.FinalConfig)
}

func TestControllerNoFalseRetry(t *testing.T) {
	t.Parallel()

	// Exit code 1 with no interruption marker in the tail: the exit status
	// is advisory, so this is reported as a completed run after exactly one
	// invocation. Deliberate behavior, not a bug.
	engine := &fakeEngine{t: t, scripts: []attemptScript{
		{logTail: []string{finishedLine}, exitCode: 1},
	}}
	clock := newFakeClock()
	controller, _ := newTestController(t, engine, clock, nil)

	report, err := controller.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, RunCompleted, report.Outcome)
	require.Equal(t, 1, report.Attempts)
	require.Len(t, engine.invocations(), 1)
	require.Zero(t, clock.sleepCount())
	require.Equal(t, []EngineRunResult{{ExitCode: 1, Outcome: OutcomeCompleted}}, report.Results)
}

func TestControllerMissingLogIsFatal(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{t: t, scripts: []attemptScript{
		{logTail: nil, exitCode: 0},
	}}
	clock := newFakeClock()
	controller, _ := newTestController(t, engine, clock, nil)

	report, err := controller.Run(context.Background())
	require.ErrorIs(t, err, ErrMissingLog)
	require.Equal(t, RunMissingLog, report.Outcome)
	require.Equal(t, 1, report.Attempts)
	require.Len(t, engine.invocations(), 1)
	require.Zero(t, clock.sleepCount(), "missing log must not sleep or retry")
}

func TestControllerExhaustsCeiling(t *testing.T) {
	t.Parallel()

	scripts := make([]attemptScript, 10)
	for i := range scripts {
		scripts[i] = attemptScript{
			logTail:    []string{interruptedLine},
			checkpoint: checkpointName(i),
			exitCode:   11,
		}
	}
	engine := &fakeEngine{t: t, scripts: scripts}
	clock := newFakeClock()
	controller, _ := newTestController(t, engine, clock, nil)

	report, err := controller.Run(context.Background())
	require.ErrorIs(t, err, ErrExhausted)
	require.Equal(t, RunExhausted, report.Outcome)
	require.Equal(t, 10, report.Attempts)
	require.Len(t, engine.invocations(), 10)
	require.Equal(t, 9, clock.sleepCount(), "no sleep after the final attempt")
}

func TestControllerMissingCheckpointIsFatal(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{t: t, scripts: []attemptScript{
		{logTail: []string{interruptedLine}, exitCode: 11},
	}}
	clock := newFakeClock()
	controller, _ := newTestController(t, engine, clock, nil)

	report, err := controller.Run(context.Background())
	require.ErrorIs(t, err, ErrNoCheckpoint)
	require.Equal(t, RunAborted, report.Outcome)
	require.Len(t, engine.invocations(), 1)
}

func TestControllerExitCodeStrategy(t *testing.T) {
	t.Parallel()

	// Under the exit-code strategy the same no-marker tail that the default
	// strategy reports as completed becomes a resumable interruption.
	engine := &fakeEngine{t: t, scripts: []attemptScript{
		{logTail: []string{finishedLine}, checkpoint: "crawl-resume.yaml", exitCode: 1},
		{logTail: []string{finishedLine}, exitCode: 0},
	}}
	clock := newFakeClock()
	controller, _ := newTestController(t, engine, clock, func(cfg *ControllerConfig) {
		cfg.Classifier = ExitCodeClassifier{}
	})

	report, err := controller.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, RunCompleted, report.Outcome)
	require.Equal(t, 2, report.Attempts)
	require.Equal(t, OutcomeInterrupted, report.Results[0].Outcome)
	require.Equal(t, OutcomeCompleted, report.Results[1].Outcome)
}

func TestControllerUnreadableSourceConfigIsFatal(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{t: t}
	clock := newFakeClock()

	controller, err := NewController(ControllerConfig{
		Layout:       Layout{Root: t.TempDir(), Collection: "epa-2025"},
		SourceConfig: filepath.Join(t.TempDir(), "does-not-exist.yaml"),
		Engine:       engine,
		Clock:        clock,
	})
	require.NoError(t, err)

	report, err := controller.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, RunAborted, report.Outcome)
	require.Empty(t, engine.invocations(), "nothing runs when staging fails")
}

func TestControllerPublishesProgressAndSnapshot(t *testing.T) {
	t.Parallel()

	statusLine := `{"timestamp":"2025-06-01T12:03:00.000Z","logLevel":"info","context":"crawlStatus","message":"Crawl statistics","details":{"crawled":37,"total":250}}`
	errorLine := `{"timestamp":"2025-06-01T12:03:05.000Z","logLevel":"error","context":"page","message":"page load failed","details":{"url":"https://example.gov/x"}}`
	noiseLine := `plain text the parser must drop`

	engine := &fakeEngine{t: t, scripts: []attemptScript{
		{lines: []string{statusLine, noiseLine, errorLine}, logTail: []string{finishedLine}, exitCode: 0},
	}}
	clock := newFakeClock()
	emitter := &captureEmitter{}
	controller, _ := newTestController(t, engine, clock, func(cfg *ControllerConfig) {
		cfg.Emitter = emitter
	})

	_, err := controller.Run(context.Background())
	require.NoError(t, err)

	progressEvents := emitter.byStage(progress.StageCrawlProgress)
	require.Len(t, progressEvents, 1)
	require.Equal(t, int64(37), progressEvents[0].Crawled)
	require.Equal(t, int64(250), progressEvents[0].Total)
	require.InDelta(t, 14.80, progressEvents[0].Percent, 0.0001)

	errorEvents := emitter.byStage(progress.StageEngineError)
	require.Len(t, errorEvents, 1)
	require.Equal(t, "page load failed", errorEvents[0].Note)

	require.Len(t, emitter.byStage(progress.StageRunDone), 1)

	snap := controller.Snapshot()
	require.Equal(t, int64(37), snap.Crawled)
	require.InDelta(t, 14.80, snap.Percent, 0.0001)
	require.Equal(t, OutcomeCompleted, snap.LastOutcome)
}

func TestControllerStopsWhenDelayCanceled(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{t: t, scripts: []attemptScript{
		{logTail: []string{interruptedLine}, checkpoint: "crawl-a.yaml", exitCode: 11},
	}}
	controller, _ := newTestController(t, engine, &canceledClock{}, nil)

	report, err := controller.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, RunAborted, report.Outcome)
	require.Len(t, engine.invocations(), 1, "no new attempt starts once the delay is canceled")
}

func TestNewControllerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewController(ControllerConfig{})
	require.Error(t, err)

	_, err = NewController(ControllerConfig{Engine: &fakeEngine{t: t}})
	require.Error(t, err, "clock is required")
}

func checkpointName(i int) string {
	return fmt.Sprintf("crawl-%03d.yaml", i+1)
}

// canceledClock simulates an external termination signal arriving during the
// inter-attempt delay.
type canceledClock struct{}

func (canceledClock) Now() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

func (canceledClock) Sleep(context.Context, time.Duration) error {
	return context.Canceled
}
