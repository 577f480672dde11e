package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgi-govdata-archiving/wm-crawl-supervisor/internal/progress"
)

// attemptScript describes what the fake engine does for one invocation:
// which lines it streams, what it leaves on disk, and how it exits.
type attemptScript struct {
	lines      []string
	logTail    []string // written as a fresh log file; nil means no log at all
	checkpoint string   // checkpoint file name written under crawls/; empty means none
	exitCode   int
}

// fakeEngine deterministically replays scripted attempts and records the
// configuration path used by each invocation.
type fakeEngine struct {
	t       *testing.T
	scripts []attemptScript

	mu      sync.Mutex
	configs []string
}

func (e *fakeEngine) Start(_ context.Context, spec AttemptSpec) (EngineProcess, error) {
	e.mu.Lock()
	idx := len(e.configs)
	e.configs = append(e.configs, spec.ConfigPath)
	e.mu.Unlock()

	require.Less(e.t, idx, len(e.scripts), "engine invoked more times than scripted")
	script := e.scripts[idx]

	// File timestamps are forced monotonically increasing so "most recent"
	// is unambiguous regardless of filesystem clock resolution.
	ts := time.Now().Add(time.Hour + time.Duration(idx)*time.Minute)

	if script.logTail != nil {
		logPath := filepath.Join(spec.WorkDir, "logs", fmt.Sprintf("crawl-%03d.log", idx+1))
		writeStamped(e.t, logPath, strings.Join(script.logTail, "\n")+"\n", ts)
	}
	if script.checkpoint != "" {
		ckptPath := filepath.Join(spec.WorkDir, "crawls", script.checkpoint)
		writeStamped(e.t, ckptPath, "state: partial\n", ts)
	}

	lines := make(chan string, len(script.lines))
	for _, line := range script.lines {
		lines <- line
	}
	close(lines)
	return &fakeProcess{lines: lines, exitCode: script.exitCode}, nil
}

func (e *fakeEngine) invocations() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.configs...)
}

type fakeProcess struct {
	lines    chan string
	exitCode int
}

func (p *fakeProcess) Lines() <-chan string { return p.lines }
func (p *fakeProcess) Wait() (int, error)   { return p.exitCode, nil }

// fakeClock advances a synthetic time and records every sleep instead of
// actually pausing.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) sleepCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sleeps)
}

// captureEmitter collects progress events for assertions.
type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *captureEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *captureEmitter) byStage(stage progress.Stage) []progress.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []progress.Event
	for _, evt := range e.events {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}

// writeStamped writes content and pins the file's mtime.
func writeStamped(t *testing.T, path, content string, ts time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	require.NoError(t, os.Chtimes(path, ts, ts))
}

// interruptedLine is the engine's final log line when it stops after saving
// state.
const interruptedLine = `{"timestamp":"2025-06-01T12:00:00.000Z","logLevel":"info","context":"state","message":"Crawl interrupted, state saved"}`

// finishedLine is a normal completion tail line without the marker.
const finishedLine = `{"timestamp":"2025-06-01T12:00:00.000Z","logLevel":"info","context":"crawlStatus","message":"Crawl statistics","details":{"crawled":250,"total":250}}`

// newTestController builds a controller over a temp working directory with a
// staged source config ready to go.
func newTestController(t *testing.T, engine *fakeEngine, clock Clock, opts func(*ControllerConfig)) (*Controller, Layout) {
	t.Helper()

	root := t.TempDir()
	srcConfig := filepath.Join(root, "seeds.yaml")
	require.NoError(t, os.WriteFile(srcConfig, []byte("seeds:\n  - https://example.gov/\n"), 0o640))

	layout := Layout{Root: filepath.Join(root, "collections"), Collection: "epa-2025"}
	cfg := ControllerConfig{
		Layout:       layout,
		SourceConfig: srcConfig,
		Policy:       RetryPolicy{MaxAttempts: 10, Delay: 30 * time.Second},
		Engine:       engine,
		Clock:        clock,
	}
	if opts != nil {
		opts(&cfg)
	}
	controller, err := NewController(cfg)
	require.NoError(t, err)
	return controller, layout
}
