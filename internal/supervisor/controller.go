package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/edgi-govdata-archiving/wm-crawl-supervisor/internal/progress"
)

// ControllerConfig wires a Controller's collaborators. Engine and Clock are
// required; everything else has a sensible default.
type ControllerConfig struct {
	Layout       Layout
	SourceConfig string
	Policy       RetryPolicy
	Engine       Engine
	Classifier   Classifier
	Clock        Clock
	Emitter      progress.Emitter
	IDs          IDGenerator
	Logger       *zap.Logger
}

// Controller owns the bounded retry loop for one collection: invoke the
// engine, classify the attempt from its log file, resume from the latest
// checkpoint or stop. It runs as a single sequential control thread; no two
// attempts for the same collection ever overlap.
type Controller struct {
	layout     Layout
	srcConfig  string
	policy     RetryPolicy
	engine     Engine
	classifier Classifier
	clock      Clock
	emitter    progress.Emitter
	logger     *zap.Logger
	stager     *Stager
	resumer    *Resumer
	runID      string

	mu    sync.Mutex
	state RetryState
}

// NewController validates the configuration and builds a Controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.Clock == nil {
		return nil, errors.New("clock is required")
	}
	if cfg.Layout.Collection == "" {
		return nil, errors.New("collection is required")
	}
	if cfg.SourceConfig == "" {
		return nil, errors.New("source config path is required")
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy = DefaultRetryPolicy()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = NewLogTailClassifier("", 0)
	}
	if cfg.Emitter == nil {
		cfg.Emitter = progress.Discard{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	var runID string
	if cfg.IDs != nil {
		id, err := cfg.IDs.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate run id: %w", err)
		}
		runID = id
	}

	c := &Controller{
		layout:     cfg.Layout,
		srcConfig:  cfg.SourceConfig,
		policy:     cfg.Policy,
		engine:     cfg.Engine,
		classifier: cfg.Classifier,
		clock:      cfg.Clock,
		emitter:    cfg.Emitter,
		logger:     cfg.Logger.With(zap.String("collection", cfg.Layout.Collection)),
		stager:     NewStager(cfg.Layout, cfg.Logger),
		resumer:    NewResumer(cfg.Layout, cfg.Logger),
		runID:      runID,
	}
	c.state = RetryState{
		Collection:  cfg.Layout.Collection,
		RunID:       runID,
		MaxAttempts: cfg.Policy.MaxAttempts,
	}
	return c, nil
}

// Snapshot returns a copy of the controller's live state for status
// reporting. It never influences control flow.
func (c *Controller) Snapshot() RetryState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run drives the collection to a terminal outcome. The report is always
// populated; the error is nil only for a Completed run. MissingLog,
// Exhausted, and missing-checkpoint failures wrap the package sentinels.
func (c *Controller) Run(ctx context.Context) (RunReport, error) {
	report := RunReport{Collection: c.layout.Collection, Outcome: RunAborted}

	staged, err := c.stager.Stage(c.srcConfig)
	if err != nil {
		return report, fmt.Errorf("stage config: %w", err)
	}
	cfgPath := staged

	for attempt := 1; ; attempt++ {
		report.Attempts = attempt
		report.FinalConfig = cfgPath
		c.updateState(func(s *RetryState) {
			s.Attempt = attempt
			s.ConfigPath = cfgPath
		})
		c.emit(progress.Event{Stage: progress.StageAttemptStart, Attempt: attempt})
		c.logger.Info("starting crawl attempt",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.policy.MaxAttempts),
			zap.String("config", cfgPath),
		)

		result, err := c.runAttempt(ctx, attempt, cfgPath)
		if err != nil {
			return report, err
		}
		report.Results = append(report.Results, result)
		c.updateState(func(s *RetryState) { s.LastOutcome = result.Outcome })
		c.emit(progress.Event{
			Stage:    progress.StageAttemptEnd,
			Attempt:  attempt,
			Outcome:  string(result.Outcome),
			ExitCode: result.ExitCode,
		})

		switch result.Outcome {
		case OutcomeCompleted:
			report.Outcome = RunCompleted
			c.finish(report)
			return report, nil

		case OutcomeMissingLog:
			report.Outcome = RunMissingLog
			c.finish(report)
			return report, fmt.Errorf("attempt %d: %w", attempt, ErrMissingLog)
		}

		// Interrupted: resume if the ceiling permits.
		if attempt >= c.policy.MaxAttempts {
			report.Outcome = RunExhausted
			c.finish(report)
			return report, fmt.Errorf("after %d attempts: %w", attempt, ErrExhausted)
		}
		if err := c.clock.Sleep(ctx, c.policy.Delay); err != nil {
			return report, fmt.Errorf("inter-attempt delay: %w", err)
		}
		next, err := c.resumer.NextConfig()
		if err != nil {
			return report, err
		}
		cfgPath = next
	}
}

// runAttempt performs one engine invocation: start, drain output for live
// reporting concurrently with the blocking wait, then classify from the log
// file on disk. The live stream never feeds the classification.
func (c *Controller) runAttempt(ctx context.Context, attempt int, cfgPath string) (EngineRunResult, error) {
	proc, err := c.engine.Start(ctx, AttemptSpec{
		Collection: c.layout.Collection,
		ConfigPath: cfgPath,
		WorkDir:    c.layout.Dir(),
	})
	if err != nil {
		return EngineRunResult{}, fmt.Errorf("start engine (attempt %d): %w", attempt, err)
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for line := range proc.Lines() {
			evt, ok := ParseLine(line)
			if !ok {
				continue
			}
			c.observe(attempt, evt)
		}
	}()

	exitCode, waitErr := proc.Wait()
	<-drained
	if waitErr != nil {
		// Process-level failures are tolerated: classification defers to
		// the log file. A run that never produced one surfaces as
		// MissingLog below.
		c.logger.Warn("engine wait reported an error",
			zap.Int("attempt", attempt), zap.Error(waitErr))
	}

	outcome, err := c.classifier.Classify(c.layout.LogsDir(), exitCode)
	if err != nil {
		return EngineRunResult{}, fmt.Errorf("classify attempt %d: %w", attempt, err)
	}
	return EngineRunResult{ExitCode: exitCode, Outcome: outcome}, nil
}

// observe forwards one parsed engine line to the live-reporting stream and
// keeps the status snapshot current.
func (c *Controller) observe(attempt int, evt LogEvent) {
	switch evt.Kind {
	case KindProgress:
		percent := evt.Percent()
		c.updateState(func(s *RetryState) {
			s.Crawled = evt.Crawled
			s.Total = evt.Total
			s.Percent = percent
		})
		c.emit(progress.Event{
			Stage:   progress.StageCrawlProgress,
			Attempt: attempt,
			Crawled: evt.Crawled,
			Total:   evt.Total,
			Percent: percent,
		})
	case KindError:
		c.emit(progress.Event{
			Stage:   progress.StageEngineError,
			Attempt: attempt,
			Note:    evt.Message,
		})
	}
}

func (c *Controller) finish(report RunReport) {
	c.emit(progress.Event{
		Stage:   progress.StageRunDone,
		Outcome: string(report.Outcome),
	})
	c.logger.Info("run finished",
		zap.String("outcome", string(report.Outcome)),
		zap.Int("attempts", report.Attempts),
		zap.String("final_config", report.FinalConfig),
	)
}

func (c *Controller) emit(evt progress.Event) {
	evt.RunID = c.runID
	evt.Collection = c.layout.Collection
	evt.TS = c.clock.Now()
	c.emitter.Emit(evt)
}

func (c *Controller) updateState(mutate func(*RetryState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mutate(&c.state)
}
