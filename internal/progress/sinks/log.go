// Package sinks implements concrete progress consumers: structured logging
// and Prometheus collectors.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/edgi-govdata-archiving/wm-crawl-supervisor/internal/progress"
)

// LogSink renders progress events as structured log lines, the supervisor's
// default form of live reporting.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the Sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event with fields relevant to its stage.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("collection", evt.Collection),
			zap.Int("attempt", evt.Attempt),
		}
		switch evt.Stage {
		case progress.StageCrawlProgress:
			fields = append(fields,
				zap.Int64("crawled", evt.Crawled),
				zap.Int64("total", evt.Total),
				zap.Float64("percent", evt.Percent),
			)
			s.logger.Info("crawl progress", fields...)
		case progress.StageEngineError:
			fields = append(fields, zap.String("message", evt.Note))
			s.logger.Warn("engine reported error", fields...)
		case progress.StageAttemptEnd:
			fields = append(fields,
				zap.String("outcome", evt.Outcome),
				zap.Int("exit_code", evt.ExitCode),
			)
			s.logger.Info("attempt finished", fields...)
		case progress.StageRunDone:
			fields = append(fields, zap.String("outcome", evt.Outcome))
			s.logger.Info("run finished", fields...)
		default:
			s.logger.Info("attempt started", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
