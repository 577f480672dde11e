package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/edgi-govdata-archiving/wm-crawl-supervisor/internal/progress"
)

func testEvent(stage progress.Stage) progress.Event {
	return progress.Event{
		RunID:      "run-1",
		Collection: "epa-2025",
		TS:         time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Stage:      stage,
		Attempt:    1,
	}
}

func TestPrometheusSinkCollects(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(registry)
	require.NoError(t, err)

	start := testEvent(progress.StageAttemptStart)

	prog := testEvent(progress.StageCrawlProgress)
	prog.Crawled = 37
	prog.Total = 250
	prog.Percent = 14.80

	engErr := testEvent(progress.StageEngineError)
	engErr.Note = "page load failed"

	end := testEvent(progress.StageAttemptEnd)
	end.Outcome = "interrupted"
	end.ExitCode = 11

	done := testEvent(progress.StageRunDone)
	done.Outcome = "completed"

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{start, prog, engErr, end, done}))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.attemptsStarted.WithLabelValues("epa-2025")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.attemptsFinished.WithLabelValues("epa-2025", "interrupted")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.enginesErrors.WithLabelValues("epa-2025")))
	require.Equal(t, 14.80, testutil.ToFloat64(sink.crawlPercent.WithLabelValues("epa-2025")))
	require.Equal(t, 37.0, testutil.ToFloat64(sink.pagesCrawled.WithLabelValues("epa-2025")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsFinished.WithLabelValues("epa-2025", "completed")))
}

func TestPrometheusSinkDoubleRegister(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewPrometheusSink(registry)
	require.NoError(t, err)

	_, err = NewPrometheusSink(registry)
	require.Error(t, err, "registering the same collectors twice must fail")
}
