package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edgi-govdata-archiving/wm-crawl-supervisor/internal/progress"
)

// PrometheusSink exports supervisor progress as Prometheus metrics. It owns
// all collectors for attempts, engine errors, and crawl completion.
type PrometheusSink struct {
	attemptsStarted  *prometheus.CounterVec
	attemptsFinished *prometheus.CounterVec
	enginesErrors    *prometheus.CounterVec
	crawlPercent     *prometheus.GaugeVec
	pagesCrawled     *prometheus.GaugeVec
	runsFinished     *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		attemptsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawlsup_attempts_started_total",
			Help: "Engine invocations started, partitioned by collection.",
		}, []string{"collection"}),
		attemptsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawlsup_attempts_finished_total",
			Help: "Engine invocations finished, partitioned by collection and outcome.",
		}, []string{"collection", "outcome"}),
		enginesErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawlsup_engine_errors_total",
			Help: "Error-level lines observed on the engine output stream.",
		}, []string{"collection"}),
		crawlPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crawlsup_crawl_percent",
			Help: "Latest reported crawl completion percentage per collection.",
		}, []string{"collection"}),
		pagesCrawled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crawlsup_pages_crawled",
			Help: "Latest reported crawled page count per collection.",
		}, []string{"collection"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawlsup_runs_finished_total",
			Help: "Collection runs finished, partitioned by terminal outcome.",
		}, []string{"collection", "outcome"}),
	}
	for _, collector := range []prometheus.Collector{
		s.attemptsStarted,
		s.attemptsFinished,
		s.enginesErrors,
		s.crawlPercent,
		s.pagesCrawled,
		s.runsFinished,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. Safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageAttemptStart:
			s.attemptsStarted.WithLabelValues(evt.Collection).Inc()
		case progress.StageAttemptEnd:
			s.attemptsFinished.WithLabelValues(evt.Collection, evt.Outcome).Inc()
		case progress.StageEngineError:
			s.enginesErrors.WithLabelValues(evt.Collection).Inc()
		case progress.StageCrawlProgress:
			s.crawlPercent.WithLabelValues(evt.Collection).Set(evt.Percent)
			s.pagesCrawled.WithLabelValues(evt.Collection).Set(float64(evt.Crawled))
		case progress.StageRunDone:
			s.runsFinished.WithLabelValues(evt.Collection, evt.Outcome).Inc()
		}
	}
	return nil
}

// Close implements the Sink interface; collectors live for the process.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
