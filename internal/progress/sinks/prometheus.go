package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/prodrefs/internal/progress"
)

// PrometheusSink exports run-level progress via Prometheus: runs
// started/completed, the keyword cursor, and keyword wall time.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    prometheus.Histogram

	keywordsDone    *prometheus.CounterVec
	keywordRuntime  prometheus.Histogram
	keywordPosition prometheus.Gauge
	keywordTotal    prometheus.Gauge
	rowsProduced    prometheus.Counter

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prodrefs_runs_started_total",
			Help: "Total runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prodrefs_runs_completed_total",
			Help: "Total runs completed partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prodrefs_runs_running",
			Help: "Current number of running runs.",
		}),
		runRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "prodrefs_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{30, 60, 300, 600, 1200, 1800, 3600, 7200},
		}),
		keywordsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prodrefs_progress_keywords_total",
			Help: "Keywords finished partitioned by outcome (rows, empty, blocked).",
		}, []string{"outcome"}),
		keywordRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "prodrefs_keyword_runtime_seconds",
			Help:    "Wall time per finished keyword.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		}),
		keywordPosition: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prodrefs_keyword_position",
			Help: "1-based position of the keyword being processed.",
		}),
		keywordTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "prodrefs_keyword_count",
			Help: "Number of keywords in the current run.",
		}),
		rowsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prodrefs_rows_total",
			Help: "Output rows produced.",
		}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.keywordsDone,
		s.keywordRuntime,
		s.keywordPosition,
		s.keywordTotal,
		s.rowsProduced,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		s.keywordTotal.Set(float64(evt.Total))
		s.keywordPosition.Set(0)
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageKeywordStart:
		s.keywordPosition.Set(float64(evt.Index))
	case progress.StageKeywordDone:
		outcome := "rows"
		if evt.Count == 0 {
			outcome = "empty"
		}
		s.keywordsDone.WithLabelValues(outcome).Inc()
		s.rowsProduced.Add(float64(evt.Count))
		if evt.Dur > 0 {
			s.keywordRuntime.Observe(evt.Dur.Seconds())
		}
	case progress.StageBlocked:
		s.keywordsDone.WithLabelValues("blocked").Inc()
	case progress.StageRunDone:
		result := "success"
		if evt.Note != "" {
			result = "error"
		}
		s.runsCompleted.WithLabelValues(result).Inc()
		if evt.Dur > 0 {
			s.runRuntime.Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.RunID) {
			s.runsRunning.Dec()
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]struct{})}
}

func (t *runTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
