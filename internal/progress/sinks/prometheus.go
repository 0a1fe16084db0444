package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/signal-tally/internal/progress"
)

// PrometheusSink exports run progress via Prometheus: runs started, finished
// and in flight, plus per-site task outcomes.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec

	taskOutcomes *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	taskSignals  *prometheus.CounterVec

	mu      sync.Mutex
	running map[string]struct{}
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tally_progress_runs_started_total",
			Help: "Total runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_progress_runs_completed_total",
			Help: "Total runs finished, partitioned by mode and result.",
		}, []string{"mode", "result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tally_progress_runs_running",
			Help: "Current number of runs in flight.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tally_progress_run_runtime_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}, []string{"mode"}),
		taskOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_progress_tasks_total",
			Help: "Finished tasks partitioned by site and result.",
		}, []string{"site", "result"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tally_progress_task_duration_seconds",
			Help:    "Task duration partitioned by site.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20},
		}, []string{"site"}),
		taskSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_progress_task_signals_total",
			Help: "Signal contributions committed per site.",
		}, []string{"site"}),
		running: make(map[string]struct{}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.taskOutcomes,
		s.taskDuration,
		s.taskSignals,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			if s.track(evt.RunID, true) {
				s.runsRunning.Inc()
			}
		case progress.StageRunDone, progress.StageRunError:
			result := "complete"
			switch {
			case evt.Stage == progress.StageRunError:
				result = "error"
			case evt.Partial:
				result = "partial"
			}
			s.runsCompleted.WithLabelValues(evt.Mode, result).Inc()
			if evt.Dur > 0 {
				s.runRuntime.WithLabelValues(evt.Mode).Observe(evt.Dur.Seconds())
			}
			if s.track(evt.RunID, false) {
				s.runsRunning.Dec()
			}
		case progress.StageTaskDone, progress.StageTaskError:
			s.observeTask(evt)
		}
	}
	return nil
}

func (s *PrometheusSink) observeTask(evt progress.Event) {
	site := evt.Site
	if site == "" {
		site = "unknown"
	}
	result := "success"
	if evt.Stage == progress.StageTaskError {
		result = "error"
	}
	s.taskOutcomes.WithLabelValues(site, result).Inc()
	if evt.Dur > 0 {
		s.taskDuration.WithLabelValues(site).Observe(evt.Dur.Seconds())
	}
	if evt.Signals > 0 {
		s.taskSignals.WithLabelValues(site).Add(float64(evt.Signals))
	}
}

// track records a run as started (start=true) or finished and reports whether
// the running set changed.
func (s *PrometheusSink) track(runID string, start bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[runID]
	if start {
		if ok {
			return false
		}
		s.running[runID] = struct{}{}
		return true
	}
	if !ok {
		return false
	}
	delete(s.running, runID)
	return true
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
