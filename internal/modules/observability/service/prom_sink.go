package service

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signal_exec",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Jobs processed by the worker pool by outcome",
		},
		[]string{"outcome"},
	)

	JobsReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "signal_exec",
			Subsystem: "worker",
			Name:      "jobs_reclaimed_total",
			Help:      "Stale claimed jobs returned to pending",
		},
	)

	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "signal_exec",
			Subsystem: "worker",
			Name:      "batch_claimed",
			Help:      "Jobs claimed per batch",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
	)

	CycleErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "signal_exec",
			Subsystem: "worker",
			Name:      "cycle_errors_total",
			Help:      "Worker cycles aborted by store errors",
		},
	)

	StreamEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signal_exec",
			Subsystem: "stream",
			Name:      "events_total",
			Help:      "Streaming client lifecycle events",
		},
		[]string{"kind", "event"},
	)
)

// PromSink переводит события пайплайна в метрики.
type PromSink struct{}

func NewPromSink() *PromSink { return &PromSink{} }

func (PromSink) Emit(_ context.Context, ev Event) {
	switch ev.Stage {
	case StageBatch:
		BatchSize.Observe(float64(ev.Claimed))
		JobsProcessed.WithLabelValues("ok").Add(float64(ev.OK))
		JobsProcessed.WithLabelValues("failed").Add(float64(ev.Failed))
		JobsProcessed.WithLabelValues("unrecorded").Add(float64(ev.Unrecorded))
		JobsProcessed.WithLabelValues("deferred").Add(float64(ev.Deferred))
		if ev.RecycledCount != nil {
			JobsReclaimed.Add(float64(*ev.RecycledCount))
		}
	case StageCycleError:
		CycleErrors.Inc()
	}
}
