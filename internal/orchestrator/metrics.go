package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "metrify_runs_total",
		Help: "Orchestrated metric runs by outcome.",
	}, []string{"outcome"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "metrify_run_duration_seconds",
		Help:    "Wall-clock duration of orchestrated metric runs.",
		Buckets: prometheus.DefBuckets,
	})

	rowsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "metrify_rows_written_total",
		Help: "Metric rows persisted by successful runs.",
	})
)
