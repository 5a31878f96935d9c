// Package metric defines the capability contracts of the framework:
// sources that load dataset snapshots, targets that read and persist
// metric rows, and the immutable spec binding a metric to both.
package metric

import (
	"context"
	"slices"
	"time"

	"metrify/internal/frame"
)

// Default output columns a computed metric frame must carry when the
// spec does not declare its own.
var DefaultColumns = []string{"metric_name", "metric_value"}

// Source loads a dataset snapshot with no arguments.
type Source interface {
	ID() string
	Load(ctx context.Context) (frame.Frame, error)
}

// Target reads and durably writes metric rows keyed by
// (metric id, source id).
//
// LoadMetrics returns an empty frame when nothing has been persisted for
// the pair; it never signals absence through an error. SaveMetrics makes
// no idempotence guarantee: whether a re-run duplicates rows is a
// target-implementation concern.
type Target interface {
	ID() string
	LoadMetrics(ctx context.Context, metricID, sourceID string) (frame.Frame, error)
	SaveMetrics(ctx context.Context, metricID, sourceID string, rows frame.Frame) error
}

// ComputeFunc derives metric rows from the current source snapshot and
// the previously persisted metric snapshot. Compute functions are pure
// by contract: inputs are read-only and the orchestrator does not
// defensively copy them.
type ComputeFunc func(ctx context.Context, source, existing frame.Frame) (frame.Frame, error)

// Spec is the immutable definition of a metric: its identifier, the
// source it reads from, the compute function, and the columns its output
// must carry. The source id is a forward reference resolved at run time,
// not at definition time.
type Spec struct {
	MetricID        string
	SourceID        string
	Compute         ComputeFunc
	RequiredColumns []string
	Description     string

	// Schedule is an optional cron expression consumed by the watch
	// command. Empty means the metric only runs on demand.
	Schedule string
}

// Required returns the columns the computed frame must include,
// defaulting to metric_name and metric_value.
func (s Spec) Required() []string {
	if len(s.RequiredColumns) == 0 {
		return slices.Clone(DefaultColumns)
	}
	return slices.Clone(s.RequiredColumns)
}

// Outcome of a single orchestrated run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// RunRecord describes one execution of the pipeline for one metric
// against one target. One record is produced per run, success or
// failure, and handed to the trace sink.
type RunRecord struct {
	RunID       string
	MetricID    string
	SourceID    string
	TargetID    string
	StartedAt   time.Time
	FinishedAt  time.Time
	Outcome     Outcome
	Stage       string
	Err         error
	RowsWritten int
}
