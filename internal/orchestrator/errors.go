package orchestrator

import (
	"fmt"
	"strings"
)

// Pipeline stages, in execution order. A run record carries the stage
// at which a failed run stopped.
const (
	StageResolve      = "resolve"
	StageLoadSource   = "load_source"
	StageLoadExisting = "load_existing"
	StageCompute      = "compute"
	StageValidate     = "validate"
	StagePersist      = "persist"
)

// SourceLoadError wraps a failure raised by a source's Load.
type SourceLoadError struct {
	SourceID string
	Err      error
}

func (e *SourceLoadError) Error() string {
	return fmt.Sprintf("load source %q: %v", e.SourceID, e.Err)
}

func (e *SourceLoadError) Unwrap() error { return e.Err }

// TargetReadError wraps a failure reading existing metrics from a
// target. An empty snapshot is not a read failure.
type TargetReadError struct {
	TargetID string
	Err      error
}

func (e *TargetReadError) Error() string {
	return fmt.Sprintf("read target %q: %v", e.TargetID, e.Err)
}

func (e *TargetReadError) Unwrap() error { return e.Err }

// ComputeError wraps a failure (or recovered panic) inside a metric's
// compute function.
type ComputeError struct {
	MetricID string
	Err      error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("compute metric %q: %v", e.MetricID, e.Err)
}

func (e *ComputeError) Unwrap() error { return e.Err }

// SchemaError reports required output columns missing from a computed
// snapshot. Validation always precedes persistence.
type SchemaError struct {
	MetricID string
	Missing  []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("metric %q output missing columns: %s",
		e.MetricID, strings.Join(e.Missing, ", "))
}

// TargetWriteError wraps a failure persisting computed rows.
type TargetWriteError struct {
	TargetID string
	Err      error
}

func (e *TargetWriteError) Error() string {
	return fmt.Sprintf("write target %q: %v", e.TargetID, e.Err)
}

func (e *TargetWriteError) Unwrap() error { return e.Err }

// UnmatchedPatternError reports a batch selection pattern that matched
// no registered metric. It aborts the batch before any metric runs.
type UnmatchedPatternError struct {
	Pattern string
}

func (e *UnmatchedPatternError) Error() string {
	return fmt.Sprintf("pattern %q matched no metrics", e.Pattern)
}
