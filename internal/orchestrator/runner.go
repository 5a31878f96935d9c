// Package orchestrator executes metric runs: the six-stage pipeline for
// a single metric against a single target, and batch execution with
// per-metric failure isolation.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"metrify/internal/frame"
	"metrify/internal/metric"
	"metrify/internal/registry"
)

var runTracer = otel.Tracer("metrify/orchestrator")

// TraceSink receives one run record per orchestrated run. Sink failures
// are surfaced as warnings and never flip a run's outcome.
type TraceSink interface {
	RecordRun(ctx context.Context, rec metric.RunRecord) error
}

// CatalogSink receives persisted rows after successful runs only.
// Best-effort, like TraceSink.
type CatalogSink interface {
	Register(ctx context.Context, metricID, sourceID string, rows frame.Frame) error
}

const sinkTimeout = 5 * time.Second

// Runner executes metric runs against a read-only registry. Runs are
// strictly sequential per Runner; callers wanting parallel batches must
// provide their own per-(metric, target) mutual exclusion, since a
// target's read-then-write is not atomic here.
type Runner struct {
	reg     *registry.Registry
	logger  *slog.Logger
	trace   TraceSink
	catalog CatalogSink
}

func NewRunner(reg *registry.Registry, logger *slog.Logger) *Runner {
	return &Runner{reg: reg, logger: logger}
}

// SetTraceSink attaches the run record sink.
func (r *Runner) SetTraceSink(sink TraceSink) {
	r.trace = sink
}

// SetCatalogSink attaches the optional catalog registration sink.
func (r *Runner) SetCatalogSink(sink CatalogSink) {
	r.catalog = sink
}

// Run executes one metric against one target. Every stage failure
// aborts the run, produces a failure record, and propagates to the
// caller; nothing is retried here. The returned record is also produced
// on failure.
func (r *Runner) Run(ctx context.Context, metricID, targetID string) (metric.RunRecord, error) {
	rec := metric.RunRecord{
		RunID:     uuid.NewString(),
		MetricID:  metricID,
		TargetID:  targetID,
		StartedAt: time.Now().UTC(),
	}

	ctx, span := runTracer.Start(ctx, "metric.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("metrify.run_id", rec.RunID),
		attribute.String("metrify.metric_id", metricID),
		attribute.String("metrify.target_id", targetID),
	)

	rowsPersisted, err := r.execute(ctx, &rec)
	rec.FinishedAt = time.Now().UTC()

	if err != nil {
		rec.Outcome = metric.OutcomeFailure
		rec.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("metrify.failed_stage", rec.Stage))
		r.finishRun(ctx, rec)
		return rec, err
	}

	rec.Outcome = metric.OutcomeSuccess
	rec.RowsWritten = rowsPersisted.NumRows()
	span.SetAttributes(attribute.Int("metrify.rows_written", rec.RowsWritten))
	r.finishRun(ctx, rec)
	r.registerInCatalog(ctx, rec, rowsPersisted)
	return rec, nil
}

// execute walks the pipeline stages, recording on rec the stage reached
// and the resolved source id. Returns the persisted frame on success.
func (r *Runner) execute(ctx context.Context, rec *metric.RunRecord) (frame.Frame, error) {
	// Stage 1: resolve all three identifiers before any side effect.
	rec.Stage = StageResolve
	spec, err := r.reg.Metrics.Lookup(rec.MetricID)
	if err != nil {
		return frame.Frame{}, err
	}
	rec.SourceID = spec.SourceID
	src, err := r.reg.Sources.Lookup(spec.SourceID)
	if err != nil {
		return frame.Frame{}, err
	}
	tgt, err := r.reg.Targets.Lookup(rec.TargetID)
	if err != nil {
		return frame.Frame{}, err
	}

	// Stage 2: load the source snapshot.
	rec.Stage = StageLoadSource
	sourceFrame, err := src.Load(ctx)
	if err != nil {
		return frame.Frame{}, &SourceLoadError{SourceID: spec.SourceID, Err: err}
	}

	// Stage 3: load existing metrics. Empty is valid, not a failure.
	rec.Stage = StageLoadExisting
	existing, err := tgt.LoadMetrics(ctx, spec.MetricID, spec.SourceID)
	if err != nil {
		return frame.Frame{}, &TargetReadError{TargetID: rec.TargetID, Err: err}
	}

	// Stage 4: compute. Inputs are read-only by contract; panics in
	// user compute functions become ComputeErrors.
	rec.Stage = StageCompute
	computed, err := r.compute(ctx, spec, sourceFrame, existing)
	if err != nil {
		return frame.Frame{}, &ComputeError{MetricID: spec.MetricID, Err: err}
	}

	// Stage 5: validate before persisting, never the reverse. Zero rows
	// is a legitimate "nothing to report" outcome.
	rec.Stage = StageValidate
	if missing := computed.MissingColumns(spec.Required()); len(missing) > 0 {
		return frame.Frame{}, &SchemaError{MetricID: spec.MetricID, Missing: missing}
	}

	// Stage 6: persist.
	rec.Stage = StagePersist
	if err := tgt.SaveMetrics(ctx, spec.MetricID, spec.SourceID, computed); err != nil {
		return frame.Frame{}, &TargetWriteError{TargetID: rec.TargetID, Err: err}
	}

	return computed, nil
}

func (r *Runner) compute(ctx context.Context, spec metric.Spec, source, existing frame.Frame) (out frame.Frame, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	if spec.Compute == nil {
		return frame.Frame{}, fmt.Errorf("metric %q has no compute function", spec.MetricID)
	}
	return spec.Compute(ctx, source, existing)
}

// finishRun updates instrumentation and hands the record to the trace
// sink. Sink failures are warnings, never run failures.
func (r *Runner) finishRun(ctx context.Context, rec metric.RunRecord) {
	runsTotal.WithLabelValues(string(rec.Outcome)).Inc()
	runDuration.Observe(rec.FinishedAt.Sub(rec.StartedAt).Seconds())
	if rec.Outcome == metric.OutcomeSuccess {
		rowsWritten.Add(float64(rec.RowsWritten))
		r.logger.Info("metric run succeeded",
			"run_id", rec.RunID,
			"metric_id", rec.MetricID,
			"target_id", rec.TargetID,
			"rows_written", rec.RowsWritten,
			"duration", rec.FinishedAt.Sub(rec.StartedAt))
	} else {
		r.logger.Error("metric run failed",
			"run_id", rec.RunID,
			"metric_id", rec.MetricID,
			"target_id", rec.TargetID,
			"stage", rec.Stage,
			"err", rec.Err)
	}

	if r.trace == nil {
		return
	}
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	if err := r.trace.RecordRun(sinkCtx, rec); err != nil {
		r.logger.Warn("trace sink failed", "run_id", rec.RunID, "err", err)
	}
}

func (r *Runner) registerInCatalog(ctx context.Context, rec metric.RunRecord, rows frame.Frame) {
	if r.catalog == nil {
		return
	}
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	if err := r.catalog.Register(sinkCtx, rec.MetricID, rec.SourceID, rows); err != nil {
		r.logger.Warn("catalog registration failed", "run_id", rec.RunID, "err", err)
	}
}
