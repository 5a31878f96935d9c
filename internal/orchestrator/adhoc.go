package orchestrator

import (
	"context"
	"log/slog"

	"metrify/internal/frame"
	"metrify/internal/metric"
	"metrify/internal/registry"
	"metrify/internal/source"
)

// AdHocFunc computes named metric values from a source snapshot.
type AdHocFunc func(source frame.Frame) (map[string]float64, error)

// RunAdHoc executes a one-off metric job outside a discovered project:
// the caller supplies the snapshot, the compute function, and the
// target. The run goes through the same pipeline as project metrics, so
// tracing, validation, and persistence behave identically. Returns the
// run record and the computed values.
func RunAdHoc(
	ctx context.Context,
	name, datasetID string,
	fn AdHocFunc,
	data frame.Frame,
	tgt metric.Target,
	logger *slog.Logger,
) (metric.RunRecord, map[string]float64, error) {
	var computed map[string]float64

	spec := metric.Spec{
		MetricID: name,
		SourceID: datasetID,
		Compute: func(_ context.Context, src, _ frame.Frame) (frame.Frame, error) {
			values, err := fn(src)
			if err != nil {
				return frame.Frame{}, err
			}
			computed = values
			out := frame.New(metric.DefaultColumns...)
			for metricName, metricValue := range values {
				out.Rows = append(out.Rows, []any{metricName, metricValue})
			}
			return out, nil
		},
	}

	reg := registry.New()
	if err := reg.Sources.Register(datasetID, source.NewInline(datasetID, data)); err != nil {
		return metric.RunRecord{}, nil, err
	}
	if err := reg.Metrics.Register(name, spec); err != nil {
		return metric.RunRecord{}, nil, err
	}
	if err := reg.Targets.Register(tgt.ID(), tgt); err != nil {
		return metric.RunRecord{}, nil, err
	}

	rec, err := NewRunner(reg, logger).Run(ctx, name, tgt.ID())
	if err != nil {
		return rec, nil, err
	}
	return rec, computed, nil
}
