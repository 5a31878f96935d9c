package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"metrify/internal/frame"
	"metrify/internal/metric"
	"metrify/internal/registry"
)

type stubSource struct {
	id    string
	data  frame.Frame
	err   error
	loads int
}

func (s *stubSource) ID() string { return s.id }

func (s *stubSource) Load(ctx context.Context) (frame.Frame, error) {
	s.loads++
	if s.err != nil {
		return frame.Frame{}, s.err
	}
	return s.data, nil
}

type stubTarget struct {
	id       string
	existing frame.Frame
	loadErr  error
	saveErr  error
	loads    int
	saved    []frame.Frame
}

func (t *stubTarget) ID() string { return t.id }

func (t *stubTarget) LoadMetrics(ctx context.Context, metricID, sourceID string) (frame.Frame, error) {
	t.loads++
	if t.loadErr != nil {
		return frame.Frame{}, t.loadErr
	}
	if len(t.existing.Columns) == 0 {
		return frame.New(metric.DefaultColumns...), nil
	}
	return t.existing, nil
}

func (t *stubTarget) SaveMetrics(ctx context.Context, metricID, sourceID string, rows frame.Frame) error {
	if t.saveErr != nil {
		return t.saveErr
	}
	t.saved = append(t.saved, rows)
	return nil
}

type recordingSink struct {
	records []metric.RunRecord
	err     error
}

func (s *recordingSink) RecordRun(ctx context.Context, rec metric.RunRecord) error {
	s.records = append(s.records, rec)
	return s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rowCountCompute(_ context.Context, source, _ frame.Frame) (frame.Frame, error) {
	out := frame.New(metric.DefaultColumns...)
	_ = out.AppendRow("row_count", float64(source.NumRows()))
	return out, nil
}

// testRig wires a registry with one source, one target, and one metric
// whose compute counts source rows.
func testRig(t *testing.T) (*Runner, *stubSource, *stubTarget) {
	t.Helper()

	data := frame.New("region", "revenue")
	_ = data.AppendRow("east", 100.0)
	_ = data.AppendRow("west", 250.0)

	src := &stubSource{id: "orders", data: data}
	tgt := &stubTarget{id: "warehouse"}

	reg := registry.New()
	if err := reg.Sources.Register("orders", src); err != nil {
		t.Fatalf("Register(source) error = %v", err)
	}
	if err := reg.Targets.Register("warehouse", tgt); err != nil {
		t.Fatalf("Register(target) error = %v", err)
	}
	if err := reg.Metrics.Register("order-count", metric.Spec{
		MetricID: "order-count",
		SourceID: "orders",
		Compute:  rowCountCompute,
	}); err != nil {
		t.Fatalf("Register(metric) error = %v", err)
	}

	return NewRunner(reg, testLogger()), src, tgt
}

func TestRunSuccess(t *testing.T) {
	runner, src, tgt := testRig(t)
	sink := &recordingSink{}
	runner.SetTraceSink(sink)

	rec, err := runner.Run(context.Background(), "order-count", "warehouse")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if rec.Outcome != metric.OutcomeSuccess {
		t.Fatalf("outcome = %s, want success", rec.Outcome)
	}
	if rec.SourceID != "orders" {
		t.Fatalf("record source id = %q, want orders", rec.SourceID)
	}
	if rec.RowsWritten != 1 {
		t.Fatalf("rows written = %d, want 1", rec.RowsWritten)
	}
	if rec.RunID == "" {
		t.Fatal("record is missing a run id")
	}
	if src.loads != 1 || tgt.loads != 1 || len(tgt.saved) != 1 {
		t.Fatalf("loads=%d targetLoads=%d saves=%d, want 1/1/1", src.loads, tgt.loads, len(tgt.saved))
	}
	if len(sink.records) != 1 || sink.records[0].RunID != rec.RunID {
		t.Fatalf("trace sink records = %+v", sink.records)
	}
}

func TestRunUnknownMetric(t *testing.T) {
	runner, src, tgt := testRig(t)

	rec, err := runner.Run(context.Background(), "nope", "warehouse")
	var unknown *registry.UnknownIDError
	if !errors.As(err, &unknown) {
		t.Fatalf("Run() error = %v, want *UnknownIDError", err)
	}
	if rec.Stage != StageResolve {
		t.Fatalf("stage = %s, want %s", rec.Stage, StageResolve)
	}
	if src.loads != 0 || tgt.loads != 0 || len(tgt.saved) != 0 {
		t.Fatal("resolution failure must precede all side effects")
	}
}

func TestRunUnknownTarget(t *testing.T) {
	runner, src, _ := testRig(t)

	_, err := runner.Run(context.Background(), "order-count", "nope")
	var unknown *registry.UnknownIDError
	if !errors.As(err, &unknown) {
		t.Fatalf("Run() error = %v, want *UnknownIDError", err)
	}
	if src.loads != 0 {
		t.Fatal("source must not load when the target does not resolve")
	}
}

func TestRunSourceLoadFailure(t *testing.T) {
	runner, src, tgt := testRig(t)
	src.err = fmt.Errorf("connection refused")

	rec, err := runner.Run(context.Background(), "order-count", "warehouse")
	var loadErr *SourceLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Run() error = %v, want *SourceLoadError", err)
	}
	if rec.Stage != StageLoadSource {
		t.Fatalf("stage = %s, want %s", rec.Stage, StageLoadSource)
	}
	if rec.Outcome != metric.OutcomeFailure {
		t.Fatalf("outcome = %s, want failure", rec.Outcome)
	}
	if tgt.loads != 0 || len(tgt.saved) != 0 {
		t.Fatal("target must stay untouched after a source load failure")
	}
}

func TestRunTargetReadFailure(t *testing.T) {
	runner, _, tgt := testRig(t)
	tgt.loadErr = fmt.Errorf("disk gone")

	rec, err := runner.Run(context.Background(), "order-count", "warehouse")
	var readErr *TargetReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("Run() error = %v, want *TargetReadError", err)
	}
	if rec.Stage != StageLoadExisting {
		t.Fatalf("stage = %s, want %s", rec.Stage, StageLoadExisting)
	}
	if len(tgt.saved) != 0 {
		t.Fatal("nothing may persist after a target read failure")
	}
}

func TestRunSchemaValidationSkipsPersist(t *testing.T) {
	runner, _, tgt := testRig(t)

	badCompute := func(_ context.Context, source, _ frame.Frame) (frame.Frame, error) {
		out := frame.New("metric_name") // missing metric_value
		_ = out.AppendRow("row_count")
		return out, nil
	}
	reg := runner.reg
	_ = reg.Metrics.Register("bad-schema", metric.Spec{
		MetricID: "bad-schema",
		SourceID: "orders",
		Compute:  badCompute,
	})

	rec, err := runner.Run(context.Background(), "bad-schema", "warehouse")
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("Run() error = %v, want *SchemaError", err)
	}
	if len(schemaErr.Missing) != 1 || schemaErr.Missing[0] != "metric_value" {
		t.Fatalf("missing = %v, want [metric_value]", schemaErr.Missing)
	}
	if rec.Stage != StageValidate {
		t.Fatalf("stage = %s, want %s", rec.Stage, StageValidate)
	}
	if len(tgt.saved) != 0 {
		t.Fatal("validation failure must block persistence")
	}
}

func TestRunComputePanicBecomesError(t *testing.T) {
	runner, _, tgt := testRig(t)

	_ = runner.reg.Metrics.Register("panicky", metric.Spec{
		MetricID: "panicky",
		SourceID: "orders",
		Compute: func(_ context.Context, _, _ frame.Frame) (frame.Frame, error) {
			panic("boom")
		},
	})

	rec, err := runner.Run(context.Background(), "panicky", "warehouse")
	var computeErr *ComputeError
	if !errors.As(err, &computeErr) {
		t.Fatalf("Run() error = %v, want *ComputeError", err)
	}
	if rec.Stage != StageCompute {
		t.Fatalf("stage = %s, want %s", rec.Stage, StageCompute)
	}
	if len(tgt.saved) != 0 {
		t.Fatal("panic in compute must block persistence")
	}
}

func TestRunTargetWriteFailure(t *testing.T) {
	runner, _, tgt := testRig(t)
	tgt.saveErr = fmt.Errorf("read-only database")

	rec, err := runner.Run(context.Background(), "order-count", "warehouse")
	var writeErr *TargetWriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("Run() error = %v, want *TargetWriteError", err)
	}
	if rec.Stage != StagePersist {
		t.Fatalf("stage = %s, want %s", rec.Stage, StagePersist)
	}
}

func TestRunZeroRowsIsSuccess(t *testing.T) {
	runner, _, tgt := testRig(t)

	_ = runner.reg.Metrics.Register("quiet", metric.Spec{
		MetricID: "quiet",
		SourceID: "orders",
		Compute: func(_ context.Context, _, _ frame.Frame) (frame.Frame, error) {
			return frame.New(metric.DefaultColumns...), nil
		},
	})

	rec, err := runner.Run(context.Background(), "quiet", "warehouse")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec.Outcome != metric.OutcomeSuccess || rec.RowsWritten != 0 {
		t.Fatalf("outcome = %s rows = %d, want success with 0 rows", rec.Outcome, rec.RowsWritten)
	}
	if len(tgt.saved) != 1 {
		t.Fatal("empty frames are still handed to the target")
	}
}

// Two runs of the same metric call SaveMetrics twice: idempotence is a
// target concern the orchestrator does not paper over.
func TestRunTwiceSavesTwice(t *testing.T) {
	runner, _, tgt := testRig(t)

	for range 2 {
		if _, err := runner.Run(context.Background(), "order-count", "warehouse"); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	}
	if len(tgt.saved) != 2 {
		t.Fatalf("saves = %d, want 2", len(tgt.saved))
	}
}

func TestTraceSinkFailureDoesNotFlipOutcome(t *testing.T) {
	runner, _, _ := testRig(t)
	runner.SetTraceSink(&recordingSink{err: fmt.Errorf("trace db down")})

	rec, err := runner.Run(context.Background(), "order-count", "warehouse")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec.Outcome != metric.OutcomeSuccess {
		t.Fatalf("outcome = %s, want success despite sink failure", rec.Outcome)
	}
}

func TestTraceSinkReceivesFailures(t *testing.T) {
	runner, src, _ := testRig(t)
	src.err = fmt.Errorf("gone")
	sink := &recordingSink{}
	runner.SetTraceSink(sink)

	_, err := runner.Run(context.Background(), "order-count", "warehouse")
	if err == nil {
		t.Fatal("Run() should fail")
	}
	if len(sink.records) != 1 {
		t.Fatalf("trace sink records = %d, want 1", len(sink.records))
	}
	if sink.records[0].Outcome != metric.OutcomeFailure || sink.records[0].Stage != StageLoadSource {
		t.Fatalf("recorded = %+v", sink.records[0])
	}
}

type recordingCatalog struct {
	calls int
}

func (c *recordingCatalog) Register(ctx context.Context, metricID, sourceID string, rows frame.Frame) error {
	c.calls++
	return nil
}

func TestCatalogOnlySeesSuccesses(t *testing.T) {
	runner, src, _ := testRig(t)
	cat := &recordingCatalog{}
	runner.SetCatalogSink(cat)

	if _, err := runner.Run(context.Background(), "order-count", "warehouse"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	src.err = fmt.Errorf("gone")
	_, _ = runner.Run(context.Background(), "order-count", "warehouse")

	if cat.calls != 1 {
		t.Fatalf("catalog calls = %d, want 1", cat.calls)
	}
}
