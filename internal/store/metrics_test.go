package store

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"metrify/internal/frame"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := sqlx.Open("sqlite", "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func setupStore(t *testing.T) *Store {
	t.Helper()
	s := New(setupTestDB(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	return s
}

func metricRows(pairs map[string]float64) frame.Frame {
	f := frame.New("metric_name", "metric_value")
	for name, value := range pairs {
		_ = f.AppendRow(name, value)
	}
	return f
}

func TestDatasetID(t *testing.T) {
	if got := DatasetID("row-count", "orders"); got != "orders::row-count" {
		t.Fatalf("DatasetID() = %q, want orders::row-count", got)
	}
}

func TestRecordAndLoadRoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	written, err := s.RecordRows(ctx, "row-count", "orders", metricRows(map[string]float64{"row_count": 3}))
	if err != nil {
		t.Fatalf("RecordRows() error = %v", err)
	}
	if written != 1 {
		t.Fatalf("RecordRows() wrote %d, want 1", written)
	}

	got, err := s.MetricsFor(ctx, "row-count", "orders")
	if err != nil {
		t.Fatalf("MetricsFor() error = %v", err)
	}
	if got.NumRows() != 1 {
		t.Fatalf("MetricsFor() rows = %d, want 1", got.NumRows())
	}
	name, _ := got.Value(0, "metric_name")
	value, _ := got.Value(0, "metric_value")
	if name != "row_count" || value != 3.0 {
		t.Fatalf("row = %v/%v, want row_count/3", name, value)
	}
}

func TestMetricsForUnknownPairIsEmpty(t *testing.T) {
	s := setupStore(t)

	got, err := s.MetricsFor(context.Background(), "nope", "nowhere")
	if err != nil {
		t.Fatalf("MetricsFor() error = %v", err)
	}
	if !got.Empty() {
		t.Fatalf("MetricsFor() rows = %d, want empty frame", got.NumRows())
	}
	if !got.HasColumn("metric_name") {
		t.Fatal("empty frame should still carry its columns")
	}
}

// Re-recording the same rows appends: the store is append-only and does
// not deduplicate.
func TestRecordRowsAppends(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	rows := metricRows(map[string]float64{"row_count": 3})

	for range 2 {
		if _, err := s.RecordRows(ctx, "row-count", "orders", rows); err != nil {
			t.Fatalf("RecordRows() error = %v", err)
		}
	}

	got, err := s.MetricsFor(ctx, "row-count", "orders")
	if err != nil {
		t.Fatalf("MetricsFor() error = %v", err)
	}
	if got.NumRows() != 2 {
		t.Fatalf("rows after double record = %d, want 2", got.NumRows())
	}
}

func TestRecordRowsRequiresStandardColumns(t *testing.T) {
	s := setupStore(t)

	bad := frame.New("name", "value")
	_ = bad.AppendRow("row_count", 1.0)

	if _, err := s.RecordRows(context.Background(), "m", "src", bad); err == nil {
		t.Fatal("RecordRows() without metric_name/metric_value should fail")
	}
}

func TestRecordRowsPreservesExtraColumnsInMetadata(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	rows := frame.New("metric_name", "metric_value", "department")
	_ = rows.AppendRow("headcount", 12.0, "engineering")

	if _, err := s.RecordRows(ctx, "headcount", "hr", rows); err != nil {
		t.Fatalf("RecordRows() error = %v", err)
	}

	var raw string
	if err := s.db.Get(&raw, `SELECT metadata FROM metrics WHERE dataset_id = $1`, DatasetID("headcount", "hr")); err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	if metadata["department"] != "engineering" {
		t.Fatalf("metadata department = %v, want engineering", metadata["department"])
	}
	if metadata["metric_id"] != "headcount" || metadata["source_id"] != "hr" {
		t.Fatalf("metadata ids = %v", metadata)
	}
}

func TestListDatasetIDs(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	rows := metricRows(map[string]float64{"row_count": 1})

	_, _ = s.RecordRows(ctx, "b-metric", "src", rows)
	_, _ = s.RecordRows(ctx, "a-metric", "src", rows)
	_, _ = s.RecordRows(ctx, "a-metric", "src", rows)

	ids, err := s.ListDatasetIDs(ctx)
	if err != nil {
		t.Fatalf("ListDatasetIDs() error = %v", err)
	}
	want := []string{"src::a-metric", "src::b-metric"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("ListDatasetIDs() = %v, want %v", ids, want)
	}
}

func TestLatestMetrics(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	if _, err := s.RecordRows(ctx, "row-count", "orders", metricRows(map[string]float64{"row_count": 3})); err != nil {
		t.Fatalf("RecordRows() error = %v", err)
	}
	if _, err := s.RecordRows(ctx, "row-count", "orders", metricRows(map[string]float64{"row_count": 7})); err != nil {
		t.Fatalf("RecordRows() error = %v", err)
	}

	latest, err := s.LatestMetrics(ctx, DatasetID("row-count", "orders"))
	if err != nil {
		t.Fatalf("LatestMetrics() error = %v", err)
	}
	if latest["row_count"] != 7 {
		t.Fatalf("latest row_count = %v, want 7", latest["row_count"])
	}
}
