package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"metrify/internal/metric"
)

func setupTraceLog(t *testing.T) *TraceLog {
	t.Helper()
	tl := NewTraceLog(setupTestDB(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := tl.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	return tl
}

func sampleRecord(runID string, startedAt time.Time) metric.RunRecord {
	return metric.RunRecord{
		RunID:       runID,
		MetricID:    "row-count",
		SourceID:    "orders",
		TargetID:    "warehouse",
		StartedAt:   startedAt,
		FinishedAt:  startedAt.Add(120 * time.Millisecond),
		Outcome:     metric.OutcomeSuccess,
		RowsWritten: 1,
	}
}

func TestRecordRunRoundTrip(t *testing.T) {
	tl := setupTraceLog(t)
	ctx := context.Background()
	startedAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	if err := tl.RecordRun(ctx, sampleRecord("run-1", startedAt)); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}

	runs, err := tl.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("RecentRuns() = %d rows, want 1", len(runs))
	}

	row := runs[0]
	if row.RunID != "run-1" || row.MetricID != "row-count" || row.Outcome != "success" {
		t.Fatalf("row = %+v", row)
	}
	parsed, err := ParseTime(row.StartedAt)
	if err != nil {
		t.Fatalf("ParseTime(%q) error = %v", row.StartedAt, err)
	}
	if !parsed.Equal(startedAt) {
		t.Fatalf("started at = %v, want %v", parsed, startedAt)
	}
}

func TestRecordRunKeepsFailureDetail(t *testing.T) {
	tl := setupTraceLog(t)
	ctx := context.Background()

	rec := sampleRecord("run-2", time.Now().UTC())
	rec.Outcome = metric.OutcomeFailure
	rec.Stage = "load_source"
	rec.Err = fmt.Errorf("connection refused")
	rec.RowsWritten = 0

	if err := tl.RecordRun(ctx, rec); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}

	runs, err := tl.RecentRuns(ctx, 1)
	if err != nil {
		t.Fatalf("RecentRuns() error = %v", err)
	}
	if runs[0].Stage != "load_source" || runs[0].Error != "connection refused" {
		t.Fatalf("row = %+v", runs[0])
	}
}

func TestRecentRunsNewestFirst(t *testing.T) {
	tl := setupTraceLog(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := range 3 {
		rec := sampleRecord(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Minute))
		if err := tl.RecordRun(ctx, rec); err != nil {
			t.Fatalf("RecordRun() error = %v", err)
		}
	}

	runs, err := tl.RecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("RecentRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("RecentRuns() = %d rows, want 2", len(runs))
	}
	if runs[0].RunID != "run-2" || runs[1].RunID != "run-1" {
		t.Fatalf("order = %s, %s; want run-2, run-1", runs[0].RunID, runs[1].RunID)
	}
}
