package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"metrify/internal/metric"
)

const traceSchema = `
CREATE TABLE IF NOT EXISTS metric_runs (
	run_id       TEXT PRIMARY KEY,
	metric_id    TEXT NOT NULL,
	source_id    TEXT NOT NULL,
	target_id    TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	finished_at  TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	stage        TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	rows_written INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS metric_runs_metric_idx ON metric_runs (metric_id, started_at);
`

// TraceLog persists one row per orchestrated run. It backs the
// orchestrator's trace sink and the inspection API's run history.
type TraceLog struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewTraceLog(db *sqlx.DB, logger *slog.Logger) *TraceLog {
	return &TraceLog{db: db, logger: logger}
}

// EnsureSchema creates the run table when absent.
func (t *TraceLog) EnsureSchema(ctx context.Context) error {
	if _, err := t.db.ExecContext(ctx, traceSchema); err != nil {
		return fmt.Errorf("ensure trace schema: %w", err)
	}
	return nil
}

// RecordRun writes one run record.
func (t *TraceLog) RecordRun(ctx context.Context, rec metric.RunRecord) error {
	errText := ""
	if rec.Err != nil {
		errText = rec.Err.Error()
	}
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO metric_runs
			(run_id, metric_id, source_id, target_id, started_at, finished_at, outcome, stage, error, rows_written)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		rec.RunID,
		rec.MetricID,
		rec.SourceID,
		rec.TargetID,
		rec.StartedAt.UTC().Format(timeLayout),
		rec.FinishedAt.UTC().Format(timeLayout),
		string(rec.Outcome),
		rec.Stage,
		errText,
		rec.RowsWritten,
	)
	if err != nil {
		return fmt.Errorf("insert run record: %w", err)
	}
	return nil
}

// RunRow is the persisted shape of a run record, as served by the
// inspection API.
type RunRow struct {
	RunID       string `db:"run_id" json:"runId"`
	MetricID    string `db:"metric_id" json:"metricId"`
	SourceID    string `db:"source_id" json:"sourceId"`
	TargetID    string `db:"target_id" json:"targetId"`
	StartedAt   string `db:"started_at" json:"startedAt"`
	FinishedAt  string `db:"finished_at" json:"finishedAt"`
	Outcome     string `db:"outcome" json:"outcome"`
	Stage       string `db:"stage" json:"stage,omitempty"`
	Error       string `db:"error" json:"error,omitempty"`
	RowsWritten int    `db:"rows_written" json:"rowsWritten"`
}

// RecentRuns returns up to limit run records, newest first.
func (t *TraceLog) RecentRuns(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []RunRow
	err := t.db.SelectContext(ctx, &runs, `
		SELECT run_id, metric_id, source_id, target_id, started_at, finished_at,
		       outcome, stage, error, rows_written
		FROM metric_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	return runs, nil
}

// ParseTime decodes a persisted timestamp. Exposed for tests and API
// consumers.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
