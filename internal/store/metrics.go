// Package store implements the default persistence backends: the
// append-only metrics table behind the built-in store target, and the
// run trace log. Both work against sqlite and postgres through sqlx.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"metrify/internal/frame"
)

// timeLayout is fixed-width UTC so lexicographic order matches time
// order in both sqlite and postgres TEXT columns.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const metricsSchema = `
CREATE TABLE IF NOT EXISTS metrics (
	dataset_id   TEXT NOT NULL,
	metric_name  TEXT NOT NULL,
	metric_value DOUBLE PRECISION NOT NULL,
	computed_at  TEXT NOT NULL,
	metadata     TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS metrics_dataset_idx ON metrics (dataset_id, computed_at);
`

// Store is the append-only metric row store. Re-recording the same rows
// duplicates them: deduplication is not this layer's concern.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func New(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// EnsureSchema creates the metrics table when absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, metricsSchema); err != nil {
		return fmt.Errorf("ensure metrics schema: %w", err)
	}
	return nil
}

// DatasetID builds the storage key for a (metric, source) pair.
func DatasetID(metricID, sourceID string) string {
	return sourceID + "::" + metricID
}

// RecordRows appends the rows of a computed metric frame. Each row must
// carry metric_name and metric_value; any other columns are preserved in
// the per-row metadata JSON next to the metric and source ids. Returns
// the number of rows written.
func (s *Store) RecordRows(ctx context.Context, metricID, sourceID string, rows frame.Frame) (int, error) {
	nameIdx := rows.ColumnIndex("metric_name")
	valueIdx := rows.ColumnIndex("metric_value")
	if nameIdx < 0 || valueIdx < 0 {
		return 0, fmt.Errorf("metric rows must carry metric_name and metric_value columns, got %v", rows.Columns)
	}

	datasetID := DatasetID(metricID, sourceID)
	computedAt := time.Now().UTC().Format(timeLayout)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin metrics tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	written := 0
	for _, row := range rows.Rows {
		name := fmt.Sprintf("%v", row[nameIdx])
		value, ok := frame.Float(row[valueIdx])
		if !ok {
			return 0, fmt.Errorf("metric %q value %v is not numeric", name, row[valueIdx])
		}

		metadata := map[string]any{
			"metric_id": metricID,
			"source_id": sourceID,
		}
		for i, col := range rows.Columns {
			if i == nameIdx || i == valueIdx {
				continue
			}
			metadata[col] = row[i]
		}
		metadataJSON, err := json.Marshal(metadata)
		if err != nil {
			return 0, fmt.Errorf("marshal metric metadata: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO metrics (dataset_id, metric_name, metric_value, computed_at, metadata)
			VALUES ($1, $2, $3, $4, $5)
		`, datasetID, name, value, computedAt, string(metadataJSON))
		if err != nil {
			return 0, fmt.Errorf("insert metric row: %w", err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit metrics tx: %w", err)
	}

	s.logger.Debug("metric rows recorded",
		"dataset_id", datasetID, "rows", written)
	return written, nil
}

// MetricsFor returns every persisted row for a (metric, source) pair,
// newest first. The frame is empty, never an error, when nothing has
// been recorded for the pair.
func (s *Store) MetricsFor(ctx context.Context, metricID, sourceID string) (frame.Frame, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT metric_name, metric_value, computed_at
		FROM metrics
		WHERE dataset_id = $1
		ORDER BY computed_at DESC
	`, DatasetID(metricID, sourceID))
	if err != nil {
		return frame.Frame{}, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	out := frame.New("metric_name", "metric_value", "computed_at")
	for rows.Next() {
		var (
			name       string
			value      float64
			computedAt string
		)
		if err := rows.Scan(&name, &value, &computedAt); err != nil {
			return frame.Frame{}, fmt.Errorf("scan metric row: %w", err)
		}
		out.Rows = append(out.Rows, []any{name, value, computedAt})
	}
	if err := rows.Err(); err != nil {
		return frame.Frame{}, fmt.Errorf("iterate metric rows: %w", err)
	}
	return out, nil
}

// ListDatasetIDs returns every dataset id with at least one recorded
// metric, sorted.
func (s *Store) ListDatasetIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT dataset_id FROM metrics ORDER BY dataset_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list dataset ids: %w", err)
	}
	return ids, nil
}

// LatestMetrics returns the most recent value per metric name for a
// dataset.
func (s *Store) LatestMetrics(ctx context.Context, datasetID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT metric_name, metric_value
		FROM (
			SELECT metric_name, metric_value,
			       ROW_NUMBER() OVER (PARTITION BY metric_name ORDER BY computed_at DESC) AS rn
			FROM metrics WHERE dataset_id = $1
		) ranked
		WHERE rn = 1
	`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("query latest metrics: %w", err)
	}
	defer rows.Close()

	latest := make(map[string]float64)
	for rows.Next() {
		var (
			name  string
			value float64
		)
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan latest metric: %w", err)
		}
		latest[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latest metrics: %w", err)
	}
	return latest, nil
}
