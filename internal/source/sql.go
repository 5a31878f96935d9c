package source

import (
	"context"
	"fmt"
	"log/slog"

	"metrify/internal/db"
	"metrify/internal/frame"
	"metrify/internal/metric"
)

// SQL loads a dataset snapshot by running a query against a database.
// The connection is opened per load and closed afterwards: discovery
// performs no I/O, and sources carry no long-lived state.
type SQL struct {
	id     string
	dsn    string
	query  string
	logger *slog.Logger
}

func NewSQL(id, dsn, query string, logger *slog.Logger) *SQL {
	return &SQL{id: id, dsn: dsn, query: query, logger: logger}
}

func (s *SQL) ID() string { return s.id }

func (s *SQL) Load(ctx context.Context) (frame.Frame, error) {
	conn, err := db.Connect(ctx, s.dsn, s.logger)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("sql source %s: %w", s.id, err)
	}
	defer conn.Close()

	rows, err := conn.QueryxContext(ctx, s.query)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("sql source %s query: %w", s.id, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return frame.Frame{}, fmt.Errorf("sql source %s columns: %w", s.id, err)
	}

	out := frame.New(columns...)
	for rows.Next() {
		cells, err := rows.SliceScan()
		if err != nil {
			return frame.Frame{}, fmt.Errorf("sql source %s scan: %w", s.id, err)
		}
		for i, cell := range cells {
			if b, ok := cell.([]byte); ok {
				cells[i] = string(b)
			}
		}
		if err := out.AppendRow(cells...); err != nil {
			return frame.Frame{}, fmt.Errorf("sql source %s: %w", s.id, err)
		}
	}
	if err := rows.Err(); err != nil {
		return frame.Frame{}, fmt.Errorf("sql source %s rows: %w", s.id, err)
	}
	return out, nil
}

var _ metric.Source = (*SQL)(nil)
