// Package source provides the built-in source kinds available to
// project manifests: csv files, sql queries, and inline literal rows.
package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"metrify/internal/frame"
	"metrify/internal/metric"
)

// CSV loads a dataset snapshot from a CSV file. The first record is the
// header row; numeric cells are coerced to float64, empty cells to nil.
type CSV struct {
	id   string
	path string
}

func NewCSV(id, path string) *CSV {
	return &CSV{id: id, path: path}
}

func (s *CSV) ID() string { return s.id }

func (s *CSV) Load(ctx context.Context) (frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}

	file, err := os.Open(s.path)
	if err != nil {
		return frame.Frame{}, fmt.Errorf("open csv source %s: %w", s.path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return frame.Frame{}, fmt.Errorf("read csv source %s: %w", s.path, err)
	}
	if len(records) == 0 {
		return frame.Frame{}, fmt.Errorf("csv source %s has no header row", s.path)
	}

	out := frame.New(records[0]...)
	for _, record := range records[1:] {
		row := make([]any, len(record))
		for i, cell := range record {
			row[i] = coerceCell(cell)
		}
		if err := out.AppendRow(row...); err != nil {
			return frame.Frame{}, fmt.Errorf("csv source %s: %w", s.path, err)
		}
	}
	return out, nil
}

func coerceCell(cell string) any {
	if cell == "" {
		return nil
	}
	if v, err := strconv.ParseFloat(cell, 64); err == nil {
		return v
	}
	return cell
}

var _ metric.Source = (*CSV)(nil)
