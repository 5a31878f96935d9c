// Package compute holds the catalog of named compute kinds that metric
// manifests reference. A kind is a builder turning manifest parameters
// into a concrete metric.ComputeFunc.
package compute

import (
	"context"
	"fmt"
	"sort"

	"metrify/internal/frame"
	"metrify/internal/metric"
)

// Params carries the manifest-level parameters of a compute kind.
type Params struct {
	// Columns restricts column-wise kinds to the named columns.
	// Empty means every numeric column of the source snapshot.
	Columns []string
}

// BuilderFunc turns params into a compute function.
type BuilderFunc func(p Params) (metric.ComputeFunc, error)

// Catalog maps compute kind names to builders. The zero value is not
// usable; NewCatalog pre-registers the built-in kinds.
type Catalog struct {
	builders map[string]BuilderFunc
}

// NewCatalog returns a catalog with the built-in kinds registered.
func NewCatalog() *Catalog {
	c := &Catalog{builders: make(map[string]BuilderFunc)}
	c.builders["row_count"] = buildRowCount
	c.builders["column_stats"] = buildColumnStats
	c.builders["null_count"] = buildNullCount
	c.builders["distinct_count"] = buildDistinctCount
	c.builders["value_change"] = buildValueChange
	return c
}

// Register adds a kind. Registering a taken name fails so project code
// cannot shadow a built-in by accident.
func (c *Catalog) Register(kind string, b BuilderFunc) error {
	if _, exists := c.builders[kind]; exists {
		return fmt.Errorf("compute kind already registered: %s", kind)
	}
	c.builders[kind] = b
	return nil
}

// Build resolves a kind and constructs its compute function.
func (c *Catalog) Build(kind string, p Params) (metric.ComputeFunc, error) {
	b, ok := c.builders[kind]
	if !ok {
		return nil, fmt.Errorf("unknown compute kind: %s", kind)
	}
	return b(p)
}

// Kinds returns the registered kind names, sorted.
func (c *Catalog) Kinds() []string {
	kinds := make([]string, 0, len(c.builders))
	for k := range c.builders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// metricFrame builds the standard two-column output frame from named
// values, preserving the given name order.
func metricFrame(names []string, values map[string]float64) frame.Frame {
	out := frame.New(metric.DefaultColumns...)
	for _, name := range names {
		out.Rows = append(out.Rows, []any{name, values[name]})
	}
	return out
}

// selectColumns resolves the columns a column-wise kind operates on:
// the configured ones, or every source column holding at least one
// numeric cell.
func selectColumns(p Params, source frame.Frame) ([]string, error) {
	if len(p.Columns) > 0 {
		for _, col := range p.Columns {
			if !source.HasColumn(col) {
				return nil, fmt.Errorf("source snapshot has no column %q", col)
			}
		}
		return p.Columns, nil
	}

	var numeric []string
	for _, col := range source.Columns {
		idx := source.ColumnIndex(col)
		for _, row := range source.Rows {
			if _, ok := frame.Float(row[idx]); ok {
				numeric = append(numeric, col)
				break
			}
		}
	}
	return numeric, nil
}

func buildRowCount(Params) (metric.ComputeFunc, error) {
	return func(_ context.Context, source, _ frame.Frame) (frame.Frame, error) {
		return metricFrame(
			[]string{"row_count"},
			map[string]float64{"row_count": float64(source.NumRows())},
		), nil
	}, nil
}

func buildColumnStats(p Params) (metric.ComputeFunc, error) {
	return func(_ context.Context, source, _ frame.Frame) (frame.Frame, error) {
		columns, err := selectColumns(p, source)
		if err != nil {
			return frame.Frame{}, err
		}

		var names []string
		values := make(map[string]float64)
		for _, col := range columns {
			idx := source.ColumnIndex(col)
			var sum, minVal, maxVal float64
			count := 0
			for _, row := range source.Rows {
				v, ok := frame.Float(row[idx])
				if !ok {
					continue
				}
				if count == 0 {
					minVal, maxVal = v, v
				}
				minVal = min(minVal, v)
				maxVal = max(maxVal, v)
				sum += v
				count++
			}
			if count == 0 {
				continue
			}
			for suffix, v := range map[string]float64{
				"mean": sum / float64(count),
				"min":  minVal,
				"max":  maxVal,
			} {
				name := col + "_" + suffix
				values[name] = v
			}
			names = append(names, col+"_mean", col+"_min", col+"_max")
		}
		return metricFrame(names, values), nil
	}, nil
}

func buildNullCount(p Params) (metric.ComputeFunc, error) {
	return func(_ context.Context, source, _ frame.Frame) (frame.Frame, error) {
		columns := p.Columns
		if len(columns) == 0 {
			columns = source.Columns
		}
		var names []string
		values := make(map[string]float64)
		for _, col := range columns {
			idx := source.ColumnIndex(col)
			if idx < 0 {
				return frame.Frame{}, fmt.Errorf("source snapshot has no column %q", col)
			}
			nulls := 0
			for _, row := range source.Rows {
				if row[idx] == nil {
					nulls++
				}
			}
			name := col + "_null_count"
			names = append(names, name)
			values[name] = float64(nulls)
		}
		return metricFrame(names, values), nil
	}, nil
}

func buildDistinctCount(p Params) (metric.ComputeFunc, error) {
	return func(_ context.Context, source, _ frame.Frame) (frame.Frame, error) {
		columns := p.Columns
		if len(columns) == 0 {
			columns = source.Columns
		}
		var names []string
		values := make(map[string]float64)
		for _, col := range columns {
			idx := source.ColumnIndex(col)
			if idx < 0 {
				return frame.Frame{}, fmt.Errorf("source snapshot has no column %q", col)
			}
			seen := make(map[any]struct{})
			for _, row := range source.Rows {
				if row[idx] != nil {
					seen[row[idx]] = struct{}{}
				}
			}
			name := col + "_distinct_count"
			names = append(names, name)
			values[name] = float64(len(seen))
		}
		return metricFrame(names, values), nil
	}, nil
}

// buildValueChange reports the row-count delta against the most recent
// persisted row_count value, demonstrating a compute kind that consumes
// the existing-metrics snapshot. With no prior rows the change equals
// the current count.
func buildValueChange(Params) (metric.ComputeFunc, error) {
	return func(_ context.Context, source, existing frame.Frame) (frame.Frame, error) {
		current := float64(source.NumRows())
		previous, found := latestValue(existing, "row_count")

		values := map[string]float64{"row_count": current}
		names := []string{"row_count"}
		if found {
			values["row_count_change"] = current - previous
		} else {
			values["row_count_change"] = current
		}
		names = append(names, "row_count_change")
		return metricFrame(names, values), nil
	}, nil
}

// latestValue scans an existing-metrics frame (newest rows first, as
// targets return them) for the first value under the given metric name.
func latestValue(existing frame.Frame, name string) (float64, bool) {
	nameIdx := existing.ColumnIndex("metric_name")
	valueIdx := existing.ColumnIndex("metric_value")
	if nameIdx < 0 || valueIdx < 0 {
		return 0, false
	}
	for _, row := range existing.Rows {
		if row[nameIdx] == name {
			if v, ok := frame.Float(row[valueIdx]); ok {
				return v, true
			}
		}
	}
	return 0, false
}
