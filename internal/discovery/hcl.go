package discovery

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"metrify/internal/frame"
)

// Top-level manifest shapes, one per group directory.

type sourceFile struct {
	Sources []sourceBlock `hcl:"source,block"`
}

type sourceBlock struct {
	Kind string   `hcl:"kind,label"`
	ID   string   `hcl:"id,label"`
	Body hcl.Body `hcl:",remain"`
}

type metricFile struct {
	Metrics []metricBlock `hcl:"metric,block"`
}

type metricBlock struct {
	ID              string   `hcl:"id,label"`
	Source          string   `hcl:"source"`
	Compute         string   `hcl:"compute"`
	Columns         []string `hcl:"columns,optional"`
	RequiredColumns []string `hcl:"required_columns,optional"`
	Description     string   `hcl:"description,optional"`
	Schedule        string   `hcl:"schedule,optional"`
}

type targetFile struct {
	Targets []targetBlock `hcl:"target,block"`
}

type targetBlock struct {
	Kind string   `hcl:"kind,label"`
	ID   string   `hcl:"id,label"`
	Body hcl.Body `hcl:",remain"`
}

// Per-kind block bodies.

type csvConfig struct {
	Path string `hcl:"path"`
}

type sqlConfig struct {
	DSN   string `hcl:"dsn"`
	Query string `hcl:"query"`
}

type inlineConfig struct {
	Columns []string  `hcl:"columns"`
	Rows    cty.Value `hcl:"rows"`
}

type storeConfig struct {
	DSN string `hcl:"dsn,optional"`
}

type amqpConfig struct {
	URL   string `hcl:"url"`
	Queue string `hcl:"queue"`
}

// frame materializes an inline block's literal rows.
func (c inlineConfig) frame() (frame.Frame, error) {
	out := frame.New(c.Columns...)
	if c.Rows.IsNull() {
		return out, nil
	}
	if !c.Rows.CanIterateElements() {
		return frame.Frame{}, fmt.Errorf("rows must be a list of rows")
	}

	rowIter := c.Rows.ElementIterator()
	for rowIter.Next() {
		_, rowVal := rowIter.Element()
		if !rowVal.CanIterateElements() {
			return frame.Frame{}, fmt.Errorf("each row must be a list of cells")
		}
		var cells []any
		cellIter := rowVal.ElementIterator()
		for cellIter.Next() {
			_, cellVal := cellIter.Element()
			cell, err := fromCty(cellVal)
			if err != nil {
				return frame.Frame{}, err
			}
			cells = append(cells, cell)
		}
		if err := out.AppendRow(cells...); err != nil {
			return frame.Frame{}, err
		}
	}
	return out, nil
}

func fromCty(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	switch v.Type() {
	case cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f, nil
	case cty.String:
		return v.AsString(), nil
	case cty.Bool:
		return v.True(), nil
	default:
		return nil, fmt.Errorf("unsupported cell type %s", v.Type().FriendlyName())
	}
}
