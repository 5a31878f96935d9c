// Package discovery scans a project config root and populates the
// identifier registry. A project is three directories of HCL manifests:
//
//	<root>/sources/*.hcl   source "<kind>" "<id>" { ... }
//	<root>/metrics/*.hcl   metric "<id>" { source = ..., compute = ... }
//	<root>/targets/*.hcl   target "<kind>" "<id>" { ... }
//
// Kinds resolve through builder registries populated with the built-in
// source, target, and compute kinds; callers may register more before
// Load.
//
// Discovery is fail-fast: the first manifest that fails to parse,
// decode, or build aborts the whole pass with the offending file path
// attributed, and no partially populated registry is returned.
// Duplicate identifiers within a table are always fatal. Discovery
// performs no I/O against the sources or targets themselves.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"metrify/internal/compute"
	"metrify/internal/metric"
	"metrify/internal/registry"
	"metrify/internal/source"
	"metrify/internal/target"
)

// SourceBuilder constructs a source from its manifest block body.
type SourceBuilder func(id string, body hcl.Body) (metric.Source, error)

// TargetBuilder constructs a target from its manifest block body.
type TargetBuilder func(id string, body hcl.Body) (metric.Target, error)

// Options tune the built-in kind builders.
type Options struct {
	// DefaultStoreDSN backs store targets whose manifest omits a dsn.
	DefaultStoreDSN string
}

// Discovery scans one config root. Create with New, optionally register
// extra kinds, then call Load once.
type Discovery struct {
	root        string
	logger      *slog.Logger
	computes    *compute.Catalog
	sourceKinds map[string]SourceBuilder
	targetKinds map[string]TargetBuilder
}

func New(root string, opts Options, logger *slog.Logger) *Discovery {
	d := &Discovery{
		root:        root,
		logger:      logger,
		computes:    compute.NewCatalog(),
		sourceKinds: make(map[string]SourceBuilder),
		targetKinds: make(map[string]TargetBuilder),
	}

	d.sourceKinds["csv"] = func(id string, body hcl.Body) (metric.Source, error) {
		var cfg csvConfig
		if err := decodeBody(body, &cfg); err != nil {
			return nil, err
		}
		return source.NewCSV(id, cfg.Path), nil
	}
	d.sourceKinds["sql"] = func(id string, body hcl.Body) (metric.Source, error) {
		var cfg sqlConfig
		if err := decodeBody(body, &cfg); err != nil {
			return nil, err
		}
		return source.NewSQL(id, cfg.DSN, cfg.Query, logger), nil
	}
	d.sourceKinds["inline"] = func(id string, body hcl.Body) (metric.Source, error) {
		var cfg inlineConfig
		if err := decodeBody(body, &cfg); err != nil {
			return nil, err
		}
		data, err := cfg.frame()
		if err != nil {
			return nil, err
		}
		return source.NewInline(id, data), nil
	}

	d.targetKinds["store"] = func(id string, body hcl.Body) (metric.Target, error) {
		var cfg storeConfig
		if err := decodeBody(body, &cfg); err != nil {
			return nil, err
		}
		dsn := cfg.DSN
		if dsn == "" {
			dsn = opts.DefaultStoreDSN
		}
		return target.NewStoreTarget(id, dsn, logger), nil
	}
	d.targetKinds["amqp"] = func(id string, body hcl.Body) (metric.Target, error) {
		var cfg amqpConfig
		if err := decodeBody(body, &cfg); err != nil {
			return nil, err
		}
		return target.NewAMQPTarget(id, cfg.URL, cfg.Queue, logger), nil
	}

	return d
}

// Computes exposes the compute catalog so callers can register project
// specific kinds before Load.
func (d *Discovery) Computes() *compute.Catalog {
	return d.computes
}

// RegisterSourceKind adds a source kind; registering a taken name fails.
func (d *Discovery) RegisterSourceKind(kind string, b SourceBuilder) error {
	if _, exists := d.sourceKinds[kind]; exists {
		return fmt.Errorf("source kind already registered: %s", kind)
	}
	d.sourceKinds[kind] = b
	return nil
}

// RegisterTargetKind adds a target kind; registering a taken name fails.
func (d *Discovery) RegisterTargetKind(kind string, b TargetBuilder) error {
	if _, exists := d.targetKinds[kind]; exists {
		return fmt.Errorf("target kind already registered: %s", kind)
	}
	d.targetKinds[kind] = b
	return nil
}

// Load scans the three manifest groups and returns a fully populated
// registry, or the first error encountered.
func (d *Discovery) Load(ctx context.Context) (*registry.Registry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(d.root)
	if err != nil {
		return nil, fmt.Errorf("config root %s: %w", d.root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("config root %s is not a directory", d.root)
	}

	reg := registry.New()
	parser := hclparse.NewParser()

	if err := d.loadSources(parser, reg); err != nil {
		return nil, err
	}
	if err := d.loadMetrics(parser, reg); err != nil {
		return nil, err
	}
	if err := d.loadTargets(parser, reg); err != nil {
		return nil, err
	}

	d.logger.Info("project discovered",
		"config_root", d.root,
		"sources", reg.Sources.Len(),
		"metrics", reg.Metrics.Len(),
		"targets", reg.Targets.Len())
	return reg, nil
}

// manifestFiles lists the .hcl files of one group directory, sorted.
// A missing group directory is not an error: the group is just empty.
func (d *Discovery) manifestFiles(group string) ([]string, error) {
	dir := filepath.Join(d.root, group)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.hcl"))
	if err != nil {
		return nil, fmt.Errorf("scan %s manifests: %w", group, err)
	}
	sort.Strings(files)
	return files, nil
}

func (d *Discovery) loadSources(parser *hclparse.Parser, reg *registry.Registry) error {
	files, err := d.manifestFiles("sources")
	if err != nil {
		return err
	}
	for _, path := range files {
		var file sourceFile
		if err := parseManifest(parser, path, &file); err != nil {
			return err
		}
		for _, block := range file.Sources {
			builder, ok := d.sourceKinds[block.Kind]
			if !ok {
				return fmt.Errorf("%s: unknown source kind %q", path, block.Kind)
			}
			src, err := builder(block.ID, block.Body)
			if err != nil {
				return fmt.Errorf("%s: source %q: %w", path, block.ID, err)
			}
			if err := reg.Sources.Register(block.ID, src); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
	}
	return nil
}

func (d *Discovery) loadMetrics(parser *hclparse.Parser, reg *registry.Registry) error {
	files, err := d.manifestFiles("metrics")
	if err != nil {
		return err
	}
	for _, path := range files {
		var file metricFile
		if err := parseManifest(parser, path, &file); err != nil {
			return err
		}
		for _, block := range file.Metrics {
			spec, err := d.buildMetric(block)
			if err != nil {
				return fmt.Errorf("%s: metric %q: %w", path, block.ID, err)
			}
			if err := reg.Metrics.Register(block.ID, spec); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
	}
	return nil
}

func (d *Discovery) buildMetric(block metricBlock) (metric.Spec, error) {
	if block.Source == "" {
		return metric.Spec{}, fmt.Errorf("source is required")
	}
	fn, err := d.computes.Build(block.Compute, compute.Params{Columns: block.Columns})
	if err != nil {
		return metric.Spec{}, err
	}
	return metric.Spec{
		MetricID:        block.ID,
		SourceID:        block.Source,
		Compute:         fn,
		RequiredColumns: block.RequiredColumns,
		Description:     block.Description,
		Schedule:        block.Schedule,
	}, nil
}

func (d *Discovery) loadTargets(parser *hclparse.Parser, reg *registry.Registry) error {
	files, err := d.manifestFiles("targets")
	if err != nil {
		return err
	}
	for _, path := range files {
		var file targetFile
		if err := parseManifest(parser, path, &file); err != nil {
			return err
		}
		for _, block := range file.Targets {
			builder, ok := d.targetKinds[block.Kind]
			if !ok {
				return fmt.Errorf("%s: unknown target kind %q", path, block.Kind)
			}
			tgt, err := builder(block.ID, block.Body)
			if err != nil {
				return fmt.Errorf("%s: target %q: %w", path, block.ID, err)
			}
			if err := reg.Targets.Register(block.ID, tgt); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
	}
	return nil
}

// parseManifest parses one HCL file into the given file struct.
func parseManifest(parser *hclparse.Parser, path string, into any) error {
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("parse manifest %s: %w", path, diags)
	}
	if diags := gohcl.DecodeBody(hclFile.Body, nil, into); diags.HasErrors() {
		return fmt.Errorf("decode manifest %s: %w", path, diags)
	}
	return nil
}

func decodeBody(body hcl.Body, into any) error {
	if diags := gohcl.DecodeBody(body, nil, into); diags.HasErrors() {
		return fmt.Errorf("decode block: %w", diags)
	}
	return nil
}
