// Package scaffold writes a starter configuration tree so a new
// project has working manifests to edit instead of a blank directory.
package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
)

const sampleSource = `source "csv" "sample" {
  path = "data/sample.csv"
}
`

const sampleMetric = `metric "sample-row-count" {
  source  = "sample"
  compute = "row_count"

  description = "Row count of the sample dataset."
  schedule    = "0 * * * *"
}
`

const sampleTarget = `target "store" "local" {
}
`

const envExample = `# Where manifests live. Defaults to the current directory.
METRIFY_CONFIG_ROOT=.

# Metric storage. sqlite:// or postgres:// URLs are accepted.
DATABASE_URL=sqlite://metrics.db
TRACE_DATABASE_URL=sqlite://traces.db

LOG_LEVEL=info
HTTP_ADDR=:8080

# Optional downstream catalog.
METRIFY_CATALOG_ENABLED=false
METRIFY_CATALOG_URL=http://localhost:9000/api/catalog
`

type file struct {
	path    string
	content string
}

// Write lays out the starter tree under root. Existing files are left
// alone unless force is set. Returns the paths written.
func Write(root string, force bool) ([]string, error) {
	files := []file{
		{filepath.Join("sources", "sample_source.hcl"), sampleSource},
		{filepath.Join("metrics", "sample_metric.hcl"), sampleMetric},
		{filepath.Join("targets", "sample_target.hcl"), sampleTarget},
		{".env.example", envExample},
	}

	var written []string
	for _, f := range files {
		path := filepath.Join(root, f.path)
		if !force {
			if _, err := os.Stat(path); err == nil {
				continue
			}
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return written, fmt.Errorf("create directory for %s: %w", f.path, err)
		}
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", f.path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
