// Package catalog implements the optional catalog-registration
// collaborator: successful runs push their persisted rows to an
// external data catalog over HTTP. Registration is best-effort and
// feature-flagged; the orchestrator downgrades failures to warnings.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"metrify/internal/frame"
	"metrify/internal/store"
)

const defaultHTTPTimeout = 4 * time.Second

// Client posts metric registrations to a catalog endpoint.
type Client struct {
	url    string
	logger *slog.Logger
	client *http.Client
}

// entry is the wire shape of one registered metric value.
type entry struct {
	DatasetID   string         `json:"datasetId"`
	MetricName  string         `json:"metricName"`
	MetricValue float64        `json:"metricValue"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func New(url string, logger *slog.Logger) *Client {
	return &Client{
		url:    url,
		logger: logger,
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// Register posts the persisted rows of one successful run. Rows without
// the standard name/value columns are skipped rather than failing the
// registration.
func (c *Client) Register(ctx context.Context, metricID, sourceID string, rows frame.Frame) error {
	nameIdx := rows.ColumnIndex("metric_name")
	valueIdx := rows.ColumnIndex("metric_value")
	if nameIdx < 0 || valueIdx < 0 {
		return nil
	}

	datasetID := store.DatasetID(metricID, sourceID)
	entries := make([]entry, 0, rows.NumRows())
	for _, row := range rows.Rows {
		value, ok := frame.Float(row[valueIdx])
		if !ok {
			continue
		}
		entries = append(entries, entry{
			DatasetID:   datasetID,
			MetricName:  fmt.Sprintf("%v", row[nameIdx]),
			MetricValue: value,
			Metadata: map[string]any{
				"source":    "metrify",
				"metric_id": metricID,
				"source_id": sourceID,
			},
		})
	}
	if len(entries) == 0 {
		return nil
	}

	body, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal catalog entries: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post catalog entries: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("catalog responded %s", resp.Status)
	}

	c.logger.Debug("metrics registered in catalog",
		"dataset_id", datasetID, "entries", len(entries))
	return nil
}
