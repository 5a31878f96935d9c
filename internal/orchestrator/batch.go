package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"metrify/internal/metric"
)

// Selection specifies which metrics a batch should run. Precedence:
// explicit MetricID, then All, then Patterns.
type Selection struct {
	MetricID string
	All      bool
	Patterns []string
}

// BatchFailure pairs a metric id with the error that failed its run.
type BatchFailure struct {
	MetricID string
	Err      error
}

// BatchResult aggregates per-metric outcomes of one batch.
type BatchResult struct {
	TargetID  string
	Attempted int
	Succeeded int
	Failures  []BatchFailure
	Records   []metric.RunRecord
}

// Err returns nil only when every resolved metric succeeded.
func (r BatchResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	ids := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		ids = append(ids, f.MetricID)
	}
	return fmt.Errorf("%d of %d metric runs failed: %s",
		len(r.Failures), r.Attempted, strings.Join(ids, ", "))
}

// Resolve expands a selection into metric ids in stable registry order.
// Resolution failures (unknown explicit id, pattern matching nothing,
// empty selection) are usage errors: they abort before any run.
func (r *Runner) Resolve(sel Selection) ([]string, error) {
	if sel.MetricID != "" {
		if _, err := r.reg.Metrics.Lookup(sel.MetricID); err != nil {
			return nil, err
		}
		return []string{sel.MetricID}, nil
	}

	if sel.All {
		return r.reg.Metrics.IDs(), nil
	}

	if len(sel.Patterns) == 0 {
		return nil, fmt.Errorf("empty selection: give a metric id, patterns, or all")
	}

	registered := r.reg.Metrics.IDs()
	seen := make(map[string]struct{})
	var resolved []string
	for _, pattern := range sel.Patterns {
		matchedAny := false
		for _, id := range registered {
			ok, err := doublestar.Match(pattern, id)
			if err != nil {
				return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
			}
			if !ok {
				continue
			}
			matchedAny = true
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			resolved = append(resolved, id)
		}
		if !matchedAny {
			return nil, &UnmatchedPatternError{Pattern: pattern}
		}
	}
	return resolved, nil
}

// RunBatch resolves the selection and runs each metric sequentially
// against the target. One metric's failure never aborts the batch: it
// is recorded and execution continues. The returned error is non-nil
// only for usage errors that abort before any metric runs.
func (r *Runner) RunBatch(ctx context.Context, sel Selection, targetID string) (BatchResult, error) {
	ids, err := r.Resolve(sel)
	if err != nil {
		return BatchResult{}, err
	}

	result := BatchResult{TargetID: targetID}
	for _, id := range ids {
		rec, runErr := r.Run(ctx, id, targetID)
		result.Attempted++
		result.Records = append(result.Records, rec)
		if runErr != nil {
			result.Failures = append(result.Failures, BatchFailure{MetricID: id, Err: runErr})
			continue
		}
		result.Succeeded++
	}

	r.logger.Info("batch finished",
		"target_id", targetID,
		"attempted", result.Attempted,
		"succeeded", result.Succeeded,
		"failed", len(result.Failures))
	return result, nil
}
