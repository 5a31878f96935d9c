package schedule

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"metrify/internal/metric"
	"metrify/internal/registry"
)

type fakeRunner struct {
	calls []string
}

func (r *fakeRunner) Run(ctx context.Context, metricID, targetID string) (metric.RunRecord, error) {
	r.calls = append(r.calls, metricID)
	return metric.RunRecord{MetricID: metricID, Outcome: metric.OutcomeSuccess}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegisterSkipsUnscheduledMetrics(t *testing.T) {
	reg := registry.New()
	_ = reg.Metrics.Register("hourly", metric.Spec{MetricID: "hourly", Schedule: "0 * * * *"})
	_ = reg.Metrics.Register("on-demand", metric.Spec{MetricID: "on-demand"})

	w, err := NewWatcher(&fakeRunner{}, "warehouse", testLogger())
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(func() { _ = w.scheduler.Shutdown() })

	registered, err := w.Register(reg)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if registered != 1 {
		t.Fatalf("registered = %d, want 1", registered)
	}

	jobs := w.ListJobs()
	if len(jobs) != 1 || jobs[0].Name != "metric:hourly" || jobs[0].Schedule != "0 * * * *" {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestListJobsSortedByName(t *testing.T) {
	reg := registry.New()
	_ = reg.Metrics.Register("weekly", metric.Spec{MetricID: "weekly", Schedule: "0 0 * * 0"})
	_ = reg.Metrics.Register("hourly", metric.Spec{MetricID: "hourly", Schedule: "0 * * * *"})

	w, err := NewWatcher(&fakeRunner{}, "warehouse", testLogger())
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(func() { _ = w.scheduler.Shutdown() })

	if _, err := w.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	jobs := w.ListJobs()
	if len(jobs) != 2 {
		t.Fatalf("len(jobs) = %d, want 2", len(jobs))
	}
	if jobs[0].Name != "metric:hourly" || jobs[1].Name != "metric:weekly" {
		t.Fatalf("job order = [%s %s], want sorted by name", jobs[0].Name, jobs[1].Name)
	}
}

func TestRunReportsArmedJobsAndStops(t *testing.T) {
	reg := registry.New()
	_ = reg.Metrics.Register("hourly", metric.Spec{MetricID: "hourly", Schedule: "0 * * * *"})

	w, err := NewWatcher(&fakeRunner{}, "warehouse", testLogger())
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if _, err := w.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRegisterRejectsBadCron(t *testing.T) {
	reg := registry.New()
	_ = reg.Metrics.Register("broken", metric.Spec{MetricID: "broken", Schedule: "not a cron"})

	w, err := NewWatcher(&fakeRunner{}, "warehouse", testLogger())
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(func() { _ = w.scheduler.Shutdown() })

	if _, err := w.Register(reg); err == nil {
		t.Fatal("Register() with invalid cron should fail")
	}
}
