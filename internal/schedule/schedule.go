// Package schedule runs registered metrics on their cron schedules.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"

	"metrify/internal/metric"
	"metrify/internal/registry"
)

// MetricRunner is the subset of the orchestrator the scheduler needs.
type MetricRunner interface {
	Run(ctx context.Context, metricID, targetID string) (metric.RunRecord, error)
}

type JobInfo struct {
	Name     string
	Schedule string
	LastRun  time.Time // zero if never run
	NextRun  time.Time
}

// Watcher drives a gocron scheduler over every registered metric that
// carries a schedule. Metrics without one are skipped.
type Watcher struct {
	scheduler gocron.Scheduler
	runner    MetricRunner
	targetID  string
	logger    *slog.Logger
	jobs      map[string]gocron.Job
	schedules map[string]string
}

func NewWatcher(runner MetricRunner, targetID string, logger *slog.Logger) (*Watcher, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create cron scheduler: %w", err)
	}
	return &Watcher{
		scheduler: s,
		runner:    runner,
		targetID:  targetID,
		logger:    logger,
		jobs:      make(map[string]gocron.Job),
		schedules: make(map[string]string),
	}, nil
}

// Register adds a job per scheduled metric in the registry. Returns the
// number of metrics scheduled. Jobs run in singleton mode so a slow run
// is never overlapped by the next tick.
func (w *Watcher) Register(reg *registry.Registry) (int, error) {
	for id, spec := range reg.Metrics.All() {
		if spec.Schedule == "" {
			continue
		}

		name := "metric:" + id
		j, err := w.scheduler.NewJob(
			gocron.CronJob(spec.Schedule, false),
			gocron.NewTask(w.runMetric, id),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return 0, fmt.Errorf("schedule metric %s: %w", id, err)
		}
		w.jobs[name] = j
		w.schedules[name] = spec.Schedule
		w.logger.Info("metric scheduled", "metric", id, "cron", spec.Schedule)
	}
	return len(w.jobs), nil
}

func (w *Watcher) runMetric(metricID string) {
	rec, err := w.runner.Run(context.Background(), metricID, w.targetID)
	if err != nil {
		w.logger.Error("scheduled run failed", "metric", metricID, "stage", rec.Stage, "err", err)
		return
	}
	w.logger.Info("scheduled run complete", "metric", metricID, "rows", rec.RowsWritten)
}

// ListJobs returns info about all scheduled metrics, sorted by name.
func (w *Watcher) ListJobs() []JobInfo {
	infos := make([]JobInfo, 0, len(w.jobs))
	for name, j := range w.jobs {
		info := JobInfo{
			Name:     name,
			Schedule: w.schedules[name],
		}
		if lr, err := j.LastRun(); err == nil {
			info.LastRun = lr
		}
		if nr, err := j.NextRun(); err == nil {
			info.NextRun = nr
		}
		infos = append(infos, info)
	}
	slices.SortFunc(infos, func(a, b JobInfo) int {
		return strings.Compare(a.Name, b.Name)
	})
	return infos
}

// Run starts the scheduler and blocks until ctx is canceled, then waits
// for in-flight runs to finish.
func (w *Watcher) Run(ctx context.Context) error {
	w.scheduler.Start()
	w.logger.Info("watch started", "jobs", len(w.jobs), "target", w.targetID)
	for _, job := range w.ListJobs() {
		w.logger.Info("job armed", "job", job.Name, "cron", job.Schedule, "next", job.NextRun)
	}

	<-ctx.Done()
	if err := w.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shut down scheduler: %w", err)
	}
	return nil
}
