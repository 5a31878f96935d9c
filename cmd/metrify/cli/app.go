package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"metrify/internal/catalog"
	"metrify/internal/config"
	"metrify/internal/db"
	"metrify/internal/discovery"
	"metrify/internal/logger"
	"metrify/internal/orchestrator"
	"metrify/internal/registry"
	"metrify/internal/store"
	"metrify/internal/target"
)

// app holds everything a subcommand needs after discovery has run.
// Build it with newApp (registry only) or newRunnerApp (registry plus
// orchestrator, trace log, and catalog).
type app struct {
	cfg    config.Config
	logger *slog.Logger
	reg    *registry.Registry
	runner *orchestrator.Runner
	trace  *store.TraceLog

	traceConn *sqlx.DB
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if root, _ := cmd.Flags().GetString("config-root"); root != "" {
		cfg.ConfigRoot = root
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	if jsonLogs, _ := cmd.Flags().GetBool("json-logs"); jsonLogs {
		return logger.New(cfg.LogLevel)
	}
	return logger.NewText(cfg.LogLevel)
}

// newApp runs discovery and returns the populated registry.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logg := newLogger(cmd, cfg)

	disc := discovery.New(cfg.ConfigRoot, discovery.Options{DefaultStoreDSN: cfg.DatabaseURL}, logg)
	reg, err := disc.Load(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("discover configuration: %w", err)
	}

	return &app{cfg: cfg, logger: logg, reg: reg}, nil
}

// newRunnerApp extends newApp with a run orchestrator wired to the
// trace log and, when enabled, the catalog.
func newRunnerApp(cmd *cobra.Command) (*app, error) {
	a, err := newApp(cmd)
	if err != nil {
		return nil, err
	}

	runner := orchestrator.NewRunner(a.reg, a.logger)

	traceConn, err := db.Connect(cmd.Context(), a.cfg.TraceDatabaseURL, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect trace database: %w", err)
	}
	trace := store.NewTraceLog(traceConn, a.logger)
	if err := trace.EnsureSchema(cmd.Context()); err != nil {
		traceConn.Close()
		return nil, fmt.Errorf("ensure trace schema: %w", err)
	}
	runner.SetTraceSink(trace)

	if a.cfg.CatalogEnabled {
		runner.SetCatalogSink(catalog.New(a.cfg.CatalogURL, a.logger))
	}

	a.runner = runner
	a.trace = trace
	a.traceConn = traceConn
	return a, nil
}

// metricsStore returns the metric store for inspection surfaces. When
// the project registers a store target, its store is borrowed so the
// surfaces read exactly what runs write; otherwise the configured
// metric database is opened directly. The returned closer releases
// only what this call opened.
func (a *app) metricsStore(ctx context.Context) (*store.Store, func(), error) {
	for _, tgt := range a.reg.Targets.All() {
		st, ok := tgt.(*target.StoreTarget)
		if !ok {
			continue
		}
		s, err := st.Store(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("open store target %s: %w", st.ID(), err)
		}
		return s, func() {}, nil
	}

	conn, err := db.Connect(ctx, a.cfg.DatabaseURL, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect metric database: %w", err)
	}
	st := store.New(conn, a.logger)
	if err := st.EnsureSchema(ctx); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("ensure metric schema: %w", err)
	}
	return st, func() { conn.Close() }, nil
}

func (a *app) Close() {
	if a.traceConn != nil {
		a.traceConn.Close()
	}
}
