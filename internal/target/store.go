// Package target provides the built-in target kinds available to
// project manifests: the default sql-backed metric store and a
// write-only amqp queue publisher.
package target

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmoiron/sqlx"

	"metrify/internal/db"
	"metrify/internal/frame"
	"metrify/internal/metric"
	"metrify/internal/store"
)

// StoreTarget persists metric rows in the default append-only store.
// Save semantics are append: re-running a metric duplicates rows, by
// design of the store contract.
//
// The database connection opens lazily on first use so that discovery
// stays free of target I/O.
type StoreTarget struct {
	id     string
	dsn    string
	logger *slog.Logger

	once    sync.Once
	connErr error
	conn    *sqlx.DB
	store   *store.Store
}

func NewStoreTarget(id, dsn string, logger *slog.Logger) *StoreTarget {
	return &StoreTarget{id: id, dsn: dsn, logger: logger}
}

func (t *StoreTarget) ID() string { return t.id }

func (t *StoreTarget) open(ctx context.Context) (*store.Store, error) {
	t.once.Do(func() {
		conn, err := db.Connect(ctx, t.dsn, t.logger)
		if err != nil {
			t.connErr = fmt.Errorf("store target %s: %w", t.id, err)
			return
		}
		st := store.New(conn, t.logger)
		if err := st.EnsureSchema(ctx); err != nil {
			_ = conn.Close()
			t.connErr = fmt.Errorf("store target %s: %w", t.id, err)
			return
		}
		t.conn = conn
		t.store = st
	})
	return t.store, t.connErr
}

// LoadMetrics returns the persisted rows for the pair, newest first.
// An empty frame means nothing has been persisted yet.
func (t *StoreTarget) LoadMetrics(ctx context.Context, metricID, sourceID string) (frame.Frame, error) {
	st, err := t.open(ctx)
	if err != nil {
		return frame.Frame{}, err
	}
	return st.MetricsFor(ctx, metricID, sourceID)
}

// SaveMetrics appends the computed rows for the pair.
func (t *StoreTarget) SaveMetrics(ctx context.Context, metricID, sourceID string, rows frame.Frame) error {
	st, err := t.open(ctx)
	if err != nil {
		return err
	}
	if _, err := st.RecordRows(ctx, metricID, sourceID, rows); err != nil {
		return fmt.Errorf("store target %s: %w", t.id, err)
	}
	return nil
}

// Store exposes the underlying metric store for inspection tooling.
func (t *StoreTarget) Store(ctx context.Context) (*store.Store, error) {
	return t.open(ctx)
}

// Close releases the database connection if one was opened.
func (t *StoreTarget) Close() error {
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

var _ metric.Target = (*StoreTarget)(nil)
