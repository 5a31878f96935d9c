package cli

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"metrify/internal/config"
	"metrify/internal/registry"
	"metrify/internal/target"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMetricsStoreBorrowsStoreTarget(t *testing.T) {
	logg := discardLogger()
	dsn := "sqlite://" + filepath.Join(t.TempDir(), "metrics.db")

	tgt := target.NewStoreTarget("local", dsn, logg)
	t.Cleanup(func() { tgt.Close() })

	reg := registry.New()
	if err := reg.Targets.Register("local", tgt); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	a := &app{cfg: config.Config{}, logger: logg, reg: reg}
	st, closeStore, err := a.metricsStore(context.Background())
	if err != nil {
		t.Fatalf("metricsStore() error = %v", err)
	}
	defer closeStore()

	want, err := tgt.Store(context.Background())
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if st != want {
		t.Error("metricsStore() did not borrow the registered store target's store")
	}
}

func TestMetricsStoreFallsBackToConfiguredDatabase(t *testing.T) {
	logg := discardLogger()
	cfg := config.Config{DatabaseURL: "sqlite://" + filepath.Join(t.TempDir(), "metrics.db")}

	a := &app{cfg: cfg, logger: logg, reg: registry.New()}
	st, closeStore, err := a.metricsStore(context.Background())
	if err != nil {
		t.Fatalf("metricsStore() error = %v", err)
	}
	defer closeStore()
	if st == nil {
		t.Fatal("metricsStore() returned nil store")
	}
}
