package source

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"metrify/internal/frame"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestCSVLoad(t *testing.T) {
	path := writeCSV(t, "region,revenue,note\neast,100,ok\nwest,,late\n")
	src := NewCSV("orders", path)

	if src.ID() != "orders" {
		t.Fatalf("ID() = %q, want orders", src.ID())
	}

	got, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !reflect.DeepEqual(got.Columns, []string{"region", "revenue", "note"}) {
		t.Fatalf("columns = %v", got.Columns)
	}
	if got.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2", got.NumRows())
	}

	// Numeric cells coerce, empty cells become nil, text stays text.
	if v, _ := got.Value(0, "revenue"); v != 100.0 {
		t.Fatalf("revenue = %#v, want 100.0", v)
	}
	if v, _ := got.Value(1, "revenue"); v != nil {
		t.Fatalf("empty cell = %#v, want nil", v)
	}
	if v, _ := got.Value(0, "region"); v != "east" {
		t.Fatalf("region = %#v, want east", v)
	}
}

func TestCSVLoadMissingFile(t *testing.T) {
	src := NewCSV("orders", filepath.Join(t.TempDir(), "absent.csv"))
	if _, err := src.Load(context.Background()); err == nil {
		t.Fatal("Load() of missing file should fail")
	}
}

func TestCSVLoadEmptyFile(t *testing.T) {
	src := NewCSV("orders", writeCSV(t, ""))
	if _, err := src.Load(context.Background()); err == nil {
		t.Fatal("Load() of headerless file should fail")
	}
}

func TestInlineLoad(t *testing.T) {
	data := frame.New("a")
	_ = data.AppendRow(1.0)
	src := NewInline("literal", data)

	got, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.NumRows() != 1 || !got.HasColumn("a") {
		t.Fatalf("Load() = %#v", got)
	}
}
