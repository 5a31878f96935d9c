// Package registry holds the identifier tables populated by project
// discovery: sources, metric specs, and targets, each keyed by a unique
// string identifier.
//
// A Registry is built once per process and passed explicitly to the
// orchestrator and the CLI. After discovery it is read-only, so
// concurrent readers need no locking.
package registry

import (
	"fmt"
	"iter"
	"sort"

	"metrify/internal/metric"
)

// DuplicateIDError reports an attempt to register an identifier that is
// already present in a table.
type DuplicateIDError struct {
	Kind string
	ID   string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate %s id %q", e.Kind, e.ID)
}

// UnknownIDError reports a lookup for an identifier not present in a
// table.
type UnknownIDError struct {
	Kind string
	ID   string
}

func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("unknown %s id %q", e.Kind, e.ID)
}

// Table is an insert-once mapping of identifiers to objects.
// Register never overwrites an existing entry.
type Table[T any] struct {
	kind    string
	entries map[string]T
}

// NewTable returns an empty table. The kind names the table in errors
// ("source", "metric", "target").
func NewTable[T any](kind string) *Table[T] {
	return &Table[T]{kind: kind, entries: make(map[string]T)}
}

// Register adds an entry, failing with *DuplicateIDError if the id is
// taken. The first registration always wins.
func (t *Table[T]) Register(id string, v T) error {
	if _, exists := t.entries[id]; exists {
		return &DuplicateIDError{Kind: t.kind, ID: id}
	}
	t.entries[id] = v
	return nil
}

// Lookup returns the entry for id, failing with *UnknownIDError when
// absent. A failed lookup never mutates the table.
func (t *Table[T]) Lookup(id string) (T, error) {
	v, ok := t.entries[id]
	if !ok {
		var zero T
		return zero, &UnknownIDError{Kind: t.kind, ID: id}
	}
	return v, nil
}

// IDs returns the registered identifiers in sorted order.
func (t *Table[T]) IDs() []string {
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All iterates (id, entry) pairs in sorted id order. The sequence is
// restartable and exposes no way to mutate the table.
func (t *Table[T]) All() iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		for _, id := range t.IDs() {
			if !yield(id, t.entries[id]) {
				return
			}
		}
	}
}

// Len returns the number of registered entries.
func (t *Table[T]) Len() int {
	return len(t.entries)
}

// Registry bundles the three identifier tables.
type Registry struct {
	Sources *Table[metric.Source]
	Metrics *Table[metric.Spec]
	Targets *Table[metric.Target]
}

// New returns a registry with empty tables.
func New() *Registry {
	return &Registry{
		Sources: NewTable[metric.Source]("source"),
		Metrics: NewTable[metric.Spec]("metric"),
		Targets: NewTable[metric.Target]("target"),
	}
}
