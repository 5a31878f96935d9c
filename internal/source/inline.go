package source

import (
	"context"

	"metrify/internal/frame"
	"metrify/internal/metric"
)

// Inline serves literal rows declared in the manifest. Useful for demo
// projects and tests.
type Inline struct {
	id   string
	data frame.Frame
}

func NewInline(id string, data frame.Frame) *Inline {
	return &Inline{id: id, data: data}
}

func (s *Inline) ID() string { return s.id }

// Load returns a shallow copy of the declared frame. Compute functions
// treat inputs as read-only, so sharing row slices is acceptable.
func (s *Inline) Load(ctx context.Context) (frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}
	return s.data, nil
}

var _ metric.Source = (*Inline)(nil)
