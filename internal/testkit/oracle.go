package testkit

import (
	"context"
	"sync"
	"sync/atomic"

	"goglm/domain/core"
	"goglm/domain/dataset"
	"goglm/ports"
)

// CountingModel wraps a fitted model and counts predict traffic. Fail, when set, is returned
// by every Predict call instead of delegating.
type CountingModel struct {
	ports.FittedModel

	calls atomic.Int64
	rows  atomic.Int64

	mu   sync.Mutex
	fail error
}

// NewCountingModel wraps m
func NewCountingModel(m ports.FittedModel) *CountingModel {
	return &CountingModel{FittedModel: m}
}

// Predict records the batch and delegates
func (c *CountingModel) Predict(ctx context.Context, rows []dataset.Row) ([]float64, error) {
	c.calls.Add(1)
	c.rows.Add(int64(len(rows)))
	c.mu.Lock()
	fail := c.fail
	c.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return c.FittedModel.Predict(ctx, rows)
}

// Calls is the number of Predict calls so far
func (c *CountingModel) Calls() int {
	return int(c.calls.Load())
}

// Rows is the number of rows scored so far
func (c *CountingModel) Rows() int {
	return int(c.rows.Load())
}

// FailWith makes subsequent Predict calls return err; nil restores delegation
func (c *CountingModel) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = err
}

// Reset zeroes the counters
func (c *CountingModel) Reset() {
	c.calls.Store(0)
	c.rows.Store(0)
}

// StaticRows serves fixed train and test frames
type StaticRows struct {
	Train *dataset.Frame
	Test  *dataset.Frame
}

var _ ports.RowProvider = StaticRows{}

func (s StaticRows) TrainRows(context.Context) (*dataset.Frame, error) {
	if s.Train == nil {
		return nil, core.ErrDatasetNotFound
	}
	return s.Train, nil
}

func (s StaticRows) TestRows(context.Context) (*dataset.Frame, error) {
	if s.Test == nil {
		return nil, core.ErrDatasetNotFound
	}
	return s.Test, nil
}

// Rows returns the provider for a portfolio
func (p *Portfolio) Rows() StaticRows {
	return StaticRows{Train: p.Train, Test: p.Test}
}
