// Package stats computes aggregate statistics over the stored task set.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/seantiz/sisyphus/internal/model"
	"github.com/seantiz/sisyphus/internal/store"
)

// Accumulator folds tasks into running counters. The zero value is ready to use.
type Accumulator struct {
	total, pending, running, finished int
	types                             map[string]int

	runtimeSum, e2eSum, waitSum float64
	runtimeN, e2eN, waitN       int
}

// Add folds one task into the accumulator.
func (a *Accumulator) Add(t *model.Task) {
	if a.types == nil {
		a.types = make(map[string]int)
	}

	a.total++
	switch t.Status {
	case model.StatusPending:
		a.pending++
	case model.StatusRunning:
		a.running++
	case model.StatusFinished:
		a.finished++
	}
	a.types[string(t.Type)]++

	if d, ok := t.Runtime(); ok {
		a.runtimeSum += millis(d)
		a.runtimeN++
	}
	if d, ok := t.E2ETime(); ok {
		a.e2eSum += millis(d)
		a.e2eN++
	}
	if d, ok := t.WaitTime(); ok {
		a.waitSum += millis(d)
		a.waitN++
	}
}

// Stats returns the aggregate. Averages are taken only over tasks for which the
// duration is defined, and are zero when there are none.
func (a *Accumulator) Stats() *model.TasksStats {
	types := make(map[string]int, len(a.types))
	for k, v := range a.types {
		types[k] = v
	}
	return &model.TasksStats{
		Total:             a.total,
		Pending:           a.pending,
		Running:           a.running,
		Finished:          a.finished,
		Types:             types,
		AvgRuntimeMillis:  average(a.runtimeSum, a.runtimeN),
		AvgE2ETimeMillis:  average(a.e2eSum, a.e2eN),
		AvgWaitTimeMillis: average(a.waitSum, a.waitN),
	}
}

// Aggregator computes TasksStats from a store.
type Aggregator struct {
	store store.Store
}

// NewAggregator creates an aggregator reading from s.
func NewAggregator(s store.Store) *Aggregator {
	return &Aggregator{store: s}
}

// Compute scans every stored task once and returns the aggregate.
func (g *Aggregator) Compute(ctx context.Context) (*model.TasksStats, error) {
	var acc Accumulator
	err := g.store.ForEachTask(ctx, func(t *model.Task) error {
		acc.Add(t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("compute task stats: %w", err)
	}
	return acc.Stats(), nil
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func average(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
