package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher hands tasks to workers. *Pool is the production implementation.
type Dispatcher interface {
	Submit(ctx context.Context, task Task) error
}

// UnitFunc executes one physical unit.
type UnitFunc[U, R any] func(ctx context.Context, unit U) (R, error)

// MergeFunc reduces the ordered per-unit results of one logical operation.
// It must accept a nil slice.
type MergeFunc[R, M any] func(results []R) M

// Targeted is implemented by units that can name the backend they run against.
type Targeted interface {
	Target() string
}

// Engine fans physical units out to a Dispatcher and joins them back in input order.
type Engine struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewEngine creates an engine over a dispatcher.
func NewEngine(dispatcher Dispatcher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Execute runs fn for every unit and returns the results in input order.
//
// A single unit runs inline on the calling goroutine and never touches the
// dispatcher. Otherwise one task per unit is submitted and Execute blocks until
// every submitted task has finished; siblings are never cancelled. If any unit
// failed, the error of the lowest-indexed failing unit is returned.
func Execute[U, R any](ctx context.Context, e *Engine, units []U, fn UnitFunc[U, R]) ([]R, error) {
	if len(units) == 0 {
		return nil, nil
	}

	startTime := time.Now()
	results, errs := fanOut(ctx, e, units, fn)
	for i, err := range errs {
		if err != nil {
			e.logger.Debug("execution failed",
				"units", len(units),
				"failed_unit", targetOf(units[i], i),
				"duration", time.Since(startTime),
				"error", err)
			return nil, err
		}
	}

	e.logger.Debug("execution completed", "units", len(units), "duration", time.Since(startTime))
	return results, nil
}

// fanOut runs fn for every unit and reports each outcome in its own slot. A
// submission the dispatcher refuses fails only that slot.
func fanOut[U, R any](ctx context.Context, e *Engine, units []U, fn UnitFunc[U, R]) ([]R, []error) {
	results := make([]R, len(units))
	errs := make([]error, len(units))

	if len(units) == 1 {
		results[0], errs[0] = call(ctx, fn, units[0])
		return results, errs
	}

	var wg sync.WaitGroup
	for i, unit := range units {
		wg.Add(1)
		task := Task{
			Target: targetOf(unit, i),
			Run: func() {
				defer wg.Done()
				results[i], errs[i] = call(ctx, fn, unit)
			},
		}
		if err := e.dispatcher.Submit(ctx, task); err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()
	return results, errs
}

// ExecuteMerge runs Execute and reduces the results with merge on the calling
// goroutine. With no units, merge(nil) is returned. merge is not called when
// execution fails.
func ExecuteMerge[U, R, M any](ctx context.Context, e *Engine, units []U, fn UnitFunc[U, R], merge MergeFunc[R, M]) (M, error) {
	results, err := Execute(ctx, e, units, fn)
	if err != nil {
		var zero M
		return zero, err
	}
	return merge(results), nil
}

// Collect runs fn for every unit like Execute but never fails: each unit's
// outcome, error and duration are reported in its own Result, in input order.
// A unit the dispatcher refused carries the refusal as its error.
func Collect[U, R any](ctx context.Context, e *Engine, units []U, fn UnitFunc[U, R]) []Result {
	if len(units) == 0 {
		return nil
	}

	var timed UnitFunc[U, Result] = func(ctx context.Context, unit U) (Result, error) {
		startTime := time.Now()
		data, err := call(ctx, fn, unit)
		return Result{Data: data, Error: err, Duration: time.Since(startTime)}, nil
	}

	results, errs := fanOut(ctx, e, units, timed)
	for i := range results {
		if errs[i] != nil {
			results[i] = Result{Error: errs[i]}
		}
		results[i].Target = targetOf(units[i], i)
	}
	return results
}

func call[U, R any](ctx context.Context, fn UnitFunc[U, R], unit U) (r R, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("execution unit %s panicked: %v", targetOf(unit, -1), rec)
		}
	}()
	return fn(ctx, unit)
}

func targetOf(unit any, index int) string {
	if t, ok := unit.(Targeted); ok {
		return t.Target()
	}
	if index < 0 {
		return "unit"
	}
	return fmt.Sprintf("unit-%d", index)
}
