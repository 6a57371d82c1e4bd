package statement

import (
	"context"
	"sync/atomic"

	"github.com/aryankumar/shardexec/internal/event"
	"github.com/aryankumar/shardexec/internal/execctx"
	"github.com/aryankumar/shardexec/internal/executor"
)

// PreparedUnit is a unit executed through a precompiled handle. Event is the
// tracker attached when the unit was routed; it may be nil, in which case the
// unit posts no events.
type PreparedUnit struct {
	Unit
	Handle       PreparedHandle
	Event        *event.Tracker
	BatchIndexes []executor.BatchIndex
}

// NewPreparedUnit attaches a tracker whose kind follows typ.
func NewPreparedUnit(u Unit, handle PreparedHandle, typ Type) PreparedUnit {
	return PreparedUnit{
		Unit:   u,
		Handle: handle,
		Event:  event.NewTracker(u.Backend, u.SQL, typ.EventKind()),
	}
}

// PreparedExecutor runs one logical statement through precompiled handles.
//
// Every attached event is posted once, in its START state, before dispatch.
// After each physical call only the SUCCESS or FAILURE record is posted.
// The first operation drives the attached trackers; every later operation
// drives renewed ones, so each operation posts a full lifecycle of its own.
type PreparedExecutor struct {
	engine  *executor.Engine
	units   []PreparedUnit
	opts    options
	claimed atomic.Bool
}

// NewPreparedExecutor creates an executor over prepared units.
func NewPreparedExecutor(engine *executor.Engine, units []PreparedUnit, opts ...Option) *PreparedExecutor {
	return &PreparedExecutor{
		engine: engine,
		units:  units,
		opts:   buildOptions(opts),
	}
}

// Query runs every handle's query and returns the row sets in unit order.
func (e *PreparedExecutor) Query(ctx context.Context) ([]RowSet, error) {
	h := e.opts.timer.Start("prepared.query")
	defer e.opts.timer.Stop(h)
	units := e.begin()

	snap := execctx.Capture(ctx)
	return executor.Execute(ctx, e.engine, units, func(ctx context.Context, u PreparedUnit) (RowSet, error) {
		return run(ctx, &e.opts, snap, physicalOf(u), u.Handle.Query)
	})
}

// Update runs every handle's update and returns the summed update count.
func (e *PreparedExecutor) Update(ctx context.Context) (int64, error) {
	h := e.opts.timer.Start("prepared.update")
	defer e.opts.timer.Stop(h)
	units := e.begin()

	snap := execctx.Capture(ctx)
	return executor.ExecuteMerge(ctx, e.engine, units, func(ctx context.Context, u PreparedUnit) (int64, error) {
		return run(ctx, &e.opts, snap, physicalOf(u), u.Handle.Update)
	}, executor.MergeSum)
}

// Execute runs every handle and reports whether the first one produced a row set.
func (e *PreparedExecutor) Execute(ctx context.Context) (bool, error) {
	h := e.opts.timer.Start("prepared.execute")
	defer e.opts.timer.Stop(h)
	units := e.begin()

	snap := execctx.Capture(ctx)
	return executor.ExecuteMerge(ctx, e.engine, units, func(ctx context.Context, u PreparedUnit) (bool, error) {
		return run(ctx, &e.opts, snap, physicalOf(u), u.Handle.Execute)
	}, executor.MergeFirstOrFalse)
}

// ExecuteBatch runs every handle's batch and reassembles the per-statement
// counts into a slice of batchSize entries.
func (e *PreparedExecutor) ExecuteBatch(ctx context.Context, batchSize int) ([]int64, error) {
	indexes := make([][]executor.BatchIndex, len(e.units))
	for i, u := range e.units {
		indexes[i] = u.BatchIndexes
	}
	if err := validateBatch(batchSize, indexes); err != nil {
		return nil, err
	}

	h := e.opts.timer.Start("prepared.batch")
	defer e.opts.timer.Stop(h)
	units := e.begin()

	snap := execctx.Capture(ctx)
	return executor.ExecuteMerge(ctx, e.engine, units, func(ctx context.Context, u PreparedUnit) ([]int64, error) {
		return run(ctx, &e.opts, snap, physicalOf(u), u.Handle.ExecBatch)
	}, executor.MergeBatch(batchSize, indexes))
}

// begin returns the units of one operation and posts the START record of each
// attached tracker.
func (e *PreparedExecutor) begin() []PreparedUnit {
	units := e.units
	if e.claimed.Swap(true) {
		units = make([]PreparedUnit, len(e.units))
		copy(units, e.units)
		for i := range units {
			if units[i].Event != nil {
				units[i].Event = units[i].Event.Renew()
			}
		}
	}

	for _, u := range units {
		if u.Event != nil {
			e.opts.post(u.Event.Start())
		}
	}
	return units
}

func physicalOf(u PreparedUnit) physicalCall {
	return physicalCall{
		unit:    u.Unit,
		lock:    u.Handle.Conn(),
		tracker: u.Event,
	}
}
