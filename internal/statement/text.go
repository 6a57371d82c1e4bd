package statement

import (
	"context"
	"fmt"
	"strings"

	"github.com/aryankumar/shardexec/internal/event"
	"github.com/aryankumar/shardexec/internal/execctx"
	"github.com/aryankumar/shardexec/internal/executor"
)

// TextUnit is a unit executed as ad-hoc command text on a shared connection.
// Batch and BatchIndexes are only used by ExecuteBatch.
type TextUnit struct {
	Unit
	Conn         Connection
	Batch        []string
	BatchIndexes []executor.BatchIndex
}

// TextExecutor runs one logical statement as ad-hoc text on every unit's
// connection. Each unit posts a START event before its call and a SUCCESS or
// FAILURE event after it.
type TextExecutor struct {
	engine *executor.Engine
	typ    Type
	units  []TextUnit
	opts   options
}

// NewTextExecutor creates an executor for units routed from one logical
// statement of type typ.
func NewTextExecutor(engine *executor.Engine, typ Type, units []TextUnit, opts ...Option) *TextExecutor {
	return &TextExecutor{
		engine: engine,
		typ:    typ,
		units:  units,
		opts:   buildOptions(opts),
	}
}

// Query runs the query on every unit and returns the row sets in unit order.
// A suppressed failure leaves a nil RowSet in its slot.
func (e *TextExecutor) Query(ctx context.Context) ([]RowSet, error) {
	h := e.opts.timer.Start("statement.query")
	defer e.opts.timer.Stop(h)

	snap := execctx.Capture(ctx)
	return executor.Execute(ctx, e.engine, e.units, func(ctx context.Context, u TextUnit) (RowSet, error) {
		return run(ctx, &e.opts, snap, e.physical(u.Unit, u.Conn), func(ctx context.Context) (RowSet, error) {
			return u.Conn.Query(ctx, u.SQL)
		})
	})
}

// Update runs the statement on every unit and returns the summed update count.
func (e *TextExecutor) Update(ctx context.Context) (int64, error) {
	return e.update(ctx, DefaultKeys())
}

// UpdateAutoKeys is Update with a generated-keys flag.
func (e *TextExecutor) UpdateAutoKeys(ctx context.Context, flag int) (int64, error) {
	return e.update(ctx, AutoKeys(flag))
}

// UpdateColumnIndexes is Update returning generated values of the given columns.
func (e *TextExecutor) UpdateColumnIndexes(ctx context.Context, indexes []int) (int64, error) {
	return e.update(ctx, ColumnIndexes(indexes))
}

// UpdateColumnNames is Update returning generated values of the named columns.
func (e *TextExecutor) UpdateColumnNames(ctx context.Context, names []string) (int64, error) {
	return e.update(ctx, ColumnNames(names))
}

func (e *TextExecutor) update(ctx context.Context, keys GeneratedKeys) (int64, error) {
	h := e.opts.timer.Start("statement.update")
	defer e.opts.timer.Stop(h)

	snap := execctx.Capture(ctx)
	return executor.ExecuteMerge(ctx, e.engine, e.units, func(ctx context.Context, u TextUnit) (int64, error) {
		return run(ctx, &e.opts, snap, e.physical(u.Unit, u.Conn), func(ctx context.Context) (int64, error) {
			return u.Conn.Update(ctx, u.SQL, keys)
		})
	}, executor.MergeSum)
}

// Execute runs the statement on every unit. It reports whether the first unit
// produced a row set.
func (e *TextExecutor) Execute(ctx context.Context) (bool, error) {
	return e.execute(ctx, DefaultKeys())
}

// ExecuteAutoKeys is Execute with a generated-keys flag.
func (e *TextExecutor) ExecuteAutoKeys(ctx context.Context, flag int) (bool, error) {
	return e.execute(ctx, AutoKeys(flag))
}

// ExecuteColumnIndexes is Execute returning generated values of the given columns.
func (e *TextExecutor) ExecuteColumnIndexes(ctx context.Context, indexes []int) (bool, error) {
	return e.execute(ctx, ColumnIndexes(indexes))
}

// ExecuteColumnNames is Execute returning generated values of the named columns.
func (e *TextExecutor) ExecuteColumnNames(ctx context.Context, names []string) (bool, error) {
	return e.execute(ctx, ColumnNames(names))
}

func (e *TextExecutor) execute(ctx context.Context, keys GeneratedKeys) (bool, error) {
	h := e.opts.timer.Start("statement.execute")
	defer e.opts.timer.Stop(h)

	snap := execctx.Capture(ctx)
	return executor.ExecuteMerge(ctx, e.engine, e.units, func(ctx context.Context, u TextUnit) (bool, error) {
		return run(ctx, &e.opts, snap, e.physical(u.Unit, u.Conn), func(ctx context.Context) (bool, error) {
			return u.Conn.Execute(ctx, u.SQL, keys)
		})
	}, executor.MergeFirstOrFalse)
}

// ExecuteBatch sends every unit's Batch to its connection and reassembles the
// per-statement counts into a slice of batchSize entries.
func (e *TextExecutor) ExecuteBatch(ctx context.Context, batchSize int) ([]int64, error) {
	indexes := make([][]executor.BatchIndex, len(e.units))
	for i, u := range e.units {
		indexes[i] = u.BatchIndexes
	}
	if err := validateBatch(batchSize, indexes); err != nil {
		return nil, err
	}

	h := e.opts.timer.Start("statement.batch")
	defer e.opts.timer.Stop(h)

	snap := execctx.Capture(ctx)
	return executor.ExecuteMerge(ctx, e.engine, e.units, func(ctx context.Context, u TextUnit) ([]int64, error) {
		unit := Unit{Backend: u.Backend, SQL: batchText(u)}
		return run(ctx, &e.opts, snap, e.physical(unit, u.Conn), func(ctx context.Context) ([]int64, error) {
			return u.Conn.ExecBatch(ctx, u.Batch)
		})
	}, executor.MergeBatch(batchSize, indexes))
}

func (e *TextExecutor) physical(u Unit, conn Connection) physicalCall {
	return physicalCall{
		unit:     u,
		lock:     conn,
		tracker:  event.NewTracker(u.Backend, u.SQL, e.typ.EventKind()),
		announce: true,
	}
}

func batchText(u TextUnit) string {
	if u.SQL != "" {
		return u.SQL
	}
	return strings.Join(u.Batch, "; ")
}

// validateBatch rejects routing that would index outside the logical batch.
func validateBatch(batchSize int, indexes [][]executor.BatchIndex) error {
	if batchSize < 0 {
		return fmt.Errorf("invalid batch size %d", batchSize)
	}
	for i, unitIndexes := range indexes {
		for _, idx := range unitIndexes {
			if idx.Global < 0 || idx.Global >= batchSize || idx.Local < 0 {
				return fmt.Errorf("unit %d: batch index %+v out of range for batch size %d", i, idx, batchSize)
			}
		}
	}
	return nil
}
