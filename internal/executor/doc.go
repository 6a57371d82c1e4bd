// Package executor fans physical execution units out to a shared worker pool
// and joins them back into one logical result.
//
// A logical statement against a sharded data source is split into units, one
// per backend connection. The engine runs them and returns their results in
// input order:
//
//	pool := executor.NewPool(8, logger)
//	defer pool.Shutdown(context.Background())
//	engine := executor.NewEngine(pool, logger)
//
//	counts, err := executor.ExecuteMerge(ctx, engine, units, runUpdate, executor.MergeSum)
//
// # Dispatch
//
// A single unit runs inline on the calling goroutine and never reaches the
// pool. Two or more units are submitted as one task each and the caller blocks
// until every task has finished. A failing unit does not cancel its siblings.
// When several units fail, the error of the lowest-indexed one is returned.
//
// # Merging
//
// Merge policies reduce the ordered per-unit results on the calling goroutine:
//
//   - MergeSum adds update counts
//   - MergeFirstOrFalse keeps the first unit's answer
//   - MergeBatch reassembles per-unit batch counts using BatchIndex routing
//
// # Reporting
//
// Collect runs the same fan-out but reports every unit's outcome in a Result
// instead of failing. The helpers in result.go filter and summarize them.
//
// # Pool lifecycle
//
// A Pool lives for the whole process and is shared by concurrent operations.
// Shutdown stops accepting tasks, drains the queue and waits for the workers
// until its context ends.
package executor
