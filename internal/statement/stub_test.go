package statement

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aryankumar/shardexec/internal/execctx"
	"github.com/aryankumar/shardexec/internal/executor"
)

var errBackend = errors.New("relation does not exist")

// stubConn is an in-memory Connection. It records every call and flags any
// overlap between calls, which would mean the lock was not held.
type stubConn struct {
	sync.Mutex

	name    string
	fail    bool
	delay   time.Duration
	count   int64
	isQuery bool

	inFlight   atomic.Int32
	overlapped atomic.Bool
	calls      atomic.Int32

	mu      sync.Mutex
	keys    []GeneratedKeys
	batches [][]string
	seen    []any
}

func (c *stubConn) enter(ctx context.Context) error {
	if c.inFlight.Add(1) > 1 {
		c.overlapped.Store(true)
	}
	defer c.inFlight.Add(-1)

	c.calls.Add(1)
	v, _ := execctx.FromContext(ctx).Value("trace")
	c.mu.Lock()
	c.seen = append(c.seen, v)
	c.mu.Unlock()

	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.fail {
		return errBackend
	}
	return nil
}

func (c *stubConn) Query(ctx context.Context, sql string) (RowSet, error) {
	if err := c.enter(ctx); err != nil {
		return nil, err
	}
	return &stubRows{source: c.name}, nil
}

func (c *stubConn) Update(ctx context.Context, sql string, keys GeneratedKeys) (int64, error) {
	c.mu.Lock()
	c.keys = append(c.keys, keys)
	c.mu.Unlock()
	if err := c.enter(ctx); err != nil {
		return 0, err
	}
	return c.count, nil
}

func (c *stubConn) Execute(ctx context.Context, sql string, keys GeneratedKeys) (bool, error) {
	c.mu.Lock()
	c.keys = append(c.keys, keys)
	c.mu.Unlock()
	if err := c.enter(ctx); err != nil {
		return false, err
	}
	return c.isQuery, nil
}

func (c *stubConn) ExecBatch(ctx context.Context, sqls []string) ([]int64, error) {
	c.mu.Lock()
	c.batches = append(c.batches, sqls)
	c.mu.Unlock()
	if err := c.enter(ctx); err != nil {
		return nil, err
	}
	out := make([]int64, len(sqls))
	for i := range out {
		out[i] = c.count
	}
	return out, nil
}

func (c *stubConn) traces() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.seen...)
}

// stubHandle is a PreparedHandle over a stubConn.
type stubHandle struct {
	conn *stubConn
}

func (h *stubHandle) Conn() sync.Locker { return h.conn }

func (h *stubHandle) Query(ctx context.Context) (RowSet, error) {
	return h.conn.Query(ctx, "")
}

func (h *stubHandle) Update(ctx context.Context) (int64, error) {
	return h.conn.Update(ctx, "", DefaultKeys())
}

func (h *stubHandle) Execute(ctx context.Context) (bool, error) {
	return h.conn.Execute(ctx, "", DefaultKeys())
}

func (h *stubHandle) ExecBatch(ctx context.Context) ([]int64, error) {
	return h.conn.ExecBatch(ctx, []string{"", ""})
}

type stubRows struct {
	source string
}

func (r *stubRows) Columns() ([]string, error) { return []string{"source"}, nil }
func (r *stubRows) Next() bool                 { return false }
func (r *stubRows) Scan(dest ...any) error     { return nil }
func (r *stubRows) Err() error                 { return nil }
func (r *stubRows) Close() error               { return nil }

// countingDispatcher runs tasks inline and counts how many were submitted.
type countingDispatcher struct {
	submitted atomic.Int32
}

func (d *countingDispatcher) Submit(_ context.Context, task executor.Task) error {
	d.submitted.Add(1)
	task.Run()
	return nil
}

func newTestEngine(t *testing.T) *executor.Engine {
	t.Helper()
	pool := executor.NewPool(4, nil)
	t.Cleanup(func() { pool.Shutdown(context.Background()) })
	return executor.NewEngine(pool, nil)
}

func textUnits(conns ...*stubConn) []TextUnit {
	units := make([]TextUnit, len(conns))
	for i, c := range conns {
		units[i] = TextUnit{
			Unit: Unit{Backend: c.name, SQL: "UPDATE t_order SET status = 'done'"},
			Conn: c,
		}
	}
	return units
}
