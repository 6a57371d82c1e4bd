package executor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aryankumar/shardexec/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inlineDispatcher runs every task on the submitting goroutine and counts submissions.
type inlineDispatcher struct {
	submitted atomic.Int32
}

func (d *inlineDispatcher) Submit(_ context.Context, task Task) error {
	d.submitted.Add(1)
	task.Run()
	return nil
}

// refusingDispatcher accepts the first n submissions and refuses the rest.
type refusingDispatcher struct {
	inner  Dispatcher
	accept int32
	seen   atomic.Int32
}

func (d *refusingDispatcher) Submit(ctx context.Context, task Task) error {
	if d.seen.Add(1) > d.accept {
		return util.ErrPoolShutdown
	}
	return d.inner.Submit(ctx, task)
}

type shardUnit struct {
	name  string
	value int
}

func (u shardUnit) Target() string { return u.name }

func newPoolEngine(t *testing.T, workers int) *Engine {
	t.Helper()
	pool := NewPool(workers, nil)
	t.Cleanup(func() { pool.Shutdown(context.Background()) })
	return NewEngine(pool, nil)
}

func TestExecute_SingleUnitRunsInline(t *testing.T) {
	d := &inlineDispatcher{}
	e := NewEngine(d, nil)

	results, err := Execute(context.Background(), e, []shardUnit{{"ds_0", 7}},
		func(ctx context.Context, u shardUnit) (int, error) { return u.value * 2, nil })

	require.NoError(t, err)
	assert.Equal(t, []int{14}, results)
	assert.Equal(t, int32(0), d.submitted.Load(), "a single unit must not be submitted to the pool")
}

func TestExecute_SingleUnitOnShutdownPool(t *testing.T) {
	pool := NewPool(1, nil)
	require.NoError(t, pool.Shutdown(context.Background()))
	e := NewEngine(pool, nil)

	results, err := Execute(context.Background(), e, []int{1},
		func(ctx context.Context, u int) (int, error) { return u, nil })

	require.NoError(t, err)
	assert.Equal(t, []int{1}, results)
}

func TestExecute_SingleUnitError(t *testing.T) {
	e := NewEngine(&inlineDispatcher{}, nil)
	boom := errors.New("boom")

	results, err := Execute(context.Background(), e, []int{1},
		func(ctx context.Context, u int) (int, error) { return 0, boom })

	assert.ErrorIs(t, err, boom)
	assert.Nil(t, results)
}

func TestExecute_MultiUnitSubmitsEach(t *testing.T) {
	d := &inlineDispatcher{}
	e := NewEngine(d, nil)

	results, err := Execute(context.Background(), e, []int{1, 2, 3},
		func(ctx context.Context, u int) (int, error) { return u * 10, nil })

	require.NoError(t, err)
	assert.Equal(t, []int{10, 20, 30}, results)
	assert.Equal(t, int32(3), d.submitted.Load())
}

func TestExecute_PreservesInputOrder(t *testing.T) {
	e := newPoolEngine(t, 8)

	for _, n := range []int{1, 2, 5, 17, 64} {
		t.Run(fmt.Sprintf("units_%d", n), func(t *testing.T) {
			units := make([]int, n)
			for i := range units {
				units[i] = i
			}

			results, err := Execute(context.Background(), e, units,
				func(ctx context.Context, u int) (string, error) {
					// finish in a scrambled order
					time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
					return fmt.Sprintf("r%d", u), nil
				})

			require.NoError(t, err)
			require.Len(t, results, n)
			for i, r := range results {
				assert.Equal(t, fmt.Sprintf("r%d", i), r)
			}
		})
	}
}

func TestExecute_EmptyUnits(t *testing.T) {
	d := &inlineDispatcher{}
	e := NewEngine(d, nil)

	results, err := Execute(context.Background(), e, []int{},
		func(ctx context.Context, u int) (int, error) { return u, nil })

	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Equal(t, int32(0), d.submitted.Load())
}

func TestExecute_FailureWaitsForAllUnits(t *testing.T) {
	e := newPoolEngine(t, 4)
	boom := errors.New("shard down")

	var finished atomic.Int32
	units := []shardUnit{{"ds_0", 0}, {"ds_1", 1}, {"ds_2", 2}, {"ds_3", 3}}

	_, err := Execute(context.Background(), e, units,
		func(ctx context.Context, u shardUnit) (int, error) {
			defer finished.Add(1)
			if u.value == 0 {
				return 0, boom
			}
			time.Sleep(20 * time.Millisecond)
			return u.value, nil
		})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(4), finished.Load(), "every unit must complete before the failure surfaces")
}

func TestExecute_ReturnsLowestIndexedError(t *testing.T) {
	e := newPoolEngine(t, 4)
	first := errors.New("first")
	second := errors.New("second")

	_, err := Execute(context.Background(), e, []int{0, 1, 2, 3},
		func(ctx context.Context, u int) (int, error) {
			switch u {
			case 1:
				time.Sleep(10 * time.Millisecond)
				return 0, first
			case 3:
				return 0, second
			}
			return u, nil
		})

	assert.ErrorIs(t, err, first)
}

func TestExecute_PanicBecomesError(t *testing.T) {
	e := newPoolEngine(t, 2)

	_, err := Execute(context.Background(), e, []shardUnit{{"ds_0", 0}, {"ds_1", 1}},
		func(ctx context.Context, u shardUnit) (int, error) {
			if u.value == 1 {
				panic("driver bug")
			}
			return 0, nil
		})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ds_1")
	assert.Contains(t, err.Error(), "driver bug")
}

func TestExecute_RefusedSubmissionStillJoins(t *testing.T) {
	pool := NewPool(2, nil)
	t.Cleanup(func() { pool.Shutdown(context.Background()) })
	d := &refusingDispatcher{inner: pool, accept: 2}
	e := NewEngine(d, nil)

	var ran atomic.Int32
	_, err := Execute(context.Background(), e, []int{0, 1, 2},
		func(ctx context.Context, u int) (int, error) {
			time.Sleep(5 * time.Millisecond)
			ran.Add(1)
			return u, nil
		})

	assert.ErrorIs(t, err, util.ErrPoolShutdown)
	assert.Equal(t, int32(2), ran.Load(), "accepted units must finish before Execute returns")
}

func TestExecute_SharedPoolAcrossOperations(t *testing.T) {
	e := newPoolEngine(t, 4)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for op := 0; op < 10; op++ {
		wg.Add(1)
		go func(op int) {
			defer wg.Done()
			results, err := Execute(context.Background(), e, []int{op, op + 1, op + 2},
				func(ctx context.Context, u int) (int, error) { return u, nil })
			if err != nil {
				errs <- err
				return
			}
			if results[0] != op || results[2] != op+2 {
				errs <- fmt.Errorf("op %d: out of order results %v", op, results)
			}
		}(op)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestExecuteMerge(t *testing.T) {
	e := newPoolEngine(t, 4)

	total, err := ExecuteMerge(context.Background(), e, []int64{2, 3, 5},
		func(ctx context.Context, u int64) (int64, error) { return u, nil },
		MergeSum)

	require.NoError(t, err)
	assert.Equal(t, int64(10), total)
}

func TestExecuteMerge_NoUnitsMergesNil(t *testing.T) {
	e := NewEngine(&inlineDispatcher{}, nil)

	merged, err := ExecuteMerge(context.Background(), e, nil,
		func(ctx context.Context, u int) ([]int64, error) { return nil, nil },
		MergeBatch(3, nil))

	require.NoError(t, err)
	assert.Equal(t, []int64{0}, merged)
}

func TestExecuteMerge_FailureSkipsMerge(t *testing.T) {
	e := newPoolEngine(t, 2)
	merged := false

	got, err := ExecuteMerge(context.Background(), e, []int{1, 2},
		func(ctx context.Context, u int) (bool, error) {
			if u == 2 {
				return false, errors.New("x")
			}
			return true, nil
		},
		func(rs []bool) bool {
			merged = true
			return MergeFirstOrFalse(rs)
		})

	assert.Error(t, err)
	assert.False(t, got)
	assert.False(t, merged)
}

func TestExecuteMerge_MergeRunsOnCaller(t *testing.T) {
	e := newPoolEngine(t, 2)
	var calls atomic.Int32

	_, err := ExecuteMerge(context.Background(), e, []int{1, 2, 3},
		func(ctx context.Context, u int) (int64, error) { return int64(u), nil },
		func(rs []int64) int64 {
			calls.Add(1)
			return MergeSum(rs)
		})

	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCollect(t *testing.T) {
	e := newPoolEngine(t, 3)
	boom := errors.New("connection refused")

	results := Collect(context.Background(), e,
		[]shardUnit{{"ds_0", 0}, {"ds_1", 1}, {"ds_2", 2}},
		func(ctx context.Context, u shardUnit) (string, error) {
			switch u.value {
			case 1:
				return "", boom
			case 2:
				panic("bad driver")
			}
			return "ok", nil
		})

	require.Len(t, results, 3)
	assert.Equal(t, "ds_0", results[0].Target)
	assert.Equal(t, "ok", results[0].Data)
	assert.NoError(t, results[0].Error)

	assert.Equal(t, "ds_1", results[1].Target)
	assert.ErrorIs(t, results[1].Error, boom)

	assert.Equal(t, "ds_2", results[2].Target)
	assert.ErrorContains(t, results[2].Error, "bad driver")

	assert.Equal(t, 1, CountSuccessful(results))
}

func TestCollect_UntargetedUnits(t *testing.T) {
	e := NewEngine(&inlineDispatcher{}, nil)

	results := Collect(context.Background(), e, []int{5, 6},
		func(ctx context.Context, u int) (int, error) { return u, nil })

	require.Len(t, results, 2)
	assert.Equal(t, "unit-0", results[0].Target)
	assert.Equal(t, "unit-1", results[1].Target)
}

func TestCollect_RefusedSubmission(t *testing.T) {
	d := &refusingDispatcher{inner: &inlineDispatcher{}, accept: 0}
	e := NewEngine(d, nil)

	results := Collect(context.Background(), e, []shardUnit{{"ds_0", 0}, {"ds_1", 1}},
		func(ctx context.Context, u shardUnit) (int, error) { return u.value, nil })

	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Error, util.ErrPoolShutdown)
	}
	assert.Equal(t, "ds_1", results[1].Target)
}

func TestCollect_RefusalFailsOnlyItsSlot(t *testing.T) {
	d := &refusingDispatcher{inner: &inlineDispatcher{}, accept: 2}
	e := NewEngine(d, nil)

	results := Collect(context.Background(), e, []shardUnit{{"ds_0", 0}, {"ds_1", 1}, {"ds_2", 2}},
		func(ctx context.Context, u shardUnit) (int, error) { return u.value * 10, nil })

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Error)
	assert.Equal(t, 0, results[0].Data)
	assert.NoError(t, results[1].Error)
	assert.Equal(t, 10, results[1].Data)

	assert.ErrorIs(t, results[2].Error, util.ErrPoolShutdown)
	assert.Nil(t, results[2].Data)
	assert.Equal(t, "ds_2", results[2].Target)
	assert.Equal(t, 2, CountSuccessful(results))
}
