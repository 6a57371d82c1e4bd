package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances by step on every reading.
type fakeClock struct {
	mu   sync.Mutex
	cur  time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(c.step)
	return c.cur
}

func TestRegistry_StartStop(t *testing.T) {
	clock := &fakeClock{cur: time.Unix(0, 0), step: 10 * time.Millisecond}
	r := NewRegistry(nil)
	r.now = clock.now

	h := r.Start("statement.query")
	assert.Equal(t, "statement.query", h.Name())
	r.Stop(h)

	h = r.Start("statement.query")
	r.Stop(h)

	s, ok := r.Get("statement.query")
	require.True(t, ok)
	assert.Equal(t, int64(2), s.Count)
	assert.Equal(t, 20*time.Millisecond, s.Total)
	assert.Equal(t, 10*time.Millisecond, s.Max)
	assert.Equal(t, 10*time.Millisecond, s.Mean())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_StopZeroHandle(t *testing.T) {
	r := NewRegistry(nil)
	r.Stop(Handle{})
	assert.Empty(t, r.Snapshot())
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry(nil)
	for _, name := range []string{"prepared.update", "statement.query", "prepared.batch"} {
		r.Stop(r.Start(name))
	}

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "prepared.batch", snap[0].Name)
	assert.Equal(t, "prepared.update", snap[1].Name)
	assert.Equal(t, "statement.query", snap[2].Name)
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry(nil)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Stop(r.Start("statement.update"))
		}()
	}
	wg.Wait()

	s, ok := r.Get("statement.update")
	require.True(t, ok)
	assert.Equal(t, int64(100), s.Count)
	assert.GreaterOrEqual(t, s.Total, s.Max)
}

func TestStats_MeanEmpty(t *testing.T) {
	assert.Equal(t, time.Duration(0), Stats{}.Mean())
}

func TestNop(t *testing.T) {
	h := Nop.Start("x")
	assert.Equal(t, "x", h.Name())
	assert.NotPanics(t, func() { Nop.Stop(h) })
}
