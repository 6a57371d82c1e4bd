// Package metrics times logical operations. A Timer is opened before the
// physical units of a statement are dispatched and stopped once they have all
// returned, whatever the outcome.
package metrics

import (
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
)

// Handle identifies one running measurement.
type Handle struct {
	name    string
	started time.Time
}

// Name returns the timer name the handle was started with.
func (h Handle) Name() string { return h.name }

// Timer measures the duration of named operations.
type Timer interface {
	Start(name string) Handle
	Stop(h Handle)
}

type nopTimer struct{}

func (nopTimer) Start(name string) Handle { return Handle{name: name} }
func (nopTimer) Stop(Handle)              {}

// Nop is a Timer that records nothing.
var Nop Timer = nopTimer{}

// Stats is the aggregate for one timer name.
type Stats struct {
	Name  string
	Count int64
	Total time.Duration
	Max   time.Duration
}

// Mean returns the average duration, or 0 when nothing was recorded.
func (s Stats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

type counter struct {
	count atomic.Int64
	total atomic.Int64
	max   atomic.Int64
}

func (c *counter) observe(d time.Duration) {
	c.count.Add(1)
	c.total.Add(int64(d))
	for {
		cur := c.max.Load()
		if int64(d) <= cur || c.max.CompareAndSwap(cur, int64(d)) {
			return
		}
	}
}

// Registry is a Timer that aggregates count, total and max per name.
// It is safe for concurrent use.
type Registry struct {
	counters *haxmap.Map[string, *counter]
	logger   *slog.Logger
	now      func() time.Time
}

// NewRegistry creates an empty Registry. A nil logger means slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		counters: haxmap.New[string, *counter](),
		logger:   logger,
		now:      time.Now,
	}
}

// Start implements Timer.
func (r *Registry) Start(name string) Handle {
	return Handle{name: name, started: r.now()}
}

// Stop implements Timer. Stopping a zero Handle is a no-op.
func (r *Registry) Stop(h Handle) {
	if h.name == "" || h.started.IsZero() {
		return
	}
	d := r.now().Sub(h.started)
	c, _ := r.counters.GetOrCompute(h.name, func() *counter { return &counter{} })
	c.observe(d)
	r.logger.Debug("operation timed", "timer", h.name, "duration", d)
}

// Get returns the stats for one name.
func (r *Registry) Get(name string) (Stats, bool) {
	c, ok := r.counters.Get(name)
	if !ok {
		return Stats{}, false
	}
	return c.stats(name), true
}

// Snapshot returns the stats for every name, sorted by name.
func (r *Registry) Snapshot() []Stats {
	out := make([]Stats, 0, r.counters.Len())
	r.counters.ForEach(func(name string, c *counter) bool {
		out = append(out, c.stats(name))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *counter) stats(name string) Stats {
	return Stats{
		Name:  name,
		Count: c.count.Load(),
		Total: time.Duration(c.total.Load()),
		Max:   time.Duration(c.max.Load()),
	}
}
