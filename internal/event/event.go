// Package event defines the lifecycle records emitted for every physical
// statement and the sinks they are posted to.
//
// An Event is an immutable, phase-stamped record. The mutable part of the
// lifecycle lives in a Tracker, a small state machine with explicit
// transitions that hands out a fresh Event for every phase it enters, so a
// record that has been posted is never changed afterwards.
package event

import (
	"fmt"
	"sync"
	"time"

	"github.com/aryankumar/shardexec/pkg/uuidx"
	"github.com/google/uuid"
)

// Phase is the lifecycle phase of a physical statement.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseSuccess
	PhaseFailure
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseSuccess:
		return "success"
	case PhaseFailure:
		return "failure"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Terminal reports whether no further transition is allowed from p.
func (p Phase) Terminal() bool {
	return p == PhaseSuccess || p == PhaseFailure
}

// Kind distinguishes read statements (DQL) from writes (DML).
type Kind int

const (
	KindQuery Kind = iota
	KindUpdate
)

func (k Kind) String() string {
	if k == KindQuery {
		return "query"
	}
	return "update"
}

// Event is one posted lifecycle record.
type Event struct {
	// ID is shared by every record of the same physical statement
	ID uuid.UUID

	// Backend is the target data source name
	Backend string

	// SQL is the physical command text
	SQL string

	Kind  Kind
	Phase Phase

	// Err is set only in PhaseFailure
	Err error

	Timestamp time.Time
}

func (e Event) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s on %s: %v", e.Kind, e.Phase, e.Backend, e.Err)
	}
	return fmt.Sprintf("%s %s on %s", e.Kind, e.Phase, e.Backend)
}

// Tracker walks one physical statement through start -> success|failure.
// It is safe for concurrent use, although in practice only the worker
// executing the statement drives it.
type Tracker struct {
	mu      sync.Mutex
	id      uuid.UUID
	backend string
	sql     string
	kind    Kind
	phase   Phase
	err     error
	now     func() time.Time
}

// NewTracker creates a tracker in PhaseStart.
func NewTracker(backend, sql string, kind Kind) *Tracker {
	return &Tracker{
		id:      uuidx.New(),
		backend: backend,
		sql:     sql,
		kind:    kind,
		phase:   PhaseStart,
		now:     time.Now,
	}
}

// Renew returns a tracker in PhaseStart, with a new ID, for another run of the
// same statement.
func (t *Tracker) Renew() *Tracker {
	renewed := NewTracker(t.backend, t.sql, t.kind)
	renewed.now = t.now
	return renewed
}

// Current returns the record for the phase the tracker is in.
func (t *Tracker) Current() Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

// Phase returns the current phase.
func (t *Tracker) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Start returns the PhaseStart record. It fails once the tracker is terminal.
func (t *Tracker) Start() (Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase.Terminal() {
		return Event{}, fmt.Errorf("event %s: cannot restart from %s", t.id, t.phase)
	}
	return t.snapshot(), nil
}

// Succeed moves the tracker to PhaseSuccess.
func (t *Tracker) Succeed() (Event, error) {
	return t.transition(PhaseSuccess, nil)
}

// Fail moves the tracker to PhaseFailure, recording err.
func (t *Tracker) Fail(err error) (Event, error) {
	return t.transition(PhaseFailure, err)
}

func (t *Tracker) transition(to Phase, err error) (Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase.Terminal() {
		return Event{}, fmt.Errorf("event %s: invalid transition %s -> %s", t.id, t.phase, to)
	}
	t.phase = to
	t.err = err
	return t.snapshot(), nil
}

func (t *Tracker) snapshot() Event {
	return Event{
		ID:        t.id,
		Backend:   t.backend,
		SQL:       t.sql,
		Kind:      t.kind,
		Phase:     t.phase,
		Err:       t.err,
		Timestamp: t.now(),
	}
}
