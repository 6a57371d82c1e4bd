package statement

import (
	"context"
	"sync"

	"github.com/aryankumar/shardexec/internal/event"
	"github.com/aryankumar/shardexec/internal/execctx"
	"github.com/aryankumar/shardexec/internal/util"
)

// physicalCall describes one backend call made on behalf of a unit.
type physicalCall struct {
	unit    Unit
	lock    sync.Locker
	tracker *event.Tracker

	// announce posts the START record before the call
	announce bool
}

// run makes one physical call with the caller's execution context installed
// and the connection lock held. A failure posts FAILURE and then either
// propagates as a *util.BackendError or, when the snapshot suppresses
// exceptions, yields the zero value of R in the unit's slot.
func run[R any](ctx context.Context, o *options, snap execctx.Context, pc physicalCall, fn func(context.Context) (R, error)) (R, error) {
	ctx = execctx.Install(ctx, snap)

	pc.lock.Lock()
	defer pc.lock.Unlock()

	if pc.announce && pc.tracker != nil {
		o.post(pc.tracker.Start())
	}

	r, err := fn(ctx)
	if err != nil {
		if pc.tracker != nil {
			o.post(pc.tracker.Fail(err))
		}

		var degraded R
		if snap.ExceptionSuppressed() {
			o.logger.Warn("backend failure suppressed",
				"backend", pc.unit.Backend,
				"sql", pc.unit.SQL,
				"error", err)
			return degraded, nil
		}
		return degraded, util.WrapBackendError(pc.unit.Backend, pc.unit.SQL, err)
	}

	if pc.tracker != nil {
		o.post(pc.tracker.Succeed())
	}
	return r, nil
}

// post hands a tracker transition to the sink. A rejected transition means the
// tracker was already terminal, which is reported but not fatal.
func (o *options) post(e event.Event, err error) {
	if err != nil {
		o.logger.Warn("event not posted", "error", err)
		return
	}
	o.sink.Post(e)
}
