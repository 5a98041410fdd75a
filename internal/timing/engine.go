// Package timing implements the timer engine (arm/disarm/destroy/retire)
// and the timing daemon that consumes expirations. The only timeout
// primitive is one-shot (*time.Timer); periodic timers are built on top
// of it by rearming on every firing.
package timing

import (
	"time"

	"github.com/forkcore/platform/internal/errorsx"
	"github.com/forkcore/platform/internal/logging"
	"github.com/forkcore/platform/internal/message"
	"github.com/forkcore/platform/internal/pcore"
	"github.com/forkcore/platform/internal/timertable"
)

// expiration is what a fired *time.Timer posts to the daemon queue:
// just the timer id.
type expiration struct {
	id pcore.TimerID
}

// Engine is the timing engine: it owns the timer table and the queue
// the daemon reads expirations from.
type Engine struct {
	table *timertable.Table
	queue chan expiration
}

// NewEngine builds a timing engine with its daemon's expiration queue
// sized generously enough to never block a firing *time.Timer callback.
func NewEngine() *Engine {
	return &Engine{
		table: timertable.NewTable(),
		queue: make(chan expiration, 4*pcore.MaxTimerCount),
	}
}

// Table exposes the underlying timer table, e.g. for metrics/tests.
func (e *Engine) Table() *timertable.Table { return e.table }

// CreateTimer reserves a context and its underlying one-shot primitive.
func (e *Engine) CreateTimer(name string) (pcore.TimerID, error) {
	if name == "" {
		return pcore.TimerIDInvalid, errorsx.NewError("CreateTimer", errorsx.KindProgrammingViolation, "passed empty name for timer")
	}

	ctx, ok := e.table.Reserve()
	if !ok {
		logging.Error("CreateTimer: no free timer IDs found")
		return pcore.TimerIDInvalid, errorsx.NewError("CreateTimer", errorsx.KindResourceExhaustion, "timer table exhausted")
	}

	ctx.Lock()
	ctx.Name = name
	id := ctx.ID
	ctx.Unlock()

	return id, nil
}

// ArmTimer sets a timeout relative to now (expires), transitioning
// Idle->Armed; there is no absolute-time mode. period == 0 means one-shot.
func (e *Engine) ArmTimer(id pcore.TimerID, expires, period time.Duration, msg *message.Message, receiver pcore.WorkerID) (pcore.TimerID, error) {
	ctx := e.table.Fetch(id)
	if ctx == nil {
		return pcore.TimerIDInvalid, errorsx.NewTimerError("ArmTimer", uint16(id), errorsx.KindProgrammingViolation, "timer ID out of range")
	}
	if msg == nil {
		return pcore.TimerIDInvalid, errorsx.NewTimerError("ArmTimer", uint16(id), errorsx.KindProgrammingViolation, "tried arming timer with invalid message")
	}

	ctx.Lock()
	defer ctx.Unlock()

	if ctx.State != timertable.Idle {
		logging.Warn("ArmTimer: timer in invalid state", "timer", id, "state", ctx.State)
		return pcore.TimerIDInvalid, errorsx.NewTimerError("ArmTimer", uint16(id), errorsx.KindProgrammingViolation, "timer in invalid state")
	}

	ctx.Message = msg
	ctx.Receiver = receiver
	ctx.Period = period

	ctx.Tmo = time.AfterFunc(expires, func() { e.postExpiration(id) })
	ctx.State = timertable.Armed

	return id, nil
}

// postExpiration is the *time.Timer callback; it runs on its own
// goroutine (Go's runtime timer goroutine) and only enqueues, so a slow
// daemon never blocks the runtime timer.
func (e *Engine) postExpiration(id pcore.TimerID) {
	e.queue <- expiration{id: id}
}

// DisarmTimer handles three sub-cases: clean cancel, already-fired race
// (SkipEvents++), and no-op success from Idle or Retired.
func (e *Engine) DisarmTimer(id pcore.TimerID) (pcore.TimerID, error) {
	ctx := e.table.Fetch(id)
	if ctx == nil {
		return pcore.TimerIDInvalid, errorsx.NewTimerError("DisarmTimer", uint16(id), errorsx.KindProgrammingViolation, "timer ID out of range")
	}

	ctx.Lock()
	defer ctx.Unlock()

	switch ctx.State {
	case timertable.Armed:
		stopped := ctx.Tmo.Stop()
		if stopped {
			// Cancelled cleanly - no event is in flight.
			e.changeArmedToIdle(ctx)
		} else {
			// Already fired (or racing to fire) - the daemon will
			// receive (or has already received) the expiration event
			// and must be told to ignore it. The increment must happen
			// before the entry lock is released; we are still holding
			// ctx's lock here.
			ctx.SkipEvents++
			e.changeArmedToIdle(ctx)
			logging.Debug("DisarmTimer: timer already fired, event will be skipped", "timer", id)
		}
		return id, nil

	case timertable.Idle:
		// Either never armed, or already cleaned up by the daemon.
		// An idle timer owns nothing; anything dangling here means a
		// cancellation path leaked.
		pcore.AssertTrue(ctx.Message == nil, "disarm of idle timer %d with dangling message", id)
		pcore.AssertTrue(ctx.Receiver == pcore.WorkerIDInvalid, "disarm of idle timer %d with dangling receiver", id)
		pcore.AssertTrue(ctx.Period == 0, "disarm of idle timer %d with dangling period", id)
		return id, nil

	case timertable.Retired:
		logging.Info("DisarmTimer: timer already retired", "timer", id)
		return id, nil

	default:
		logging.Warn("DisarmTimer: timer in invalid state", "timer", id, "state", ctx.State)
		return pcore.TimerIDInvalid, errorsx.NewTimerError("DisarmTimer", uint16(id), errorsx.KindProgrammingViolation, "timer in invalid state")
	}
}

// changeArmedToIdle releases the owned message and resets periodic
// bookkeeping. Caller must hold ctx's lock.
func (e *Engine) changeArmedToIdle(ctx *timertable.Context) {
	message.DestroyMessage(ctx.Message)
	ctx.Message = nil
	ctx.Receiver = pcore.WorkerIDInvalid
	ctx.Period = 0
	ctx.PreviousExpiration = time.Time{}
	ctx.State = timertable.Idle
}

// DestroyTimer releases a timer's context, deferring the release until
// the daemon drains any outstanding SkipEvents.
func (e *Engine) DestroyTimer(id pcore.TimerID) error {
	ctx := e.table.Fetch(id)
	if ctx == nil {
		return errorsx.NewTimerError("DestroyTimer", uint16(id), errorsx.KindProgrammingViolation, "timer ID out of range")
	}

	ctx.Lock()
	defer ctx.Unlock()

	if ctx.State == timertable.Retired {
		logging.Info("DestroyTimer: timer already retired", "timer", id)
		return nil
	}
	if ctx.State != timertable.Idle {
		logging.Warn("DestroyTimer: timer in invalid state", "timer", id, "state", ctx.State)
		return errorsx.NewTimerError("DestroyTimer", uint16(id), errorsx.KindProgrammingViolation, "timer in invalid state")
	}

	if ctx.SkipEvents > 0 {
		// Events already queued for the daemon; defer release to it.
		ctx.State = timertable.Destroyed
		logging.Debug("DestroyTimer: destruction deferred until daemon drains skip events", "timer", id)
		return nil
	}

	e.finalizeDestruction(ctx)
	e.table.Release(ctx)
	logging.Debug("DestroyTimer: cleanly destroyed", "timer", id)
	return nil
}

// finalizeDestruction deletes the underlying one-shot timer and
// sanity-checks no message is leaked. Caller must hold ctx's lock.
func (e *Engine) finalizeDestruction(ctx *timertable.Context) {
	if ctx.Tmo != nil {
		ctx.Tmo.Stop()
		ctx.Tmo = nil
	}
	pcore.AssertTrue(ctx.Message == nil, "timer %d destroyed with dangling message", ctx.ID)
	pcore.AssertTrue(ctx.Receiver == pcore.WorkerIDInvalid, "timer %d destroyed with dangling receiver", ctx.ID)
}

// RetireTimer forces any state into Retired, used during shutdown for
// every timer in the table. Idempotent.
func (e *Engine) RetireTimer(id pcore.TimerID) {
	ctx := e.table.Fetch(id)
	pcore.AssertTrue(ctx != nil, "retire of out-of-range timer %d", id)

	ctx.Lock()
	defer ctx.Unlock()

	switch ctx.State {
	case timertable.Invalid:
		ctx.State = timertable.Retired

	case timertable.Idle:
		e.finalizeDestruction(ctx)
		e.table.Release(ctx)
		ctx.State = timertable.Retired

	case timertable.Armed:
		stopped := ctx.Tmo.Stop()
		if stopped {
			e.changeArmedToIdle(ctx)
			e.finalizeDestruction(ctx)
			e.table.Release(ctx)
		} else {
			// Event already in flight; the daemon will encounter
			// Retired state and drop it silently.
			e.changeArmedToIdle(ctx)
			e.finalizeDestruction(ctx)
			e.table.Release(ctx)
			logging.Debug("RetireTimer: retired timer with an event already sent", "timer", id)
		}
		ctx.State = timertable.Retired

	case timertable.Destroyed:
		// Outstanding events still in flight; force-destroy now, the
		// daemon drops any late arrivals once it sees Retired.
		e.finalizeDestruction(ctx)
		e.table.Release(ctx)
		ctx.State = timertable.Retired

	default:
		ctx.State = timertable.Retired
	}
}
