package timing

import (
	"time"

	"github.com/forkcore/platform/internal/logging"
	"github.com/forkcore/platform/internal/message"
	"github.com/forkcore/platform/internal/pcore"
	"github.com/forkcore/platform/internal/timertable"
)

// Sender is the narrow send-hook interface the daemon needs: route a
// message to a worker, as internal/router.Router.Send does. Declared
// here (not imported from internal/router) so internal/router never
// needs to depend on internal/timing.
type Sender interface {
	Send(msg *message.Message, receiver pcore.WorkerID)
}

// Observer lets the daemon report into the platform's metrics, mirrored
// as a narrow interface per the root Observer pattern.
type Observer interface {
	ObserveTimerFired()
	ObserveTimerSkipped()
}

type noOpObserver struct{}

func (noOpObserver) ObserveTimerFired()   {}
func (noOpObserver) ObserveTimerSkipped() {}

// Daemon reads expirations from the engine's queue and handles them by
// timer state: deliver and rearm on the clean path, reconcile skipped
// events on the cancellation paths, drop silently for retired timers.
// It runs as a dedicated goroutine; callers may run several for
// throughput, all draining the same channel.
type Daemon struct {
	engine   *Engine
	sender   Sender
	observer Observer
	done     chan struct{}
}

// NewDaemon builds a daemon bound to engine, sending delivered messages
// through sender. A nil observer is replaced with a no-op.
func NewDaemon(engine *Engine, sender Sender, observer Observer) *Daemon {
	if observer == nil {
		observer = noOpObserver{}
	}
	return &Daemon{engine: engine, sender: sender, observer: observer, done: make(chan struct{})}
}

// Run drains the engine's expiration queue until Stop is called. Meant
// to be launched in its own goroutine by the dispatcher bootstrap.
func (d *Daemon) Run() {
	for {
		select {
		case exp := <-d.engine.queue:
			d.handleTimeoutEvent(exp.id)
		case <-d.done:
			return
		}
	}
}

// Stop terminates Run after it finishes any in-flight event.
func (d *Daemon) Stop() { close(d.done) }

func (d *Daemon) handleTimeoutEvent(id pcore.TimerID) {
	ctx := d.engine.table.Fetch(id)
	pcore.AssertTrue(ctx != nil, "daemon received expiration for out-of-range timer %d", id)

	ctx.Lock()
	defer ctx.Unlock()

	switch ctx.State {
	case timertable.Armed:
		if ctx.SkipEvents > 0 {
			// Cancelled and rearmed before we got to handle this
			// event - ignore it, the real firing is still pending.
			ctx.SkipEvents--
			d.observer.ObserveTimerSkipped()
			logging.Debug("timing daemon: timer cancelled and rearmed, ignoring stale event", "timer", id)
			return
		}
		d.handleCleanTimeout(ctx)

	case timertable.Idle:
		// Cancelled before this event arrived.
		pcore.AssertTrue(ctx.SkipEvents > 0, "timer %d idle with no pending skip events", id)
		ctx.SkipEvents--
		d.observer.ObserveTimerSkipped()
		logging.Debug("timing daemon: timer cancelled and now idle, ignoring late event", "timer", id)

	case timertable.Destroyed:
		pcore.AssertTrue(ctx.SkipEvents > 0, "timer %d destroyed with no pending skip events", id)
		ctx.SkipEvents--
		d.observer.ObserveTimerSkipped()
		if ctx.SkipEvents > 0 {
			logging.Debug("timing daemon: timer destroyed, ignoring late event", "timer", id)
			return
		}
		d.engine.finalizeDestruction(ctx)
		d.engine.table.Release(ctx)
		logging.Debug("timing daemon: handled deferred destruction", "timer", id)

	case timertable.Retired:
		// Shutdown already swept this timer; late events are expected
		// and dropped silently rather than treated as fatal.
		logging.Debug("timing daemon: dropping late event for retired timer", "timer", id)

	default:
		pcore.AssertTrue(false, "timer %d in invalid state %s during daemon dispatch", id, ctx.State)
	}
}

// handleCleanTimeout is the normal-conditions path: the timer fired (or
// refired) with no pending skip events. Caller must hold ctx's lock.
func (d *Daemon) handleCleanTimeout(ctx *timertable.Context) {
	d.observer.ObserveTimerFired()

	if ctx.Period > 0 {
		// Periodic: send a copy, rearm against the absolute schedule.
		cp := message.CopyMessage(ctx.Message)
		if cp != nil {
			d.sender.Send(cp, ctx.Receiver)
		} else {
			logging.Error("timing daemon: failed to copy periodic timeout message", "timer", ctx.ID)
		}
		d.rearmPeriodic(ctx)
		return
	}

	// One-shot: hand over ownership of the message directly.
	d.sender.Send(ctx.Message, ctx.Receiver)
	ctx.Message = nil
	ctx.Receiver = pcore.WorkerIDInvalid
	ctx.Period = 0
	ctx.State = timertable.Idle
}

// rearmPeriodic rearms ctx's one-shot primitive against
// previousExpiration+period, falling back to a relative set (and
// resetting previousExpiration to now) on overrun - drift is preferred
// to missed events. Caller must hold ctx's lock.
func (d *Daemon) rearmPeriodic(ctx *timertable.Context) {
	now := time.Now()
	if ctx.PreviousExpiration.IsZero() {
		ctx.PreviousExpiration = now
	}
	ctx.PreviousExpiration = ctx.PreviousExpiration.Add(ctx.Period)

	delay := ctx.PreviousExpiration.Sub(now)
	if delay <= 0 {
		// Overrun: the next absolute expiration is already in the
		// past by the time we got here - set a relative timeout
		// instead and accept drift.
		delay = ctx.Period
		ctx.PreviousExpiration = now
	}

	id := ctx.ID
	ctx.Tmo = time.AfterFunc(delay, func() { d.engine.postExpiration(id) })
}
