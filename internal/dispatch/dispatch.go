// Package dispatch implements the per-core pinned dispatcher loop: OS
// thread affinity, fixed-size dispatch chunks, the idempotent shutdown
// exit flag, and the active-sync barrier discipline used during
// startup and teardown. One pinned goroutine (runtime.LockOSThread +
// unix.SchedSetaffinity) carries each physical core's dispatching;
// handler-body invocations are submitted to a core's work queue and
// execute on that core's pinned thread.
package dispatch

import (
	"runtime"
	"sync/atomic"

	"github.com/forkcore/platform/internal/bootstrap"
	"github.com/forkcore/platform/internal/input"
	"github.com/forkcore/platform/internal/logging"
	"github.com/forkcore/platform/internal/pcore"
)

// Round sizes for the three dispatch phases: barrier sync, the main
// exit-flag-checked loop, and the post-shutdown drain.
const (
	SyncDispatchRounds      = pcore.SyncDispatchRounds
	ExitCheckDispatchRounds = pcore.ExitCheckDispatchRounds
	DrainDispatchRounds     = pcore.DrainDispatchRounds
)

// workQueueCapacity bounds each core's pending handler-invocation
// queue. A full queue makes Submit report false and the caller run the
// work elsewhere rather than block a send path on a busy core.
const workQueueCapacity = 1024

// Loop is one physical core's pinned dispatcher. Core 0 is the "main"
// participant: the bootstrap layer gates global init/exit on
// Core() == 0, running it only once instead of once per core.
type Loop struct {
	core     int
	exitFlag *atomic.Bool
	input    *input.Registry
	work     chan func()
}

// New builds a Loop pinned to core, sharing exitFlag and the platform's
// input-polling registry with every other core's Loop.
func New(core int, exitFlag *atomic.Bool, reg *input.Registry) *Loop {
	return &Loop{core: core, exitFlag: exitFlag, input: reg, work: make(chan func(), workQueueCapacity)}
}

// Submit queues fn for execution on this core's pinned dispatch loop.
// It reports false when the queue is full.
func (l *Loop) Submit(fn func()) bool {
	select {
	case l.work <- fn:
		return true
	default:
		return false
	}
}

// FlushWork runs any queued-but-unexecuted work items on the calling
// goroutine, for the teardown path after the loop itself has returned.
func (l *Loop) FlushWork() {
	for {
		select {
		case fn := <-l.work:
			fn()
		default:
			return
		}
	}
}

// Core returns the physical core this loop is pinned to.
func (l *Loop) Core() int { return l.core }

// Pin locks the calling goroutine to an OS thread and sets that
// thread's CPU affinity to l.core. Must be called from the goroutine
// that will run the dispatch loop, before any other work; the lock is
// never released, since handing this OS thread back to the scheduler's
// pool would defeat the pinning.
func (l *Loop) Pin() {
	runtime.LockOSThread()
	if err := bootstrap.PinToCore(l.core); err != nil {
		logging.Warn("dispatch: failed to set CPU affinity", "core", l.core, "error", err)
	}
}

// ActiveSync increments counter and keeps dispatching, in
// SyncDispatchRounds-sized chunks, until every one of cores has done
// the same. A core waiting at the barrier must still be reachable by
// sync-API handlers instead of sitting idle, so it dispatches chunks
// rather than blocking on the counter directly.
func (l *Loop) ActiveSync(counter *atomic.Int64, cores int64) {
	counter.Add(1)
	for counter.Load() < cores {
		l.dispatchChunk(SyncDispatchRounds)
	}
}

// Run dispatches in ExitCheckDispatchRounds-sized chunks, checking the
// shared exit flag between chunks, until it is set. One extra chunk
// runs after the flag is observed so any dispatch already under way when
// shutdown was requested gets to finish.
func (l *Loop) Run() {
	for !l.exitFlag.Load() {
		l.dispatchChunk(ExitCheckDispatchRounds)
	}
	l.dispatchChunk(ExitCheckDispatchRounds)
}

// Drain dispatches a couple of DrainDispatchRounds-sized chunks after
// shutdown has been requested, giving any messages already in flight on
// this core's goroutines a last window to land before the core parks
// for good.
func (l *Loop) Drain() {
	l.dispatchChunk(DrainDispatchRounds)
	l.dispatchChunk(DrainDispatchRounds)
}

// dispatchChunk runs up to rounds queued handler invocations on this
// core's pinned thread, yielding the processor on every round the queue
// is idle, and polls input callbacks once per chunk - between chunks,
// never inside one.
func (l *Loop) dispatchChunk(rounds int) {
	for i := 0; i < rounds; i++ {
		select {
		case fn := <-l.work:
			fn()
		default:
			runtime.Gosched()
		}
	}
	if l.input != nil {
		l.input.Poll(l.core)
	}
}
