package workers

import (
	"github.com/forkcore/platform/internal/errorsx"
	"github.com/forkcore/platform/internal/logging"
	"github.com/forkcore/platform/internal/message"
	"github.com/forkcore/platform/internal/pcore"
	"github.com/forkcore/platform/internal/worktable"
)

// Handle is passed to every user callback invocation and answers "what
// worker am I and what core am I running on right now". Threading it
// explicitly replaces any ambient per-thread lookup - see the package
// doc.
type Handle struct {
	engine   *Engine
	ctx      *worktable.Context
	core     int // -1 when not running on a specific core (global init/exit)
	callback Callback

	atomicToken chan struct{} // set only during Receive on an atomic worker
	released    bool
}

func (e *Engine) newHandle(ctx *worktable.Context, core int, cb Callback) *Handle {
	return &Handle{engine: e, ctx: ctx, core: core, callback: cb}
}

// WorkerID returns the id of the worker this handle belongs to.
func (h *Handle) WorkerID() pcore.WorkerID { return h.ctx.ID }

// Core returns the physical core index the callback is running on, or
// -1 for global init/exit which are not pinned to any one core.
func (h *Handle) Core() int { return h.core }

// GetSharedData returns the worker's shared data slot, as last set by
// SetSharedData (nil until then; the deploy-time init argument is only
// passed to GlobalInit).
func (h *Handle) GetSharedData() any {
	h.ctx.Lock()
	defer h.ctx.Unlock()
	return h.ctx.SharedData
}

// SetSharedData replaces the worker's shared data slot.
func (h *Handle) SetSharedData(v any) {
	h.ctx.Lock()
	h.ctx.SharedData = v
	h.ctx.Unlock()
}

// GetLocalData returns the per-core data slot for the handle's current
// core. Calling it from global init/exit (core == -1) is a programming
// error since there is no single core to address.
func (h *Handle) GetLocalData() (any, error) {
	if h.core < 0 {
		return nil, errorsx.NewWorkerError("GetLocalData", uint16(h.ctx.ID), errorsx.KindProgrammingViolation, "local data has no meaning outside a per-core callback")
	}
	h.ctx.Lock()
	defer h.ctx.Unlock()
	return h.ctx.LocalData[h.core], nil
}

// SetLocalData replaces the per-core data slot for the handle's current core.
func (h *Handle) SetLocalData(v any) error {
	if h.core < 0 {
		return errorsx.NewWorkerError("SetLocalData", uint16(h.ctx.ID), errorsx.KindProgrammingViolation, "local data has no meaning outside a per-core callback")
	}
	h.ctx.Lock()
	h.ctx.LocalData[h.core] = v
	h.ctx.Unlock()
	return nil
}

// Send routes msg to receiver with this worker stamped as the sender,
// the way every send issued from inside a callback is expected to go
// out. Platform-internal sends (no current worker) go through the
// router directly instead and carry the invalid sender sentinel.
func (h *Handle) Send(msg *message.Message, receiver pcore.WorkerID) {
	hook := h.engine.sendHookFn()
	if hook == nil {
		logging.Warn("Send: no send hook installed, dropping message", "worker", h.ctx.ID, "receiver", receiver)
		message.DestroyMessage(msg)
		return
	}
	hook(msg, h.ctx.ID, receiver)
}

// EndAtomicContext releases an atomic worker's execution token early,
// letting the next queued message begin processing on another
// dispatch goroutine before the current Body call returns. It has no
// effect for parallel workers or outside a Receive callback.
func (h *Handle) EndAtomicContext() {
	if h.atomicToken == nil {
		return
	}
	h.releaseAtomicToken()
}

func (h *Handle) releaseAtomicToken() {
	if h.released {
		return
	}
	h.released = true
	h.atomicToken <- struct{}{}
}

// Terminate self-terminates the worker this handle belongs to. From
// GlobalInit, LocalInit or Receive it unwinds the current callback via
// panic/recover (selfterminate.go) and never returns; from
// GlobalExit/LocalExit - already tearing down - self-termination is a
// design error and raises a fatal error.
func (h *Handle) Terminate() {
	id := h.ctx.ID
	h.ctx.Lock()

	switch h.ctx.State {
	case worktable.Active:
		h.ctx.MarkTeardownInProgress()
		h.ctx.Unlock()
		logging.Info("worker self-terminating", "worker", id)
		go h.engine.stopWorker(id, h.ctx)
		panic(selfTerminateSignal{workerID: id})

	case worktable.Deploying:
		if h.ctx.TerminationRequested {
			h.ctx.Unlock()
			logging.Warn("Terminate: worker's termination already requested", "worker", id)
			panic(selfTerminateSignal{workerID: id})
		}
		h.ctx.TerminationRequested = true
		h.ctx.Unlock()
		panic(selfTerminateSignal{workerID: id})

	default:
		state := h.ctx.State
		h.ctx.Unlock()
		if h.callback == CallbackGlobalExit || h.callback == CallbackLocalExit {
			panic(errorsx.Fatal("Terminate", "worker tried terminating itself from an exit callback"))
		}
		logging.Warn("Terminate: worker in unexpected state", "worker", id, "state", state)
		panic(selfTerminateSignal{workerID: id})
	}
}
