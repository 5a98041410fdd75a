package workers

import "github.com/forkcore/platform/internal/pcore"

// Callback identifies which user callback is currently executing on the
// calling goroutine. It gates whether Handle.Terminate is allowed to
// unwind (global init, local init, receive) or must raise a fatal error
// (local exit, global exit - the worker is already tearing down).
type Callback int

const (
	CallbackNone Callback = iota
	CallbackGlobalInit
	CallbackLocalInit
	CallbackGlobalExit
	CallbackLocalExit
	CallbackReceive
)

// selfTerminateSignal is panicked by Handle.Terminate to break out of
// user code without running further lines in the active callback.
// panic/recover is Go's only non-local control transfer, so the engine
// wraps every user callback invocation in a recover that treats this
// specific panic as "the callback chose to terminate itself". Any other
// panic value propagates normally (fatal, uncaught).
type selfTerminateSignal struct {
	workerID pcore.WorkerID
}

// runGuarded invokes fn, which is expected to be the user's currently
// active callback, under a recover that only catches
// selfTerminateSignal. It reports whether fn returned normally (true) or
// self-terminated (false). Any other panic is re-raised.
func runGuarded(fn func()) (completed bool) {
	completed = true
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(selfTerminateSignal); ok {
				completed = false
				return
			}
			panic(r)
		}
	}()
	fn()
	return
}
