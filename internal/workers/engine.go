// Package workers implements the worker engine: deployment, callback
// invocation, the atomic/parallel scheduling discipline, and the
// completion daemon that finishes deployment once every core has
// returned from local init.
//
// Self-termination must never return control to the terminating
// callback. Every user callback receives an explicit *Handle (Go has no
// per-thread ambient state to look the current worker up from), and
// Handle.Terminate unwinds via panic/recover (selfterminate.go) - Go's
// only non-local control transfer - so no user code past the Terminate
// call ever executes.
package workers

import (
	"sync"

	"github.com/forkcore/platform/internal/errorsx"
	"github.com/forkcore/platform/internal/logging"
	"github.com/forkcore/platform/internal/message"
	"github.com/forkcore/platform/internal/pcore"
	"github.com/forkcore/platform/internal/worktable"
)

// queueCapacity bounds each worker's post-deployment message queue, the
// Active-state channel backing worktable.Context.Queue. Distinct from
// the fixed 16-slot deployment-time buffer.
const queueCapacity = 256

// Callbacks holds the five user-supplied hooks a worker may implement.
// GlobalInit returns non-zero to abort deployment; the rest have no
// return channel - self-termination (Handle.Terminate) is how they
// bail out.
type Callbacks struct {
	GlobalInit func(h *Handle, initArg any) int
	LocalInit  func(h *Handle, core int)
	LocalExit  func(h *Handle, core int)
	GlobalExit func(h *Handle)
	Body       func(h *Handle, msg *message.Message)
}

// Config describes a worker to deploy.
type Config struct {
	ID        pcore.WorkerID // WorkerIDInvalid to allocate a dynamic id
	Name      string
	CoreMask  uint64
	Parallel  bool
	Callbacks Callbacks
	InitArg   any
}

// SendHook routes a message from a worker to a receiver, stamping the
// sender id into the header. The platform facade installs its router's
// SendFrom here once both are built.
type SendHook func(msg *message.Message, sender, receiver pcore.WorkerID)

// Executor schedules a handler-body invocation onto one of the cores in
// coreMask, passing fn the core it ends up running on. The platform
// facade installs one backed by the pinned per-core dispatch loops;
// without one (engine used standalone), bodies run inline on the
// worker's consumer goroutine.
type Executor interface {
	Run(coreMask uint64, fn func(core int))
}

// Observer is the narrow metrics surface the engine needs.
type Observer interface {
	ObserveWorkerDeployed()
	ObserveWorkerTerminated()
	ObserveWorkerRejected()
	ObserveMessageDropped()
	ObserveMessageFlushed()
}

type noOpObserver struct{}

func (noOpObserver) ObserveWorkerDeployed()   {}
func (noOpObserver) ObserveWorkerTerminated() {}
func (noOpObserver) ObserveWorkerRejected()   {}
func (noOpObserver) ObserveMessageDropped()   {}
func (noOpObserver) ObserveMessageFlushed()   {}

// Engine is the worker engine for a single node.
type Engine struct {
	table    *worktable.Table
	node     uint16
	observer Observer

	completionCh chan pcore.WorkerID

	mu        sync.Mutex
	acceptNew bool // false once shutdown begins; DeployWorker then rejects
	sendHook  SendHook
	executor  Executor

	workersMu sync.RWMutex
	workers   map[pcore.WorkerID]*worker
}

// worker bundles a table entry with the callbacks and atomic-execution
// token needed to dispatch messages to it. Kept separate from
// worktable.Context because the table is a generic id->slot allocator
// with no notion of user callbacks.
type worker struct {
	ctx         *worktable.Context
	callbacks   Callbacks
	atomicToken chan struct{} // nil for parallel workers
}

func (e *Engine) registerWorker(id pcore.WorkerID, w *worker) {
	e.workersMu.Lock()
	e.workers[id] = w
	e.workersMu.Unlock()
}

func (e *Engine) unregisterWorker(id pcore.WorkerID) {
	e.workersMu.Lock()
	delete(e.workers, id)
	e.workersMu.Unlock()
}

func (e *Engine) lookupWorker(id pcore.WorkerID) *worker {
	e.workersMu.RLock()
	defer e.workersMu.RUnlock()
	return e.workers[id]
}

// NewEngine builds an engine for node, notifying observer of every
// tracked event. A nil observer is replaced with a no-op.
func NewEngine(node uint16, observer Observer) *Engine {
	if observer == nil {
		observer = noOpObserver{}
	}
	e := &Engine{
		table:        worktable.NewTable(node),
		node:         node,
		observer:     observer,
		completionCh: make(chan pcore.WorkerID, pcore.MaxWorkerCount),
		acceptNew:    true,
		workers:      make(map[pcore.WorkerID]*worker),
	}
	go e.runCompletionDaemon()
	return e
}

// Table exposes the underlying worker table.
func (e *Engine) Table() *worktable.Table { return e.table }

// InstallSendHook registers the routing function Handle.Send stamps the
// sending worker's id into. Without one installed, Handle.Send destroys
// the message with a logged warning.
func (e *Engine) InstallSendHook(hook SendHook) {
	e.mu.Lock()
	e.sendHook = hook
	e.mu.Unlock()
}

func (e *Engine) sendHookFn() SendHook {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sendHook
}

// InstallExecutor registers the per-core dispatcher handler bodies are
// handed to. A nil executor leaves bodies running inline on each
// worker's consumer goroutine.
func (e *Engine) InstallExecutor(ex Executor) {
	e.mu.Lock()
	e.executor = ex
	e.mu.Unlock()
}

func (e *Engine) executorFn() Executor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executor
}

// DisableDeployment stops accepting new DeployWorker calls. The
// dispatcher bootstrap calls it before per-core exits run, so no worker
// can be allocated into a platform that is tearing down.
func (e *Engine) DisableDeployment() {
	e.mu.Lock()
	e.acceptNew = false
	e.mu.Unlock()
}

// DeployWorker reserves a context, runs global init synchronously, and
// launches per-core local-init goroutines plus the worker's persistent
// queue consumer. Deployment completes asynchronously via the
// completion daemon once every core has returned from local init.
func (e *Engine) DeployWorker(cfg Config) (pcore.WorkerID, error) {
	if cfg.Name == "" {
		return pcore.WorkerIDInvalid, errorsx.NewError("DeployWorker", errorsx.KindProgrammingViolation, "passed empty name for worker")
	}
	if cfg.Callbacks.Body == nil {
		return pcore.WorkerIDInvalid, errorsx.NewError("DeployWorker", errorsx.KindProgrammingViolation, "passed nil body function for worker '"+cfg.Name+"'")
	}
	if cfg.CoreMask == 0 {
		return pcore.WorkerIDInvalid, errorsx.NewError("DeployWorker", errorsx.KindProgrammingViolation, "passed empty core mask for worker '"+cfg.Name+"'")
	}

	e.mu.Lock()
	accepting := e.acceptNew
	e.mu.Unlock()
	if !accepting {
		e.observer.ObserveWorkerRejected()
		return pcore.WorkerIDInvalid, errorsx.NewError("DeployWorker", errorsx.KindProgrammingViolation, "deployment disabled, platform is tearing down")
	}

	logging.Debug("deploying worker", "name", cfg.Name, "parallel", cfg.Parallel)

	var (
		ctx *worktable.Context
		ok  bool
	)
	if cfg.ID == pcore.WorkerIDInvalid {
		ctx, ok = e.table.ReserveDynamic()
	} else {
		ctx, ok = e.table.ReserveStatic(cfg.ID.Local())
	}
	if !ok {
		logging.Error("DeployWorker: failed to reserve context", "name", cfg.Name)
		e.observer.ObserveWorkerRejected()
		return pcore.WorkerIDInvalid, errorsx.NewError("DeployWorker", errorsx.KindResourceExhaustion, "failed to reserve worker context for '"+cfg.Name+"'")
	}

	ctx.Lock()
	ctx.Name = cfg.Name
	ctx.CoreMask = cfg.CoreMask
	ctx.Parallel = cfg.Parallel
	ctx.Queue = make(chan *message.Message, queueCapacity)
	ctx.LocalData = make([]any, pcore.MaxPhysicalCores)
	id := ctx.ID
	ctx.Unlock()

	w := &worker{ctx: ctx, callbacks: cfg.Callbacks}
	if !cfg.Parallel {
		w.atomicToken = make(chan struct{}, 1)
		w.atomicToken <- struct{}{}
	}
	e.registerWorker(id, w)

	if cfg.Callbacks.GlobalInit != nil {
		h := e.newHandle(ctx, -1, CallbackGlobalInit)
		var status int
		completed := runGuarded(func() { status = cfg.Callbacks.GlobalInit(h, cfg.InitArg) })
		if completed && status != 0 {
			logging.Warn("user's global init failed", "worker", id, "name", cfg.Name, "status", status)
			e.unregisterWorker(id)
			ctx.Lock()
			ctx.State = worktable.Terminating
			e.table.Release(ctx)
			e.observer.ObserveWorkerRejected()
			return pcore.WorkerIDInvalid, errorsx.NewWorkerError("DeployWorker", uint16(id), errorsx.KindProgrammingViolation, "user global init failed for '"+cfg.Name+"'")
		}
	}

	cores := setCores(cfg.CoreMask)
	var wg sync.WaitGroup
	wg.Add(len(cores))
	for _, core := range cores {
		core := core
		go func() {
			defer wg.Done()
			if cfg.Callbacks.LocalInit != nil {
				h := e.newHandle(ctx, core, CallbackLocalInit)
				runGuarded(func() { cfg.Callbacks.LocalInit(h, core) })
			}
		}()
	}
	go e.runDispatchLoop(id, w)

	go func() {
		wg.Wait()
		e.completionCh <- id
	}()

	return id, nil
}

// setCores returns the set bits of mask as core indices.
func setCores(mask uint64) []int {
	var cores []int
	for i := 0; i < 64; i++ {
		if mask&(1<<uint(i)) != 0 {
			cores = append(cores, i)
		}
	}
	return cores
}

// runDispatchLoop is the persistent consumer for one worker's queue: it
// draws each message and hands the Body invocation to the installed
// per-core dispatcher, which runs it on one of the cores in the
// worker's mask. For atomic workers, an execution token (w.atomicToken)
// is acquired before the hand-off, enforcing at most one Body call in
// flight at a time, releasable early via Handle.EndAtomicContext; a
// parallel worker's consumer keeps handing off without waiting, so
// instances run concurrently across its cores.
func (e *Engine) runDispatchLoop(id pcore.WorkerID, w *worker) {
	for msg := range w.ctx.Queue {
		msg := msg
		if w.atomicToken != nil {
			<-w.atomicToken
		}
		run := func(core int) {
			h := e.newHandle(w.ctx, core, CallbackReceive)
			if w.atomicToken != nil {
				h.atomicToken = w.atomicToken
			}
			runGuarded(func() { w.callbacks.Body(h, msg) })
			if w.atomicToken != nil {
				h.releaseAtomicToken()
			}
		}
		if ex := e.executorFn(); ex != nil {
			ex.Run(w.ctx.CoreMask, run)
			continue
		}
		run(firstCore(w.ctx.CoreMask))
	}
}

// firstCore returns the lowest set bit of mask as a core index.
func firstCore(mask uint64) int {
	for i := 0; i < 64; i++ {
		if mask&(1<<uint(i)) != 0 {
			return i
		}
	}
	return 0
}

// TerminateWorker terminates another worker (id != the caller's own).
// Active workers are torn down immediately; workers still Deploying
// have termination latched for the completion daemon to honour.
// Self-termination from inside a callback must go through Handle.Terminate.
func (e *Engine) TerminateWorker(id pcore.WorkerID) error {
	ctx := e.table.Fetch(id)
	if ctx == nil {
		return errorsx.NewWorkerError("TerminateWorker", uint16(id), errorsx.KindProgrammingViolation, "worker ID out of range")
	}

	ctx.Lock()
	switch ctx.State {
	case worktable.Active:
		ctx.MarkTeardownInProgress()
		ctx.Unlock()
		logging.Info("terminating worker", "worker", id)
		go e.stopWorker(id, ctx)
		return nil

	case worktable.Deploying:
		if ctx.TerminationRequested {
			ctx.Unlock()
			logging.Warn("TerminateWorker: worker's termination already requested", "worker", id)
			return nil
		}
		ctx.TerminationRequested = true
		ctx.Unlock()
		return nil

	case worktable.Terminating:
		ctx.Unlock()
		logging.Warn("TerminateWorker: worker already terminating", "worker", id)
		return nil

	default:
		name := ctx.Name
		state := ctx.State
		ctx.Unlock()
		logging.Warn("TerminateWorker: worker in invalid state", "worker", id, "name", name, "state", state)
		return errorsx.NewWorkerError("TerminateWorker", uint16(id), errorsx.KindProgrammingViolation, "worker in invalid state")
	}
}

// stopWorker runs the local-exit/global-exit sequence and releases the
// context: local exit once per core in the worker's mask, then global
// exit once.
func (e *Engine) stopWorker(id pcore.WorkerID, ctx *worktable.Context) {
	w := e.lookupWorker(id)
	if w == nil {
		return
	}

	// Closing under the entry's lock rules out a concurrent Deliver
	// (worktable.Table.Deliver) sending on the queue after it closes -
	// Deliver's Active-state send happens under the same lock.
	ctx.Lock()
	close(ctx.Queue)
	ctx.Unlock()

	for _, core := range setCores(ctx.CoreMask) {
		if w.callbacks.LocalExit != nil {
			h := e.newHandle(ctx, core, CallbackLocalExit)
			runGuarded(func() { w.callbacks.LocalExit(h, core) })
		}
	}

	if w.callbacks.GlobalExit != nil {
		h := e.newHandle(ctx, -1, CallbackGlobalExit)
		runGuarded(func() { w.callbacks.GlobalExit(h) })
	}

	e.unregisterWorker(id)

	ctx.Lock()
	e.table.Release(ctx)
	e.observer.ObserveWorkerTerminated()
	logging.Info("worker terminated", "worker", id)
}

// FindLocalWorker looks up a deployed worker by name with a bounded
// scan over the tracked-worker map.
func (e *Engine) FindLocalWorker(name string) (pcore.WorkerID, error) {
	e.workersMu.RLock()
	defer e.workersMu.RUnlock()
	for id, w := range e.workers {
		if w.ctx.Name == name {
			return id, nil
		}
	}
	return pcore.WorkerIDInvalid, nil
}

// ActiveWorkerIDs returns the ids of every worker currently tracked by
// the engine (Deploying or Active), for the dispatcher bootstrap's
// teardown sequence to terminate them all before running the
// applications' global exits.
func (e *Engine) ActiveWorkerIDs() []pcore.WorkerID {
	e.workersMu.RLock()
	defer e.workersMu.RUnlock()
	ids := make([]pcore.WorkerID, 0, len(e.workers))
	for id := range e.workers {
		ids = append(ids, id)
	}
	return ids
}

// Idle reports whether the engine currently tracks no workers, used by
// the dispatcher bootstrap to poll for termination completion during
// shutdown (TerminateWorker tears down asynchronously).
func (e *Engine) Idle() bool {
	e.workersMu.RLock()
	defer e.workersMu.RUnlock()
	return len(e.workers) == 0
}
