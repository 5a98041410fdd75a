package workers

import (
	"github.com/forkcore/platform/internal/logging"
	"github.com/forkcore/platform/internal/message"
	"github.com/forkcore/platform/internal/worktable"
)

// runCompletionDaemon finishes deployment once every core assigned to a
// worker has returned from local init. Two outcomes:
//
//   - termination was requested mid-deploy (someone called
//     TerminateWorker or the worker terminated itself during local
//     init): drop every buffered message, mark Terminating, and run
//     the exit sequence without ever delivering anything.
//   - otherwise: mark Active and flush the deployment-time buffer onto
//     the now-live queue, in arrival order.
func (e *Engine) runCompletionDaemon() {
	for id := range e.completionCh {
		ctx := e.table.Fetch(id)
		if ctx == nil {
			continue
		}

		ctx.Lock()
		buffered := ctx.MarkDeploymentSuccessful()
		cancelled := ctx.TerminationRequested

		if cancelled {
			ctx.MarkTeardownInProgress()
			ctx.Unlock()

			for _, m := range buffered {
				message.DestroyMessage(m)
				e.observer.ObserveMessageDropped()
			}
			logging.Info("worker cancelled during deployment, tearing down", "worker", id, "dropped", len(buffered))
			e.stopWorker(id, ctx)
			continue
		}

		flushed, dropped := flushBuffer(ctx, buffered)
		ctx.Unlock()

		for i := 0; i < dropped; i++ {
			e.observer.ObserveMessageDropped()
		}
		for i := 0; i < flushed; i++ {
			e.observer.ObserveMessageFlushed()
		}

		e.observer.ObserveWorkerDeployed()
		logging.Debug("worker deployment completed", "worker", id, "flushed", flushed, "dropped", dropped)
	}
}

// flushBuffer pushes buffered onto ctx.Queue, now that the worker is
// Active and its persistent dispatch goroutines are reading from it. A
// message that can't be queued (queue full) is destroyed and counted
// as dropped rather than blocking the completion daemon. Caller must
// hold ctx's lock.
func flushBuffer(ctx *worktable.Context, buffered []*message.Message) (flushed, dropped int) {
	for _, m := range buffered {
		select {
		case ctx.Queue <- m:
			flushed++
		default:
			message.DestroyMessage(m)
			dropped++
		}
	}
	return flushed, dropped
}
