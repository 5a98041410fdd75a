package bootstrap

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/forkcore/platform/internal/logging"
)

// ListenForSigint installs an idempotent SIGINT handler that sets
// exitFlag, the single process-wide *atomic.Bool every dispatch.Loop
// already polls. The returned stop function removes the handler; it
// does not by itself request shutdown.
func ListenForSigint(exitFlag *atomic.Bool) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ch:
				if exitFlag.CompareAndSwap(false, true) {
					logging.Info("bootstrap: SIGINT received, requesting shutdown")
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}
