package bootstrap

import (
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestListenForSigintSetsFlag(t *testing.T) {
	var exitFlag atomic.Bool
	stop := ListenForSigint(&exitFlag)
	defer stop()

	assert.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGINT))

	assert.Eventually(t, func() bool { return exitFlag.Load() }, time.Second, time.Millisecond)
}

func TestListenForSigintStopDoesNotPanic(t *testing.T) {
	var exitFlag atomic.Bool
	stop := ListenForSigint(&exitFlag)
	assert.NotPanics(t, stop)
}
