package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/forkcore/platform/internal/input"
)

func TestLoopCore(t *testing.T) {
	var exitFlag atomic.Bool
	l := New(3, &exitFlag, input.NewRegistry())
	assert.Equal(t, 3, l.Core())
}

func TestLoopRunStopsOnExitFlag(t *testing.T) {
	var exitFlag atomic.Bool
	reg := input.NewRegistry()
	reg.Enable()

	var polls atomic.Int64
	reg.Register(func(core int) { polls.Add(1) })

	l := New(0, &exitFlag, reg)

	done := make(chan struct{})
	go func() {
		l.Run()
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	exitFlag.Store(true)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after exit flag was set")
	}

	assert.Greater(t, polls.Load(), int64(0))
}

func TestLoopActiveSyncReleasesAllParticipants(t *testing.T) {
	var exitFlag atomic.Bool
	const cores = 4

	var counter atomic.Int64
	var wg sync.WaitGroup
	wg.Add(cores)

	for i := 0; i < cores; i++ {
		l := New(i, &exitFlag, input.NewRegistry())
		go func() {
			defer wg.Done()
			l.ActiveSync(&counter, cores)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ActiveSync did not release every participant")
	}

	assert.EqualValues(t, cores, counter.Load())
}

func TestLoopSubmitRunsWorkInsideRun(t *testing.T) {
	var exitFlag atomic.Bool
	l := New(1, &exitFlag, input.NewRegistry())

	var ran atomic.Bool
	assert.True(t, l.Submit(func() { ran.Store(true) }))

	done := make(chan struct{})
	go func() {
		l.Run()
		close(done)
	}()

	assert.Eventually(t, ran.Load, 2*time.Second, time.Millisecond, "submitted work must execute on the running loop")

	exitFlag.Store(true)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after exit flag was set")
	}
}

func TestLoopFlushWorkRunsRemainder(t *testing.T) {
	var exitFlag atomic.Bool
	l := New(0, &exitFlag, input.NewRegistry())

	ran := 0
	l.Submit(func() { ran++ })
	l.Submit(func() { ran++ })
	l.FlushWork()

	assert.Equal(t, 2, ran)
}

func TestLoopDrainDoesNotPanic(t *testing.T) {
	var exitFlag atomic.Bool
	l := New(0, &exitFlag, input.NewRegistry())
	assert.NotPanics(t, l.Drain)
}
