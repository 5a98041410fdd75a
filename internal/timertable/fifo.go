package timertable

import (
	"sync"

	"github.com/forkcore/platform/internal/pcore"
)

// idFIFO is a ring of every recyclable timer identifier (the whole
// range, unlike the worker table's dynamic-only FIFO: every timer id is
// pool-assigned).
type idFIFO struct {
	mu   sync.Mutex
	ring []uint16
	get  int
	put  int
	free int
}

func newIDFIFO() *idFIFO {
	f := &idFIFO{ring: make([]uint16, pcore.MaxTimerCount)}
	for i := range f.ring {
		f.ring[i] = uint16(i)
	}
	f.free = pcore.MaxTimerCount
	return f
}

func (f *idFIFO) allocate() (id uint16, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.free == 0 {
		return 0, false
	}
	id = f.ring[f.get]
	f.ring[f.get] = pcore.TimerIDInvalid
	f.get = (f.get + 1) % len(f.ring)
	f.free--
	return id, true
}

func (f *idFIFO) release(id uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pcore.AssertTrue(f.ring[f.put] == pcore.TimerIDInvalid, "timer id fifo corruption: slot not poisoned before release")
	f.ring[f.put] = id
	f.put = (f.put + 1) % len(f.ring)
	f.free++
}

func (f *idFIFO) freeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.free
}
