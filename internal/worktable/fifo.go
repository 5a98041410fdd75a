package worktable

import (
	"sync"

	"github.com/forkcore/platform/internal/pcore"
)

// dynamicFIFO is a ring of recyclable dynamic local identifiers,
// protected by its own mutex (separate from any per-entry lock), with
// get/put indices and a free counter.
//
// Ids are poisoned (set to the invalid sentinel) in the ring slot they
// occupied the instant they are allocated, and release asserts the slot
// about to be overwritten is still poisoned — a corruption detector for
// double-release and use-after-release bugs.
type dynamicFIFO struct {
	mu   sync.Mutex
	ring []uint16
	get  int
	put  int
	free int
}

func newDynamicFIFO() *dynamicFIFO {
	count := pcore.WorkerLocalDynamicMax - pcore.WorkerLocalStaticMax
	f := &dynamicFIFO{ring: make([]uint16, count)}
	for i := range f.ring {
		f.ring[i] = uint16(pcore.WorkerLocalStaticMax + i)
	}
	f.free = count
	return f
}

// allocate pops the next free dynamic local id, or ok=false if none remain.
func (f *dynamicFIFO) allocate() (id uint16, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.free == 0 {
		return 0, false
	}
	id = f.ring[f.get]
	f.ring[f.get] = pcore.WorkerIDInvalid // poison the vacated slot
	f.get = (f.get + 1) % len(f.ring)
	f.free--
	return id, true
}

// release returns id to the pool. Releasing an id that is not in the
// dynamic range is a caller error; callers must check IsDynamic first.
func (f *dynamicFIFO) release(id uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pcore.AssertTrue(f.ring[f.put] == pcore.WorkerIDInvalid, "dynamic id fifo corruption: slot not poisoned before release")
	f.ring[f.put] = id
	f.put = (f.put + 1) % len(f.ring)
	f.free++
}

// freeCount reports how many dynamic identifiers remain unallocated.
func (f *dynamicFIFO) freeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.free
}
